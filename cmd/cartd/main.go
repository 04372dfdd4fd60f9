package main

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/internal/cartd"
	"MiniCart/internal/kv"
	"MiniCart/pkg/kit"
)

func main() {
	service := "cartd"

	cfg, err := cartd.LoadConfig()
	if err != nil {
		kit.NewLogger(service, "info").Fatal("invalid config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := kit.SignalContext(context.Background())
	defer stop()

	var traceOut io.Writer
	if cfg.TraceStdout {
		traceOut = os.Stdout
	}
	shutdownTracing, err := kit.InitTracing(ctx, service, traceOut)
	if err != nil {
		log.Fatal("init tracing failed", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	storage, err := kv.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("open storage failed", zap.Error(err))
	}
	defer func() { _ = storage.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := cart.NewStore(ctx, storage, cart.Options{
		Log:     log,
		Key:     cfg.StorageKey,
		Mode:    cfg.Mode,
		Metrics: cart.NewMetrics(reg),
	})

	s := &cartd.Server{
		Store:   store,
		Storage: storage,
		Log:     log,
		Limiter: kit.NewIPRateLimiter(cfg.MutationLimit, cfg.MutationWindow),
	}
	if cfg.JWTSecret != "" {
		s.JWT = cartd.NewTokenMaker(cfg.JWTSecret)
	} else {
		log.Warn("CART_JWT_SECRET not set, mutations are unauthenticated")
	}

	h := cartd.NewHandler(s, cartd.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
	})

	log.Info("cartd configured",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("key", cfg.StorageKey),
		zap.Stringer("mode", cfg.Mode),
	)

	if err := kit.RunHTTPServer(ctx, ":"+cfg.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
