package cartd

import (
	"fmt"
	"time"

	"MiniCart/internal/cart"
	"MiniCart/internal/kv"
	"MiniCart/pkg/kit"
)

type Config struct {
	Port     string
	LogLevel string

	Storage    kv.Config
	StorageKey string
	Mode       cart.Mode

	JWTSecret      string
	MutationLimit  int
	MutationWindow time.Duration

	MetricsEnabled bool
	MetricsToken   string
	TraceStdout    bool
}

func LoadConfig() (Config, error) {
	mode, err := cart.ParseMode(kit.Getenv("CART_MUTATION_MODE", "serialized"))
	if err != nil {
		return Config{}, fmt.Errorf("CART_MUTATION_MODE: %w", err)
	}

	cfg := Config{
		Port:     kit.Getenv("PORT", "8090"),
		LogLevel: kit.Getenv("LOG_LEVEL", "info"),
		Storage: kv.Config{
			Driver:      kit.Getenv("CART_STORAGE", kv.DriverSQLite),
			SQLitePath:  kit.Getenv("CART_SQLITE_PATH", "minicart.db"),
			PostgresDSN: kit.Getenv("DATABASE_URL", ""),
			RedisAddr:   kit.Getenv("REDIS_ADDR", ""),
			RedisPrefix: kit.Getenv("REDIS_PREFIX", ""),
		},
		StorageKey:     kit.Getenv("CART_STORAGE_KEY", cart.StorageKey),
		Mode:           mode,
		JWTSecret:      kit.Getenv("CART_JWT_SECRET", ""),
		MutationLimit:  kit.GetenvInt("CART_MUTATION_LIMIT", 120),
		MutationWindow: kit.GetenvDuration("CART_MUTATION_WINDOW", time.Minute),
		MetricsEnabled: kit.GetenvBool("METRICS_ENABLED", true),
		MetricsToken:   kit.Getenv("METRICS_TOKEN", ""),
		TraceStdout:    kit.GetenvBool("TRACE_STDOUT", false),
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("CART_JWT_SECRET must be at least 32 chars")
	}
	return cfg, nil
}
