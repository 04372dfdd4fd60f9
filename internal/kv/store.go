package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string

	SQLitePath  string
	PostgresDSN string

	RedisAddr   string
	RedisPrefix string
}

func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(zap.String("driver", driver))

	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory, "":
		s = NewMemStore()
	case DriverSQLite:
		s, err = OpenSQLite(cfg.SQLitePath)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, cfg.PostgresDSN)
	case DriverRedis:
		s, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		log.Error("open storage failed", zap.Error(err))
		return nil, err
	}

	log.Info("storage opened")
	return s, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
