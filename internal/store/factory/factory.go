// Package factory opens the store.Store selected by configuration.
package factory

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"cryptostrat/config"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/store"
	"cryptostrat/internal/store/memory"
	"cryptostrat/internal/store/postgres"
	"cryptostrat/internal/store/redis"
	"cryptostrat/internal/store/sqlite"
)

// Open builds the backend named by cfg.StoreDriver and wraps it with
// store metrics when m is non-nil.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		s = memory.New()
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err = sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	case config.DriverPostgres:
		s, err = postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfigFromEnv())
	case config.DriverRedis:
		s, err = redis.New(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "cryptostrat:",
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	log.Printf("[store] using %s store", cfg.StoreDriver)
	return store.Instrument(s, cfg.StoreDriver, m), nil
}
