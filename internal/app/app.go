// Package app wires configuration, logging, metrics, the strategy store and
// the backend client into a service.Service for the command-line tools.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cryptostrat/config"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/logger"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/service"
	"cryptostrat/internal/store"
	"cryptostrat/internal/store/factory"
)

type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    store.Store
	Client   *backend.Client
	Service  *service.Service
}

// Open validates cfg and connects the store. Logs go to logOut as JSON.
func Open(ctx context.Context, name string, cfg *config.Config, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	lg := logger.InitWriter(logOut, name, cfg.SlogLevel())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	st, err := factory.Open(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Breaker: backend.NewBreaker(cfg.BreakerMaxFailures, cfg.BreakerReset),
		Metrics: m,
		Logger:  lg,
	})

	svc := service.New(service.Config{
		Catalog:        indicator.Builtin(),
		Store:          st,
		Gateway:        client,
		InitialBalance: cfg.InitialBalance,
		Metrics:        m,
		Logger:         lg,
	})

	return &App{
		Config:   cfg,
		Log:      lg,
		Registry: reg,
		Metrics:  m,
		Store:    st,
		Client:   client,
		Service:  svc,
	}, nil
}

// StreamConfig returns the websocket settings for the configured backend.
func (a *App) StreamConfig() backend.StreamConfig {
	return backend.StreamConfig{
		URL:     a.Config.BackendWSURL,
		Metrics: a.Metrics,
		Logger:  a.Log,
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}
