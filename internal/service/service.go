// Package service ties the strategy builder, store, translator and backend
// gateway together. Each method is one user action: it gets a trace id,
// talks to each collaborator at most once and never retries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/backend"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/logger"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
	"cryptostrat/internal/translate"
)

// ErrStrategyNotFound is returned when an id has no saved strategy.
var ErrStrategyNotFound = store.ErrStrategyNotFound

// Gateway is the part of backend.Client the service calls.
type Gateway interface {
	RunBacktest(ctx context.Context, req backend.BacktestRequest) (backend.BacktestResponse, error)
	StartLiveTrade(ctx context.Context, req backend.LiveTradeRequest) (backend.Ack, error)
	LiveTradeStatus(ctx context.Context, symbol string) ([]backend.LiveTradeStatus, error)
	StopLiveTrade(ctx context.Context, symbol string) (backend.Ack, error)
}

// Config wires a Service. Catalog, Store and Gateway are required.
type Config struct {
	Catalog        *indicator.Catalog
	Store          store.Store
	Gateway        Gateway
	InitialBalance float64 // used when Backtest is called with balance <= 0
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	BuilderOptions []strategy.Option
}

type Service struct {
	catalog    *indicator.Catalog
	store      store.Store
	gateway    Gateway
	translator *translate.Translator
	balance    float64
	metrics    *metrics.Metrics
	log        *slog.Logger
	opts       []strategy.Option
}

func New(cfg Config) *Service {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	balance := cfg.InitialBalance
	if balance <= 0 {
		balance = 10000
	}
	return &Service{
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		gateway:    cfg.Gateway,
		translator: translate.New(cfg.Catalog),
		balance:    balance,
		metrics:    cfg.Metrics,
		log:        lg.With("component", "service"),
		opts:       cfg.BuilderOptions,
	}
}

func (s *Service) Catalog() *indicator.Catalog { return s.catalog }

// NewBuilder starts an empty strategy.
func (s *Service) NewBuilder() strategy.Builder {
	return strategy.New(s.catalog, s.opts...)
}

// Save snapshots b under name and persists it. On a store failure the
// returned builder is b, so the caller can retry the save.
func (s *Service) Save(ctx context.Context, b strategy.Builder, name string) (strategy.Builder, strategy.Strategy, error) {
	next, snap, err := b.Save(name)
	if err != nil {
		return b, strategy.Strategy{}, err
	}
	ctx = logger.Ensure(ctx, snap.ID)
	if err := s.store.Upsert(ctx, snap); err != nil {
		return b, strategy.Strategy{}, s.storeErr(ctx, "upsert", snap.ID, err)
	}
	s.log.Info("strategy saved", s.attrs(ctx, snap.ID, "name", snap.Name, "indicators", len(snap.Indicators))...)
	return next, snap, nil
}

// Edit loads a saved strategy into a builder.
func (s *Service) Edit(ctx context.Context, id string) (strategy.Builder, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return strategy.Builder{}, err
	}
	return strategy.Load(s.catalog, st, s.opts...), nil
}

func (s *Service) Get(ctx context.Context, id string) (strategy.Strategy, error) {
	st, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return strategy.Strategy{}, s.storeErr(ctx, "get", id, err)
	}
	if !ok {
		return strategy.Strategy{}, fmt.Errorf("%w: %s", ErrStrategyNotFound, id)
	}
	return st, nil
}

// List returns saved strategies newest first.
func (s *Service) List(ctx context.Context) ([]strategy.Strategy, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, "list", "", err)
	}
	return list, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ctx = logger.Ensure(ctx, id)
	if err := s.store.Delete(ctx, id); err != nil {
		return s.storeErr(ctx, "delete", id, err)
	}
	s.log.Info("strategy deleted", s.attrs(ctx, id)...)
	return nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	ctx = logger.Ensure(ctx, id)
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return s.storeErr(ctx, "set_active", id, err)
	}
	s.log.Info("strategy active flag", s.attrs(ctx, id, "active", active)...)
	return nil
}

// SetTradeSettings replaces the risk settings of a saved strategy.
func (s *Service) SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ctx = logger.Ensure(ctx, id)
	if err := s.store.SetTradeSettings(ctx, id, r); err != nil {
		return s.storeErr(ctx, "set_trade_settings", id, err)
	}
	s.log.Info("strategy risk settings", s.attrs(ctx, id)...)
	return nil
}

// Backtest runs a saved strategy. A balance <= 0 uses the configured default.
func (s *Service) Backtest(ctx context.Context, id string, balance float64) (backend.BacktestResponse, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return backend.BacktestResponse{}, err
	}
	return s.BacktestStrategy(ctx, st, balance)
}

// BacktestStrategy runs st without requiring it to be saved.
func (s *Service) BacktestStrategy(ctx context.Context, st strategy.Strategy, balance float64) (backend.BacktestResponse, error) {
	if balance <= 0 {
		balance = s.balance
	}
	ctx = logger.Ensure(ctx, st.ID)
	req, err := s.translator.ToBacktestRequest(st, balance)
	if err != nil {
		return backend.BacktestResponse{}, s.translateErr(ctx, st.ID, err)
	}
	start := time.Now()
	resp, err := s.gateway.RunBacktest(ctx, req)
	if err != nil {
		return backend.BacktestResponse{}, err
	}
	s.log.Info("backtest complete", s.attrs(ctx, st.ID,
		"symbol", req.Symbol, "timeframe", req.Timeframe,
		"trades", len(resp.Trades), "elapsed", time.Since(start))...)
	return resp, nil
}

// BacktestRequest returns the request Backtest would send for st with the
// configured initial balance.
func (s *Service) BacktestRequest(st strategy.Strategy) (backend.BacktestRequest, error) {
	return s.translator.ToBacktestRequest(st, s.balance)
}

// StartLive starts live trading for a saved strategy and marks it active.
func (s *Service) StartLive(ctx context.Context, id string) (backend.Ack, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return backend.Ack{}, err
	}
	ctx = logger.Ensure(ctx, id)
	req, err := s.translator.ToLiveTradeRequest(st)
	if err != nil {
		return backend.Ack{}, s.translateErr(ctx, id, err)
	}
	ack, err := s.gateway.StartLiveTrade(ctx, req)
	if err != nil {
		return backend.Ack{}, err
	}
	s.log.Info("live trade started", s.attrs(ctx, id, "symbol", req.Symbol, "status", ack.Status)...)
	if err := s.store.SetActive(ctx, id, true); err != nil {
		return ack, s.storeErr(ctx, "set_active", id, err)
	}
	return ack, nil
}

// StopLive stops the backend trade for a saved strategy's symbol and
// clears its active flag.
func (s *Service) StopLive(ctx context.Context, id string) (backend.Ack, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return backend.Ack{}, err
	}
	ctx = logger.Ensure(ctx, id)
	ack, err := s.gateway.StopLiveTrade(ctx, st.Coin)
	if err != nil {
		return backend.Ack{}, err
	}
	s.log.Info("live trade stopped", s.attrs(ctx, id, "symbol", st.Coin, "status", ack.Status)...)
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return ack, s.storeErr(ctx, "set_active", id, err)
	}
	return ack, nil
}

// StopSymbol stops backend trades for symbol, or every trade when it is
// empty. Saved active flags are cleared for matching strategies.
func (s *Service) StopSymbol(ctx context.Context, symbol string) (backend.Ack, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	ctx = logger.Ensure(ctx, symbol)
	ack, err := s.gateway.StopLiveTrade(ctx, symbol)
	if err != nil {
		return backend.Ack{}, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return ack, err
	}
	for _, st := range list {
		if !st.Active || (symbol != "" && st.Coin != symbol) {
			continue
		}
		if err := s.store.SetActive(ctx, st.ID, false); err != nil {
			return ack, s.storeErr(ctx, "set_active", st.ID, err)
		}
	}
	return ack, nil
}

// Status lists running backend trades, filtered to symbol when set.
func (s *Service) Status(ctx context.Context, symbol string) ([]backend.LiveTradeStatus, error) {
	return s.gateway.LiveTradeStatus(logger.Ensure(ctx, symbol), strings.ToUpper(strings.TrimSpace(symbol)))
}

func (s *Service) storeErr(ctx context.Context, op, id string, err error) error {
	wrapped := apperr.Collaborator("store "+op, err)
	s.log.Warn("store operation failed", s.attrs(ctx, id, "op", op, "error", wrapped)...)
	return wrapped
}

func (s *Service) translateErr(ctx context.Context, id string, err error) error {
	if s.metrics != nil {
		s.metrics.TranslateErrors.Inc()
	}
	s.log.Warn("strategy translation failed", s.attrs(ctx, id, "error", err)...)
	return err
}

func (s *Service) attrs(ctx context.Context, id string, kv ...any) []any {
	out := make([]any, 0, len(kv)+4)
	if id != "" {
		out = append(out, "strategy_id", id)
	}
	out = append(out, kv...)
	return append(out, logger.LogWithTrace(ctx)...)
}
