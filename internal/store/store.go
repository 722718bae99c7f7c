// Package store defines persistence for saved strategies. Backends live in
// the memory, sqlite, postgres and redis subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/metrics"
	"cryptostrat/internal/strategy"
)

// ErrStrategyNotFound is returned by field updates on an unknown id.
var ErrStrategyNotFound = fmt.Errorf("strategy %w", apperr.ErrNotFound)

// Store persists strategies. Implementations return deep copies, so callers
// may modify what they get back.
type Store interface {
	// List returns every strategy, newest first.
	List(ctx context.Context) ([]strategy.Strategy, error)
	Get(ctx context.Context, id string) (strategy.Strategy, bool, error)
	Upsert(ctx context.Context, s strategy.Strategy) error
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error
	Ping(ctx context.Context) error
	Close() error
}

// SortNewestFirst orders by creation time descending, then id descending.
func SortNewestFirst(list []strategy.Strategy) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// Instrumented records latency and failures of every call on next.
type Instrumented struct {
	next   Store
	driver string
	m      *metrics.Metrics
}

// Instrument wraps next. A nil m returns next unchanged.
func Instrument(next Store, driver string, m *metrics.Metrics) Store {
	if m == nil {
		return next
	}
	return &Instrumented{next: next, driver: driver, m: m}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.m.StoreOpDur.WithLabelValues(s.driver, op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.m.StoreErrors.WithLabelValues(s.driver, op).Inc()
	}
}

func (s *Instrumented) List(ctx context.Context) ([]strategy.Strategy, error) {
	start := time.Now()
	out, err := s.next.List(ctx)
	s.observe("list", start, err)
	return out, err
}

func (s *Instrumented) Get(ctx context.Context, id string) (strategy.Strategy, bool, error) {
	start := time.Now()
	out, ok, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return out, ok, err
}

func (s *Instrumented) Upsert(ctx context.Context, st strategy.Strategy) error {
	start := time.Now()
	err := s.next.Upsert(ctx, st)
	s.observe("upsert", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) SetActive(ctx context.Context, id string, active bool) error {
	start := time.Now()
	err := s.next.SetActive(ctx, id, active)
	s.observe("set_active", start, err)
	return err
}

func (s *Instrumented) SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error {
	start := time.Now()
	err := s.next.SetTradeSettings(ctx, id, r)
	s.observe("set_trade_settings", start, err)
	return err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *Instrumented) Close() error { return s.next.Close() }
