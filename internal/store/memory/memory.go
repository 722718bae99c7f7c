// Package memory is an in-process Store, used by tests and the CLI's
// --store=memory mode.
package memory

import (
	"context"
	"sync"

	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
)

type Store struct {
	mu   sync.RWMutex
	byID map[string]strategy.Strategy
}

func New() *Store {
	return &Store{byID: make(map[string]strategy.Strategy)}
}

func (s *Store) List(_ context.Context) ([]strategy.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]strategy.Strategy, 0, len(s.byID))
	for _, st := range s.byID {
		out = append(out, st.Clone())
	}
	store.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (strategy.Strategy, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[id]
	if !ok {
		return strategy.Strategy{}, false, nil
	}
	return st.Clone(), true, nil
}

func (s *Store) Upsert(_ context.Context, st strategy.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[st.ID] = st.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	if !ok {
		return store.ErrStrategyNotFound
	}
	s.byID[id] = st.WithActive(active)
	return nil
}

func (s *Store) SetTradeSettings(_ context.Context, id string, r strategy.RiskSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	if !ok {
		return store.ErrStrategyNotFound
	}
	updated, err := st.WithTradeSettings(r)
	if err != nil {
		return err
	}
	s.byID[id] = updated
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
