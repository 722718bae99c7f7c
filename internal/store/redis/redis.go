// Package redis stores strategies in Redis: one JSON value per strategy at
// <prefix>strategy:<id>, plus a sorted set <prefix>strategies:recent scored
// by creation time for newest-first listing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
)

// Config configures the Redis store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // optional key namespace
}

type Store struct {
	client *goredis.Client
	prefix string
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates the store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

func (s *Store) key(id string) string { return s.prefix + "strategy:" + id }
func (s *Store) recentKey() string    { return s.prefix + "strategies:recent" }

func (s *Store) List(ctx context.Context) ([]strategy.Strategy, error) {
	ids, err := s.client.ZRevRange(ctx, s.recentKey(), 0, -1).Result()
	if err != nil {
		return nil, apperr.Collaborator("redis list", err)
	}
	out := make([]strategy.Strategy, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Collaborator("redis list", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// index entry without a value; skip it
			continue
		}
		st, err := decode(raw)
		if err != nil {
			return nil, apperr.Collaborator("redis list", fmt.Errorf("%s: %w", ids[i], err))
		}
		out = append(out, st)
	}
	// members with equal scores come back in reverse lexical order already,
	// sorting again keeps the order identical to the SQL stores
	store.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (strategy.Strategy, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if err == goredis.Nil {
		return strategy.Strategy{}, false, nil
	}
	if err != nil {
		return strategy.Strategy{}, false, apperr.Collaborator("redis get", err)
	}
	st, err := decode(raw)
	if err != nil {
		return strategy.Strategy{}, false, apperr.Collaborator("redis get", err)
	}
	return st, true, nil
}

func (s *Store) Upsert(ctx context.Context, st strategy.Strategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return apperr.Collaborator("redis upsert", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key(st.ID), data, 0)
		pipe.ZAdd(ctx, s.recentKey(), &goredis.Z{
			Score:  float64(st.CreatedAt.UnixMilli()),
			Member: st.ID,
		})
		return nil
	})
	return apperr.Collaborator("redis upsert", err)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.recentKey(), id)
		return nil
	})
	return apperr.Collaborator("redis delete", err)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, "redis set active", id, func(st strategy.Strategy) (strategy.Strategy, error) {
		return st.WithActive(active), nil
	})
}

func (s *Store) SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.update(ctx, "redis set trade settings", id, func(st strategy.Strategy) (strategy.Strategy, error) {
		return st.WithTradeSettings(r)
	})
}

// update applies fn under WATCH so a concurrent writer aborts the
// transaction instead of being overwritten.
func (s *Store) update(ctx context.Context, op, id string, fn func(strategy.Strategy) (strategy.Strategy, error)) error {
	key := s.key(id)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == goredis.Nil {
			return store.ErrStrategyNotFound
		}
		if err != nil {
			return err
		}
		st, err := decode(raw)
		if err != nil {
			return err
		}
		updated, err := fn(st)
		if err != nil {
			return err
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, store.ErrStrategyNotFound) {
		return err
	}
	return apperr.Collaborator(op, err)
}

func (s *Store) Ping(ctx context.Context) error {
	return apperr.Collaborator("redis ping", s.client.Ping(ctx).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw string) (strategy.Strategy, error) {
	var st strategy.Strategy
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return strategy.Strategy{}, fmt.Errorf("decode strategy: %w", err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

var _ store.Store = (*Store)(nil)
