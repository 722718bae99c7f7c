// Package postgres stores strategies in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
)

// Store keeps one row per strategy with indicators in a jsonb column.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, migrates and returns a store that owns the pool.
func Open(ctx context.Context, databaseURL string, cfg PoolConfig) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	slog.Info("postgres store ready", "component", "store", "max_conns", cfg.MaxConns)
	return &Store{pool: pool}, nil
}

// New wraps an existing, migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

const selectCols = `id, name, coin, timeframe, indicators, active, created_at, take_profit, stop_loss, trade_amount`

func (s *Store) List(ctx context.Context) ([]strategy.Strategy, error) {
	rows, err := s.pool.Query(ctx, `select `+selectCols+` from strategies order by created_at desc, id desc`)
	if err != nil {
		return nil, apperr.Collaborator("postgres list", err)
	}
	defer rows.Close()

	out := make([]strategy.Strategy, 0)
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, apperr.Collaborator("postgres list", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Collaborator("postgres list", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (strategy.Strategy, bool, error) {
	row := s.pool.QueryRow(ctx, `select `+selectCols+` from strategies where id = $1`, id)
	st, err := scanStrategy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return strategy.Strategy{}, false, nil
	}
	if err != nil {
		return strategy.Strategy{}, false, apperr.Collaborator("postgres get", err)
	}
	return st, true, nil
}

func (s *Store) Upsert(ctx context.Context, st strategy.Strategy) error {
	inds, err := json.Marshal(st.Indicators)
	if err != nil {
		return apperr.Collaborator("postgres upsert", fmt.Errorf("encode indicators: %w", err))
	}
	_, err = s.pool.Exec(ctx, `
		insert into strategies (id, name, coin, timeframe, indicators, active, created_at,
			take_profit, stop_loss, trade_amount, updated_at)
		values ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, now())
		on conflict (id) do update set
			name = excluded.name,
			coin = excluded.coin,
			timeframe = excluded.timeframe,
			indicators = excluded.indicators,
			active = excluded.active,
			created_at = excluded.created_at,
			take_profit = excluded.take_profit,
			stop_loss = excluded.stop_loss,
			trade_amount = excluded.trade_amount,
			updated_at = now()
	`, st.ID, st.Name, st.Coin, st.Timeframe, string(inds), st.Active, st.CreatedAt,
		st.TakeProfit, st.StopLoss, st.TradeAmount)
	return apperr.Collaborator("postgres upsert", err)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `delete from strategies where id = $1`, id)
	return apperr.Collaborator("postgres delete", err)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`update strategies set active = $2, updated_at = now() where id = $1`, id, active)
	return checkUpdated("postgres set active", tag, err)
}

func (s *Store) SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		update strategies
		set take_profit = $2, stop_loss = $3, trade_amount = $4, updated_at = now()
		where id = $1
	`, id, r.TakeProfit, r.StopLoss, r.TradeAmount)
	return checkUpdated("postgres set trade settings", tag, err)
}

func (s *Store) Ping(ctx context.Context) error {
	return apperr.Collaborator("postgres ping", s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func checkUpdated(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return apperr.Collaborator(op, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStrategyNotFound
	}
	return nil
}

func scanStrategy(row pgx.Row) (strategy.Strategy, error) {
	var (
		st        strategy.Strategy
		inds      []byte
		createdAt time.Time
	)
	err := row.Scan(&st.ID, &st.Name, &st.Coin, &st.Timeframe, &inds, &st.Active, &createdAt,
		&st.TakeProfit, &st.StopLoss, &st.TradeAmount)
	if err != nil {
		return strategy.Strategy{}, err
	}
	if err := json.Unmarshal(inds, &st.Indicators); err != nil {
		return strategy.Strategy{}, fmt.Errorf("decode indicators of %s: %w", st.ID, err)
	}
	if st.Indicators == nil {
		st.Indicators = []indicator.Instance{}
	}
	st.CreatedAt = createdAt.UTC()
	return st, nil
}

var _ store.Store = (*Store)(nil)
