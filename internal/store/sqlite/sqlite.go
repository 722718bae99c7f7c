// Package sqlite stores strategies in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
	"cryptostrat/internal/store"
	"cryptostrat/internal/strategy"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/strategies.db"
}

// Store keeps one row per strategy; indicator instances are a JSON column.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS strategies (
			id           TEXT    PRIMARY KEY,
			name         TEXT    NOT NULL,
			coin         TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			indicators   TEXT    NOT NULL,
			active       INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			take_profit  REAL,
			stop_loss    REAL,
			trade_amount REAL,
			updated_at   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_strategies_created
			ON strategies(created_at DESC, id DESC);
	`)
	return err
}

const selectCols = `id, name, coin, timeframe, indicators, active, created_at, take_profit, stop_loss, trade_amount`

func (s *Store) List(ctx context.Context) ([]strategy.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM strategies ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperr.Collaborator("sqlite list", err)
	}
	defer rows.Close()

	out := make([]strategy.Strategy, 0)
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, apperr.Collaborator("sqlite list", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Collaborator("sqlite list", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (strategy.Strategy, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM strategies WHERE id = ?`, id)
	st, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return strategy.Strategy{}, false, nil
	}
	if err != nil {
		return strategy.Strategy{}, false, apperr.Collaborator("sqlite get", err)
	}
	return st, true, nil
}

func (s *Store) Upsert(ctx context.Context, st strategy.Strategy) error {
	inds, err := json.Marshal(st.Indicators)
	if err != nil {
		return apperr.Collaborator("sqlite upsert", fmt.Errorf("encode indicators: %w", err))
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, name, coin, timeframe, indicators, active, created_at,
			take_profit, stop_loss, trade_amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			coin = excluded.coin,
			timeframe = excluded.timeframe,
			indicators = excluded.indicators,
			active = excluded.active,
			created_at = excluded.created_at,
			take_profit = excluded.take_profit,
			stop_loss = excluded.stop_loss,
			trade_amount = excluded.trade_amount,
			updated_at = excluded.updated_at
	`, st.ID, st.Name, st.Coin, st.Timeframe, string(inds), st.Active, st.CreatedAt.UnixNano(),
		nullable(st.TakeProfit), nullable(st.StopLoss), nullable(st.TradeAmount), time.Now().UnixNano())
	return apperr.Collaborator("sqlite upsert", err)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	return apperr.Collaborator("sqlite delete", err)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixNano(), id)
	return checkUpdated("sqlite set active", res, err)
}

func (s *Store) SetTradeSettings(ctx context.Context, id string, r strategy.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET take_profit = ?, stop_loss = ?, trade_amount = ?, updated_at = ? WHERE id = ?`,
		nullable(r.TakeProfit), nullable(r.StopLoss), nullable(r.TradeAmount), time.Now().UnixNano(), id)
	return checkUpdated("sqlite set trade settings", res, err)
}

func (s *Store) Ping(ctx context.Context) error {
	return apperr.Collaborator("sqlite ping", s.db.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func checkUpdated(op string, res sql.Result, err error) error {
	if err != nil {
		return apperr.Collaborator(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Collaborator(op, err)
	}
	if n == 0 {
		return store.ErrStrategyNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStrategy(sc scanner) (strategy.Strategy, error) {
	var (
		st         strategy.Strategy
		inds       string
		createdAt  int64
		tp, sl, ta sql.NullFloat64
	)
	if err := sc.Scan(&st.ID, &st.Name, &st.Coin, &st.Timeframe, &inds, &st.Active, &createdAt, &tp, &sl, &ta); err != nil {
		return strategy.Strategy{}, err
	}
	if err := json.Unmarshal([]byte(inds), &st.Indicators); err != nil {
		return strategy.Strategy{}, fmt.Errorf("decode indicators of %s: %w", st.ID, err)
	}
	if st.Indicators == nil {
		st.Indicators = []indicator.Instance{}
	}
	st.CreatedAt = time.Unix(0, createdAt).UTC()
	st.TakeProfit = fromNull(tp)
	st.StopLoss = fromNull(sl)
	st.TradeAmount = fromNull(ta)
	return st, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

var _ store.Store = (*Store)(nil)
