package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the strategies table. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists strategies (
			id text primary key,
			name text not null,
			coin text not null,
			timeframe text not null,
			indicators jsonb not null default '[]'::jsonb,
			active boolean not null default false,
			created_at timestamptz not null,
			take_profit double precision null,
			stop_loss double precision null,
			trade_amount double precision null,
			updated_at timestamptz not null default now()
		);`,
		`create index if not exists idx_strategies_created on strategies (created_at desc, id desc);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
