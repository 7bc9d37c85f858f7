package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The ledger sees one short insert per sync event, so the pool stays small.
const (
	LedgerMaxConns        = 5
	LedgerMinConns        = 1
	LedgerMaxConnLifetime = 30 * time.Minute
	LedgerMaxConnIdleTime = 5 * time.Minute
)

// NewPostgresPool opens the pool backing the sync ledger.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing ledger database URL: %w", err)
	}

	config.MaxConns = LedgerMaxConns
	config.MinConns = LedgerMinConns
	config.MaxConnLifetime = LedgerMaxConnLifetime
	config.MaxConnIdleTime = LedgerMaxConnIdleTime
	config.ConnConfig.RuntimeParams["application_name"] = "possync"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating ledger pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging ledger database: %w", err)
	}

	return pool, nil
}
