// Package warehouse owns the star schema: connection pooling, schema DDL,
// dimension get-or-create upserts, idempotent fact loading, and the
// linkbase relationship tables.
package warehouse

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so loaders can run
// inside or outside a transaction envelope.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ConnectFromEnv builds a pool from WAREHOUSE_DB_* environment variables, or
// DATABASE_URL when set. Pool size should match the pipeline worker count;
// each worker holds one connection for its filing transaction.
func ConnectFromEnv(ctx context.Context, poolSize int) (*pgxpool.Pool, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := envOr("WAREHOUSE_DB_HOST", "localhost")
		port := envOr("WAREHOUSE_DB_PORT", "5432")
		user := envOr("WAREHOUSE_DB_USER", "postgres")
		pass := os.Getenv("WAREHOUSE_DB_PASSWORD")
		name := envOr("WAREHOUSE_DB_NAME", "filings")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return pool, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
