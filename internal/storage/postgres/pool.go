// Package postgres implements storage.Storage on a PostgreSQL table, for
// agents that share one client state across hosts.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxConns bounds the pool: the client issues one storage call at a time.
const maxConns = 2

// Querier is the part of a pool the store uses. *pgxpool.Pool and
// pgxmock.PgxPoolIface both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DB is the connection the store runs on.
type DB struct{ Pool Querier }

// New connects to dsn and checks the server answers.
func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse storage dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = "lendclient"
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping storage: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close releases the connections.
func (db *DB) Close() { db.Pool.Close() }
