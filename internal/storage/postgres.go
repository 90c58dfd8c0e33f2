// Package storage provides the shared Postgres connection bootstrap every
// service's cmd/*/main.go calls at startup. Each domain package
// (internal/identity, internal/appointment, internal/audit,
// internal/snapshot) owns its own hand-written queries against the pool
// this returns — the teacher's sqlc-generated internal/storage/db package
// isn't reproduced here since no sqlc schema/config shipped with it; the
// real dependency being carried forward is pgx itself, not the codegen
// step.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgres opens a connection pool against dsn and verifies it with a
// ping before returning, the same fail-fast startup shape the teacher's
// storage.NewPostgres uses.
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return pool, nil
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// domain store accept either a pooled connection or an active
// transaction without duplicating its query methods.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic, per the write-then-publish discipline the
// event outbox relies on.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit tx: %w", err)
	}
	return nil
}
