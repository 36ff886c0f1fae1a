// Package database provides the pgx-backed transaction manager used by the
// projection consumer (C6), grounded on the teacher's
// internal/infra/database.TransactionManager, and the DBTX interface through
// which the command path's aggregate store (C1) reads.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting read queries
// run against either a plain pool connection or an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionManager begins pgx transactions with a configured lock timeout.
type TransactionManager interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

// PostgresTransactionManager implements TransactionManager using pgx. Every
// transaction it opens is read-committed (pgx's default, made explicit here)
// with a bounded wait for row locks, so a stuck writer on one item can never
// stall a bid on a different item indefinitely.
type PostgresTransactionManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresTransactionManager creates a new PostgreSQL transaction manager.
// lockTimeout bounds how long a transaction will wait on a row lock before
// giving up; zero disables the bound.
func NewPostgresTransactionManager(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresTransactionManager {
	return &PostgresTransactionManager{pool: pool, lockTimeout: lockTimeout}
}

// BeginTx opens a read-committed transaction and applies the configured
// lock_timeout before returning it to the caller.
func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if err := m.applyLockTimeout(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// applyLockTimeout sets lock_timeout for the lifetime of tx alone (SET LOCAL
// is scoped to the current transaction and reverts on commit or rollback).
func (m *PostgresTransactionManager) applyLockTimeout(ctx context.Context, tx pgx.Tx) error {
	if m.lockTimeout <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	return nil
}
