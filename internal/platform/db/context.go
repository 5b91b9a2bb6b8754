package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	pgTxKey  contextKey = "pg_tx"
	sqlTxKey contextKey = "sql_tx"
)

// TxFromContext returns the PostgreSQL transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(pgTxKey).(pgx.Tx)
	return tx
}

// SQLTxFromContext returns the database/sql transaction bound to ctx, if any.
func SQLTxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(sqlTxKey).(*sql.Tx)
	return tx
}

// TxRunner runs fn inside a transaction. Repositories called with the
// context handed to fn join that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PGTxRunner runs transactions on a pgx pool.
type PGTxRunner struct{ Pool *pgxpool.Pool }

func (r PGTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, pgTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SQLTxRunner runs transactions on a database/sql handle.
type SQLTxRunner struct{ DB *sql.DB }

func (r SQLTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if SQLTxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, sqlTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// NoTx runs fn directly. Used by tests and in-memory stores.
type NoTx struct{}

func (NoTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
