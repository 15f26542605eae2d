package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor runs units of work inside a database transaction.
type Transactor interface {
	// WithinTx runs fn in a read-write transaction. A transaction already open in ctx is reused.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinReadOnlyTx runs fn in a repeatable-read, read-only transaction so that all
	// queries of fn observe one snapshot.
	WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeTransactor struct{}

// NewTransactor creates a Transactor that begins transactions on the context's scoped connection.
func NewTransactor() Transactor {
	return &scopeTransactor{}
}

var _ Transactor = (*scopeTransactor)(nil)

func (t *scopeTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (t *scopeTransactor) WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (t *scopeTransactor) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) (err error) {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}

	scope, ok := GetScope(ctx)
	if !ok || scope.Conn == nil {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(context.WithValue(ctx, TxKey, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
