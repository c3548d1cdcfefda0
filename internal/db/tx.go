package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transactor owns transaction boundaries for services.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx DBTX) error) error
}

// Tx is the DBTX handed to WithinTx callbacks. Work registered through
// AfterCommit runs once the transaction has committed and never on rollback.
type Tx struct {
	*sql.Tx
	hooks []func(ctx context.Context, q DBTX)
}

func (t *Tx) AfterCommit(fn func(ctx context.Context, q DBTX)) {
	t.hooks = append(t.hooks, fn)
}

// AfterCommit defers fn until q's transaction commits. When q is not a
// transaction opened by WithinTx, fn runs immediately against q.
func AfterCommit(ctx context.Context, q DBTX, fn func(ctx context.Context, q DBTX)) {
	if tx, ok := q.(*Tx); ok {
		tx.AfterCommit(fn)
		return
	}
	fn(ctx, q)
}

type transactor struct {
	db *sql.DB
}

func NewTransactor(db *sql.DB) Transactor {
	return &transactor{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise, including on
// panic. AfterCommit hooks run after a successful commit.
func (t *transactor) WithinTx(ctx context.Context, fn func(tx DBTX) error) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "db"))

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("begin tx failed", zap.Error(err))
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	scope := &Tx{Tx: tx}
	if err := fn(scope); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("commit tx failed", zap.Error(err))
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	// hooks see the pool, the transaction is gone
	for _, hook := range scope.hooks {
		hook(ctx, t.db)
	}

	return nil
}
