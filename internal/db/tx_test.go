package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			_, err := tx.ExecContext(ctx, `UPDATE orders SET notes = $1`, "x")
			return err
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
				panic("unexpected")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		called := false
		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("CommitError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error { return nil })

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "commit tx")
	})
}

func TestTransactor_AfterCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("Runs after commit against the pool", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		var got DBTX
		ran := false
		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			AfterCommit(ctx, tx, func(_ context.Context, q DBTX) {
				ran = true
				got = q
			})
			assert.False(t, ran, "hook must wait for commit")
			return nil
		})

		require.NoError(t, err)
		assert.True(t, ran)
		assert.Same(t, db, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Skipped on rollback", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		ran := false
		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			AfterCommit(ctx, tx, func(context.Context, DBTX) { ran = true })
			return errors.New("write failed")
		})

		assert.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("Skipped when commit fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		ran := false
		err = NewTransactor(db).WithinTx(ctx, func(tx DBTX) error {
			AfterCommit(ctx, tx, func(context.Context, DBTX) { ran = true })
			return nil
		})

		assert.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("Outside a transaction runs now", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		ran := false
		AfterCommit(ctx, db, func(_ context.Context, q DBTX) {
			ran = true
			assert.Same(t, db, q)
		})
		assert.True(t, ran)
	})
}
