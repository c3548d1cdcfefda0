package inventory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stockColumns = []string{"product_id", "quantity", "low_stock_threshold"}

const (
	lockQuery    = `SELECT product_id, quantity, low_stock_threshold\s+FROM inventories\s+WHERE product_id = ANY\(\$1\)\s+ORDER BY product_id\s+FOR UPDATE`
	decrementSQL = `UPDATE inventories\s+SET quantity = quantity - \$1\s+WHERE product_id = \$2 AND quantity >= \$1`
	reserveSQL   = `INSERT INTO inventory_reservations`
)

func TestLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("Success with low stock", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(stockColumns).
				AddRow(1, 50, 10).
				AddRow(2, 12, 10))

		mock.ExpectExec(decrementSQL).WithArgs(2, uint(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(reserveSQL).WithArgs(uint(77), uint(1), 2, ReservationReserved).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(decrementSQL).WithArgs(3, uint(2)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(reserveSQL).WithArgs(uint(77), uint(2), 3, ReservationReserved).WillReturnResult(sqlmock.NewResult(2, 1))

		low, err := NewLedger().Reserve(ctx, db, 77, []Line{
			{ProductID: 2, ProductName: "Shuttle Tube", Quantity: 3},
			{ProductID: 1, ProductName: "Pro Racket", Quantity: 2},
		})

		require.NoError(t, err)
		require.Len(t, low, 1)
		assert.Equal(t, uint(2), low[0].ProductID)
		assert.Equal(t, 9, low[0].Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient stock touches nothing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(stockColumns).
				AddRow(1, 50, 10).
				AddRow(2, 1, 10))

		_, err = NewLedger().Reserve(ctx, db, 77, []Line{
			{ProductID: 1, ProductName: "Pro Racket", Quantity: 2},
			{ProductID: 2, ProductName: "Shuttle Tube", Quantity: 3},
		})

		require.ErrorIs(t, err, ErrInsufficientStock)
		var stockErr *InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, uint(2), stockErr.ProductID)
		assert.Equal(t, "Shuttle Tube", stockErr.ProductName)
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, 1, stockErr.Available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing inventory row counts as zero", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(stockColumns))

		_, err = NewLedger().Reserve(ctx, db, 5, []Line{{ProductID: 9, ProductName: "Grip", Quantity: 1}})

		var stockErr *InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 0, stockErr.Available)
	})

	t.Run("Duplicate lines are merged", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(stockColumns).AddRow(1, 4, 0))

		_, err = NewLedger().Reserve(ctx, db, 5, []Line{
			{ProductID: 1, ProductName: "Pro Racket", Quantity: 3},
			{ProductID: 1, ProductName: "Pro Racket", Quantity: 2},
		})

		var stockErr *InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 5, stockErr.Requested)
	})

	t.Run("Floor guard rejects concurrent drain", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(stockColumns).AddRow(1, 5, 0))
		mock.ExpectExec(decrementSQL).WithArgs(5, uint(1)).WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = NewLedger().Reserve(ctx, db, 5, []Line{{ProductID: 1, Quantity: 5}})

		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No lines", func(t *testing.T) {
		_, err := NewLedger().Reserve(ctx, nil, 5, []Line{{ProductID: 1, Quantity: 0}})
		assert.ErrorIs(t, err, ErrNoLines)
	})

	t.Run("Lock error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(lockQuery).WillReturnError(errors.New("deadlock detected"))

		_, err = NewLedger().Reserve(ctx, db, 5, []Line{{ProductID: 1, Quantity: 1}})
		assert.EqualError(t, err, "deadlock detected")
	})
}

func TestLedger_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	releaseSQL := regexp.QuoteMeta(`UPDATE inventory_reservations`) + `[\s\S]+` + regexp.QuoteMeta(`UPDATE inventories i`)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE order_id = $1 AND status IN ($3, $4)`) + `[\s\S]+` + regexp.QuoteMeta(`UPDATE inventories i`)).
		WithArgs(uint(12), ReservationReleased, ReservationReserved, ReservationCommitted).
		WillReturnResult(sqlmock.NewResult(0, 2))
	// second call finds nothing left to restock
	mock.ExpectExec(releaseSQL).
		WithArgs(uint(12), ReservationReleased, ReservationReserved, ReservationCommitted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewLedger()
	require.NoError(t, l.Release(context.Background(), db, 12))
	require.NoError(t, l.Release(context.Background(), db, 12))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE inventory_reservations\s+SET status = \$2`).
		WithArgs(uint(12), ReservationCommitted, ReservationReserved).
		WillReturnError(errors.New("conn reset"))

	err = NewLedger().Commit(context.Background(), db, 12)
	assert.ErrorContains(t, err, "commit reservation for order 12")
}

func TestLedger_Available(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT quantity FROM inventories WHERE product_id = \$1`).
		WithArgs(uint(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(8))
	mock.ExpectQuery(`SELECT quantity FROM inventories`).
		WithArgs(uint(2)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))

	l := NewLedger()

	qty, err := l.Available(context.Background(), db, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, qty)

	qty, err = l.Available(context.Background(), db, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}
