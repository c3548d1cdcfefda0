//go:build integration

package order_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/notification"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/product"
	"racketoutlet-be/internal/synchronizer"
	"racketoutlet-be/internal/user"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type stack struct {
	db       *sql.DB
	orders   order.Service
	payments payment.Service
}

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("racketoutlet"),
		postgres.WithUsername("racket"),
		postgres.WithPassword("racket"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(conn, db.MigrateUp, "../../migrations"))
	return conn
}

func newStack(conn *sql.DB) *stack {
	tx := db.NewTransactor(conn)
	productRepo := product.NewRepository()
	cartRepo := cart.NewRepository()
	orderRepo := order.NewRepository()
	paymentRepo := payment.NewRepository("INR")
	ledger := inventory.NewLedger()

	dispatcher := notification.NewDispatcher(notification.NewRepository(), user.NewRepository(), orderRepo, notification.LogNotifier{})

	return &stack{
		db: conn,
		orders: order.NewService(order.Deps{
			DB:         conn,
			Transactor: tx,
			Repo:       orderRepo,
			Snapshots:  cart.NewSnapshotBuilder(cartRepo, productRepo),
			CartRepo:   cartRepo,
			Ledger:     ledger,
			Payments:   paymentRepo,
		}),
		payments: payment.NewService(payment.Deps{
			DB:         conn,
			Transactor: tx,
			Repo:       paymentRepo,
			Orders:     orderRepo,
			Sync:       synchronizer.New(orderRepo, ledger, dispatcher),
		}),
	}
}

func seedUser(t *testing.T, conn *sql.DB, n int) uint {
	t.Helper()
	var id uint
	err := conn.QueryRow(
		`INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("buyer%d@example.com", n), fmt.Sprintf("buyer%d", n),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, conn *sql.DB, name, price string, stock int) uint {
	t.Helper()
	var id uint
	err := conn.QueryRow(`INSERT INTO products (name, price) VALUES ($1, $2) RETURNING id`, name, price).Scan(&id)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO inventories (product_id, quantity) VALUES ($1, $2)`, id, stock)
	require.NoError(t, err)
	return id
}

func checkoutInput(userID, productID uint, qty int, method string) order.CreateOrderInput {
	return order.CreateOrderInput{
		UserID:               userID,
		Items:                []order.RequestedItem{{ProductID: productID, Quantity: qty}},
		ShippingAddress:      "12 MG Road, Bengaluru",
		ShippingPersonName:   "Asha",
		ShippingPersonNumber: "9999999999",
		BillingAddress:       "12 MG Road, Bengaluru",
		PaymentMethod:        method,
	}
}

func count(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	conn := startPostgres(t)
	s := newStack(conn)
	ctx := context.Background()

	const stock, buyers = 5, 20
	productID := seedProduct(t, conn, "Pro Racket", "2499.00", stock)

	users := make([]uint, buyers)
	for i := range users {
		users[i] = seedUser(t, conn, i)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortfall int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			_, err := s.orders.CreateOrder(ctx, checkoutInput(uid, productID, 1, order.PaymentMethodRazorpay))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrInsufficientStock):
				shortfall++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, buyers-stock, shortfall)
	assert.Equal(t, 0, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))
	assert.Equal(t, stock, count(t, conn, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, stock, count(t, conn, `SELECT COUNT(*) FROM payments WHERE status = 'pending'`))
	assert.Equal(t, stock, count(t, conn, `SELECT COUNT(*) FROM inventory_reservations WHERE status = 'reserved'`))
}

func TestCODConfirmationEndToEnd(t *testing.T) {
	conn := startPostgres(t)
	s := newStack(conn)
	ctx := context.Background()

	uid := seedUser(t, conn, 1)
	racket := seedProduct(t, conn, "Pro Racket", "400.00", 10)
	grip := seedProduct(t, conn, "Overgrip", "25.25", 10)

	in := checkoutInput(uid, racket, 1, order.PaymentMethodCOD)
	in.Items = append(in.Items, order.RequestedItem{ProductID: grip, Quantity: 2})

	o, err := s.orders.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("450.50").Equal(o.TotalAmount))

	conf, err := s.payments.ConfirmCOD(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCOD, conf.Payment.Status)
	assert.Equal(t, order.StatusConfirmed, conf.Order.Status)
	assert.Equal(t, order.PaymentStatusCashOnDelivery, conf.Order.PaymentStatus)

	_, err = s.payments.ConfirmCOD(ctx, uid, o.ID)
	assert.ErrorIs(t, err, payment.ErrAlreadyConfirmed)

	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, uid))
	assert.Equal(t, 2, count(t, conn, `SELECT COUNT(*) FROM inventory_reservations WHERE order_id = $1 AND status = 'committed'`, o.ID))
}

func TestCancelReleasesStock(t *testing.T) {
	conn := startPostgres(t)
	s := newStack(conn)
	ctx := context.Background()

	uid := seedUser(t, conn, 1)
	productID := seedProduct(t, conn, "Shuttle Tube", "899.00", 3)

	o, err := s.orders.CreateOrder(ctx, checkoutInput(uid, productID, 3, order.PaymentMethodRazorpay))
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))

	conf, err := s.payments.CancelPayment(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, conf.Order.Status)
	assert.Equal(t, 3, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))

	// cancelling again must not restock twice
	_, _ = s.payments.CancelPayment(ctx, uid, o.ID)
	assert.Equal(t, 3, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))
}

func TestCancelAfterConfirmationRestocks(t *testing.T) {
	conn := startPostgres(t)
	s := newStack(conn)
	ctx := context.Background()

	uid := seedUser(t, conn, 1)
	productID := seedProduct(t, conn, "Pro Racket", "400.00", 4)

	o, err := s.orders.CreateOrder(ctx, checkoutInput(uid, productID, 3, order.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = s.payments.ConfirmCOD(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM inventory_reservations WHERE order_id = $1 AND status = 'committed'`, o.ID))

	conf, err := s.payments.CancelPayment(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, conf.Order.Status)
	assert.Equal(t, 4, count(t, conn, `SELECT quantity FROM inventories WHERE product_id = $1`, productID))
	assert.Equal(t, 1, count(t, conn, `SELECT COUNT(*) FROM inventory_reservations WHERE order_id = $1 AND status = 'released'`, o.ID))
}
