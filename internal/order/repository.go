package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, q db.DBTX, o *Order) error
	GetByID(ctx context.Context, q db.DBTX, orderID uint) (*Order, error)
	GetForUpdate(ctx context.Context, q db.DBTX, orderID uint) (*Order, error)
	List(ctx context.Context, q db.DBTX, input ListOrdersInput) ([]Order, error)
	ApplyPaymentProjection(ctx context.Context, q db.DBTX, orderID uint, status Status, paymentStatus string) error
	UpdateFulfilmentStatus(ctx context.Context, q db.DBTX, orderID uint, status Status) error
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

const orderColumns = `
	id, order_number, user_id, status, total_amount,
	shipping_address, shipping_person_name, shipping_person_number,
	billing_address, payment_method, payment_status, notes,
	created_at, updated_at
`

func scanOrder(row interface{ Scan(...any) error }, o *Order) error {
	return row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.ShippingPersonName,
		&o.ShippingPersonNumber,
		&o.BillingAddress,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

// Create inserts the order and its items, filling in ids and timestamps.
func (r *repository) Create(ctx context.Context, q db.DBTX, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.Uint("user_id", o.UserID),
		zap.String("order_number", o.OrderNumber),
	)

	err := q.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, user_id, status, total_amount,
			shipping_address, shipping_person_name, shipping_person_number,
			billing_address, payment_method, payment_status, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at
	`,
		o.OrderNumber,
		o.UserID,
		o.Status,
		o.TotalAmount,
		o.ShippingAddress,
		o.ShippingPersonName,
		o.ShippingPersonNumber,
		o.BillingAddress,
		o.PaymentMethod,
		o.PaymentStatus,
		o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		if err := q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`,
			o.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.Price,
		).Scan(&item.ID); err != nil {
			log.Error("failed to insert order item", zap.Uint("product_id", item.ProductID), zap.Error(err))
			return err
		}
	}

	log.Info("order inserted", zap.Uint("order_id", o.ID), zap.Int("items", len(o.Items)))
	return nil
}

func (r *repository) GetByID(ctx context.Context, q db.DBTX, orderID uint) (*Order, error) {
	var o Order
	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID), &o)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}

	return &o, rows.Err()
}

// GetForUpdate locks the order row for the rest of the caller's transaction.
// Items are not loaded.
func (r *repository) GetForUpdate(ctx context.Context, q db.DBTX, orderID uint) (*Order, error) {
	var o Order
	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID), &o)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) List(ctx context.Context, q db.DBTX, input ListOrdersInput) ([]Order, error) {
	// ---------- PAGINATION ----------
	limit := 20
	if input.Limit > 0 {
		limit = input.Limit
	}
	if limit > 100 {
		limit = 100
	}
	page := 1
	if input.Page > 0 {
		page = input.Page
	}
	offset := (page - 1) * limit

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrders"),
		zap.Bool("admin", input.IsAdmin),
		zap.Int("limit", limit),
		zap.Int("page", page),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	argIndex := 1

	// ---------- ACCESS CONTROL ----------
	if !input.IsAdmin {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, input.UserID)
		argIndex++
	}

	// ---------- FILTERING ----------
	if input.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *input.Status)
		argIndex++
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	log.Debug("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

// ApplyPaymentProjection is the only write of orders.status driven by a payment.
// Both columns are always written together.
func (r *repository) ApplyPaymentProjection(ctx context.Context, q db.DBTX, orderID uint, status Status, paymentStatus string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3
	`, status, paymentStatus, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) UpdateFulfilmentStatus(ctx context.Context, q db.DBTX, orderID uint, status Status) error {
	res, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}
