package cart

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetLines(ctx context.Context, q db.DBTX, userID uint) ([]CartLine, error)
	GetItems(ctx context.Context, q db.DBTX, userID uint) ([]CartItem, error)
	GetLine(ctx context.Context, q db.DBTX, userID, productID uint) (*CartLine, error)
	CreateCartItem(ctx context.Context, q db.DBTX, params AddToCartParams) (*CartLine, error)
	UpdateCartItemQuantity(ctx context.Context, q db.DBTX, cartItemID uint, quantity int) (*CartLine, error)
	RemoveFromCart(ctx context.Context, q db.DBTX, userID, productID uint) error
	DeleteProducts(ctx context.Context, q db.DBTX, userID uint, productIDs []uint) error
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

const cartLineColumns = `id, user_id, product_id, quantity, created_at, updated_at`

func scanLine(row interface{ Scan(...any) error }, l *CartLine) error {
	return row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
}

func (r *repository) GetLines(ctx context.Context, q db.DBTX, userID uint) ([]CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetLines"),
		zap.Uint("user_id", userID),
	)

	rows, err := q.QueryContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var lines []CartLine
	for rows.Next() {
		var l CartLine
		if err := scanLine(rows, &l); err != nil {
			log.Error("row scan failed", zap.Error(err))
			return nil, err
		}
		lines = append(lines, l)
	}

	return lines, rows.Err()
}

func (r *repository) GetItems(ctx context.Context, q db.DBTX, userID uint) ([]CartItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetItems"),
		zap.Uint("user_id", userID),
	)

	start := time.Now()

	rows, err := q.QueryContext(ctx, `
		SELECT
			c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
			p.name,
			COALESCE(p.discounted_price, p.price)
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID)
	if err != nil {
		log.Error("query failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	defer rows.Close()

	items := make([]CartItem, 0)
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(
			&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt,
			&it.ProductName,
			&it.UnitPrice,
		); err != nil {
			log.Error("row scan failed", zap.Error(err))
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Debug("query success", zap.Int("rows", len(items)), zap.Duration("duration", time.Since(start)))
	return items, nil
}

// GetLine returns nil, nil when the user has no line for the product.
func (r *repository) GetLine(ctx context.Context, q db.DBTX, userID, productID uint) (*CartLine, error) {
	var l CartLine
	err := scanLine(q.QueryRowContext(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) CreateCartItem(ctx context.Context, q db.DBTX, params AddToCartParams) (*CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateCartItem"),
		zap.Uint("user_id", params.UserID),
		zap.Uint("product_id", params.ProductID),
	)

	var l CartLine
	err := scanLine(q.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING `+cartLineColumns,
		params.UserID, params.ProductID, params.Quantity,
	), &l)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == PgUniqueViolation {
			return nil, ErrCartItemAlreadyExist
		}
		log.Error("failed to create cart item", zap.Error(err))
		return nil, err
	}

	log.Info("success create cart item", zap.Uint("cart_item_id", l.ID))
	return &l, nil
}

func (r *repository) UpdateCartItemQuantity(ctx context.Context, q db.DBTX, cartItemID uint, quantity int) (*CartLine, error) {
	var l CartLine
	err := scanLine(q.QueryRowContext(ctx, `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+cartLineColumns,
		quantity, cartItemID,
	), &l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) RemoveFromCart(ctx context.Context, q db.DBTX, userID, productID uint) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

// DeleteProducts drops the given products from the user's cart. Missing lines are ignored.
func (r *repository) DeleteProducts(ctx context.Context, q db.DBTX, userID uint, productIDs []uint) error {
	if len(productIDs) == 0 {
		return nil
	}

	ids := make([]int64, len(productIDs))
	for i, id := range productIDs {
		ids[i] = int64(id)
	}

	_, err := q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = ANY($2)
	`, userID, pq.Array(ids))
	return err
}
