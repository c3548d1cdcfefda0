package product

import (
	"context"
	"database/sql"
	"errors"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetByID(ctx context.Context, q db.DBTX, id uint) (*Product, error)
	GetByIDs(ctx context.Context, q db.DBTX, ids []uint) (map[uint]*Product, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

const selectProduct = `
	SELECT id, name, price, discounted_price, is_active
	FROM products
`

// GetByID returns nil, nil when the product does not exist.
func (r *repository) GetByID(ctx context.Context, q db.DBTX, id uint) (*Product, error) {
	var p Product
	err := q.QueryRowContext(ctx, selectProduct+` WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.DiscountedPrice, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load product",
			zap.String("layer", "repository"),
			zap.Uint("product_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return &p, nil
}

// GetByIDs loads every existing product among ids; missing ids are simply absent from the map.
func (r *repository) GetByIDs(ctx context.Context, q db.DBTX, ids []uint) (map[uint]*Product, error) {
	out := make(map[uint]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := q.QueryContext(ctx, selectProduct+` WHERE id = ANY($1)`, pq.Array(keys))
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load products",
			zap.String("layer", "repository"),
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DiscountedPrice, &p.IsActive); err != nil {
			return nil, err
		}
		out[p.ID] = &p
	}

	return out, rows.Err()
}
