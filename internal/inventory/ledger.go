package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Ledger is the only way stock moves. Every method runs inside the caller's
// transaction so reservations commit or roll back with the order that owns them.
type Ledger interface {
	Reserve(ctx context.Context, q db.DBTX, orderID uint, lines []Line) ([]LowStock, error)
	Release(ctx context.Context, q db.DBTX, orderID uint) error
	Commit(ctx context.Context, q db.DBTX, orderID uint) error
	Available(ctx context.Context, q db.DBTX, productID uint) (int, error)
}

type ledger struct{}

func NewLedger() Ledger {
	return &ledger{}
}

type stockRow struct {
	quantity  int
	threshold int
}

// Reserve locks every product row (ordered by id), checks all lines, then
// decrements. Nothing is decremented unless every line fits.
func (l *ledger) Reserve(ctx context.Context, q db.DBTX, orderID uint, lines []Line) ([]LowStock, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("method", "Reserve"),
		zap.Uint("order_id", orderID),
	)

	merged := mergeLines(lines)
	if len(merged) == 0 {
		return nil, ErrNoLines
	}

	stock, err := l.lockRows(ctx, q, merged)
	if err != nil {
		log.Error("failed to lock inventory rows", zap.Error(err))
		return nil, err
	}

	// pre-check all lines before touching any row
	for _, line := range merged {
		available := stock[line.ProductID].quantity
		if available < line.Quantity {
			log.Info("insufficient stock",
				zap.Uint("product_id", line.ProductID),
				zap.Int("requested", line.Quantity),
				zap.Int("available", available),
			)
			return nil, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   line.Quantity,
				Available:   available,
			}
		}
	}

	var low []LowStock
	for _, line := range merged {
		res, err := q.ExecContext(ctx, `
			UPDATE inventories
			SET quantity = quantity - $1
			WHERE product_id = $2 AND quantity >= $1
		`, line.Quantity, line.ProductID)
		if err != nil {
			log.Error("failed to decrement stock", zap.Uint("product_id", line.ProductID), zap.Error(err))
			return nil, err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   line.Quantity,
				Available:   stock[line.ProductID].quantity,
			}
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO inventory_reservations (order_id, product_id, quantity, status)
			VALUES ($1, $2, $3, $4)
		`, orderID, line.ProductID, line.Quantity, ReservationReserved); err != nil {
			log.Error("failed to record reservation", zap.Uint("product_id", line.ProductID), zap.Error(err))
			return nil, err
		}

		row := stock[line.ProductID]
		if remaining := row.quantity - line.Quantity; remaining <= row.threshold {
			low = append(low, LowStock{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Remaining:   remaining,
				Threshold:   row.threshold,
			})
		}
	}

	for _, ls := range low {
		metrics.LowStockEvents.Inc()
		log.Warn("product at or below low stock threshold",
			zap.Uint("product_id", ls.ProductID),
			zap.String("product_name", ls.ProductName),
			zap.Int("remaining", ls.Remaining),
			zap.Int("threshold", ls.Threshold),
		)
	}

	return low, nil
}

func (l *ledger) lockRows(ctx context.Context, q db.DBTX, lines []Line) (map[uint]stockRow, error) {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = int64(line.ProductID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, low_stock_threshold
		FROM inventories
		WHERE product_id = ANY($1)
		ORDER BY product_id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// products without an inventory row have nothing available
	stock := make(map[uint]stockRow, len(lines))
	for rows.Next() {
		var (
			id  uint
			row stockRow
		)
		if err := rows.Scan(&id, &row.quantity, &row.threshold); err != nil {
			return nil, err
		}
		stock[id] = row
	}

	return stock, rows.Err()
}

// Release returns every reserved or committed unit of the order to stock.
// Orders can still be cancelled after payment (until they ship), so committed
// lines are restocked too. Released lines are left alone, so calling it twice
// is safe.
func (l *ledger) Release(ctx context.Context, q db.DBTX, orderID uint) error {
	res, err := q.ExecContext(ctx, `
		WITH released AS (
			UPDATE inventory_reservations
			SET status = $2, updated_at = NOW()
			WHERE order_id = $1 AND status IN ($3, $4)
			RETURNING product_id, quantity
		)
		UPDATE inventories i
		SET quantity = i.quantity + r.quantity
		FROM released r
		WHERE i.product_id = r.product_id
	`, orderID, ReservationReleased, ReservationReserved, ReservationCommitted)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to release reservation",
			zap.String("layer", "inventory"),
			zap.Uint("order_id", orderID),
			zap.Error(err),
		)
		return fmt.Errorf("release reservation for order %d: %w", orderID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logger.FromCtx(ctx).Info("inventory released",
			zap.Uint("order_id", orderID),
			zap.Int64("products", n),
		)
	}
	return nil
}

// Commit makes the reservation permanent once payment is secured.
func (l *ledger) Commit(ctx context.Context, q db.DBTX, orderID uint) error {
	_, err := q.ExecContext(ctx, `
		UPDATE inventory_reservations
		SET status = $2, updated_at = NOW()
		WHERE order_id = $1 AND status = $3
	`, orderID, ReservationCommitted, ReservationReserved)
	if err != nil {
		return fmt.Errorf("commit reservation for order %d: %w", orderID, err)
	}
	return nil
}

func (l *ledger) Available(ctx context.Context, q db.DBTX, productID uint) (int, error) {
	var qty int
	err := q.QueryRowContext(ctx, `SELECT quantity FROM inventories WHERE product_id = $1`, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

// mergeLines sums duplicate products, drops non-positive quantities and sorts by id.
func mergeLines(lines []Line) []Line {
	byID := make(map[uint]*Line, len(lines))
	order := make([]uint, 0, len(lines))

	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if existing, ok := byID[line.ProductID]; ok {
			existing.Quantity += line.Quantity
			continue
		}
		cp := line
		byID[line.ProductID] = &cp
		order = append(order, line.ProductID)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Line, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
