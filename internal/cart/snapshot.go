package cart

import (
	"context"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/money"
	"racketoutlet-be/internal/product"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotBuilder turns requested lines (or the stored cart) into a priced,
// validated Snapshot. It never writes.
type SnapshotBuilder interface {
	Build(ctx context.Context, q db.DBTX, userID uint, requested []RequestedLine) (*Snapshot, error)
}

type snapshotBuilder struct {
	repo        Repository
	productRepo product.Repository
}

func NewSnapshotBuilder(repo Repository, productRepo product.Repository) SnapshotBuilder {
	return &snapshotBuilder{repo: repo, productRepo: productRepo}
}

func (b *snapshotBuilder) Build(ctx context.Context, q db.DBTX, userID uint, requested []RequestedLine) (*Snapshot, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "BuildSnapshot"),
		zap.Uint("user_id", userID),
	)

	fromCart := false
	if len(requested) == 0 {
		lines, err := b.repo.GetLines(ctx, q, userID)
		if err != nil {
			log.Error("failed to load cart", zap.Error(err))
			return nil, err
		}
		for _, l := range lines {
			requested = append(requested, RequestedLine{ProductID: l.ProductID, Quantity: l.Quantity})
		}
		fromCart = true
	}
	if len(requested) == 0 {
		return nil, ErrEmptyItems
	}

	merged := mergeRequested(requested)

	ids := make([]uint, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}

	products, err := b.productRepo.GetByIDs(ctx, q, ids)
	if err != nil {
		log.Error("failed to load products", zap.Error(err))
		return nil, err
	}

	snap := &Snapshot{
		Lines:    make([]SnapshotLine, 0, len(merged)),
		FromCart: fromCart,
	}
	total := decimal.Zero

	// Each requested line is checked on its own, before duplicates are summed.
	for _, line := range requested {
		p, ok := products[line.ProductID]
		if !ok || !p.IsActive {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if line.Quantity < 1 {
			return nil, &InvalidQuantityError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
			}
		}
	}

	for _, line := range merged {
		p := products[line.ProductID]
		sl := SnapshotLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.EffectivePrice(),
		}
		total = total.Add(sl.Subtotal())
		snap.Lines = append(snap.Lines, sl)
	}

	snap.Total = money.Normalize(total)

	log.Debug("snapshot built",
		zap.Int("lines", len(snap.Lines)),
		zap.String("total", snap.Total.StringFixed(2)),
		zap.Bool("from_cart", fromCart),
	)
	return snap, nil
}

// mergeRequested sums quantities of repeated products, keeping first-seen order.
func mergeRequested(lines []RequestedLine) []RequestedLine {
	idx := make(map[uint]int, len(lines))
	out := make([]RequestedLine, 0, len(lines))

	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}
