package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one stored cart row.
type CartLine struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	ProductID uint      `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem is a cart line joined with its product for display.
type CartItem struct {
	CartLine
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Cart struct {
	Items []CartItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type AddToCartParams struct {
	UserID    uint
	ProductID uint
	Quantity  int
}

// RequestedLine is a product/quantity pair as submitted at checkout.
type RequestedLine struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

// SnapshotLine freezes the product name and unit price at checkout time.
type SnapshotLine struct {
	ProductID   uint
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (l SnapshotLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is a validated, priced set of lines. Total is the exact sum of
// line subtotals rounded to two places.
type Snapshot struct {
	Lines []SnapshotLine
	Total decimal.Decimal
	// FromCart is set when the lines came from the stored cart.
	FromCart bool
}

func (s *Snapshot) ProductIDs() []uint {
	ids := make([]uint, len(s.Lines))
	for i, l := range s.Lines {
		ids[i] = l.ProductID
	}
	return ids
}
