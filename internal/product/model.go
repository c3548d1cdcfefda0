package product

import "github.com/shopspring/decimal"

// Product is the read-only catalog view the checkout needs.
type Product struct {
	ID              uint                `json:"id"`
	Name            string              `json:"name"`
	Price           decimal.Decimal     `json:"price"`
	DiscountedPrice decimal.NullDecimal `json:"discounted_price"`
	IsActive        bool                `json:"is_active"`
}

// EffectivePrice is the discounted price when one is set, else the base price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice.Valid {
		return p.DiscountedPrice.Decimal
	}
	return p.Price
}
