package cart

import (
	"context"
	"errors"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/money"
	"racketoutlet-be/internal/product"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service defines the business logic for carts.
type Service interface {
	AddToCart(ctx context.Context, params AddToCartParams) (*CartLine, error)
	GetCart(ctx context.Context, userID uint) (*Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID uint) error
}

type service struct {
	db          db.DBTX
	repo        Repository
	productRepo product.Repository
	ledger      inventory.Ledger
}

func NewService(conn db.DBTX, repo Repository, productRepo product.Repository, ledger inventory.Ledger) Service {
	return &service{db: conn, repo: repo, productRepo: productRepo, ledger: ledger}
}

// AddToCart adds quantity to the user's line for the product, creating it if needed.
// The resulting quantity must fit in current stock.
func (s *service) AddToCart(ctx context.Context, params AddToCartParams) (*CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AddToCart"),
		zap.Uint("user_id", params.UserID),
		zap.Uint("product_id", params.ProductID),
	)

	if params.Quantity < 1 {
		return nil, &InvalidQuantityError{ProductID: params.ProductID, Quantity: params.Quantity}
	}

	p, err := s.productRepo.GetByID(ctx, s.db, params.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsActive {
		return nil, &ProductNotFoundError{ProductID: params.ProductID}
	}

	existing, err := s.repo.GetLine(ctx, s.db, params.UserID, params.ProductID)
	if err != nil {
		return nil, err
	}

	finalQty := params.Quantity
	if existing != nil {
		finalQty += existing.Quantity
	}

	available, err := s.ledger.Available(ctx, s.db, params.ProductID)
	if err != nil {
		return nil, err
	}
	if available < finalQty {
		log.Info("add to cart exceeds stock", zap.Int("requested", finalQty), zap.Int("available", available))
		return nil, &inventory.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   finalQty,
			Available:   available,
		}
	}

	if existing == nil {
		line, err := s.repo.CreateCartItem(ctx, s.db, params)
		if !errors.Is(err, ErrCartItemAlreadyExist) {
			return line, err
		}
		// lost a race with a concurrent add; fold into the row that won
		existing, err = s.repo.GetLine(ctx, s.db, params.UserID, params.ProductID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrCartItemNotFound
		}
		finalQty = existing.Quantity + params.Quantity
	}

	return s.repo.UpdateCartItemQuantity(ctx, s.db, existing.ID, finalQty)
}

func (s *service) GetCart(ctx context.Context, userID uint) (*Cart, error) {
	items, err := s.repo.GetItems(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for i := range items {
		items[i].LineTotal = money.LineTotal(items[i].UnitPrice, items[i].Quantity)
		total = total.Add(items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity))))
	}

	return &Cart{Items: items, Total: money.Normalize(total)}, nil
}

func (s *service) RemoveFromCart(ctx context.Context, userID, productID uint) error {
	return s.repo.RemoveFromCart(ctx, s.db, userID, productID)
}
