package order

import (
	"context"
	"errors"
	"strings"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"
	"racketoutlet-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentOpener opens the pending payment record for a new order inside the
// checkout transaction.
type PaymentOpener interface {
	OpenPending(ctx context.Context, q db.DBTX, orderID uint, amount decimal.Decimal, method string) error
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, userID, orderID uint, isAdmin bool) (*Order, error)
	ListOrders(ctx context.Context, input ListOrdersInput) ([]Order, error)
	AdvanceFulfilment(ctx context.Context, orderID uint, to Status) (*Order, error)
}

type service struct {
	db        db.DBTX
	tx        db.Transactor
	repo      Repository
	snapshots cart.SnapshotBuilder
	cartRepo  cart.Repository
	ledger    inventory.Ledger
	payments  PaymentOpener
}

type Deps struct {
	DB         db.DBTX
	Transactor db.Transactor
	Repo       Repository
	Snapshots  cart.SnapshotBuilder
	CartRepo   cart.Repository
	Ledger     inventory.Ledger
	Payments   PaymentOpener
}

func NewService(d Deps) Service {
	return &service{
		db:        d.DB,
		tx:        d.Transactor,
		repo:      d.Repo,
		snapshots: d.Snapshots,
		cartRepo:  d.CartRepo,
		ledger:    d.Ledger,
		payments:  d.Payments,
	}
}

// CreateOrder snapshots the requested lines, persists the order, reserves
// stock, opens the payment and clears the purchased cart lines, all in one
// transaction.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Uint("user_id", input.UserID),
		zap.Int("item_count", len(input.Items)),
	)

	if err := validateCheckout(input); err != nil {
		metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	requested := make([]cart.RequestedLine, len(input.Items))
	for i, it := range input.Items {
		requested[i] = cart.RequestedLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	var created *Order
	err := s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		snap, err := s.snapshots.Build(ctx, tx, input.UserID, requested)
		if err != nil {
			return err
		}

		o := &Order{
			OrderNumber:          utils.GenerateOrderNumber(),
			UserID:               input.UserID,
			Status:               StatusPending,
			TotalAmount:          snap.Total,
			ShippingAddress:      input.ShippingAddress,
			ShippingPersonName:   input.ShippingPersonName,
			ShippingPersonNumber: input.ShippingPersonNumber,
			BillingAddress:       input.BillingAddress,
			PaymentMethod:        input.PaymentMethod,
			PaymentStatus:        PaymentStatusPending,
			Notes:                input.Notes,
			Items:                make([]OrderItem, 0, len(snap.Lines)),
		}

		lines := make([]inventory.Line, 0, len(snap.Lines))
		for _, l := range snap.Lines {
			o.Items = append(o.Items, OrderItem{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
				Price:       l.UnitPrice,
			})
			lines = append(lines, inventory.Line{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
			})
		}

		if err := s.repo.Create(ctx, tx, o); err != nil {
			return err
		}

		if _, err := s.ledger.Reserve(ctx, tx, o.ID, lines); err != nil {
			return err
		}

		if err := s.payments.OpenPending(ctx, tx, o.ID, o.TotalAmount, o.PaymentMethod); err != nil {
			return err
		}

		if err := s.cartRepo.DeleteProducts(ctx, tx, input.UserID, snap.ProductIDs()); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		log.Warn("checkout rejected", zap.Error(err))
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	log.Info("order created",
		zap.Uint("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("total", created.TotalAmount.StringFixed(2)),
	)

	return created, nil
}

func validateCheckout(input CreateOrderInput) error {
	if input.PaymentMethod != PaymentMethodRazorpay && input.PaymentMethod != PaymentMethodCOD {
		return ErrInvalidPaymentMethod
	}
	if strings.TrimSpace(input.ShippingAddress) == "" ||
		strings.TrimSpace(input.ShippingPersonName) == "" ||
		strings.TrimSpace(input.ShippingPersonNumber) == "" ||
		strings.TrimSpace(input.BillingAddress) == "" {
		return ErrMissingAddress
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, cart.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, cart.ErrEmptyItems):
		return "empty_items"
	case errors.Is(err, ErrInvalidPaymentMethod), errors.Is(err, ErrMissingAddress):
		return "invalid_input"
	default:
		return "internal"
	}
}

// GetOrder returns the order to its owner or an admin. Anyone else gets
// ErrOrderNotFound so existence is not revealed.
func (s *service) GetOrder(ctx context.Context, userID, orderID uint, isAdmin bool) (*Order, error) {
	o, err := s.repo.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if !isAdmin && o.UserID != userID {
		logger.FromCtx(ctx).Warn("order access denied",
			zap.String("layer", "service"),
			zap.Uint("user_id", userID),
			zap.Uint("order_id", orderID),
		)
		return nil, ErrOrderNotFound
	}

	return o, nil
}

func (s *service) ListOrders(ctx context.Context, input ListOrdersInput) ([]Order, error) {
	return s.repo.List(ctx, s.db, input)
}

// AdvanceFulfilment moves a paid order through processing, shipped and
// delivered. Payment-driven statuses are never written here.
func (s *service) AdvanceFulfilment(ctx context.Context, orderID uint, to Status) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AdvanceFulfilment"),
		zap.Uint("order_id", orderID),
		zap.String("to", string(to)),
	)

	if !IsFulfilment(to) {
		return nil, ErrInvalidTransition
	}

	var updated *Order
	err := s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		o, err := s.repo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !CanTransition(o.Status, to) {
			log.Info("transition rejected", zap.String("from", string(o.Status)))
			return ErrInvalidTransition
		}

		if o.Status != to {
			if err := s.repo.UpdateFulfilmentStatus(ctx, tx, orderID, to); err != nil {
				return err
			}
			metrics.OrderTransitions.WithLabelValues(string(o.Status), string(to)).Inc()
		}

		o.Status = to
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("fulfilment status updated")
	return updated, nil
}
