// Package synchronizer is the single writer of orders.status for payment
// driven changes.
package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"
	"racketoutlet-be/internal/notification"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"

	"go.uber.org/zap"
)

var ErrUnknownPaymentStatus = errors.New("unknown payment status")

// Project maps a payment status to the order status and the payment_status
// display value it implies.
func Project(s payment.Status) (order.Status, string, error) {
	switch s {
	case payment.StatusPending, payment.StatusCreated:
		return order.StatusPending, order.PaymentStatusPending, nil
	case payment.StatusCompleted:
		return order.StatusConfirmed, order.PaymentStatusCompleted, nil
	case payment.StatusCOD:
		return order.StatusConfirmed, order.PaymentStatusCashOnDelivery, nil
	case payment.StatusFailed:
		return order.StatusPaymentFailed, order.PaymentStatusFailed, nil
	case payment.StatusCancelled:
		return order.StatusCancelled, order.PaymentStatusCancelled, nil
	case payment.StatusRefunded:
		return order.StatusRefunded, order.PaymentStatusRefunded, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownPaymentStatus, s)
}

type Synchronizer struct {
	orders     order.Repository
	ledger     inventory.Ledger
	dispatcher notification.Dispatcher
}

func New(orders order.Repository, ledger inventory.Ledger, dispatcher notification.Dispatcher) *Synchronizer {
	return &Synchronizer{orders: orders, ledger: ledger, dispatcher: dispatcher}
}

var _ payment.Synchronizer = (*Synchronizer)(nil)

// Apply locks the order, validates the projected transition and writes it.
// Nothing is written when the transition is rejected.
func (s *Synchronizer) Apply(ctx context.Context, q db.DBTX, p *payment.Payment) (*order.Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "synchronizer"),
		zap.Uint("order_id", p.OrderID),
		zap.String("payment_status", string(p.Status)),
	)

	target, paymentStatus, err := Project(p.Status)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetForUpdate(ctx, q, p.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status

	// a late confirmation must not pull a shipped order back
	if target == order.StatusConfirmed && order.IsFulfilment(from) {
		target = from
	}

	if !order.CanTransition(from, target) {
		log.Warn("payment projection rejected", zap.String("from", string(from)), zap.String("to", string(target)))
		return nil, fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, from, target)
	}

	if err := s.orders.ApplyPaymentProjection(ctx, q, o.ID, target, paymentStatus); err != nil {
		return nil, err
	}
	o.Status = target
	o.PaymentStatus = paymentStatus

	if from != target {
		metrics.OrderTransitions.WithLabelValues(string(from), string(target)).Inc()
		log.Info("order status projected", zap.String("from", string(from)), zap.String("to", string(target)))
	}

	switch target {
	case order.StatusCancelled:
		if err := s.ledger.Release(ctx, q, o.ID); err != nil {
			return nil, err
		}
	case order.StatusConfirmed:
		if err := s.ledger.Commit(ctx, q, o.ID); err != nil {
			return nil, err
		}
		if err := s.dispatcher.SendOrderConfirmation(ctx, q, o); err != nil {
			return nil, err
		}
	}

	return o, nil
}
