package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"
	"racketoutlet-be/internal/money"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/utils"

	"go.uber.org/zap"
)

// Synchronizer projects a payment onto its order inside the caller's
// transaction. It validates before writing, so an error leaves no changes.
type Synchronizer interface {
	Apply(ctx context.Context, q db.DBTX, p *Payment) (*order.Order, error)
}

type Service interface {
	CreateGatewayOrder(ctx context.Context, userID, orderID uint) (*GatewayOrderResult, error)
	VerifyPayment(ctx context.Context, userID, orderID uint, in VerifyInput) (*Confirmation, error)
	ConfirmCOD(ctx context.Context, userID, orderID uint) (*Confirmation, error)
	CancelPayment(ctx context.Context, userID, orderID uint) (*Confirmation, error)
	FailPayment(ctx context.Context, userID, orderID uint) (*Confirmation, error)
	GetPayment(ctx context.Context, userID, orderID uint) (*Payment, error)
	HandleWebhookEvent(ctx context.Context, d WebhookDelivery) (WebhookResult, error)
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type service struct {
	db       db.DBTX
	tx       db.Transactor
	repo     Repository
	orders   order.Repository
	gw       Gateway
	sync     Synchronizer
	locker   Locker
	currency string
	lockTTL  time.Duration
}

type Deps struct {
	DB         db.DBTX
	Transactor db.Transactor
	Repo       Repository
	Orders     order.Repository
	Gateway    Gateway
	Sync       Synchronizer
	Locker     Locker
	Currency   string
	// LockTTL bounds how long a gateway order creation may hold its lock.
	LockTTL time.Duration
}

func NewService(d Deps) Service {
	if d.Currency == "" {
		d.Currency = money.CurrencyINR
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	return &service{
		db:       d.DB,
		tx:       d.Transactor,
		repo:     d.Repo,
		orders:   d.Orders,
		gw:       d.Gateway,
		sync:     d.Sync,
		locker:   d.Locker,
		currency: d.Currency,
		lockTTL:  d.LockTTL,
	}
}

// loadOrder returns the order to its owner or an admin.
func (s *service) loadOrder(ctx context.Context, userID, orderID uint) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID && !utils.IsAdmin(ctx) {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

// persist runs the synchronizer first so a rejected transition writes nothing,
// then stores the payment.
func (s *service) persist(ctx context.Context, tx db.DBTX, p *Payment, prev Status) (*order.Order, error) {
	o, err := s.sync.Apply(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, tx, p); err != nil {
		return nil, err
	}
	if prev != p.Status {
		metrics.PaymentStatusChanges.WithLabelValues(string(p.Status)).Inc()
	}
	return o, nil
}

// lockPayment locks the payment row, or starts a new one when none exists yet.
func (s *service) lockPayment(ctx context.Context, tx db.DBTX, orderID uint) (*Payment, error) {
	p, err := s.repo.GetByOrderIDForUpdate(ctx, tx, orderID)
	if errors.Is(err, ErrPaymentNotFound) {
		return &Payment{OrderID: orderID, Currency: s.currency}, nil
	}
	return p, err
}

// ----------------- Gateway checkout -----------------

func (s *service) CreateGatewayOrder(ctx context.Context, userID, orderID uint) (*GatewayOrderResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateGatewayOrder"),
		zap.Uint("order_id", orderID),
	)

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("payment:gateway-order:%d", orderID), s.lockTTL)
	if errors.Is(err, ErrLockHeld) {
		log.Info("gateway order creation already running")
		return nil, ErrPaymentInProgress
	}
	if err != nil {
		log.Error("failed to acquire payment lock", zap.Error(err))
		return nil, err
	}
	defer release()

	o, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	// cash on delivery orders never go through the gateway
	if o.PaymentMethod != order.PaymentMethodRazorpay {
		return nil, order.ErrInvalidPaymentMethod
	}

	existing, err := s.repo.GetByOrderID(ctx, s.db, o.ID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil && existing.IsSettled() {
		return nil, ErrAlreadyConfirmed
	}
	if order.IsTerminal(o.Status) {
		return nil, order.ErrInvalidTransition
	}

	gatewayOrderID, err := s.resolveGatewayOrder(ctx, o, existing)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		p, err := s.lockPayment(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if p.IsSettled() {
			return ErrAlreadyConfirmed
		}

		prev := p.Status
		p.Amount = o.TotalAmount
		p.Status = StatusCreated
		p.PaymentMethod = order.PaymentMethodRazorpay
		p.GatewayOrderID = &gatewayOrderID

		_, err = s.persist(ctx, tx, p, prev)
		return err
	})
	if err != nil {
		log.Error("failed to store gateway order", zap.Error(err))
		return nil, err
	}

	log.Info("gateway order ready", zap.String("gateway_order_id", gatewayOrderID))
	return &GatewayOrderResult{
		GatewayOrderID: gatewayOrderID,
		Amount:         money.ToMinorUnits(o.TotalAmount),
		Currency:       s.currency,
		KeyID:          s.gw.KeyID(),
	}, nil
}

// resolveGatewayOrder reuses a stored gateway order, adopts one left behind by
// an attempt whose response was lost, or creates a new one.
func (s *service) resolveGatewayOrder(ctx context.Context, o *order.Order, existing *Payment) (string, error) {
	if existing != nil && existing.GatewayOrderID != nil && *existing.GatewayOrderID != "" {
		return *existing.GatewayOrderID, nil
	}

	if existing != nil && existing.GatewayAttemptedAt != nil {
		found, err := s.gw.FindOrderByReceipt(ctx, o.OrderNumber)
		switch {
		case err == nil:
			logger.FromCtx(ctx).Info("adopted gateway order from earlier attempt",
				zap.Uint("order_id", o.ID),
				zap.String("gateway_order_id", found.ID),
			)
			return found.ID, nil
		case !errors.Is(err, ErrGatewayOrderNotFound):
			return "", err
		}
	}

	if err := s.repo.MarkGatewayAttempt(ctx, s.db, o.ID, o.TotalAmount); err != nil {
		return "", err
	}

	created, err := s.gw.CreateOrder(ctx, CreateOrderRequest{
		Amount:         money.ToMinorUnits(o.TotalAmount),
		Currency:       s.currency,
		Receipt:        o.OrderNumber,
		Notes:          map[string]string{"order_id": strconv.FormatUint(uint64(o.ID), 10)},
		PaymentCapture: 1,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// VerifyPayment checks the checkout signature. A bad signature is committed as
// a failed payment before ErrSignatureVerificationFailed is returned.
func (s *service) VerifyPayment(ctx context.Context, userID, orderID uint, in VerifyInput) (*Confirmation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "VerifyPayment"),
		zap.Uint("order_id", orderID),
	)

	o, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	var (
		conf     *Confirmation
		verified bool
	)
	err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		p, err := s.repo.GetByOrderIDForUpdate(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if p.IsSettled() {
			return ErrAlreadyConfirmed
		}

		prev := p.Status
		verified = p.GatewayOrderID != nil &&
			*p.GatewayOrderID == in.GatewayOrderID &&
			s.gw.VerifyPaymentSignature(*p.GatewayOrderID, in.GatewayPaymentID, in.Signature)

		if !verified {
			p.Status = StatusFailed
			_, err := s.persist(ctx, tx, p, prev)
			return err
		}

		p.Status = StatusCompleted
		p.GatewayPaymentID = &in.GatewayPaymentID
		p.GatewaySignature = &in.Signature
		p.TransactionID = &in.GatewayPaymentID

		updated, err := s.persist(ctx, tx, p, prev)
		if err != nil {
			return err
		}
		conf = &Confirmation{Payment: p, Order: updated}
		return nil
	})
	if err != nil {
		log.Error("payment verification failed", zap.Error(err))
		return nil, err
	}

	if !verified {
		log.Warn("payment signature mismatch", zap.String("gateway_payment_id", in.GatewayPaymentID))
		return nil, ErrSignatureVerificationFailed
	}

	log.Info("payment verified")
	return conf, nil
}

// ----------------- Cash on delivery -----------------

func (s *service) ConfirmCOD(ctx context.Context, userID, orderID uint) (*Confirmation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmCOD"),
		zap.Uint("order_id", orderID),
	)

	o, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != order.PaymentMethodCOD {
		return nil, ErrNotCOD
	}
	if o.PaymentStatus == order.PaymentStatusCompleted || o.PaymentStatus == order.PaymentStatusCashOnDelivery {
		return nil, ErrAlreadyConfirmed
	}

	var conf *Confirmation
	err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		p, err := s.lockPayment(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if p.IsSettled() {
			return ErrAlreadyConfirmed
		}

		prev := p.Status
		p.Status = StatusCOD
		p.Amount = o.TotalAmount
		p.PaymentMethod = order.PaymentMethodCOD

		updated, err := s.persist(ctx, tx, p, prev)
		if err != nil {
			return err
		}
		conf = &Confirmation{Payment: p, Order: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("cash on delivery confirmed")
	return conf, nil
}

// ----------------- Manual status changes -----------------

func (s *service) CancelPayment(ctx context.Context, userID, orderID uint) (*Confirmation, error) {
	return s.setStatus(ctx, userID, orderID, StatusCancelled)
}

func (s *service) FailPayment(ctx context.Context, userID, orderID uint) (*Confirmation, error) {
	return s.setStatus(ctx, userID, orderID, StatusFailed)
}

func (s *service) setStatus(ctx context.Context, userID, orderID uint, status Status) (*Confirmation, error) {
	o, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	var conf *Confirmation
	err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		p, err := s.repo.GetByOrderIDForUpdate(ctx, tx, o.ID)
		if err != nil {
			return err
		}

		prev := p.Status
		p.Status = status

		updated, err := s.persist(ctx, tx, p, prev)
		if err != nil {
			return err
		}
		conf = &Confirmation{Payment: p, Order: updated}
		return nil
	})
	if err != nil {
		logger.FromCtx(ctx).Warn("payment status change failed",
			zap.String("layer", "service"),
			zap.Uint("order_id", orderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil, err
	}
	return conf, nil
}

func (s *service) GetPayment(ctx context.Context, userID, orderID uint) (*Payment, error) {
	o, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByOrderID(ctx, s.db, o.ID)
}

// ----------------- Webhook -----------------

// HandleWebhookEvent records the delivery and applies it in one transaction.
// A delivery whose payment cannot be found rolls back entirely, ledger row
// included, so the gateway's retry is processed afresh.
func (s *service) HandleWebhookEvent(ctx context.Context, d WebhookDelivery) (WebhookResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "HandleWebhookEvent"),
	)

	if !s.gw.VerifyWebhookSignature(d.Body, d.Signature) {
		log.Warn("webhook signature mismatch")
		return "", ErrInvalidWebhookSignature
	}

	var evt WebhookEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil || evt.Event == "" {
		return "", ErrInvalidWebhookPayload
	}

	eventID := d.EventID
	if eventID == "" {
		sum := sha256.Sum256(d.Body)
		eventID = hex.EncodeToString(sum[:])
	}
	log = log.With(zap.String("event", evt.Event), zap.String("event_id", eventID))

	var result WebhookResult
	err := s.tx.WithinTx(ctx, func(tx db.DBTX) error {
		webhookID, duplicate, err := s.repo.SavePaymentWebhook(
			ctx, tx, ProviderRazorpay, eventID, evt.Event, externalID(evt), d.Body, true,
		)
		if err != nil {
			return err
		}
		if duplicate {
			result = ResultDuplicate
			return nil
		}

		res, reason, err := s.applyEvent(ctx, tx, evt)
		if err != nil {
			return err
		}

		if res == ResultRejected {
			err = s.repo.MarkWebhookFailed(ctx, tx, webhookID, reason)
		} else {
			err = s.repo.MarkWebhookProcessed(ctx, tx, webhookID)
		}
		if err != nil {
			return err
		}

		result = res
		if reason != "" {
			log.Warn("webhook not applied", zap.String("result", string(res)), zap.String("reason", reason))
		}
		return nil
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "error").Inc()
		log.Error("webhook processing failed", zap.Error(err))
		return "", err
	}

	metrics.WebhookEvents.WithLabelValues(evt.Event, string(result)).Inc()
	log.Info("webhook handled", zap.String("result", string(result)))
	return result, nil
}

// applyEvent returns the outcome and, for rejected or ignored events, why.
func (s *service) applyEvent(ctx context.Context, tx db.DBTX, evt WebhookEvent) (WebhookResult, string, error) {
	var (
		orderID uint
		err     error
	)

	switch evt.Event {
	case EventPaymentCaptured, EventPaymentFailed:
		if evt.Payload.Payment == nil {
			return "", "", ErrInvalidWebhookPayload
		}
		orderID, err = s.findOrderForEntity(ctx, tx, evt.Payload.Payment.Entity)
	case EventRefundProcessed:
		if evt.Payload.Refund == nil {
			return "", "", ErrInvalidWebhookPayload
		}
		var p *Payment
		p, err = s.repo.GetByGatewayPaymentID(ctx, tx, evt.Payload.Refund.Entity.PaymentID)
		if p != nil {
			orderID = p.OrderID
		}
	default:
		return ResultIgnored, "unhandled event " + evt.Event, nil
	}
	if err != nil {
		return "", "", err
	}

	p, err := s.repo.GetByOrderIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return "", "", err
	}
	prev := p.Status

	switch evt.Event {
	case EventPaymentCaptured:
		entity := evt.Payload.Payment.Entity
		if p.Status == StatusCOD {
			return ResultIgnored, "order is cash on delivery", nil
		}
		if entity.Amount != money.ToMinorUnits(p.Amount) {
			return ResultRejected, fmt.Sprintf("amount mismatch: captured %d, expected %d",
				entity.Amount, money.ToMinorUnits(p.Amount)), nil
		}
		p.Status = StatusCompleted
		p.GatewayPaymentID = &entity.ID
		p.TransactionID = &entity.ID
		if p.GatewayOrderID == nil && entity.OrderID != "" {
			p.GatewayOrderID = &entity.OrderID
		}
	case EventPaymentFailed:
		if p.IsSettled() {
			return ResultIgnored, "stale failure for settled payment", nil
		}
		entity := evt.Payload.Payment.Entity
		p.Status = StatusFailed
		p.GatewayPaymentID = &entity.ID
	case EventRefundProcessed:
		p.Status = StatusRefunded
	}

	if _, err := s.persist(ctx, tx, p, prev); err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			return ResultRejected, err.Error(), nil
		}
		return "", "", err
	}
	return ResultProcessed, "", nil
}

// findOrderForEntity resolves the order by gateway payment id, then gateway
// order id, then notes.order_id. The notes fallback needs a signed delivery.
func (s *service) findOrderForEntity(ctx context.Context, tx db.DBTX, e PaymentEntity) (uint, error) {
	if e.ID != "" {
		p, err := s.repo.GetByGatewayPaymentID(ctx, tx, e.ID)
		if err == nil {
			return p.OrderID, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return 0, err
		}
	}

	if e.OrderID != "" {
		p, err := s.repo.GetByGatewayOrderID(ctx, tx, e.OrderID)
		if err == nil {
			return p.OrderID, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return 0, err
		}
	}

	if raw, ok := e.NoteOrderID(); ok {
		// notes are set by whoever created the gateway order
		if !s.gw.WebhookSignaturesEnabled() {
			logger.FromCtx(ctx).Warn("notes.order_id ignored on unsigned webhook",
				zap.String("layer", "service"),
				zap.String("gateway_payment_id", e.ID),
			)
			return 0, ErrPaymentNotFound
		}
		if id, err := utils.ParseID(raw); err == nil {
			return id, nil
		}
	}

	return 0, ErrPaymentNotFound
}

func externalID(evt WebhookEvent) string {
	switch {
	case evt.Payload.Payment != nil:
		return evt.Payload.Payment.Entity.ID
	case evt.Payload.Refund != nil:
		return evt.Payload.Refund.Entity.ID
	}
	return ""
}

// ----------------- Reconciliation -----------------

// ReconcileStale asks the gateway about payments stuck in created and applies
// what it reports. It returns how many payments changed.
func (s *service) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ReconcileStale"),
	)

	stuck, err := s.repo.FindStuckCreated(ctx, s.db, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, p := range stuck {
		if p.GatewayOrderID == nil {
			continue
		}

		attempts, err := s.gw.FetchOrderPayments(ctx, *p.GatewayOrderID)
		if err != nil {
			log.Warn("failed to fetch gateway payments", zap.Uint("order_id", p.OrderID), zap.Error(err))
			continue
		}

		status, captured := reconcileOutcome(attempts)
		if status == "" {
			continue
		}

		err = s.tx.WithinTx(ctx, func(tx db.DBTX) error {
			locked, err := s.repo.GetByOrderIDForUpdate(ctx, tx, p.OrderID)
			if err != nil {
				return err
			}
			if locked.Status != StatusCreated {
				return errStale
			}

			prev := locked.Status
			if captured != nil {
				if captured.Amount != money.ToMinorUnits(locked.Amount) {
					return fmt.Errorf("captured amount %d does not match payment", captured.Amount)
				}
				locked.GatewayPaymentID = &captured.ID
				locked.TransactionID = &captured.ID
			}
			locked.Status = status

			_, err = s.persist(ctx, tx, locked, prev)
			return err
		})
		if errors.Is(err, errStale) {
			continue
		}
		if err != nil {
			log.Warn("failed to reconcile payment", zap.Uint("order_id", p.OrderID), zap.Error(err))
			continue
		}

		log.Info("payment reconciled", zap.Uint("order_id", p.OrderID), zap.String("status", string(status)))
		changed++
	}

	return changed, nil
}

var errStale = errors.New("payment changed since lookup")

// reconcileOutcome picks the payment's new status from the gateway's attempts:
// any capture wins, and only an all-failed history marks it failed.
func reconcileOutcome(attempts []GatewayPayment) (Status, *GatewayPayment) {
	if len(attempts) == 0 {
		return "", nil
	}

	allFailed := true
	for i := range attempts {
		switch attempts[i].Status {
		case GatewayPaymentCaptured:
			return StatusCompleted, &attempts[i]
		case GatewayPaymentFailed:
		default:
			allFailed = false
		}
	}

	if allFailed {
		return StatusFailed, nil
	}
	return "", nil
}
