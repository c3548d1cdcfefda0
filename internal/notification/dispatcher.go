package notification

import (
	"context"
	"errors"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/user"

	"go.uber.org/zap"
)

// Dispatcher sends the order confirmation at most once per order.
type Dispatcher interface {
	SendOrderConfirmation(ctx context.Context, q db.DBTX, o *order.Order) error
}

type dispatcher struct {
	repo     Repository
	users    user.Repository
	orders   order.Repository
	notifier Notifier
}

func NewDispatcher(repo Repository, users user.Repository, orders order.Repository, notifier Notifier) Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &dispatcher{repo: repo, users: users, orders: orders, notifier: notifier}
}

func dedupeKey(o *order.Order) string {
	return TemplateOrderConfirmation + ":" + o.OrderNumber
}

// SendOrderConfirmation claims the notification row inside the caller's
// transaction and delivers only after that transaction commits, so a rolled
// back confirmation sends nothing. A delivery failure is recorded on the row
// and is not returned; only storage errors are.
func (d *dispatcher) SendOrderConfirmation(ctx context.Context, q db.DBTX, o *order.Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notification"),
		zap.Uint("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
	)

	exists, err := d.repo.ExistsForSubject(ctx, q, o.UserID, ChannelEmail, o.OrderNumber)
	if err != nil {
		return err
	}
	if exists {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		log.Info("order confirmation already sent")
		return nil
	}

	u, err := d.users.GetByID(ctx, q, o.UserID)
	if err != nil {
		return err
	}
	to := Recipient{UserID: u.ID, Email: u.Email, Name: u.Username}

	if o.Items == nil {
		full, err := d.orders.GetByID(ctx, q, o.ID)
		if err != nil {
			return err
		}
		// keep the caller's status projection
		full.Status, full.PaymentStatus = o.Status, o.PaymentStatus
		o = full
	}

	subject, msg, err := d.render(ctx, q, o, to)
	if err != nil {
		return err
	}

	key := dedupeKey(o)
	n := &Notification{
		UserID:    o.UserID,
		Type:      ChannelEmail,
		Subject:   subject,
		Message:   msg.Text,
		Status:    StatusPending,
		DedupeKey: &key,
	}
	inserted, err := d.repo.Insert(ctx, q, n)
	if err != nil {
		return err
	}
	if !inserted {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		log.Info("order confirmation claimed by a concurrent delivery")
		return nil
	}

	var deliverErr error
	db.AfterCommit(ctx, q, func(ctx context.Context, q db.DBTX) {
		deliverErr = d.deliver(ctx, q, n.ID, to, subject, msg)
		if deliverErr != nil {
			log.Error("failed to record order confirmation delivery", zap.Error(deliverErr))
		}
	})
	return deliverErr
}

func (d *dispatcher) deliver(ctx context.Context, q db.DBTX, id uint, to Recipient, subject string, msg Message) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "notification"), zap.Uint("notification_id", id))

	if err := d.notifier.Send(ctx, to, subject, msg); err != nil {
		log.Error("order confirmation delivery failed", zap.Error(err))
		metrics.Notifications.WithLabelValues("failed").Inc()
		return d.repo.MarkFailed(ctx, q, id)
	}

	if err := d.repo.MarkSent(ctx, q, id); err != nil {
		return err
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	log.Info("order confirmation sent", zap.String("to", to.Email))
	return nil
}

func (d *dispatcher) render(ctx context.Context, q db.DBTX, o *order.Order, to Recipient) (string, Message, error) {
	data := NewOrderEmailData(o, to)

	tpl, err := d.repo.GetTemplate(ctx, q, TemplateOrderConfirmation)
	switch {
	case errors.Is(err, ErrTemplateNotFound):
		return Render(defaultOrderConfirmation, data)
	case err != nil:
		return "", Message{}, err
	}

	subject, msg, err := Render(*tpl, data)
	if err != nil {
		logger.FromCtx(ctx).Warn("stored template unusable, using default",
			zap.String("template", tpl.Name),
			zap.Error(err),
		)
		return Render(defaultOrderConfirmation, data)
	}
	return subject, msg, nil
}
