package notification

import (
	"context"

	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

type Recipient struct {
	UserID uint
	Email  string
	Name   string
}

// Message carries both renderings of one notification body.
type Message struct {
	Text string
	HTML string
}

// Notifier delivers a rendered message. Delivery mechanics live behind it.
type Notifier interface {
	Send(ctx context.Context, to Recipient, subject string, msg Message) error
}

// LogNotifier only logs. It is the fallback when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to Recipient, subject string, msg Message) error {
	logger.FromCtx(ctx).Info("notification",
		zap.String("layer", "notifier"),
		zap.Uint("user_id", to.UserID),
		zap.String("to", to.Email),
		zap.String("subject", subject),
		zap.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
