package notification

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const TemplateOrderConfirmation = "order_confirmation"

type Notification struct {
	ID        uint
	UserID    uint
	Type      Channel
	Subject   string
	Message   string
	Status    Status
	DedupeKey *string
	CreatedAt time.Time
	SentAt    *time.Time
}

type EmailTemplate struct {
	ID          uint
	Name        string
	Subject     string
	HTMLContent string
	TextContent *string
}
