package payment

import (
	"encoding/json"
	"time"

	"racketoutlet-be/internal/order"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
	StatusCOD       Status = "cod"
)

const ProviderRazorpay = "razorpay"

type Payment struct {
	ID                 uint            `json:"id"`
	OrderID            uint            `json:"order_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             Status          `json:"status"`
	PaymentMethod      string          `json:"payment_method"`
	GatewayOrderID     *string         `json:"gateway_order_id,omitempty"`
	GatewayPaymentID   *string         `json:"gateway_payment_id,omitempty"`
	GatewaySignature   *string         `json:"-"`
	TransactionID      *string         `json:"transaction_id,omitempty"`
	GatewayAttemptedAt *time.Time      `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsSettled reports whether the payment has already secured the order.
func (p *Payment) IsSettled() bool {
	return p.Status == StatusCompleted || p.Status == StatusCOD
}

// GatewayOrderResult is what the client needs to open the gateway checkout.
type GatewayOrderResult struct {
	GatewayOrderID string `json:"order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"razorpay_key"`
}

type VerifyInput struct {
	GatewayOrderID   string `json:"razorpay_order_id" binding:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature        string `json:"razorpay_signature" binding:"required"`
}

// Confirmation is the payment and the order state it produced.
type Confirmation struct {
	Payment *Payment     `json:"payment"`
	Order   *order.Order `json:"order"`
}

// ----------------- Gateway wire types -----------------

type CreateOrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	Notes          map[string]string `json:"notes,omitempty"`
	PaymentCapture int               `json:"payment_capture"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

// Gateway payment statuses the reconciler acts on.
const (
	GatewayPaymentCaptured = "captured"
	GatewayPaymentFailed   = "failed"
)

// ----------------- Webhook -----------------

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

type WebhookResult string

const (
	ResultProcessed WebhookResult = "processed"
	ResultIgnored   WebhookResult = "ignored"
	ResultRejected  WebhookResult = "rejected"
	ResultDuplicate WebhookResult = "duplicate"
)

// WebhookDelivery is one raw gateway callback.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	EventID   string
}

type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	// notes is an object, or an empty array when unset
	Notes json.RawMessage `json:"notes"`
}

// NoteOrderID returns notes.order_id when present.
func (e PaymentEntity) NoteOrderID() (string, bool) {
	var notes map[string]any
	if len(e.Notes) == 0 || json.Unmarshal(e.Notes, &notes) != nil {
		return "", false
	}
	switch v := notes["order_id"].(type) {
	case string:
		return v, v != ""
	case float64:
		return decimal.NewFromFloat(v).String(), true
	}
	return "", false
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}
