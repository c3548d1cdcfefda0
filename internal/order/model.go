package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusProcessing    Status = "processing"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusPaymentFailed Status = "payment_failed"
	StatusCancelled     Status = "cancelled"
	StatusRefunded      Status = "refunded"
)

// Display values mirrored into orders.payment_status.
const (
	PaymentStatusPending        = "pending"
	PaymentStatusCompleted      = "completed"
	PaymentStatusCashOnDelivery = "Cash on Delivery"
	PaymentStatusFailed         = "failed"
	PaymentStatusCancelled      = "cancelled"
	PaymentStatusRefunded       = "refunded"
)

const (
	PaymentMethodRazorpay = "razorpay"
	PaymentMethodCOD      = "cod"
)

type Order struct {
	ID                   uint            `json:"id"`
	OrderNumber          string          `json:"order_number"`
	UserID               uint            `json:"user_id"`
	Status               Status          `json:"status"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	ShippingAddress      string          `json:"shipping_address"`
	ShippingPersonName   string          `json:"shipping_person_name"`
	ShippingPersonNumber string          `json:"shipping_person_number"`
	BillingAddress       string          `json:"billing_address"`
	PaymentMethod        string          `json:"payment_method"`
	PaymentStatus        string          `json:"payment_status"`
	Notes                *string         `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Items                []OrderItem     `json:"items,omitempty"`
}

// OrderItem copies the product name and unit price at purchase time.
type OrderItem struct {
	ID          uint            `json:"id"`
	OrderID     uint            `json:"order_id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CreateOrderInput struct {
	UserID               uint
	Items                []RequestedItem
	ShippingAddress      string
	ShippingPersonName   string
	ShippingPersonNumber string
	BillingAddress       string
	PaymentMethod        string
	Notes                *string
}

type RequestedItem struct {
	ProductID uint
	Quantity  int
}

type ListOrdersInput struct {
	UserID  uint
	IsAdmin bool
	Status  *Status
	Limit   int
	Page    int
}
