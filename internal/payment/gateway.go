package payment

import "context"

type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	// FindOrderByReceipt returns ErrGatewayOrderNotFound when no order carries the receipt.
	FindOrderByReceipt(ctx context.Context, receipt string) (*GatewayOrder, error)
	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]GatewayPayment, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	// WebhookSignaturesEnabled is false when VerifyWebhookSignature accepts everything.
	WebhookSignaturesEnabled() bool
	KeyID() string
}
