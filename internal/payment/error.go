package payment

import "errors"

var (
	// -- Resource State --
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrAlreadyConfirmed     = errors.New("payment already confirmed")
	ErrNotCOD               = errors.New("order is not cash on delivery")
	ErrPaymentInProgress    = errors.New("payment creation already in progress")
	ErrGatewayOrderNotFound = errors.New("gateway order not found")

	// -- Verification --
	ErrSignatureVerificationFailed = errors.New("payment signature verification failed")
	ErrInvalidWebhookSignature     = errors.New("invalid webhook signature")
	ErrInvalidWebhookPayload       = errors.New("invalid webhook payload")

	// -- External Systems --
	ErrGateway        = errors.New("payment gateway error")
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	ErrLockHeld       = errors.New("lock already held")
)
