package order

import "errors"

var (
	// -- Resource State --
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")

	// -- Validation & Input --
	ErrUnknownStatus        = errors.New("unknown order status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrMissingAddress       = errors.New("shipping and billing details are required")

	// -- Authentication/Authorization --
	ErrUnauthorized = errors.New("unauthorized")
)
