package order

import "errors"

var (
	// -- Validation & Input --
	ErrInvalidOrderInput    = errors.New("invalid order input")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")

	// -- Resource State --
	ErrOrderNotFound = errors.New("order not found")
	ErrMissingRef    = errors.New("order has no gateway reference")

	// -- Authentication/Authorization --
	ErrUnauthorized = errors.New("unauthorized")
)
