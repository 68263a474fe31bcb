package payment

import "errors"

var (
	// -- Outbound gateway calls --
	ErrGatewayUnavailable = errors.New("payment gateway unreachable")
	ErrGatewayDeclined    = errors.New("payment gateway declined the request")
	ErrMalformedResponse  = errors.New("malformed payment gateway response")

	// -- Inbound webhooks --
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
