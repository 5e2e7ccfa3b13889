package services

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means a server-side secret is missing. Nothing was sent anywhere.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation means the caller's input was rejected before any side effect.
	ErrValidation = errors.New("validation error")
	// ErrGateway means the payment gateway answered with a non-2xx status or an unreadable body.
	ErrGateway = errors.New("payment gateway error")
	// ErrGatewayTimeout means the gateway did not answer in time.
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	// ErrPersistence means a verified payment could not be recorded. The money
	// may already be captured, so this must reach an operator.
	ErrPersistence = errors.New("persistence error")
)

// GatewayError carries the gateway's HTTP status and raw body.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrGateway, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	return ErrGateway
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func configurationError(name string) error {
	return fmt.Errorf("%w: %s is not set", ErrConfiguration, name)
}
