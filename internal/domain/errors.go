package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrMarketClosed      = errors.New("market_closed")
	ErrAlreadyExists     = errors.New("already_exists")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyMatching   = errors.New("already_matching")
)

// Entity-specific not-found errors. Each wraps ErrNotFound so callers can
// match either the specific entity or the category.
var (
	ErrInstrumentNotFound = &NotFoundError{Entity: "instrument"}
	ErrAccountNotFound    = &NotFoundError{Entity: "account"}
	ErrMarketNotFound     = &NotFoundError{Entity: "market"}
	ErrOrderNotFound      = &NotFoundError{Entity: "order"}
	ErrTradeNotFound      = &NotFoundError{Entity: "trade"}
	ErrPositionNotFound   = &NotFoundError{Entity: "position"}
	ErrWebhookNotFound    = &NotFoundError{Entity: "webhook"}
)

// NotFoundError reports an unknown entity reference.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + "_not_found"
}

// Unwrap makes errors.Is(err, ErrNotFound) true for every entity.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
