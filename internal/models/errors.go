package models

import "errors"

// ErrorKind classifies failures so transports can pick a response without
// string matching.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindSignature       ErrorKind = "signature"
	KindExternalService ErrorKind = "external_service"
	KindInternal        ErrorKind = "internal"
)

// Error is a domain error tagged with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError returns an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError tags err with a kind while keeping it reachable through errors.Is.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
// Untagged errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Common errors used throughout the application
var (
	ErrUserNotFound      = NewError(KindNotFound, "user not found")
	ErrTicketNotFound    = NewError(KindNotFound, "ticket not found")
	ErrCartItemNotFound  = NewError(KindNotFound, "cart item not found")
	ErrOrderNotFound     = NewError(KindNotFound, "order not found")
	ErrPaymentNotFound   = NewError(KindNotFound, "payment not found")
	ErrInvalidInput      = NewError(KindValidation, "invalid input")
	ErrCartEmpty         = NewError(KindValidation, "cart is empty")
	ErrNotEnoughTickets  = NewError(KindValidation, "not enough tickets available")
	ErrInsufficientStock = NewError(KindConflict, "insufficient ticket stock")
	ErrDuplicateEntry    = NewError(KindConflict, "duplicate entry")
	ErrPaymentNotPending = NewError(KindConflict, "payment is no longer pending")
	ErrOrderNotOngoing   = NewError(KindConflict, "order is no longer ongoing")
	ErrStockContended    = NewError(KindConflict, "tickets are being reserved by another checkout, try again")
	ErrItemCountMismatch = NewError(KindInternal, "order item count does not match cart")
	ErrInvalidSignature  = NewError(KindSignature, "invalid webhook signature")
	ErrUnknownEvent      = NewError(KindValidation, "unsupported webhook event")
	ErrGatewayNotFound   = NewError(KindExternalService, "transaction not found at gateway")
)
