package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrVersionConflict   = errors.New("optimistic lock conflict")

	// Configuration errors are fatal and never retried.
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingKey      = errors.New("provider key not configured")

	ErrInvalidSignature   = errors.New("invalid signature")
	ErrUpstream           = errors.New("provider request failed")
	ErrCurrencyDisabled   = errors.New("currency disabled")
	ErrInvariantViolation = errors.New("invariant violation")
)
