package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds     = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}

	ErrUnknownProvider     = &AppError{http.StatusUnprocessableEntity, "UNKNOWN_PROVIDER", "No integration is registered for this payment type"}
	ErrProviderMisconfig   = &AppError{http.StatusUnprocessableEntity, "PROVIDER_NOT_CONFIGURED", "Payment type is missing its API keys"}
	ErrProviderUnavailable = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider request failed"}
	ErrCurrencyDisabled    = &AppError{http.StatusUnprocessableEntity, "CURRENCY_DISABLED", "Currency is disabled"}
	ErrInvariantViolation  = &AppError{http.StatusInternalServerError, "INVARIANT_VIOLATION", "Provider state is inconsistent, operator review needed"}
	ErrInvalidSignature    = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrWebhookRejected     = &AppError{http.StatusBadRequest, "WEBHOOK_REJECTED", "Webhook was not accepted"}
	ErrInvoiceDeclined     = &AppError{http.StatusUnprocessableEntity, "INVOICE_DECLINED", "Provider declined to create an invoice"}
)
