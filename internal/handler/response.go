package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{Success: true, Data: data})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// domainErrors maps sentinels to API errors. The first match wins, so more
// specific sentinels come before the ones they wrap.
var domainErrors = []struct {
	err    error
	appErr *AppError
}{
	{domain.ErrNotFound, ErrResourceNotFound},
	{domain.ErrInsufficientFunds, ErrInsufficientFunds},
	{domain.ErrVersionConflict, ErrVersionConflict},
	{domain.ErrInvalidAmount, ErrInvalidAmount},
	{domain.ErrInvalidRequest, ErrInvalidRequest},
	{domain.ErrUnknownProvider, ErrUnknownProvider},
	{domain.ErrMissingKey, ErrProviderMisconfig},
	{domain.ErrCurrencyDisabled, ErrCurrencyDisabled},
	{domain.ErrInvalidSignature, ErrInvalidSignature},
	{domain.ErrUpstream, ErrProviderUnavailable},
	{domain.ErrInvariantViolation, ErrInvariantViolation},
}

func RespondDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			if m.appErr == ErrInvariantViolation {
				slog.Error("provider invariant violated", "error", err)
			}
			RespondAppError(w, m.appErr, nil)
			return
		}
	}
	slog.Error("unhandled domain error", "error", err)
	RespondAppError(w, ErrInternalError, nil)
}
