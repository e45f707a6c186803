package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type operatorReader interface {
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
}

type AuthHandler struct {
	operators operatorReader
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(operators operatorReader, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		operators: operators,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Email) == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Operator  operatorDTO `json:"operator"`
}

type operatorDTO struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Login exchanges operator credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	op, err := h.operators.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondAppError(w, ErrInvalidCredentials, nil)
			return
		}
		RespondDomainError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		logging.FromContext(r.Context()).Warn("operator login rejected", "operator_id", op.ID)
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}

	token, err := auth.GenerateToken(op.ID, op.Email, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to sign token", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwtExpiry).UTC(),
		Operator: operatorDTO{
			ID:    op.ID,
			Email: op.Email,
			Name:  op.Name,
		},
	})
}
