// Package provider defines the contract every payment integration
// satisfies, the registry that selects one by slug, and the settlement
// and custody rules the integrations share.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// Provider is one external payment API.
//
// Declined outcomes (nil result, false, "", zero rate) carry a nil error.
// Errors mean misconfiguration, a broken invariant, or an upstream state
// that could not be determined.
type Provider interface {
	// CreateInvoice returns nil when the currency is disabled or the
	// provider declines. The order is persisted before a result is returned.
	CreateInvoice(ctx context.Context, currency domain.PaymentCurrency, order domain.Order) (*InvoiceResult, error)
	// Callback authenticates and applies a webhook. It returns true only
	// after the updated order has been persisted.
	Callback(ctx context.Context, wh Webhook, order domain.Order) (bool, error)
	// GetCurrencyRate returns zero when the rate could not be fetched.
	GetCurrencyRate(ctx context.Context, currency domain.PaymentCurrency) decimal.Decimal
	WithdrawToWallets(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
	WithdrawOrderToWallet(ctx context.Context, order domain.Order) (bool, error)
	// WithdrawForUser may update w (payment id, tx id) and ww (mirrored
	// balance); the caller persists both. It returns the provider
	// transaction id, or "" when declined.
	WithdrawForUser(ctx context.Context, w *domain.Withdraw, address string, ww *domain.WithdrawWallet) (string, error)
	CheckWithdraw(ctx context.Context, w domain.Withdraw) (bool, error)
	UpdateBalances(ctx context.Context) error
	Test(ctx context.Context) (bool, error)
}

type InvoiceResult struct {
	Finished       bool       `json:"finished"`
	Address        string     `json:"address,omitempty"`
	CurrencyAmount string     `json:"currency_amount,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	OrderID        uuid.UUID  `json:"order_id"`
	CurrencySlug   string     `json:"currency_slug,omitempty"`
	CurrencyName   string     `json:"currency_name,omitempty"`
}

// Webhook is an inbound provider request as received.
type Webhook struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Config is the provider configuration record a client is built from.
type Config struct {
	PublicKey       *string
	PrivateKey      *string
	AdvancedBalance *string
	Type            domain.PaymentType
}

func ConfigFromType(pt domain.PaymentType) Config {
	return Config{
		PublicKey:       pt.PublicKey,
		PrivateKey:      pt.PrivateKey,
		AdvancedBalance: pt.AdvancedBalance,
		Type:            pt,
	}
}

// RequirePrivateKey returns the signing key or ErrMissingKey.
func (c Config) RequirePrivateKey() (string, error) {
	if c.PrivateKey == nil || *c.PrivateKey == "" {
		return "", fmt.Errorf("%s: %w", c.Type.Slug, domain.ErrMissingKey)
	}
	return *c.PrivateKey, nil
}

func (c Config) PublicKeyValue() string {
	if c.PublicKey == nil {
		return ""
	}
	return *c.PublicKey
}

// Escalate keeps only the errors a caller must see: configuration errors,
// broken invariants and cancellation. Other upstream failures become a
// declined outcome.
func Escalate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrMissingKey),
		errors.Is(err, domain.ErrInvariantViolation),
		errors.Is(err, context.Canceled):
		return err
	default:
		return nil
	}
}
