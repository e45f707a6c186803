package provider

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
)

// Store is the record store providers read from. Writes go through Atomic.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Currency(ctx context.Context, id uuid.UUID) (*domain.PaymentCurrency, error)
	CurrenciesByType(ctx context.Context, paymentTypeID uuid.UUID) ([]domain.PaymentCurrency, error)
	// SweepTargets lists custody wallets that accept sweeps, with their currency.
	SweepTargets(ctx context.Context) ([]SweepTarget, error)
	// ProviderWallet returns the payment_system mirror wallet for a currency,
	// or ErrNotFound.
	ProviderWallet(ctx context.Context, currencyID uuid.UUID) (*domain.WithdrawWallet, error)
	// PayoutLiabilitySince sums scheduled payouts dated on or after since.
	PayoutLiabilitySince(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// Tx is one atomic unit of work. Saves of versioned rows fail with
// ErrVersionConflict when the row changed underneath.
type Tx interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	// ClaimOrderSweep marks an order's deposit as being swept. It reports
	// false when another sweep already claimed it.
	ClaimOrderSweep(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
	UnclaimOrderSweep(ctx context.Context, orderID uuid.UUID) error
	// WalletForUpdate reads a withdraw wallet and locks it until commit.
	WalletForUpdate(ctx context.Context, id uuid.UUID) (*domain.WithdrawWallet, error)
	SaveWallet(ctx context.Context, w *domain.WithdrawWallet) error
	SaveWithdraw(ctx context.Context, w *domain.Withdraw) error
	AppendLedger(ctx context.Context, e *domain.InternalTransaction) error
	// ChargeUser debits the user's internal balance for an order, or fails
	// with ErrInsufficientFunds.
	ChargeUser(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error
	// ReleaseWithdraw sends a held withdraw back to moderation and returns
	// its amount to the user's balance. It reports false and changes nothing
	// when the withdraw is no longer held or was already confirmed.
	ReleaseWithdraw(ctx context.Context, w *domain.Withdraw) (bool, error)
}

type SweepTarget struct {
	Wallet   domain.WithdrawWallet
	Currency domain.PaymentCurrency
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Clock interface {
	Now() time.Time
}

// Deps are the collaborators shared by every provider client.
type Deps struct {
	Store      Store
	Notifier   Notifier
	Clock      Clock
	Rates      *ratecache.Cache
	HTTPClient *http.Client
	// Pick returns a uniformly random index in [0, n).
	Pick func(n int) int
	// AppEnv tags invoice order names outside production.
	AppEnv string
	// CallbackURL builds the webhook URL for an order.
	CallbackURL func(orderID uuid.UUID) string
	FrontURL    string
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Notification) {}

// WithDefaults fills unset optional collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Clock == nil {
		d.Clock = ratecache.SystemClock
	}
	if d.Pick == nil {
		d.Pick = rand.IntN
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Rates == nil {
		d.Rates = ratecache.New(ratecache.NewMemoryStore(d.Clock), 30*time.Minute)
	}
	if d.CallbackURL == nil {
		d.CallbackURL = func(orderID uuid.UUID) string { return "/api/payment-callback/" + orderID.String() }
	}
	return d
}

// OrderName is the order label sent to providers.
func (d Deps) OrderName(orderID uuid.UUID) string {
	name := "#" + orderID.String()
	if d.AppEnv != "" && d.AppEnv != "production" {
		name += " " + d.AppEnv
	}
	return name
}
