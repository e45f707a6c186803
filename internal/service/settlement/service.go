// Package settlement dispatches settlement operations to the provider
// client selected by a payment type.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
)

type Store interface {
	provider.Store
	PaymentType(ctx context.Context, id uuid.UUID) (*domain.PaymentType, error)
	PaymentTypeBySlug(ctx context.Context, slug string) (*domain.PaymentType, error)
	EnabledPaymentTypes(ctx context.Context) ([]domain.PaymentType, error)
	Order(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Withdraw(ctx context.Context, id uuid.UUID) (*domain.Withdraw, error)
	UserWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	SaveCurrencyRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error
	PendingWithdrawChecks(ctx context.Context, limit int) ([]domain.Withdraw, error)
}

type resolver interface {
	Resolve(pt domain.PaymentType) (provider.Provider, error)
}

type Service struct {
	store    Store
	registry resolver
	notifier provider.Notifier
	clock    provider.Clock
}

// NewService builds the dispatcher. A nil clock reads the system time.
func NewService(store Store, registry resolver, notifier provider.Notifier, clock provider.Clock) *Service {
	if clock == nil {
		clock = ratecache.SystemClock
	}
	return &Service{store: store, registry: registry, notifier: notifier, clock: clock}
}

// PayoutResult is a payout the provider accepted.
type PayoutResult struct {
	Wallet domain.WithdrawWallet
	TxID   string
}

func (s *Service) notify(ctx context.Context, topic, msg string, fields map[string]string) {
	s.notifier.Notify(ctx, domain.Notification{Topic: topic, Message: msg, Fields: fields})
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// CreateInvoice asks the currency's provider for an invoice.
func (s *Service) CreateInvoice(ctx context.Context, currency domain.PaymentCurrency, order domain.Order) (*provider.InvoiceResult, error) {
	pt, err := s.store.PaymentType(ctx, currency.PaymentTypeID)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	p, err := s.registry.Resolve(*pt)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	res, err := p.CreateInvoice(ctx, currency, order)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}
	return res, nil
}

func (s *Service) Test(ctx context.Context, pt domain.PaymentType) (bool, error) {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return false, fmt.Errorf("Test: %w", err)
	}
	ok, err := p.Test(ctx)
	if err != nil {
		return false, fmt.Errorf("Test: %w", err)
	}
	return ok, nil
}

// WithdrawForUser pays a withdraw out to the user's destination wallet.
// The mirror wallet is saved whatever the outcome; the withdraw is saved
// when the provider accepted the payout. It returns nil when declined.
func (s *Service) WithdrawForUser(ctx context.Context, pt domain.PaymentType, w domain.Withdraw) (*PayoutResult, error) {
	log := logging.FromContext(ctx).With("payment_type", pt.Slug, "withdraw_id", w.ID)

	p, err := s.registry.Resolve(pt)
	if err != nil {
		return nil, fmt.Errorf("WithdrawForUser: %w", err)
	}

	dest, err := s.store.UserWallet(ctx, w.WalletID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("payout declined, destination wallet missing", "wallet_id", w.WalletID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("WithdrawForUser: %w", err)
	}
	mirror, err := s.store.ProviderWallet(ctx, w.CurrencyID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("payout declined, no provider wallet for currency", "currency_id", w.CurrencyID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("WithdrawForUser: %w", err)
	}

	txID, payErr := p.WithdrawForUser(ctx, &w, dest.Address, mirror)

	saveErr := s.store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		mirror.UpdatedAt = s.now()
		if err := tx.SaveWallet(ctx, mirror); err != nil {
			return err
		}
		if txID == "" {
			return nil
		}
		return tx.SaveWithdraw(ctx, &w)
	})
	if saveErr != nil {
		log.Error("payout outcome not saved", "tx_id", txID, "error", saveErr)
	}

	if payErr != nil {
		return nil, fmt.Errorf("WithdrawForUser: %w", errors.Join(payErr, saveErr))
	}
	if saveErr != nil {
		return nil, fmt.Errorf("WithdrawForUser: %w", saveErr)
	}
	if txID == "" {
		return nil, nil
	}

	cur, err := s.store.Currency(ctx, w.CurrencyID)
	name := w.CurrencyID.String()
	if err == nil {
		name = cur.Name
	}
	s.notify(ctx, domain.TopicPayoutSent, fmt.Sprintf("Withdraw sent: %s %s", fx.Format(w.CurrencyAmount), name), map[string]string{
		"withdraw_id": w.ID.String(),
		"tx_id":       txID,
	})
	log.Info("payout sent", "tx_id", txID)
	return &PayoutResult{Wallet: *mirror, TxID: txID}, nil
}

func (s *Service) WithdrawToWallets(ctx context.Context, pt domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error) {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return nil, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	swept, err := p.WithdrawToWallets(ctx)
	if err != nil {
		return swept, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	return swept, nil
}

func (s *Service) WithdrawOrderToWallet(ctx context.Context, pt domain.PaymentType, order domain.Order) (bool, error) {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return false, fmt.Errorf("WithdrawOrderToWallet: %w", err)
	}
	ok, err := p.WithdrawOrderToWallet(ctx, order)
	if err != nil {
		return false, fmt.Errorf("WithdrawOrderToWallet: %w", err)
	}
	return ok, nil
}

// CheckWithdraw confirms a submitted payout. A confirmed payout is stamped
// checked; a cancelled one is sent back to moderation and its amount
// released to the user. An undetermined check changes nothing, and a
// release that lost to a concurrent one fails with ErrVersionConflict.
func (s *Service) CheckWithdraw(ctx context.Context, pt domain.PaymentType, w domain.Withdraw) (bool, error) {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return false, fmt.Errorf("CheckWithdraw: %w", err)
	}
	ok, err := p.CheckWithdraw(ctx, w)
	if err != nil {
		return false, fmt.Errorf("CheckWithdraw: %w", err)
	}

	now := s.now()
	var released bool
	err = s.store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		if ok {
			w.CheckedAt = &now
			return tx.SaveWithdraw(ctx, &w)
		}
		var err error
		released, err = tx.ReleaseWithdraw(ctx, &w)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("CheckWithdraw: %w", err)
	}
	if !ok && !released {
		return false, fmt.Errorf("CheckWithdraw: withdraw %s already released: %w", w.ID, domain.ErrVersionConflict)
	}

	if !ok {
		s.notify(ctx, domain.TopicWithdrawReleased, fmt.Sprintf("Withdraw %s returned to moderation, balance released", w.ID), map[string]string{
			"withdraw_id": w.ID.String(),
			"user_id":     w.UserID.String(),
		})
	}
	return ok, nil
}

// UpdateCurrenciesRate refreshes the rate of every currency of the payment
// type. Pegged currencies are set to 1 without asking the provider, and a
// zero quote keeps the stored rate. It returns the quotes it fetched.
func (s *Service) UpdateCurrenciesRate(ctx context.Context, pt domain.PaymentType) (map[string]decimal.Decimal, error) {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return nil, fmt.Errorf("UpdateCurrenciesRate: %w", err)
	}
	currencies, err := s.store.CurrenciesByType(ctx, pt.ID)
	if err != nil {
		return nil, fmt.Errorf("UpdateCurrenciesRate: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(currencies))
	var errs []error
	for _, cur := range currencies {
		var rate decimal.Decimal
		if cur.IsPegged() {
			rate = decimal.NewFromInt(1)
		} else {
			rate = p.GetCurrencyRate(ctx, cur)
			quotes[cur.Slug] = rate
		}
		if rate.IsZero() {
			continue
		}
		if err := s.store.SaveCurrencyRate(ctx, cur.ID, rate); err != nil {
			errs = append(errs, err)
		}
	}

	logging.FromContext(ctx).Info("currencies rate updated", "currencies", quotes, "payment_type", pt.Slug)
	if err := errors.Join(errs...); err != nil {
		return quotes, fmt.Errorf("UpdateCurrenciesRate: %w", err)
	}
	return quotes, nil
}

// Callback hands a webhook to the provider of the order's currency.
func (s *Service) Callback(ctx context.Context, wh provider.Webhook, order domain.Order, currency domain.PaymentCurrency) (bool, error) {
	pt, err := s.store.PaymentType(ctx, currency.PaymentTypeID)
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}
	p, err := s.registry.Resolve(*pt)
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}
	ok, err := p.Callback(ctx, wh, order)
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}
	return ok, nil
}

func (s *Service) UpdateBalances(ctx context.Context, pt domain.PaymentType) error {
	p, err := s.registry.Resolve(pt)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}
	if err := p.UpdateBalances(ctx); err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}
	return nil
}
