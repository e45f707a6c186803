// Package providertest has in-memory collaborators for exercising
// provider clients and the settlement service without a database.
package providertest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

// Store is an in-memory provider.Store. Atomic rolls every map back when
// fn fails. Orders and wallets are version checked like the Postgres store.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	PaymentTypes map[uuid.UUID]domain.PaymentType
	Currencies   map[uuid.UUID]domain.PaymentCurrency
	Orders       map[uuid.UUID]domain.Order
	Wallets      map[uuid.UUID]domain.WithdrawWallet
	UserWallets  map[uuid.UUID]domain.Wallet
	Withdraws    map[uuid.UUID]domain.Withdraw
	Balances     map[uuid.UUID]decimal.Decimal
	Ledger       []domain.InternalTransaction
	Payouts      []domain.Payout
	Released     []uuid.UUID
	Charges      []uuid.UUID

	// FailAtomic makes the next Atomic call fail without running fn.
	FailAtomic error
	// AtomicCalls counts committed units of work.
	AtomicCalls int
}

func NewStore() *Store {
	return &Store{
		PaymentTypes: map[uuid.UUID]domain.PaymentType{},
		Currencies:   map[uuid.UUID]domain.PaymentCurrency{},
		Orders:       map[uuid.UUID]domain.Order{},
		Wallets:      map[uuid.UUID]domain.WithdrawWallet{},
		UserWallets:  map[uuid.UUID]domain.Wallet{},
		Withdraws:    map[uuid.UUID]domain.Withdraw{},
		Balances:     map[uuid.UUID]decimal.Decimal{},
	}
}

func (s *Store) AddCurrency(c domain.PaymentCurrency) domain.PaymentCurrency {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.Currencies[c.ID] = c
	return c
}

func (s *Store) AddWallet(w domain.WithdrawWallet) domain.WithdrawWallet {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.Wallets[w.ID] = w
	return w
}

func (s *Store) AddOrder(o domain.Order) domain.Order {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	s.Orders[o.ID] = o
	return o
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx provider.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.FailAtomic; err != nil {
		s.FailAtomic = nil
		s.mu.Unlock()
		return err
	}

	orders := maps.Clone(s.Orders)
	wallets := maps.Clone(s.Wallets)
	withdraws := maps.Clone(s.Withdraws)
	balances := maps.Clone(s.Balances)
	ledger := len(s.Ledger)
	released := len(s.Released)
	charges := len(s.Charges)
	s.mu.Unlock()

	err := fn(ctx, &tx{s: s})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.Orders, s.Wallets, s.Withdraws, s.Balances = orders, wallets, withdraws, balances
		s.Ledger = s.Ledger[:ledger]
		s.Released = s.Released[:released]
		s.Charges = s.Charges[:charges]
		return err
	}
	s.AtomicCalls++
	return nil
}

func (s *Store) Currency(_ context.Context, id uuid.UUID) (*domain.PaymentCurrency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Currencies[id]
	if !ok {
		return nil, fmt.Errorf("Currency: %w", domain.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) CurrenciesByType(_ context.Context, paymentTypeID uuid.UUID) ([]domain.PaymentCurrency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentCurrency
	for _, c := range s.Currencies {
		if c.PaymentTypeID == paymentTypeID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// SweepTargets returns every wallet flagged withdraw_from_payments,
// including mirrors, so callers' own filtering is exercised.
func (s *Store) SweepTargets(_ context.Context) ([]provider.SweepTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []provider.SweepTarget
	for _, w := range s.Wallets {
		if !w.WithdrawFromPayments {
			continue
		}
		out = append(out, provider.SweepTarget{Wallet: w, Currency: s.Currencies[w.CurrencyID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet.Wallet < out[j].Wallet.Wallet })
	return out, nil
}

func (s *Store) ProviderWallet(_ context.Context, currencyID uuid.UUID) (*domain.WithdrawWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.Wallets {
		if w.PaymentSystem && w.CurrencyID == currencyID {
			return &w, nil
		}
	}
	return nil, fmt.Errorf("ProviderWallet: %w", domain.ErrNotFound)
}

func (s *Store) PayoutLiabilitySince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.Payouts {
		if !p.Date.Before(since) {
			total = total.Add(p.Total)
		}
	}
	return total, nil
}

func (s *Store) PaymentType(_ context.Context, id uuid.UUID) (*domain.PaymentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.PaymentTypes[id]
	if !ok {
		return nil, fmt.Errorf("PaymentType: %w", domain.ErrNotFound)
	}
	return &pt, nil
}

func (s *Store) PaymentTypeBySlug(_ context.Context, slug string) (*domain.PaymentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pt := range s.PaymentTypes {
		if pt.Slug == slug {
			return &pt, nil
		}
	}
	return nil, fmt.Errorf("PaymentTypeBySlug: %w", domain.ErrNotFound)
}

func (s *Store) EnabledPaymentTypes(_ context.Context) ([]domain.PaymentType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentType
	for _, pt := range s.PaymentTypes {
		if pt.Enabled {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) Order(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return nil, fmt.Errorf("Order: %w", domain.ErrNotFound)
	}
	return &o, nil
}

func (s *Store) Withdraw(_ context.Context, id uuid.UUID) (*domain.Withdraw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.Withdraws[id]
	if !ok {
		return nil, fmt.Errorf("Withdraw: %w", domain.ErrNotFound)
	}
	return &w, nil
}

// PendingWithdrawChecks returns moderated, submitted and unchecked
// withdraws, oldest first.
func (s *Store) PendingWithdrawChecks(_ context.Context, limit int) ([]domain.Withdraw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Withdraw
	for _, w := range s.Withdraws {
		if w.Moderated && w.TxID != nil && w.CheckedAt == nil {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UserWallet(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.UserWallets[id]
	if !ok {
		return nil, fmt.Errorf("UserWallet: %w", domain.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) SaveCurrencyRate(_ context.Context, id uuid.UUID, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Currencies[id]
	if !ok {
		return fmt.Errorf("SaveCurrencyRate: %w", domain.ErrNotFound)
	}
	c.Rate = rate
	s.Currencies[id] = c
	return nil
}

// LedgerFor returns the entries recorded against one wallet.
func (s *Store) LedgerFor(walletID uuid.UUID) []domain.InternalTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.InternalTransaction
	for _, e := range s.Ledger {
		if e.WithdrawWalletID == walletID {
			out = append(out, e)
		}
	}
	return out
}

// tx writes straight into the store maps. Atomic serializes units of work.
type tx struct {
	s *Store
}

func (t *tx) SaveOrder(_ context.Context, o *domain.Order) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.Orders[o.ID]
	if ok && cur.Version != o.Version {
		return fmt.Errorf("SaveOrder: %w", domain.ErrVersionConflict)
	}
	o.Version++
	saved := *o
	saved.SweptAt = cur.SweptAt
	t.s.Orders[o.ID] = saved
	return nil
}

func (t *tx) ClaimOrderSweep(_ context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.Orders[orderID]
	if !ok || o.SweptAt != nil {
		return false, nil
	}
	o.SweptAt = &at
	t.s.Orders[orderID] = o
	return true, nil
}

func (t *tx) UnclaimOrderSweep(_ context.Context, orderID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if o, ok := t.s.Orders[orderID]; ok {
		o.SweptAt = nil
		t.s.Orders[orderID] = o
	}
	return nil
}

func (t *tx) WalletForUpdate(_ context.Context, id uuid.UUID) (*domain.WithdrawWallet, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	w, ok := t.s.Wallets[id]
	if !ok {
		return nil, fmt.Errorf("WalletForUpdate: %w", domain.ErrNotFound)
	}
	return &w, nil
}

func (t *tx) SaveWallet(_ context.Context, w *domain.WithdrawWallet) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.Wallets[w.ID]
	if !ok {
		return fmt.Errorf("SaveWallet: %w", domain.ErrNotFound)
	}
	if cur.Version != w.Version {
		return fmt.Errorf("SaveWallet: %w", domain.ErrVersionConflict)
	}
	w.Version++
	t.s.Wallets[w.ID] = *w
	return nil
}

func (t *tx) SaveWithdraw(_ context.Context, w *domain.Withdraw) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.Withdraws[w.ID] = *w
	return nil
}

func (t *tx) AppendLedger(_ context.Context, e *domain.InternalTransaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.Ledger = append(t.s.Ledger, *e)
	return nil
}

func (t *tx) ChargeUser(_ context.Context, userID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	bal := t.s.Balances[userID]
	if bal.LessThan(amount) {
		return fmt.Errorf("ChargeUser: %w", domain.ErrInsufficientFunds)
	}
	t.s.Balances[userID] = bal.Sub(amount)
	t.s.Charges = append(t.s.Charges, orderID)
	return nil
}

func (t *tx) ReleaseWithdraw(_ context.Context, w *domain.Withdraw) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	held, ok := t.s.Withdraws[w.ID]
	if !ok || !held.Moderated || held.CheckedAt != nil {
		return false, nil
	}
	held.Moderated = false
	held.ModeratedAt = nil
	t.s.Withdraws[w.ID] = held
	w.Moderated = false
	w.ModeratedAt = nil
	t.s.Balances[w.UserID] = t.s.Balances[w.UserID].Add(w.Amount)
	t.s.Released = append(t.s.Released, w.ID)
	return true, nil
}
