package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
)

// GroupKey identifies a sweep group by currency and network.
func GroupKey(slug, network string) string {
	return slug + "-" + network
}

// GroupTargets buckets sweep targets by GroupKey. Provider mirror wallets
// are dropped even if the store returned them.
func GroupTargets(targets []SweepTarget) map[string][]SweepTarget {
	out := make(map[string][]SweepTarget)
	for _, t := range targets {
		if !t.Wallet.AcceptsSweeps() {
			continue
		}
		key := GroupKey(t.Currency.Slug, t.Currency.Network)
		out[key] = append(out[key], t)
	}
	return out
}

// TargetsForCurrency filters sweep targets to one currency.
func TargetsForCurrency(targets []SweepTarget, currencyID uuid.UUID) []SweepTarget {
	var out []SweepTarget
	for _, t := range targets {
		if t.Wallet.AcceptsSweeps() && t.Currency.ID == currencyID {
			out = append(out, t)
		}
	}
	return out
}

// PickTarget chooses one candidate uniformly at random.
func PickTarget(candidates []SweepTarget, pick func(int) int) (SweepTarget, bool) {
	if len(candidates) == 0 {
		return SweepTarget{}, false
	}
	return candidates[pick(len(candidates))], true
}

// Movement is one custody balance change and its ledger entry.
type Movement struct {
	WalletID       uuid.UUID
	CurrencyID     uuid.UUID
	Type           domain.TransactionType
	CurrencyAmount decimal.Decimal
	Rate           decimal.Decimal
	Comment        string
	At             time.Time
}

// CreditWallet locks the wallet, adds the movement to its running balance,
// saves it and appends the ledger entry. It must run inside Store.Atomic.
func CreditWallet(ctx context.Context, tx Tx, m Movement) (*domain.WithdrawWallet, error) {
	w, err := tx.WalletForUpdate(ctx, m.WalletID)
	if err != nil {
		return nil, fmt.Errorf("CreditWallet: %w", err)
	}
	base := fx.ToBase(m.CurrencyAmount, m.Rate)
	w.CurrencyAmount = w.CurrencyAmount.Add(m.CurrencyAmount)
	w.Amount = w.Amount.Add(base)
	w.UpdatedAt = m.At
	if err := tx.SaveWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("CreditWallet: %w", err)
	}
	if err := AppendEntry(ctx, tx, m, base); err != nil {
		return nil, fmt.Errorf("CreditWallet: %w", err)
	}
	return w, nil
}

// AppendEntry records a ledger entry with the given signed base amount.
func AppendEntry(ctx context.Context, tx Tx, m Movement, base decimal.Decimal) error {
	return tx.AppendLedger(ctx, &domain.InternalTransaction{
		ID:               uuid.New(),
		Type:             m.Type,
		Amount:           base,
		CurrencyAmount:   m.CurrencyAmount,
		Comment:          m.Comment,
		CurrencyID:       m.CurrencyID,
		WithdrawWalletID: m.WalletID,
		CreatedAt:        m.At,
	})
}

// StartOfWeek returns Monday 00:00 of t's week in t's location.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
