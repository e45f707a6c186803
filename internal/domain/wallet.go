package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawWallet is a custody address tracked with a running balance.
// PaymentSystem wallets mirror the provider-side hot wallet; the rest are
// downstream custody wallets that may receive sweeps.
type WithdrawWallet struct {
	ID                   uuid.UUID
	CurrencyID           uuid.UUID
	Wallet               string
	CurrencyAmount       decimal.Decimal
	Amount               decimal.Decimal
	PaymentSystem        bool
	WithdrawFromPayments bool
	SafeBalance          *decimal.Decimal
	Version              int64
	UpdatedAt            time.Time
}

// AcceptsSweeps reports whether provider balances may be swept into the wallet.
func (w WithdrawWallet) AcceptsSweeps() bool {
	return w.WithdrawFromPayments && !w.PaymentSystem
}

// Wallet is a user-owned destination address for payouts.
type Wallet struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CurrencyID uuid.UUID
	Address    string
}

type Withdraw struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CurrencyID     uuid.UUID
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	CurrencyAmount decimal.Decimal
	PaymentID      *string
	TxID           *string
	Moderated      bool
	ModeratedAt    *time.Time
	CheckedAt      *time.Time
	CreatedAt      time.Time
}

// Payout is a scheduled payout liability used to size the sweep reserve.
type Payout struct {
	ID    uuid.UUID
	Date  time.Time
	Total decimal.Decimal
}
