package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeOutcome  TransactionType = "outcome"
)

// InternalTransaction is an append-only custody ledger entry. Amount is
// signed and denominated in the base unit.
type InternalTransaction struct {
	ID               uuid.UUID
	Type             TransactionType
	Amount           decimal.Decimal
	CurrencyAmount   decimal.Decimal
	Comment          string
	CurrencyID       uuid.UUID
	WithdrawWalletID uuid.UUID
	CreatedAt        time.Time
}

type BalanceTransactionType string

const (
	BalanceTransactionBuy             BalanceTransactionType = "buy"
	BalanceTransactionWithdrawRelease BalanceTransactionType = "withdraw_release"
)

// BalanceTransaction is a movement on a user's internal balance.
type BalanceTransaction struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       BalanceTransactionType
	Amount     decimal.Decimal
	OrderID    *uuid.UUID
	WithdrawID *uuid.UUID
	CreatedAt  time.Time
}
