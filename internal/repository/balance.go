package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// ChargeUser debits the user's internal balance for an order. The
// conditional update keeps the balance from going negative.
func (t *Tx) ChargeUser(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE user_balances SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1`,
		amount, userID,
	)
	if err != nil {
		return fmt.Errorf("ChargeUser: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ChargeUser: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ChargeUser: %w", domain.ErrInsufficientFunds)
	}

	return t.appendBalanceTransaction(ctx, &domain.BalanceTransaction{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    domain.BalanceTransactionBuy,
		Amount:  amount.Neg(),
		OrderID: &orderID,
	})
}

// ReleaseWithdraw un-moderates a held withdraw and credits its amount back
// to the user. The conditional update lets only one caller release it.
func (t *Tx) ReleaseWithdraw(ctx context.Context, w *domain.Withdraw) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE withdraws SET moderated = false, moderated_at = NULL
		WHERE id = $1 AND moderated AND checked_at IS NULL`,
		w.ID,
	)
	if err != nil {
		return false, fmt.Errorf("ReleaseWithdraw: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ReleaseWithdraw: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}
	w.Moderated = false
	w.ModeratedAt = nil

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance, updated_at = now()`,
		w.UserID, w.Amount,
	)
	if err != nil {
		return false, fmt.Errorf("ReleaseWithdraw: %w", err)
	}

	err = t.appendBalanceTransaction(ctx, &domain.BalanceTransaction{
		ID:         uuid.New(),
		UserID:     w.UserID,
		Type:       domain.BalanceTransactionWithdrawRelease,
		Amount:     w.Amount,
		WithdrawID: &w.ID,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tx) appendBalanceTransaction(ctx context.Context, bt *domain.BalanceTransaction) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balance_transactions (id, user_id, type, amount, order_id, withdraw_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		bt.ID, bt.UserID, bt.Type, bt.Amount, bt.OrderID, bt.WithdrawID,
	)
	if err != nil {
		return fmt.Errorf("appendBalanceTransaction: %w", err)
	}
	return nil
}

func (s *Store) UserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM user_balances WHERE user_id = $1`, userID,
	).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("UserBalance: %w", err)
	}
	return bal, nil
}
