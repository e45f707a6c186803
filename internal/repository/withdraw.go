package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const withdrawColumns = `id, user_id, currency_id, wallet_id, amount, currency_amount,
	payment_id, tx_id, moderated, moderated_at, checked_at, created_at`

func (s *Store) Withdraw(ctx context.Context, id uuid.UUID) (*domain.Withdraw, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+withdrawColumns+` FROM withdraws WHERE id = $1`, id,
	)
	w, err := scanWithdraw(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Withdraw: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	return w, nil
}

// PendingWithdrawChecks returns submitted payouts that have not been
// confirmed yet, oldest first.
func (s *Store) PendingWithdrawChecks(ctx context.Context, limit int) ([]domain.Withdraw, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+withdrawColumns+` FROM withdraws
		WHERE moderated AND tx_id IS NOT NULL AND checked_at IS NULL
		ORDER BY created_at LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("PendingWithdrawChecks: %w", err)
	}
	defer rows.Close()

	var out []domain.Withdraw
	for rows.Next() {
		w, err := scanWithdraw(rows)
		if err != nil {
			return nil, fmt.Errorf("PendingWithdrawChecks: scan: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PendingWithdrawChecks: rows: %w", err)
	}
	return out, nil
}

func (s *Store) PayoutLiabilitySince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM payouts WHERE date >= $1`, since,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("PayoutLiabilitySince: %w", err)
	}
	return total, nil
}

func (t *Tx) SaveWithdraw(ctx context.Context, w *domain.Withdraw) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE withdraws SET
			payment_id = $1, tx_id = $2, moderated = $3, moderated_at = $4, checked_at = $5
		WHERE id = $6`,
		w.PaymentID, w.TxID, w.Moderated, w.ModeratedAt, w.CheckedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("SaveWithdraw: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SaveWithdraw: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SaveWithdraw: %w", domain.ErrNotFound)
	}
	return nil
}

func scanWithdraw(s scanner) (*domain.Withdraw, error) {
	var w domain.Withdraw
	err := s.Scan(
		&w.ID, &w.UserID, &w.CurrencyID, &w.WalletID, &w.Amount, &w.CurrencyAmount,
		&w.PaymentID, &w.TxID, &w.Moderated, &w.ModeratedAt, &w.CheckedAt, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
