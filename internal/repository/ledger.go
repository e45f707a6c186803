package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const ledgerColumns = `id, type, amount, currency_amount, comment, currency_id,
	withdraw_wallet_id, created_at`

func (t *Tx) AppendLedger(ctx context.Context, e *domain.InternalTransaction) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO internal_transactions (
			id, type, amount, currency_amount, comment, currency_id,
			withdraw_wallet_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.Amount, e.CurrencyAmount, e.Comment, e.CurrencyID,
		e.WithdrawWalletID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("AppendLedger: %w", err)
	}
	return nil
}

// LedgerForWallet returns a wallet's entries, newest first.
func (s *Store) LedgerForWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.InternalTransaction, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM internal_transactions WHERE withdraw_wallet_id = $1`, walletID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("LedgerForWallet: count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM internal_transactions
		WHERE withdraw_wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("LedgerForWallet: %w", err)
	}
	defer rows.Close()

	var entries []domain.InternalTransaction
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("LedgerForWallet: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("LedgerForWallet: rows: %w", err)
	}
	return entries, total, nil
}

func scanLedgerEntry(s scanner) (*domain.InternalTransaction, error) {
	var e domain.InternalTransaction
	err := s.Scan(
		&e.ID, &e.Type, &e.Amount, &e.CurrencyAmount, &e.Comment, &e.CurrencyID,
		&e.WithdrawWalletID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
