package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

const walletColumns = `w.id, w.currency_id, w.wallet, w.currency_amount, w.amount,
	w.payment_system, w.withdraw_from_payments, w.safe_balance, w.version, w.updated_at`

func (s *Store) ProviderWallet(ctx context.Context, currencyID uuid.UUID) (*domain.WithdrawWallet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM withdraw_wallets w
		WHERE w.currency_id = $1 AND w.payment_system`, currencyID,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ProviderWallet: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ProviderWallet: %w", err)
	}
	return w, nil
}

// SweepTargets returns custody wallets flagged withdraw_from_payments that
// are not provider mirrors, joined with their currency.
func (s *Store) SweepTargets(ctx context.Context) ([]provider.SweepTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+walletColumns+`, c.id, c.payment_type_id, c.slug, c.payment_slug,
			c.name, c.network, c.rate, c.enabled, c.updated_at
		FROM withdraw_wallets w
		JOIN payment_currencies c ON c.id = w.currency_id
		WHERE w.withdraw_from_payments AND NOT w.payment_system
		ORDER BY c.slug, c.network, w.wallet`,
	)
	if err != nil {
		return nil, fmt.Errorf("SweepTargets: %w", err)
	}
	defer rows.Close()

	var out []provider.SweepTarget
	for rows.Next() {
		var t provider.SweepTarget
		w, c := &t.Wallet, &t.Currency
		err := rows.Scan(
			&w.ID, &w.CurrencyID, &w.Wallet, &w.CurrencyAmount, &w.Amount,
			&w.PaymentSystem, &w.WithdrawFromPayments, &w.SafeBalance, &w.Version, &w.UpdatedAt,
			&c.ID, &c.PaymentTypeID, &c.Slug, &c.PaymentSlug,
			&c.Name, &c.Network, &c.Rate, &c.Enabled, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("SweepTargets: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SweepTargets: rows: %w", err)
	}
	return out, nil
}

func (s *Store) UserWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, currency_id, address FROM wallets WHERE id = $1`, id,
	).Scan(&w.ID, &w.UserID, &w.CurrencyID, &w.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("UserWallet: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("UserWallet: %w", err)
	}
	return &w, nil
}

func (t *Tx) WalletForUpdate(ctx context.Context, id uuid.UUID) (*domain.WithdrawWallet, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM withdraw_wallets w WHERE w.id = $1 FOR UPDATE`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("WalletForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("WalletForUpdate: %w", err)
	}
	return w, nil
}

// SaveWallet writes the balances of w if its version is current and bumps
// w.Version.
func (t *Tx) SaveWallet(ctx context.Context, w *domain.WithdrawWallet) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE withdraw_wallets SET
			currency_amount = $1, amount = $2, safe_balance = $3,
			version = version + 1, updated_at = now()
		WHERE id = $4 AND version = $5`,
		w.CurrencyAmount, w.Amount, w.SafeBalance, w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("SaveWallet: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SaveWallet: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SaveWallet: %w", domain.ErrVersionConflict)
	}
	w.Version++
	return nil
}

func scanWallet(s scanner) (*domain.WithdrawWallet, error) {
	var w domain.WithdrawWallet
	err := s.Scan(
		&w.ID, &w.CurrencyID, &w.Wallet, &w.CurrencyAmount, &w.Amount,
		&w.PaymentSystem, &w.WithdrawFromPayments, &w.SafeBalance, &w.Version, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
