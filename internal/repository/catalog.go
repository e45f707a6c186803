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

const paymentTypeColumns = `id, slug, public_key, private_key, advanced_balance, enabled`

const currencyColumns = `id, payment_type_id, slug, payment_slug, name, network,
	rate, enabled, updated_at`

func (s *Store) PaymentType(ctx context.Context, id uuid.UUID) (*domain.PaymentType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentTypeColumns+` FROM payment_types WHERE id = $1`, id,
	)
	pt, err := scanPaymentType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("PaymentType: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("PaymentType: %w", err)
	}
	return pt, nil
}

func (s *Store) PaymentTypeBySlug(ctx context.Context, slug string) (*domain.PaymentType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentTypeColumns+` FROM payment_types WHERE slug = $1`, slug,
	)
	pt, err := scanPaymentType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("PaymentTypeBySlug: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("PaymentTypeBySlug: %w", err)
	}
	return pt, nil
}

func (s *Store) EnabledPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentTypeColumns+` FROM payment_types WHERE enabled ORDER BY slug`,
	)
	if err != nil {
		return nil, fmt.Errorf("EnabledPaymentTypes: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentType
	for rows.Next() {
		pt, err := scanPaymentType(rows)
		if err != nil {
			return nil, fmt.Errorf("EnabledPaymentTypes: scan: %w", err)
		}
		out = append(out, *pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EnabledPaymentTypes: rows: %w", err)
	}
	return out, nil
}

func (s *Store) Currency(ctx context.Context, id uuid.UUID) (*domain.PaymentCurrency, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+currencyColumns+` FROM payment_currencies WHERE id = $1`, id,
	)
	c, err := scanCurrency(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Currency: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Currency: %w", err)
	}
	return c, nil
}

func (s *Store) CurrenciesByType(ctx context.Context, paymentTypeID uuid.UUID) ([]domain.PaymentCurrency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+currencyColumns+` FROM payment_currencies
		WHERE payment_type_id = $1 ORDER BY slug, network`, paymentTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("CurrenciesByType: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentCurrency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("CurrenciesByType: scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CurrenciesByType: rows: %w", err)
	}
	return out, nil
}

func (s *Store) SaveCurrencyRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_currencies SET rate = $1, updated_at = now() WHERE id = $2`,
		rate, id,
	)
	if err != nil {
		return fmt.Errorf("SaveCurrencyRate: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SaveCurrencyRate: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SaveCurrencyRate: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPaymentType(s scanner) (*domain.PaymentType, error) {
	var pt domain.PaymentType
	err := s.Scan(
		&pt.ID, &pt.Slug, &pt.PublicKey, &pt.PrivateKey, &pt.AdvancedBalance, &pt.Enabled,
	)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func scanCurrency(s scanner) (*domain.PaymentCurrency, error) {
	var c domain.PaymentCurrency
	err := s.Scan(
		&c.ID, &c.PaymentTypeID, &c.Slug, &c.PaymentSlug, &c.Name, &c.Network,
		&c.Rate, &c.Enabled, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
