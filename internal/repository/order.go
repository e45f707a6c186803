package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const orderColumns = `id, user_id, currency_id, amount, currency_amount, received,
	currency_received, payment_id, withdraw_address_id, payment_expired_at,
	payment_success, payment_expired, partial_payment, transactions,
	min_acceptable_amount, swept_at, version, created_at, updated_at`

func (s *Store) Order(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Order: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Order: %w", err)
	}
	return o, nil
}

// SaveOrder writes the settlement fields of o if its version is current
// and bumps o.Version.
func (t *Tx) SaveOrder(ctx context.Context, o *domain.Order) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET
			amount = $1, currency_amount = $2, received = $3, currency_received = $4,
			payment_id = $5, withdraw_address_id = $6, payment_expired_at = $7,
			payment_success = $8, payment_expired = $9, partial_payment = $10,
			transactions = $11, version = version + 1, updated_at = now()
		WHERE id = $12 AND version = $13`,
		o.Amount, o.CurrencyAmount, o.Received, o.CurrencyReceived,
		o.PaymentID, o.WithdrawAddressID, o.PaymentExpiredAt,
		o.PaymentSuccess, o.PaymentExpired, o.PartialPayment,
		jsonValue(o.Transactions), o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("SaveOrder: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SaveOrder: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SaveOrder: %w", domain.ErrVersionConflict)
	}
	o.Version++
	return nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o   domain.Order
		txs []byte
	)
	err := s.Scan(
		&o.ID, &o.UserID, &o.CurrencyID, &o.Amount, &o.CurrencyAmount, &o.Received,
		&o.CurrencyReceived, &o.PaymentID, &o.WithdrawAddressID, &o.PaymentExpiredAt,
		&o.PaymentSuccess, &o.PaymentExpired, &o.PartialPayment, &txs,
		&o.MinAcceptableAmount, &o.SweptAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		o.Transactions = json.RawMessage(txs)
	}
	return &o, nil
}

// jsonValue maps an empty document to NULL.
func jsonValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ClaimOrderSweep stamps swept_at unless the order was already claimed.
// It leaves the version alone so settlement saves never conflict with it.
func (t *Tx) ClaimOrderSweep(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET swept_at = $2 WHERE id = $1 AND swept_at IS NULL`,
		orderID, at,
	)
	if err != nil {
		return false, fmt.Errorf("ClaimOrderSweep: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimOrderSweep: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (t *Tx) UnclaimOrderSweep(ctx context.Context, orderID uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE orders SET swept_at = NULL WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("UnclaimOrderSweep: %w", err)
	}
	return nil
}
