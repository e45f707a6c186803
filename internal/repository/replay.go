package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// ReplayScope addresses one stored admin response. The same Idempotency-Key
// may be reused by another operator or on another route.
type ReplayScope struct {
	OperatorID uuid.UUID
	Route      string
	Key        string
}

// StoredResponse is the first completed response for a scope.
// Fingerprint identifies the request that produced it.
type StoredResponse struct {
	ReplayScope
	Fingerprint string
	StatusCode  int
	Body        []byte
	StoredAt    time.Time
	ExpiresAt   time.Time
}

type ReplayRepository struct {
	db *sql.DB
}

func NewReplayRepository(db *sql.DB) *ReplayRepository {
	return &ReplayRepository{db: db}
}

// Lookup returns the live response stored for scope, or domain.ErrNotFound.
func (r *ReplayRepository) Lookup(ctx context.Context, scope ReplayScope, at time.Time) (*StoredResponse, error) {
	resp := StoredResponse{ReplayScope: scope}
	err := r.db.QueryRowContext(ctx,
		`SELECT fingerprint, status_code, response_body, stored_at, expires_at
		FROM admin_replays
		WHERE operator_id = $1 AND route = $2 AND idempotency_key = $3 AND expires_at > $4`,
		scope.OperatorID, scope.Route, scope.Key, at,
	).Scan(&resp.Fingerprint, &resp.StatusCode, &resp.Body, &resp.StoredAt, &resp.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Lookup: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	return &resp, nil
}

// Remember stores resp unless a live response already holds its scope. An
// expired row is overwritten. It reports whether resp was stored.
func (r *ReplayRepository) Remember(ctx context.Context, resp *StoredResponse) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_replays
			(operator_id, route, idempotency_key, fingerprint, status_code, response_body, stored_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (operator_id, route, idempotency_key) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			status_code = EXCLUDED.status_code,
			response_body = EXCLUDED.response_body,
			stored_at = EXCLUDED.stored_at,
			expires_at = EXCLUDED.expires_at
		WHERE admin_replays.expires_at <= EXCLUDED.stored_at`,
		resp.OperatorID, resp.Route, resp.Key, resp.Fingerprint, resp.StatusCode, resp.Body, resp.StoredAt, resp.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Remember: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Remember: rows affected: %w", err)
	}
	return n == 1, nil
}

// Purge deletes responses that expired before cutoff.
func (r *ReplayRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admin_replays WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Purge: rows affected: %w", err)
	}
	return n, nil
}
