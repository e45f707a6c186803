package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const webhookEventColumns = `id, idempotency_key, order_id, headers, query, payload,
	status, attempts, last_attempt, created_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("Create: headers: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, idempotency_key, order_id, headers, query, payload,
			status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.IdempotencyKey, event.OrderID, string(headers), event.Query, event.Payload,
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE idempotency_key = $1`, key,
	)
	e, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return e, nil
}

// GetPending returns pending events older than the given age in seconds,
// oldest first. Fresh events still belong to the request that stored them.
func (r *WebhookEventRepository) GetPending(ctx context.Context, minAgeS, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE status = $1 AND created_at < now() - make_interval(secs => $2)
		ORDER BY created_at LIMIT $3`,
		domain.WebhookEventStatusPending, minAgeS, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *WebhookEventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var (
		e       domain.WebhookEvent
		headers []byte
	)
	err := s.Scan(
		&e.ID, &e.IdempotencyKey, &e.OrderID, &headers, &e.Query, &e.Payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &e.Headers); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	return &e, nil
}
