// Package service holds background workers that drive the settlement
// service outside a request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

type webhookRepo interface {
	GetPending(ctx context.Context, minAgeS, limit int) ([]domain.WebhookEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus) error
}

type callbackRunner interface {
	CallbackOrder(ctx context.Context, orderID uuid.UUID, wh provider.Webhook) (bool, error)
}

// WebhookProcessor applies stored provider callbacks. The intake handler
// dispatches each event as it arrives; Start replays events left pending
// by a crash or a failed store write.
type WebhookProcessor struct {
	webhooks  webhookRepo
	callbacks callbackRunner
	logger    *slog.Logger
	interval  time.Duration
	minAge    time.Duration
	batch     int
}

func NewWebhookProcessor(webhooks webhookRepo, callbacks callbackRunner, logger *slog.Logger, interval, minAge time.Duration) *WebhookProcessor {
	return &WebhookProcessor{
		webhooks:  webhooks,
		callbacks: callbacks,
		logger:    logger,
		interval:  interval,
		minAge:    minAge,
		batch:     10,
	}
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *WebhookProcessor) poll(ctx context.Context) {
	events, err := p.webhooks.GetPending(ctx, int(p.minAge.Seconds()), p.batch)
	if err != nil {
		p.logger.Error("failed to fetch pending webhook events", "error", err)
		return
	}

	for _, event := range events {
		ctx := logging.WithLogger(ctx, p.logger.With("webhook_event_id", event.ID, "order_id", event.OrderID))
		if _, err := p.Dispatch(ctx, event); err != nil {
			p.logger.Error("failed to process webhook event",
				"webhook_event_id", event.ID,
				"error", err,
			)
		}
	}
}

// Dispatch runs the callback for one stored event and records the
// outcome. An error leaves the event pending for the next replay.
func (p *WebhookProcessor) Dispatch(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEventStatus, error) {
	log := logging.FromContext(ctx)

	query, err := url.ParseQuery(event.Query)
	if err != nil {
		log.Warn("malformed webhook query string", "error", err)
	}
	wh := provider.Webhook{Header: event.Headers, Query: query, Body: event.Payload}

	ok, err := p.callbacks.CallbackOrder(ctx, event.OrderID, wh)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("webhook for unknown order", "error", err)
		return p.finish(ctx, event, domain.WebhookEventStatusFailed)
	case err != nil:
		return domain.WebhookEventStatusPending, fmt.Errorf("Dispatch: %w", err)
	case !ok:
		log.Warn("webhook rejected by provider client")
		return p.finish(ctx, event, domain.WebhookEventStatusFailed)
	default:
		return p.finish(ctx, event, domain.WebhookEventStatusDispatched)
	}
}

func (p *WebhookProcessor) finish(ctx context.Context, event domain.WebhookEvent, status domain.WebhookEventStatus) (domain.WebhookEventStatus, error) {
	if err := p.webhooks.UpdateStatus(ctx, event.ID, status); err != nil {
		return domain.WebhookEventStatusPending, fmt.Errorf("Dispatch: %w", err)
	}
	return status, nil
}
