package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookEvent, error)
}

type webhookDispatcher interface {
	Dispatch(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEventStatus, error)
}

// WebhookHandler stores provider callbacks in the inbox and applies them
// synchronously. Events that could not be applied stay pending for replay.
type WebhookHandler struct {
	webhooks   webhookEventRepository
	dispatcher webhookDispatcher
}

func NewWebhookHandler(webhooks webhookEventRepository, dispatcher webhookDispatcher) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, dispatcher: dispatcher}
}

func (h *WebhookHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("orderId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}
	log := logging.FromContext(r.Context()).With("order_id", orderID)
	ctx := logging.WithLogger(r.Context(), log)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: deliveryKey(orderID, r.URL.RawQuery, body),
		OrderID:        orderID,
		Headers:        r.Header.Clone(),
		Query:          r.URL.RawQuery,
		Payload:        body,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.webhooks.Create(ctx, event); err != nil {
		if isDuplicateKey(err) {
			h.respondDuplicate(ctx, w, event.IdempotencyKey)
			return
		}
		log.Error("failed to store webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	ctx = logging.WithLogger(ctx, log.With("webhook_event_id", event.ID))
	status, err := h.dispatcher.Dispatch(ctx, *event)
	if err != nil {
		log.Error("webhook stored but not applied", "webhook_event_id", event.ID, "error", err)
		RespondSuccess(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if status == domain.WebhookEventStatusFailed {
		RespondAppError(w, ErrWebhookRejected, nil)
		return
	}

	log.Info("webhook applied", "webhook_event_id", event.ID)
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) respondDuplicate(ctx context.Context, w http.ResponseWriter, key string) {
	log := logging.FromContext(ctx)

	prev, err := h.webhooks.GetByIdempotencyKey(ctx, key)
	if err != nil {
		log.Error("failed to load duplicate webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	log.Info("duplicate webhook received", "webhook_event_id", prev.ID, "status", prev.Status)
	if prev.Status == domain.WebhookEventStatusFailed {
		RespondAppError(w, ErrWebhookRejected, nil)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
}

// deliveryKey identifies a callback by order and exact content, so a
// provider redelivery maps onto the stored event.
func deliveryKey(orderID uuid.UUID, query string, body []byte) string {
	h := sha256.New()
	h.Write(orderID[:])
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
