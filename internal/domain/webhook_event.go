package domain

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusDispatched WebhookEventStatus = "dispatched"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEvent is the raw provider callback as received, kept for replay.
// IdempotencyKey identifies a delivery; redeliveries of the same body for
// the same order share it.
type WebhookEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	OrderID        uuid.UUID
	Headers        http.Header
	Query          string
	Payload        []byte
	Status         WebhookEventStatus
	Attempts       int
	LastAttempt    *time.Time
	CreatedAt      time.Time
}
