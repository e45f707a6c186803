package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type mockWebhookRepo struct {
	created   *domain.WebhookEvent
	err       error
	previous  *domain.WebhookEvent
	lookupErr error
}

func (m *mockWebhookRepo) Create(_ context.Context, event *domain.WebhookEvent) error {
	m.created = event
	return m.err
}

func (m *mockWebhookRepo) GetByIdempotencyKey(_ context.Context, _ string) (*domain.WebhookEvent, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.previous, nil
}

type mockDispatcher struct {
	status     domain.WebhookEventStatus
	err        error
	dispatched []domain.WebhookEvent
}

func (m *mockDispatcher) Dispatch(_ context.Context, event domain.WebhookEvent) (domain.WebhookEventStatus, error) {
	m.dispatched = append(m.dispatched, event)
	return m.status, m.err
}

func callbackRequest(orderID, query, body string) *http.Request {
	target := "/webhooks/orders/" + orderID
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("orderId", orderID)
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestPaymentCallback(t *testing.T) {
	orderID := uuid.NewString()

	tests := []struct {
		name         string
		orderID      string
		repo         *mockWebhookRepo
		dispatcher   *mockDispatcher
		wantStatus   int
		wantCode     string
		wantDispatch int
	}{
		{
			name:         "applied",
			orderID:      orderID,
			repo:         &mockWebhookRepo{},
			dispatcher:   &mockDispatcher{status: domain.WebhookEventStatusDispatched},
			wantStatus:   http.StatusOK,
			wantDispatch: 1,
		},
		{
			name:         "rejected by provider",
			orderID:      orderID,
			repo:         &mockWebhookRepo{},
			dispatcher:   &mockDispatcher{status: domain.WebhookEventStatusFailed},
			wantStatus:   http.StatusBadRequest,
			wantCode:     "WEBHOOK_REJECTED",
			wantDispatch: 1,
		},
		{
			name:         "dispatch error leaves event queued",
			orderID:      orderID,
			repo:         &mockWebhookRepo{},
			dispatcher:   &mockDispatcher{status: domain.WebhookEventStatusPending, err: errors.New("db down")},
			wantStatus:   http.StatusAccepted,
			wantDispatch: 1,
		},
		{
			name:       "malformed order id",
			orderID:    "not-a-uuid",
			repo:       &mockWebhookRepo{},
			dispatcher: &mockDispatcher{},
			wantStatus: http.StatusNotFound,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
		{
			name:    "duplicate of applied delivery",
			orderID: orderID,
			repo: &mockWebhookRepo{
				err:      &pq.Error{Code: "23505"},
				previous: &domain.WebhookEvent{ID: uuid.New(), Status: domain.WebhookEventStatusDispatched},
			},
			dispatcher: &mockDispatcher{},
			wantStatus: http.StatusOK,
		},
		{
			name:    "duplicate of rejected delivery",
			orderID: orderID,
			repo: &mockWebhookRepo{
				err:      &pq.Error{Code: "23505"},
				previous: &domain.WebhookEvent{ID: uuid.New(), Status: domain.WebhookEventStatusFailed},
			},
			dispatcher: &mockDispatcher{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "WEBHOOK_REJECTED",
		},
		{
			name:       "duplicate lookup fails",
			orderID:    orderID,
			repo:       &mockWebhookRepo{err: &pq.Error{Code: "23505"}, lookupErr: errors.New("connection refused")},
			dispatcher: &mockDispatcher{},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "store error",
			orderID:    orderID,
			repo:       &mockWebhookRepo{err: errors.New("connection refused")},
			dispatcher: &mockDispatcher{},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewWebhookHandler(tc.repo, tc.dispatcher)
			rr := httptest.NewRecorder()

			h.PaymentCallback(rr, callbackRequest(tc.orderID, "", `{"status":"completed"}`))

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Len(t, tc.dispatcher.dispatched, tc.wantDispatch)

			resp := decodeResponse(t, rr)
			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestPaymentCallback_StoresDelivery(t *testing.T) {
	orderID := uuid.New()
	repo := &mockWebhookRepo{}
	dispatcher := &mockDispatcher{status: domain.WebhookEventStatusDispatched}
	h := NewWebhookHandler(repo, dispatcher)

	body := `{"status":"completed","txn_id":"abc"}`
	req := callbackRequest(orderID.String(), "json=true", body)
	req.Header.Set("Signature", "deadbeef")
	rr := httptest.NewRecorder()

	h.PaymentCallback(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, domain.WebhookEventStatusPending, repo.created.Status)
	assert.Equal(t, orderID, repo.created.OrderID)
	assert.Equal(t, "json=true", repo.created.Query)
	assert.Equal(t, []byte(body), repo.created.Payload)
	assert.Equal(t, "deadbeef", repo.created.Headers.Get("Signature"))
	assert.Equal(t, deliveryKey(orderID, "json=true", []byte(body)), repo.created.IdempotencyKey)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, repo.created.ID, dispatcher.dispatched[0].ID)
}

func TestDeliveryKey(t *testing.T) {
	orderID := uuid.New()
	key := deliveryKey(orderID, "a=1", []byte("body"))

	assert.Len(t, key, 64)
	assert.Equal(t, key, deliveryKey(orderID, "a=1", []byte("body")))
	assert.NotEqual(t, key, deliveryKey(uuid.New(), "a=1", []byte("body")))
	assert.NotEqual(t, key, deliveryKey(orderID, "a=1", []byte("other")))
	// The separator keeps query and body from bleeding into each other.
	assert.NotEqual(t, deliveryKey(orderID, "ab", []byte("c")), deliveryKey(orderID, "a", []byte("bc")))
}
