package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

type mockInvoices struct {
	res *provider.InvoiceResult
	err error
}

func (m *mockInvoices) InvoiceOrder(context.Context, uuid.UUID) (*provider.InvoiceResult, error) {
	return m.res, m.err
}

func TestInvoiceCreate(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name       string
		orderID    string
		svc        *mockInvoices
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{
			name:       "payment instructions",
			orderID:    orderID.String(),
			svc:        &mockInvoices{res: &provider.InvoiceResult{Address: "bc1qaddr", CurrencyAmount: "0.001", OrderID: orderID, CurrencySlug: "BTC"}},
			wantStatus: http.StatusOK,
			wantBody:   `"address":"bc1qaddr"`,
		},
		{
			name:       "already paid",
			orderID:    orderID.String(),
			svc:        &mockInvoices{res: &provider.InvoiceResult{Finished: true, OrderID: orderID}},
			wantStatus: http.StatusOK,
			wantBody:   `"finished":true`,
		},
		{
			name:       "declined",
			orderID:    orderID.String(),
			svc:        &mockInvoices{},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVOICE_DECLINED",
		},
		{
			name:       "currency disabled",
			orderID:    orderID.String(),
			svc:        &mockInvoices{err: fmt.Errorf("InvoiceOrder: %w", domain.ErrCurrencyDisabled)},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CURRENCY_DISABLED",
		},
		{
			name:       "unknown order",
			orderID:    orderID.String(),
			svc:        &mockInvoices{err: fmt.Errorf("InvoiceOrder: %w", domain.ErrNotFound)},
			wantStatus: http.StatusNotFound,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
		{
			name:       "malformed id",
			orderID:    "42",
			svc:        &mockInvoices{},
			wantStatus: http.StatusNotFound,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewInvoiceHandler(tc.svc)
			req := httptest.NewRequest(http.MethodPost, "/orders/"+tc.orderID+"/invoice", nil)
			req.SetPathValue("orderId", tc.orderID)
			rr := httptest.NewRecorder()

			h.Create(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode != "" {
				resp := decodeResponse(t, rr)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			assert.Contains(t, rr.Body.String(), tc.wantBody)
		})
	}
}
