package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

type invoiceService interface {
	InvoiceOrder(ctx context.Context, orderID uuid.UUID) (*provider.InvoiceResult, error)
}

type InvoiceHandler struct {
	invoices invoiceService
}

func NewInvoiceHandler(invoices invoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// Create returns payment instructions for an order, or a finished marker
// when the order is already paid.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("orderId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	res, err := h.invoices.InvoiceOrder(r.Context(), orderID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create invoice", "order_id", orderID, "error", err)
		RespondDomainError(w, err)
		return
	}
	if res == nil {
		RespondAppError(w, ErrInvoiceDeclined, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, res)
}
