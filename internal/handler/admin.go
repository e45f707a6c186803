package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/service/settlement"
)

type adminService interface {
	PaymentTypeBySlug(ctx context.Context, slug string) (*domain.PaymentType, error)
	Test(ctx context.Context, pt domain.PaymentType) (bool, error)
	WithdrawToWallets(ctx context.Context, pt domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error)
	UpdateCurrenciesRate(ctx context.Context, pt domain.PaymentType) (map[string]decimal.Decimal, error)
	UpdateBalances(ctx context.Context, pt domain.PaymentType) error
	PayoutWithdraw(ctx context.Context, withdrawID uuid.UUID) (*settlement.PayoutResult, error)
	CheckWithdrawByID(ctx context.Context, withdrawID uuid.UUID) (bool, error)
	SweepOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type ledgerReader interface {
	LedgerForWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.InternalTransaction, int, error)
}

// AdminHandler exposes the custody operations to operators.
type AdminHandler struct {
	settlement adminService
	ledger     ledgerReader
}

func NewAdminHandler(settlement adminService, ledger ledgerReader) *AdminHandler {
	return &AdminHandler{settlement: settlement, ledger: ledger}
}

func (h *AdminHandler) paymentType(w http.ResponseWriter, r *http.Request) (*domain.PaymentType, bool) {
	pt, err := h.settlement.PaymentTypeBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		RespondDomainError(w, err)
		return nil, false
	}
	return pt, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) TestProvider(w http.ResponseWriter, r *http.Request) {
	pt, ok := h.paymentType(w, r)
	if !ok {
		return
	}
	healthy, err := h.settlement.Test(r.Context(), *pt)
	if err != nil {
		logging.FromContext(r.Context()).Error("provider test failed", "payment_type", pt.Slug, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"payment_type": pt.Slug, "ok": healthy})
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	pt, ok := h.paymentType(w, r)
	if !ok {
		return
	}
	swept, err := h.settlement.WithdrawToWallets(r.Context(), *pt)
	if err != nil {
		logging.FromContext(r.Context()).Error("sweep failed", "payment_type", pt.Slug, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"payment_type": pt.Slug, "swept": swept})
}

func (h *AdminHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	pt, ok := h.paymentType(w, r)
	if !ok {
		return
	}
	rates, err := h.settlement.UpdateCurrenciesRate(r.Context(), *pt)
	if err != nil {
		logging.FromContext(r.Context()).Error("rate refresh failed", "payment_type", pt.Slug, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"payment_type": pt.Slug, "rates": rates})
}

func (h *AdminHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	pt, ok := h.paymentType(w, r)
	if !ok {
		return
	}
	if err := h.settlement.UpdateBalances(r.Context(), *pt); err != nil {
		logging.FromContext(r.Context()).Error("balance refresh failed", "payment_type", pt.Slug, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"payment_type": pt.Slug, "ok": true})
}

type payoutDTO struct {
	WithdrawID      uuid.UUID       `json:"withdraw_id"`
	Sent            bool            `json:"sent"`
	TxID            string          `json:"tx_id,omitempty"`
	WalletID        *uuid.UUID      `json:"wallet_id,omitempty"`
	WalletBalance   decimal.Decimal `json:"wallet_currency_amount"`
	WalletUpdatedAt *time.Time      `json:"wallet_updated_at,omitempty"`
}

// Payout sends a moderated withdraw to the user's wallet. A declined
// payout is a successful response with sent=false.
func (h *AdminHandler) Payout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.settlement.PayoutWithdraw(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("payout failed", "withdraw_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := payoutDTO{WithdrawID: id}
	if res != nil {
		dto.Sent = true
		dto.TxID = res.TxID
		dto.WalletID = &res.Wallet.ID
		dto.WalletBalance = res.Wallet.CurrencyAmount
		dto.WalletUpdatedAt = &res.Wallet.UpdatedAt
	}
	RespondSuccess(w, http.StatusOK, dto)
}

func (h *AdminHandler) CheckWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	confirmed, err := h.settlement.CheckWithdrawByID(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("withdraw check failed", "withdraw_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"withdraw_id": id, "confirmed": confirmed})
}

func (h *AdminHandler) SweepOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	swept, err := h.settlement.SweepOrder(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("order sweep failed", "order_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"order_id": id, "swept": swept})
}

type ledgerEntryDTO struct {
	ID             uuid.UUID              `json:"id"`
	Type           domain.TransactionType `json:"type"`
	Amount         decimal.Decimal        `json:"amount"`
	CurrencyAmount decimal.Decimal        `json:"currency_amount"`
	Comment        string                 `json:"comment"`
	CreatedAt      time.Time              `json:"created_at"`
}

type ledgerPageDTO struct {
	Entries []ledgerEntryDTO `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (h *AdminHandler) WalletLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, total, err := h.ledger.LedgerForWallet(r.Context(), id, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list ledger", "wallet_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	page := ledgerPageDTO{Entries: make([]ledgerEntryDTO, len(entries)), Total: total, Limit: limit, Offset: offset}
	for i, e := range entries {
		page.Entries[i] = ledgerEntryDTO{
			ID:             e.ID,
			Type:           e.Type,
			Amount:         e.Amount,
			CurrencyAmount: e.CurrencyAmount,
			Comment:        e.Comment,
			CreatedAt:      e.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, page)
}

func pageParams(r *http.Request) (limit, offset int, errs []FieldError) {
	limit, offset = 50, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be between 1 and 500"})
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be zero or greater"})
		}
		offset = n
	}
	return limit, offset, errs
}
