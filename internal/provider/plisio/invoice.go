package plisio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

type invoiceResponse struct {
	TxnID      string `json:"txn_id"`
	WalletHash string `json:"wallet_hash"`
}

func (c *Client) CreateInvoice(ctx context.Context, currency domain.PaymentCurrency, order domain.Order) (*provider.InvoiceResult, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "order_id", order.ID)

	if !currency.Enabled {
		log.Info("invoice declined, currency disabled", "currency", currency.Slug)
		return nil, nil
	}

	amount, err := fx.InvoiceAmount(order.Amount, currency.Rate)
	if err != nil {
		log.Warn("invoice declined", "error", err)
		return nil, nil
	}

	webhookURL := c.Deps.CallbackURL(order.ID)
	params := url.Values{
		"order_name":           {c.Deps.OrderName(order.ID)},
		"order_number":         {strconv.FormatInt(c.Now().UnixMilli(), 10)},
		"currency":             {currency.PaymentSlug},
		"amount":               {fx.Format(amount)},
		"callback_url":         {webhookURL},
		"success_callback_url": {webhookURL},
		"fail_callback_url":    {webhookURL},
		"expire_min":           {strconv.Itoa(int(Lifetime.Minutes()))},
	}

	var resp invoiceResponse
	if err := c.call(ctx, "invoices/new", params, &resp); err != nil {
		return nil, provider.Escalate(err)
	}
	if resp.TxnID == "" {
		log.Warn("invoice response carried no txn_id")
		return nil, nil
	}

	expiresAt := c.Now().Add(Lifetime)
	order.PaymentExpiredAt = &expiresAt
	order.PaymentID = &resp.TxnID
	order.CurrencyAmount = amount
	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, &order)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: save order: %w", err)
	}

	log.Info("invoice created", "payment_id", resp.TxnID, "currency_amount", fx.Format(amount))
	return &provider.InvoiceResult{
		Finished:       false,
		Address:        resp.WalletHash,
		CurrencyAmount: fx.Format(amount),
		ExpiresAt:      &expiresAt,
		OrderID:        order.ID,
		CurrencySlug:   currency.Slug,
		CurrencyName:   currency.Name,
	}, nil
}

// observe maps a verified callback onto a reconciliation input.
func observe(p payload) provider.Observation {
	status := p.text("status")
	pending := p.decimal("pending_amount")
	remaining := p.decimal("invoice_total_sum").Sub(pending)

	switch status {
	case "completed", "mismatch":
		return provider.Observation{
			Outcome:          provider.OutcomeSucceeded,
			CurrencyReceived: p.decimal("amount"),
			HasReceived:      true,
			Transactions:     txURLs(p.text("tx_urls")),
		}
	case "expired", "error", "cancelled":
		obs := provider.Observation{Outcome: provider.OutcomeFailed}
		if pending.IsPositive() {
			obs.CurrencyReceived = remaining
			obs.HasReceived = true
		}
		return obs
	default:
		obs := provider.Observation{Outcome: provider.OutcomePending}
		if status == "pending" && !pending.IsZero() {
			obs.CurrencyReceived = remaining
			obs.HasReceived = true
		}
		return obs
	}
}

// txURLs keeps a JSON list as is and wraps anything else as a JSON string.
// The provider HTML-escapes the list.
func txURLs(s string) json.RawMessage {
	s = html.UnescapeString(s)
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) && (s[0] == '[' || s[0] == '{') {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func (c *Client) Callback(ctx context.Context, wh provider.Webhook, order domain.Order) (bool, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "order_id", order.ID)

	key, err := c.Config.RequirePrivateKey()
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}

	p, err := parsePayload(wh)
	if err != nil {
		log.Warn("malformed callback payload", "error", err)
		return false, nil
	}
	ok, err := p.verify(key)
	if err != nil {
		log.Warn("callback could not be verified", "error", err)
		return false, nil
	}
	if !ok {
		log.Warn("callback verify_hash mismatch", "body", string(wh.Body))
		c.Notify(ctx, domain.TopicWebhookRejected, "Order #"+order.ID.String()+": callback verify_hash mismatch", map[string]string{
			"provider": Slug,
			"order_id": order.ID.String(),
		})
		return false, nil
	}
	if !order.HasPaymentID(p.text("txn_id")) {
		log.Warn("callback txn_id does not match order", "txn_id", p.text("txn_id"))
		return false, nil
	}

	currency, err := c.Deps.Store.Currency(ctx, order.CurrencyID)
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}

	s := provider.Reconcile(order, currency.Rate, observe(p))
	if !s.Changed {
		log.Info("callback for settled order ignored", "status", p.text("status"))
		return true, nil
	}

	var mirror *domain.WithdrawWallet
	if s.Succeeded {
		mirror, err = c.Deps.Store.ProviderWallet(ctx, currency.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, fmt.Errorf("Callback: %w", err)
		}
	}

	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		if err := tx.SaveOrder(ctx, &s.Order); err != nil {
			return err
		}
		if mirror == nil {
			return nil
		}
		// The mirror holds what the customer actually paid, not the invoiced sum.
		_, err := provider.CreditWallet(ctx, tx, provider.Movement{
			WalletID:       mirror.ID,
			CurrencyID:     currency.ID,
			Type:           domain.TransactionTypeIncome,
			CurrencyAmount: s.Order.CurrencyReceived,
			Rate:           currency.Rate,
			Comment:        "income to Plisio by order " + order.ID.String(),
			At:             c.Now(),
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("Callback: save order: %w", err)
	}

	if s.Partial {
		c.Notify(ctx, domain.TopicOrderPartialPayment, "Order #"+order.ID.String()+" settled partially after expiry", map[string]string{
			"order_id": order.ID.String(),
			"received": s.Order.Received.String(),
		})
	}
	log.Info("callback applied", "status", p.text("status"), "state", s.Order.State(), "currency_received", s.Order.CurrencyReceived)
	return true, nil
}
