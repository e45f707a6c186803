package onchainpay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

type orderResponse struct {
	OrderID   string `json:"orderId"`
	AddressID string `json:"addressId"`
	Address   string `json:"address"`
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
	fields := signer.Fields{
		{Key: "advancedBalanceId", Value: c.Config.AdvancedBalance},
		{Key: "currency", Value: currency.Slug},
		{Key: "network", Value: currency.Network},
		{Key: "amount", Value: fx.Format(amount)},
		{Key: "order", Value: c.Deps.OrderName(order.ID)},
		{Key: "lifetime", Value: int(Lifetime.Seconds())},
		{Key: "description", Value: "Order #" + order.ID.String()},
		{Key: "successWebhook", Value: webhookURL},
		{Key: "errorWebhook", Value: webhookURL},
		{Key: "returnUrl", Value: c.Deps.FrontURL + "/success/" + order.ID.String()},
	}

	var resp orderResponse
	if err := c.call(ctx, "make-order", fields, &resp); err != nil {
		return nil, provider.Escalate(err)
	}
	if resp.OrderID == "" {
		log.Warn("make-order returned no order id")
		return nil, nil
	}

	expiresAt := c.Now().Add(Lifetime)
	order.PaymentExpiredAt = &expiresAt
	order.PaymentID = &resp.OrderID
	order.CurrencyAmount = amount
	if resp.AddressID != "" {
		order.WithdrawAddressID = &resp.AddressID
	}
	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, &order)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: save order: %w", err)
	}

	log.Info("invoice created", "payment_id", resp.OrderID, "currency_amount", fx.Format(amount))
	return &provider.InvoiceResult{
		Finished:       false,
		Address:        resp.Address,
		CurrencyAmount: fx.Format(amount),
		ExpiresAt:      &expiresAt,
		OrderID:        order.ID,
		CurrencySlug:   currency.Slug,
		CurrencyName:   currency.Name,
	}, nil
}

type webhookPayload struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Transactions json.RawMessage `json:"transactions"`
}

type transactionLeg struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

func outcome(status string) provider.Outcome {
	switch status {
	case "processed":
		return provider.OutcomeSucceeded
	case "error", "rejected", "expired":
		return provider.OutcomeFailed
	default:
		return provider.OutcomePending
	}
}

func (c *Client) Callback(ctx context.Context, wh provider.Webhook, order domain.Order) (bool, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "order_id", order.ID)

	key, err := c.Config.RequirePrivateKey()
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}

	sig := wh.Header.Get(HeaderSignature)
	if !signer.Equal(signer.HMACSHA256Hex(key, wh.Body), sig) {
		log.Warn("webhook signature mismatch", "signature", sig, "body", string(wh.Body))
		c.Notify(ctx, domain.TopicWebhookRejected, "Order #"+order.ID.String()+": webhook signature mismatch", map[string]string{
			"provider": Slug,
			"order_id": order.ID.String(),
		})
		return false, nil
	}

	var p webhookPayload
	if err := json.Unmarshal(wh.Body, &p); err != nil {
		log.Warn("malformed webhook payload", "error", err)
		return false, nil
	}
	if !order.HasPaymentID(p.ID) {
		log.Warn("webhook payment id does not match order", "webhook_id", p.ID)
		return false, nil
	}

	obs := provider.Observation{Outcome: outcome(p.Status)}
	if len(p.Transactions) > 0 && string(p.Transactions) != "null" {
		var legs []transactionLeg
		if err := json.Unmarshal(p.Transactions, &legs); err != nil {
			log.Warn("malformed webhook transactions", "error", err)
			return false, nil
		}
		obs.Transactions = p.Transactions
		if len(legs) > 0 {
			received := decimal.Zero
			for _, leg := range legs {
				if leg.Status == "processed" {
					received = received.Add(leg.Amount)
				}
			}
			obs.CurrencyReceived = received
			obs.HasReceived = true
		}
	}

	currency, err := c.Deps.Store.Currency(ctx, order.CurrencyID)
	if err != nil {
		return false, fmt.Errorf("Callback: %w", err)
	}

	s := provider.Reconcile(order, currency.Rate, obs)
	if !s.Changed {
		log.Info("webhook for settled order ignored", "status", p.Status)
		return true, nil
	}

	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, &s.Order)
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
	log.Info("webhook applied", "status", p.Status, "state", s.Order.State(), "currency_received", s.Order.CurrencyReceived)
	return true, nil
}
