// Package local settles orders from the user's internal balance. There is
// no external API; invoices complete immediately or are declined.
package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

const Slug = "local"

type Client struct {
	provider.Base
}

func New() provider.Constructor {
	return func(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		return &Client{Base: provider.NewBase(cfg, deps)}, nil
	}
}

// CreateInvoice charges the order amount to the user's balance and marks
// the order paid in one unit of work.
func (c *Client) CreateInvoice(ctx context.Context, currency domain.PaymentCurrency, order domain.Order) (*provider.InvoiceResult, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "order_id", order.ID)

	if !currency.Enabled {
		log.Info("invoice declined, currency disabled", "currency", currency.Slug)
		return nil, nil
	}
	if !order.Amount.IsPositive() {
		log.Warn("invoice declined", "error", domain.ErrInvalidAmount)
		return nil, nil
	}
	if order.PaymentSuccess {
		return &provider.InvoiceResult{Finished: true, OrderID: order.ID}, nil
	}

	err := c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		if err := tx.ChargeUser(ctx, order.UserID, order.Amount, order.ID); err != nil {
			return err
		}
		order.PaymentSuccess = true
		order.PaymentExpired = false
		order.CurrencyAmount = order.Amount
		order.Received = order.Amount
		order.CurrencyReceived = order.Amount
		return tx.SaveOrder(ctx, &order)
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		log.Info("invoice declined, insufficient balance", "amount", order.Amount)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	log.Info("order paid from balance", "amount", order.Amount)
	return &provider.InvoiceResult{Finished: true, OrderID: order.ID}, nil
}

// Callback accepts any delivery; local orders settle at creation.
func (c *Client) Callback(context.Context, provider.Webhook, domain.Order) (bool, error) {
	return true, nil
}
