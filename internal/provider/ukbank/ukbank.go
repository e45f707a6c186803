// Package ukbank quotes the hryvnia against the settlement base unit from
// the PrivatBank public exchange feed. Invoices are not supported.
//
// The feed is a JSON list of {"ccy", "base_ccy", "buy", "sale"} where buy
// and sale are UAH per unit of ccy.
package ukbank

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
)

const (
	Slug           = "ukbank"
	DefaultFeedURL = "https://api.privatbank.ua/p24api/pubinfo?exchange&coursid=5"

	rateCacheKey = "ukbank:usd"
)

type Client struct {
	provider.Base
	http    *resty.Client
	feedURL string
}

func New(feedURL string) provider.Constructor {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return func(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		base := provider.NewBase(cfg, deps)
		return &Client{
			Base:    base,
			http:    resty.NewWithClient(base.Deps.HTTPClient),
			feedURL: feedURL,
		}, nil
	}
}

type quote struct {
	Currency string          `json:"ccy"`
	Base     string          `json:"base_ccy"`
	Buy      decimal.Decimal `json:"buy"`
	Sale     decimal.Decimal `json:"sale"`
}

func (c *Client) usdRate(ctx context.Context) (decimal.Decimal, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.feedURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("usdRate: %w: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("usdRate: status %d: %w", resp.StatusCode(), domain.ErrUpstream)
	}

	var quotes []quote
	if err := json.Unmarshal(resp.Body(), &quotes); err != nil {
		return decimal.Zero, fmt.Errorf("usdRate: decode: %w: %v", domain.ErrUpstream, err)
	}
	for _, q := range quotes {
		if q.Currency == "USD" {
			return fx.InverseMid(q.Buy, q.Sale)
		}
	}
	return decimal.Zero, fmt.Errorf("usdRate: no USD quote: %w", domain.ErrUpstream)
}

// GetCurrencyRate returns 1 / mid(buy, sale) of the USD quote, or zero
// when the feed is unavailable.
func (c *Client) GetCurrencyRate(ctx context.Context, currency domain.PaymentCurrency) decimal.Decimal {
	rate, err := ratecache.Fetch(ctx, c.Deps.Rates, rateCacheKey, c.usdRate)
	if err != nil {
		logging.FromContext(ctx).Warn("rate lookup failed", "provider", Slug, "currency", currency.Slug, "error", err)
		return decimal.Zero
	}
	return rate
}

func (c *Client) CreateInvoice(ctx context.Context, _ domain.PaymentCurrency, order domain.Order) (*provider.InvoiceResult, error) {
	logging.FromContext(ctx).Info("invoice declined, provider does not invoice", "provider", Slug, "order_id", order.ID)
	return nil, nil
}

func (c *Client) Callback(context.Context, provider.Webhook, domain.Order) (bool, error) {
	return true, nil
}
