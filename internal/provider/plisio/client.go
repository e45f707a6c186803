// Package plisio integrates the Plisio crypto invoicing API.
//
// Every request is a GET to <base>/<method> with the parameters in the
// query string and the private key as api_key. Responses are
// {"status": "success"|"error", "data": ...}; errors carry data.message.
//
// Callbacks are posted to the order callback URL, form encoded or as a
// JSON object. verify_hash is the hex HMAC-SHA1 of the PHP serialize()
// rendering of the remaining fields in ksort order, keyed with the private
// key.
package plisio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

const (
	Slug           = "plisio"
	DefaultBaseURL = "https://plisio.net/api/v1"
	Lifetime       = 120 * time.Minute

	// invalidAddressMessage is how the payout API rejects a malformed
	// destination address.
	invalidAddressMessage = "toBn number must be valid hex string."
)

// DefaultReserveRatio is the share of this week's scheduled payouts kept
// on the provider balance when sweeping.
var DefaultReserveRatio = decimal.RequireFromString("0.5")

type Client struct {
	provider.Base
	http         *resty.Client
	reserveRatio decimal.Decimal
}

// New returns a constructor bound to the API base URL and payout reserve ratio.
func New(baseURL string, reserveRatio decimal.Decimal) provider.Constructor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !reserveRatio.IsPositive() {
		reserveRatio = DefaultReserveRatio
	}
	return func(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		base := provider.NewBase(cfg, deps)
		hc := resty.NewWithClient(base.Deps.HTTPClient).
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json")
		return &Client{Base: base, http: hc, reserveRatio: reserveRatio}, nil
	}
}

// apiError is a request the API answered with status "error" or a non-2xx code.
type apiError struct {
	Method     string
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("plisio %s: status %d: %s", e.Method, e.StatusCode, e.Message)
}

func (e *apiError) Unwrap() error {
	return domain.ErrUpstream
}

func apiMessage(err error) string {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return ""
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type errorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// call sends a signed GET to method and decodes data into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	log := logging.FromContext(ctx).With("provider", Slug, "method", method)

	key, err := c.Config.RequirePrivateKey()
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("api_key", key)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(method)
	if err != nil {
		err = redactURL(err)
		log.Error("provider request failed", "request", params.Encode(), "error", err)
		if ctx.Err() != nil {
			return fmt.Errorf("call %s: %w", method, ctx.Err())
		}
		return fmt.Errorf("call %s: %w: %v", method, domain.ErrUpstream, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(resp.Body(), &env)
	if resp.IsError() || decodeErr != nil || env.Status != "success" {
		var data errorData
		_ = json.Unmarshal(env.Data, &data)
		log.Warn("provider declined request",
			"status_code", resp.StatusCode(),
			"request", params.Encode(),
			"response", truncate(string(resp.Body()), 2048),
		)
		return &apiError{Method: method, StatusCode: resp.StatusCode(), Message: data.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Warn("unexpected response payload", "response", truncate(string(resp.Body()), 2048), "error", err)
		return fmt.Errorf("call %s: decode: %w", method, errors.Join(domain.ErrUpstream, err))
	}
	return nil
}

// redactURL strips the query, which carries api_key, from transport errors.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		ue.URL = ""
		return err
	}
	u.RawQuery = ""
	ue.URL = u.String()
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
