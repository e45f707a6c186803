// Package onchainpay integrates the Onchainpay crypto processing gateway.
//
// Every request is a JSON POST to <base>/<method>. The body keeps field
// insertion order and ends with "nonce" (unix milliseconds). Headers carry
// x-api-public-key and x-api-signature, the hex HMAC-SHA256 of the exact
// body bytes keyed with the private key. Responses are
// {"success": bool, "response": ...}.
//
// Webhooks are posted to the order callback URL with the same signature
// header computed over the raw body:
//
//	{"id": "<orderId>", "status": "processed|error|rejected|expired|...",
//	 "transactions": [{"status": "processed", "amount": "1.5"}, ...]}
package onchainpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

const (
	Slug           = "onchainpay"
	DefaultBaseURL = "https://ocp.onchainpay.io/api-gateway/"
	Lifetime       = 7200 * time.Second

	HeaderSignature = "x-api-signature"
	HeaderPublicKey = "x-api-public-key"
)

type Client struct {
	provider.Base
	baseURL string
}

// New returns a constructor bound to the gateway base URL.
func New(baseURL string) provider.Constructor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := strings.TrimRight(baseURL, "/") + "/"
	return func(cfg provider.Config, deps provider.Deps) (provider.Provider, error) {
		return &Client{Base: provider.NewBase(cfg, deps), baseURL: base}, nil
	}
}

type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
}

// call signs and posts fields to method and decodes the response payload
// into out. A false success flag is reported as ErrUpstream.
func (c *Client) call(ctx context.Context, method string, fields signer.Fields, out any) error {
	log := logging.FromContext(ctx).With("provider", Slug, "method", method)

	key, err := c.Config.RequirePrivateKey()
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}

	fields = append(signer.Fields{}, fields...).Set("nonce", c.Now().UnixMilli())
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("call: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderPublicKey, c.Config.PublicKeyValue())
	req.Header.Set(HeaderSignature, signer.HMACSHA256Hex(key, body))

	start := time.Now()
	resp, err := c.Deps.HTTPClient.Do(req)
	if err != nil {
		log.Warn("provider request failed", "request", string(body), "error", err)
		return fmt.Errorf("call: %s: %w: %v", method, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("call: %s: read body: %w: %v", method, domain.ErrUpstream, err)
	}

	log.Debug("provider response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("provider returned error status",
			"status", resp.StatusCode,
			"request", string(body),
			"response", truncate(respBody),
		)
		return fmt.Errorf("call: %s: status %d: %w", method, resp.StatusCode, domain.ErrUpstream)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		log.Warn("malformed provider response", "request", string(body), "response", truncate(respBody))
		return fmt.Errorf("call: %s: decode: %w: %v", method, domain.ErrUpstream, err)
	}
	if !env.Success {
		log.Warn("provider reported failure", "request", string(body), "response", truncate(respBody))
		return fmt.Errorf("call: %s: unsuccessful: %w", method, domain.ErrUpstream)
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			log.Warn("unexpected response payload", "response", truncate(respBody))
			return fmt.Errorf("call: %s: decode payload: %w: %v", method, domain.ErrUpstream, err)
		}
	}
	return nil
}

func truncate(b []byte) string {
	const max = 2048
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
