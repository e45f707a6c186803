// Package mockprovider is a local stand-in for the Onchainpay gateway. It
// checks request signatures like the real gateway and answers make-order
// by posting a signed "processed" webhook back to the order's callback.
package mockprovider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/provider/onchainpay"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

type Config struct {
	PublicKey  string
	PrivateKey string
	// WebhookDelay is how long after make-order the webhook is sent.
	WebhookDelay time.Duration
	// Status is reported in webhooks, "processed" when empty.
	Status string
	// Rates answers price-rate by source currency. Unknown currencies
	// quote 1.
	Rates map[string]string
}

type Server struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg Config, client *resty.Client, logger *slog.Logger) *Server {
	if cfg.Status == "" {
		cfg.Status = "processed"
	}
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{cfg: cfg, http: client, logger: logger, ctx: ctx, cancel: cancel}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /{method}", s.handle)
	return mux
}

type envelope struct {
	Success  bool   `json:"success"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	log := s.logger.With("method", method)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "unreadable body"})
		return
	}

	if r.Header.Get(onchainpay.HeaderPublicKey) != s.cfg.PublicKey {
		log.Warn("unknown public key")
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unknown public key"})
		return
	}
	if !signer.Equal(signer.HMACSHA256Hex(s.cfg.PrivateKey, body), r.Header.Get(onchainpay.HeaderSignature)) {
		log.Warn("signature mismatch", "body", string(body))
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "invalid signature"})
		return
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "body is not a JSON object"})
		return
	}

	switch method {
	case "make-order":
		writeJSON(w, http.StatusOK, envelope{Success: true, Response: s.makeOrder(req)})
	case "price-rate":
		rate, ok := s.cfg.Rates[str(req["from"])]
		if !ok {
			rate = "1"
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Response: rate})
	case "test-signature":
		writeJSON(w, http.StatusOK, envelope{Success: true})
	case "account-addresses", "advanced-balances", "available-currencies":
		writeJSON(w, http.StatusOK, envelope{Success: true, Response: []any{}})
	case "fee-token":
		writeJSON(w, http.StatusOK, envelope{Success: true, Response: map[string]string{"token": uuid.NewString()}})
	case "make-withdrawal":
		writeJSON(w, http.StatusOK, envelope{Success: true, Response: map[string]string{"id": uuid.NewString()}})
	default:
		log.Info("unsupported method")
		writeJSON(w, http.StatusNotFound, envelope{Error: "unsupported method"})
	}
}

type orderResponse struct {
	OrderID   string `json:"orderId"`
	AddressID string `json:"addressId"`
	Address   string `json:"address"`
}

func (s *Server) makeOrder(req map[string]any) orderResponse {
	resp := orderResponse{
		OrderID:   uuid.NewString(),
		AddressID: uuid.NewString(),
		Address:   "mock-" + str(req["currency"]) + "-" + uuid.NewString()[:8],
	}

	if hook := str(req["successWebhook"]); hook != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(hook, resp.OrderID, str(req["amount"]))
		}()
	}
	s.logger.Info("order created", "order", str(req["order"]), "payment_id", resp.OrderID)
	return resp
}

type webhook struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Transactions []leg  `json:"transactions"`
}

type leg struct {
	Status string `json:"status"`
	Amount string `json:"amount"`
}

func (s *Server) deliver(url, paymentID, amount string) {
	select {
	case <-time.After(s.cfg.WebhookDelay):
	case <-s.ctx.Done():
		return
	}

	wh := webhook{ID: paymentID, Status: s.cfg.Status}
	if s.cfg.Status == "processed" {
		wh.Transactions = []leg{{Status: "processed", Amount: amount}}
	}
	body, err := json.Marshal(wh)
	if err != nil {
		s.logger.Error("failed to encode webhook", "error", err)
		return
	}

	resp, err := s.http.R().
		SetContext(s.ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(onchainpay.HeaderSignature, signer.HMACSHA256Hex(s.cfg.PrivateKey, body)).
		SetBody(body).
		Post(url)
	if err != nil {
		s.logger.Error("webhook delivery failed", "url", url, "error", err)
		return
	}
	s.logger.Info("webhook delivered", "url", url, "payment_id", paymentID, "status_code", resp.StatusCode())
}

// Close cancels pending webhooks and waits for deliveries in flight.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}
