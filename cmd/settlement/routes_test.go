package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/app"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/notify"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/provider/onchainpay"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service"
	"github.com/josh-kwaku/settlement-engine/internal/service/settlement"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

const privateKey = "ocp-private"

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{JWTSecret: "secret", JWTExpiry: time.Hour, Version: "test", PayoutReserveRatio: decimal.RequireFromString("0.5")}
	store := repository.NewStore(db)
	notifier := notify.NewLogNotifier(logger)
	reg := app.NewRegistry(cfg, provider.Deps{Store: store, Notifier: notifier})
	a := &app.App{DB: db, Store: store, Notifier: notifier, Registry: reg, Settlement: settlement.NewService(store, reg, notifier, nil)}

	webhooks := repository.NewWebhookEventRepository(db)
	router := newRouter(routerDeps{
		cfg:        cfg,
		app:        a,
		webhooks:   webhooks,
		replays:    repository.NewReplayRepository(db),
		operators:  repository.NewOperatorRepository(db),
		dispatcher: service.NewWebhookProcessor(webhooks, a.Settlement, logger, time.Hour, time.Minute),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, a
}

func postCallback(t *testing.T, url string, orderID uuid.UUID, body, sig string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+app.CallbackPath+orderID.String(), strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(onchainpay.HeaderSignature, sig)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestPaymentCallback_EndToEnd(t *testing.T) {
	srv, a := newTestServer(t)

	pt := testutil.SeedPaymentType(t, a.DB, onchainpay.Slug, privateKey)
	cur := testutil.SeedCurrency(t, a.DB, pt.ID, "BTC", "bitcoin", decimal.NewFromInt(60000))
	order := testutil.SeedOrder(t, a.DB, uuid.New(), cur.ID, decimal.NewFromInt(60))
	_, err := a.DB.Exec(`UPDATE orders SET payment_id = 'pay-1', currency_amount = 0.001 WHERE id = $1`, order.ID)
	require.NoError(t, err)

	body := `{"id":"pay-1","status":"processed","transactions":[{"status":"processed","amount":"0.001"}]}`
	sig := signer.HMACSHA256Hex(privateKey, []byte(body))

	resp, _ := postCallback(t, srv.URL, order.ID, body, sig)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	paid, err := a.Store.Order(t.Context(), order.ID)
	require.NoError(t, err)
	assert.True(t, paid.PaymentSuccess)
	assert.True(t, decimal.RequireFromString("0.001").Equal(paid.CurrencyReceived))

	resp, out := postCallback(t, srv.URL, order.ID, body, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "already_received")

	forged := `{"id":"pay-1","status":"error"}`
	resp, out = postCallback(t, srv.URL, order.ID, forged, "deadbeef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out, "WEBHOOK_REJECTED")

	var statuses []string
	rows, err := a.DB.Query(`SELECT status FROM webhook_events WHERE order_id = $1 ORDER BY created_at`, order.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		statuses = append(statuses, s)
	}
	assert.Equal(t, []string{"dispatched", "failed"}, statuses)
}

func TestAdminRoutes_RequireOperator(t *testing.T) {
	srv, a := newTestServer(t)
	op := testutil.SeedOperator(t, a.DB, "ops@example.com")
	wallet := uuid.New()

	resp, err := http.Get(srv.URL + "/admin/wallets/" + wallet.String() + "/ledger")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	login := `{"email":"` + op.Email + `","password":"` + testutil.OperatorPassword + `"}`
	resp, err = http.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(login))
	require.NoError(t, err)
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.NotEmpty(t, body.Data.Token)

	authed := func(method, path string, headers map[string]string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+body.Data.Token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusOK, authed(http.MethodGet, "/admin/wallets/"+wallet.String()+"/ledger", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, authed(http.MethodPost, "/admin/withdraws/"+uuid.NewString()+"/payout", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		authed(http.MethodPost, "/admin/withdraws/"+uuid.NewString()+"/payout", map[string]string{"Idempotency-Key": "k1"}).StatusCode)
	assert.Equal(t, http.StatusNotFound, authed(http.MethodPost, "/admin/providers/paypal/test", nil).StatusCode)
}

func TestHealthRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
