package mockprovider

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/provider/onchainpay"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

const (
	testPublic  = "pub"
	testPrivate = "priv"
)

func post(t *testing.T, url, method string, body []byte, key string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/"+method, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(onchainpay.HeaderPublicKey, testPublic)
	req.Header.Set(onchainpay.HeaderSignature, signer.HMACSHA256Hex(key, body))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.PublicKey, cfg.PrivateKey = testPublic, testPrivate
	s := NewServer(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func TestMakeOrder_SendsSignedWebhook(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		received <- r
	}))
	defer hook.Close()

	srv := newServer(t, Config{Rates: map[string]string{"BTC": "60000"}})

	body := []byte(`{"currency":"BTC","amount":"0.001","order":"#1","successWebhook":"` + hook.URL + `/cb","nonce":1}`)
	resp, out := post(t, srv.URL, "make-order", body, testPrivate)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, out["success"])
	paymentID := out["response"].(map[string]any)["orderId"].(string)

	select {
	case r := <-received:
		b := <-bodies
		assert.Equal(t, "/cb", r.URL.Path)
		assert.Equal(t, signer.HMACSHA256Hex(testPrivate, b), r.Header.Get(onchainpay.HeaderSignature))

		var wh webhook
		require.NoError(t, json.Unmarshal(b, &wh))
		assert.Equal(t, paymentID, wh.ID)
		assert.Equal(t, "processed", wh.Status)
		require.Len(t, wh.Transactions, 1)
		assert.Equal(t, "0.001", wh.Transactions[0].Amount)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestRequestsAreAuthenticated(t *testing.T) {
	srv := newServer(t, Config{})

	resp, out := post(t, srv.URL, "test-signature", []byte(`{"nonce":1}`), "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, out["success"])

	resp, out = post(t, srv.URL, "test-signature", []byte(`{"nonce":1}`), testPrivate)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["success"])
}

func TestPriceRate(t *testing.T) {
	srv := newServer(t, Config{Rates: map[string]string{"BTC": "60000"}})

	_, out := post(t, srv.URL, "price-rate", []byte(`{"from":"BTC","to":"USDT"}`), testPrivate)
	assert.Equal(t, "60000", out["response"])

	_, out = post(t, srv.URL, "price-rate", []byte(`{"from":"DOGE","to":"USDT"}`), testPrivate)
	assert.Equal(t, "1", out["response"])
}

func TestUnsupportedMethod(t *testing.T) {
	srv := newServer(t, Config{})
	resp, _ := post(t, srv.URL, "make-coffee", []byte(`{}`), testPrivate)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
