package main

import (
	"context"
	"net/http"

	"github.com/josh-kwaku/settlement-engine/internal/app"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/handler"
	"github.com/josh-kwaku/settlement-engine/internal/middleware"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service"
)

type routerDeps struct {
	cfg        *config.Config
	app        *app.App
	webhooks   *repository.WebhookEventRepository
	replays    *repository.ReplayRepository
	operators  *repository.OperatorRepository
	dispatcher *service.WebhookProcessor
}

func newRouter(d routerDeps) http.Handler {
	checks := map[string]handler.Pinger{"database": handler.PingFunc(d.app.DB.PingContext)}
	if d.app.Redis != nil {
		rdb := d.app.Redis
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	health := handler.NewHealthHandler(d.cfg.Version, checks)
	authH := handler.NewAuthHandler(d.operators, d.cfg.JWTSecret, d.cfg.JWTExpiry)
	invoices := handler.NewInvoiceHandler(d.app.Settlement)
	webhooks := handler.NewWebhookHandler(d.webhooks, d.dispatcher)
	admin := handler.NewAdminHandler(d.app.Settlement, d.app.Store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Liveness)
	mux.HandleFunc("GET /readyz", health.Readiness)

	mux.HandleFunc("POST /auth/login", authH.Login)
	mux.HandleFunc("POST /api/orders/{orderId}/invoice", invoices.Create)
	mux.HandleFunc("POST "+app.CallbackPath+"{orderId}", webhooks.PaymentCallback)

	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.Auth(d.cfg.JWTSecret))
	}
	idempotent := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.Auth(d.cfg.JWTSecret), middleware.Idempotency(d.replays))
	}

	mux.Handle("POST /admin/providers/{slug}/test", protected(admin.TestProvider))
	mux.Handle("POST /admin/providers/{slug}/sweep", protected(admin.Sweep))
	mux.Handle("POST /admin/providers/{slug}/rates", protected(admin.RefreshRates))
	mux.Handle("POST /admin/providers/{slug}/balances", protected(admin.RefreshBalances))
	mux.Handle("POST /admin/withdraws/{id}/payout", idempotent(admin.Payout))
	mux.Handle("POST /admin/withdraws/{id}/check", protected(admin.CheckWithdraw))
	mux.Handle("POST /admin/orders/{id}/sweep", protected(admin.SweepOrder))
	mux.Handle("GET /admin/wallets/{id}/ledger", protected(admin.WalletLedger))

	return middleware.Chain(mux, middleware.Tracing, middleware.Logging, middleware.Recovery)
}
