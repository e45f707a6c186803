// Package app assembles the settlement engine from configuration. The
// server and the operator CLI share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/notify"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/provider/local"
	"github.com/josh-kwaku/settlement-engine/internal/provider/onchainpay"
	"github.com/josh-kwaku/settlement-engine/internal/provider/plisio"
	"github.com/josh-kwaku/settlement-engine/internal/provider/ukbank"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/settlement"
)

const CallbackPath = "/api/payment-callback/"

type App struct {
	DB         *sql.DB
	Store      *repository.Store
	Redis      *redis.Client
	Notifier   provider.Notifier
	Registry   *provider.Registry
	Settlement *settlement.Service

	closers []func()
}

// New connects the backing services and builds the dispatcher. Redis and
// AMQP are optional; without them rates are cached in process and alerts
// only go to the log.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() { db.Close() })
	a.Store = repository.NewStore(db)

	var rateStore ratecache.Store = ratecache.NewMemoryStore(ratecache.SystemClock)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, fmt.Errorf("app.New: redis ping: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
		rateStore = ratecache.NewRedisStore(rdb, "settlement:rates")
		logger.Info("rate cache backed by redis")
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.closers = append(a.closers, amqpNotifier.Close)
		notifiers = append(notifiers, amqpNotifier)
		logger.Info("alerts published to amqp", "exchange", cfg.AMQPExchange)
	}
	a.Notifier = notifiers

	a.Registry = NewRegistry(cfg, provider.Deps{
		Store:       a.Store,
		Notifier:    a.Notifier,
		Rates:       ratecache.New(rateStore, cfg.RateCacheTTL),
		HTTPClient:  &http.Client{Timeout: cfg.ProviderTimeout},
		AppEnv:      cfg.AppEnv,
		CallbackURL: CallbackURL(cfg.CallbackBaseURL),
		FrontURL:    cfg.FrontURL,
	})
	a.Settlement = settlement.NewService(a.Store, a.Registry, a.Notifier, nil)
	return a, nil
}

// NewRegistry registers every provider integration.
func NewRegistry(cfg *config.Config, deps provider.Deps) *provider.Registry {
	reg := provider.NewRegistry(deps)
	reg.Register(onchainpay.Slug, onchainpay.New(cfg.OnchainpayURL))
	reg.Register(plisio.Slug, plisio.New(cfg.PlisioURL, cfg.PayoutReserveRatio))
	reg.Register(local.Slug, local.New())
	reg.Register(ukbank.Slug, ukbank.New(cfg.PrivatBankURL))
	return reg
}

// CallbackURL builds provider webhook URLs under base.
func CallbackURL(base string) func(orderID uuid.UUID) string {
	base = strings.TrimRight(base, "/")
	return func(orderID uuid.UUID) string {
		return base + CallbackPath + orderID.String()
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
