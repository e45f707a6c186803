package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/mockprovider"
)

type config struct {
	Port         int               `env:"PORT" envDefault:"8081"`
	AppEnv       string            `env:"APP_ENV" envDefault:"development"`
	LogLevel     string            `env:"LOG_LEVEL" envDefault:"info"`
	PublicKey    string            `env:"MOCK_PUBLIC_KEY" envDefault:"mock-public"`
	PrivateKey   string            `env:"MOCK_PRIVATE_KEY" envDefault:"mock-private"`
	WebhookDelay time.Duration     `env:"MOCK_WEBHOOK_DELAY" envDefault:"3s"`
	Status       string            `env:"MOCK_WEBHOOK_STATUS" envDefault:"processed"`
	Rates        map[string]string `env:"MOCK_RATES" envDefault:"BTC:60000,ETH:3000"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Options{Service: "mock-provider", Level: cfg.LogLevel, AppEnv: cfg.AppEnv})

	mock := mockprovider.NewServer(mockprovider.Config{
		PublicKey:    cfg.PublicKey,
		PrivateKey:   cfg.PrivateKey,
		WebhookDelay: cfg.WebhookDelay,
		Status:       cfg.Status,
		Rates:        cfg.Rates,
	}, nil, logger)
	defer mock.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mock.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("mock provider started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}
