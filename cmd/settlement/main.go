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

	"github.com/josh-kwaku/settlement-engine/internal/app"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/scheduler"
	"github.com/josh-kwaku/settlement-engine/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("settlement engine exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(logging.Options{
		Service: "settlement-engine",
		Version: cfg.Version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		AppEnv:  cfg.AppEnv,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	webhooks := repository.NewWebhookEventRepository(a.DB)
	replays := repository.NewReplayRepository(a.DB)
	operators := repository.NewOperatorRepository(a.DB)

	processor := service.NewWebhookProcessor(webhooks, a.Settlement, logger, cfg.WebhookReplayInterval, cfg.WebhookReplayMinAge)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		jobs := scheduler.NewJobs(a.Settlement, replays, logger, cfg.JobTimeout, cfg.WithdrawCheckBatch)
		sched = scheduler.NewScheduler(jobs, logger, scheduler.Schedules{
			Rates:            cfg.RatesSchedule,
			Balances:         cfg.BalancesSchedule,
			Sweep:            cfg.SweepSchedule,
			WithdrawChecks:   cfg.WithdrawCheckSchedule,
			IdempotencyClean: cfg.IdempotencyCleanSchedule,
		})
		if err := sched.Register(); err != nil {
			return err
		}
	}

	handler := newRouter(routerDeps{
		cfg:        cfg,
		app:        a,
		webhooks:   webhooks,
		replays:    replays,
		operators:  operators,
		dispatcher: processor,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		processor.Start(logging.WithLogger(workerCtx, logger))
	}()
	if sched != nil {
		sched.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduled jobs still running at shutdown")
		}
	}
	cancelWorkers()
	<-processorDone

	logger.Info("server stopped")
	return nil
}
