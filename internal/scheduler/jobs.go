package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type settlementService interface {
	EnabledPaymentTypes(ctx context.Context) ([]domain.PaymentType, error)
	UpdateCurrenciesRate(ctx context.Context, pt domain.PaymentType) (map[string]decimal.Decimal, error)
	UpdateBalances(ctx context.Context, pt domain.PaymentType) error
	WithdrawToWallets(ctx context.Context, pt domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error)
	CheckPendingWithdraws(ctx context.Context, limit int) (int, error)
}

type replayPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs holds the periodic work. Each job runs under its own timeout and
// keeps going past a failing payment type.
type Jobs struct {
	settlement    settlementService
	replays       replayPurger
	logger        *slog.Logger
	timeout       time.Duration
	withdrawBatch int
}

func NewJobs(settlement settlementService, replays replayPurger, logger *slog.Logger, timeout time.Duration, withdrawBatch int) *Jobs {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if withdrawBatch <= 0 {
		withdrawBatch = 50
	}
	return &Jobs{
		settlement:    settlement,
		replays:       replays,
		logger:        logger,
		timeout:       timeout,
		withdrawBatch: withdrawBatch,
	}
}

func (j *Jobs) run(job string, fn func(ctx context.Context, log *slog.Logger)) {
	log := j.logger.With("job", job)
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), log), j.timeout)
	defer cancel()

	start := time.Now()
	fn(ctx, log)
	log.Debug("job finished", "duration_ms", time.Since(start).Milliseconds())
}

func (j *Jobs) forEachType(ctx context.Context, log *slog.Logger, fn func(ctx context.Context, pt domain.PaymentType) error) {
	types, err := j.settlement.EnabledPaymentTypes(ctx)
	if err != nil {
		log.Error("failed to list payment types", "error", err)
		return
	}
	for _, pt := range types {
		if ctx.Err() != nil {
			log.Warn("job deadline reached", "remaining_from", pt.Slug)
			return
		}
		ptCtx := logging.With(ctx, "payment_type", pt.Slug)
		if err := fn(ptCtx, pt); err != nil {
			log.Error("job failed for payment type", "payment_type", pt.Slug, "error", err)
		}
	}
}

func (j *Jobs) RefreshRates() {
	j.run("rates", func(ctx context.Context, log *slog.Logger) {
		j.forEachType(ctx, log, func(ctx context.Context, pt domain.PaymentType) error {
			_, err := j.settlement.UpdateCurrenciesRate(ctx, pt)
			return err
		})
	})
}

func (j *Jobs) RefreshBalances() {
	j.run("balances", func(ctx context.Context, log *slog.Logger) {
		j.forEachType(ctx, log, func(ctx context.Context, pt domain.PaymentType) error {
			return j.settlement.UpdateBalances(ctx, pt)
		})
	})
}

func (j *Jobs) Sweep() {
	j.run("sweep", func(ctx context.Context, log *slog.Logger) {
		j.forEachType(ctx, log, func(ctx context.Context, pt domain.PaymentType) error {
			swept, err := j.settlement.WithdrawToWallets(ctx, pt)
			if len(swept) > 0 {
				log.Info("swept provider balance", "payment_type", pt.Slug, "wallets", len(swept))
			}
			return err
		})
	})
}

func (j *Jobs) CheckWithdraws() {
	j.run("withdraw_checks", func(ctx context.Context, log *slog.Logger) {
		n, err := j.settlement.CheckPendingWithdraws(ctx, j.withdrawBatch)
		if err != nil {
			log.Error("withdraw checks failed", "checked", n, "error", err)
			return
		}
		if n > 0 {
			log.Info("withdraws checked", "checked", n)
		}
	})
}

func (j *Jobs) CleanIdempotency() {
	j.run("idempotency_cleanup", func(ctx context.Context, log *slog.Logger) {
		n, err := j.replays.Purge(ctx, time.Now().UTC())
		if err != nil {
			log.Error("idempotency cleanup failed", "error", err)
			return
		}
		log.Info("expired admin replays removed", "deleted", n)
	})
}
