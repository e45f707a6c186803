// Package scheduler runs the periodic settlement jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

// Schedules are standard five-field cron specs. An empty spec disables
// the job.
type Schedules struct {
	Rates            string
	Balances         string
	Sweep            string
	WithdrawChecks   string
	IdempotencyClean string
}

type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(logging.StdLogger(logger, slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Register adds every configured job. It fails on the first invalid spec.
func (s *Scheduler) Register() error {
	entries := []struct {
		name string
		spec string
		fn   func()
	}{
		{"rates", s.schedules.Rates, s.jobs.RefreshRates},
		{"balances", s.schedules.Balances, s.jobs.RefreshBalances},
		{"sweep", s.schedules.Sweep, s.jobs.Sweep},
		{"withdraw_checks", s.schedules.WithdrawChecks, s.jobs.CheckWithdraws},
		{"idempotency_cleanup", s.schedules.IdempotencyClean, s.jobs.CleanIdempotency},
	}

	for _, e := range entries {
		if e.spec == "" {
			s.logger.Info("job disabled", "job", e.name)
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			return fmt.Errorf("Register %s: %w", e.name, err)
		}
		s.logger.Info("scheduled job", "job", e.name, "schedule", e.spec)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
