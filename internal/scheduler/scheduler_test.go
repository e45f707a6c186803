package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type fakeSettlement struct {
	mu        sync.Mutex
	types     []domain.PaymentType
	typesErr  error
	failSlug  string
	rates     []string
	balances  []string
	swept     []string
	checked   int
	checkErr  error
	batchSeen int
}

func (f *fakeSettlement) EnabledPaymentTypes(context.Context) ([]domain.PaymentType, error) {
	return f.types, f.typesErr
}

func (f *fakeSettlement) record(list *[]string, pt domain.PaymentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*list = append(*list, pt.Slug)
	if pt.Slug == f.failSlug {
		return errors.New("upstream down")
	}
	return nil
}

func (f *fakeSettlement) UpdateCurrenciesRate(_ context.Context, pt domain.PaymentType) (map[string]decimal.Decimal, error) {
	return nil, f.record(&f.rates, pt)
}

func (f *fakeSettlement) UpdateBalances(_ context.Context, pt domain.PaymentType) error {
	return f.record(&f.balances, pt)
}

func (f *fakeSettlement) WithdrawToWallets(_ context.Context, pt domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error) {
	return map[uuid.UUID]decimal.Decimal{uuid.New(): decimal.NewFromInt(1)}, f.record(&f.swept, pt)
}

func (f *fakeSettlement) CheckPendingWithdraws(_ context.Context, limit int) (int, error) {
	f.batchSeen = limit
	return f.checked, f.checkErr
}

type fakeCleaner struct {
	calls   int
	cutoffs []time.Time
}

func (f *fakeCleaner) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paymentTypes(slugs ...string) []domain.PaymentType {
	out := make([]domain.PaymentType, len(slugs))
	for i, s := range slugs {
		out[i] = domain.PaymentType{ID: uuid.New(), Slug: s}
	}
	return out
}

func TestJobs_ContinuePastFailingType(t *testing.T) {
	svc := &fakeSettlement{types: paymentTypes("onchainpay", "plisio", "local"), failSlug: "plisio"}
	jobs := NewJobs(svc, &fakeCleaner{}, quietLogger(), 0, 0)

	jobs.RefreshRates()
	jobs.RefreshBalances()
	jobs.Sweep()

	want := []string{"onchainpay", "plisio", "local"}
	assert.Equal(t, want, svc.rates)
	assert.Equal(t, want, svc.balances)
	assert.Equal(t, want, svc.swept)
}

func TestJobs_ListFailureSkipsRun(t *testing.T) {
	svc := &fakeSettlement{typesErr: errors.New("db down")}
	jobs := NewJobs(svc, &fakeCleaner{}, quietLogger(), 0, 0)

	jobs.RefreshRates()
	assert.Empty(t, svc.rates)
}

func TestJobs_CheckWithdrawsUsesBatch(t *testing.T) {
	svc := &fakeSettlement{checked: 2}
	NewJobs(svc, &fakeCleaner{}, quietLogger(), 0, 25).CheckWithdraws()
	assert.Equal(t, 25, svc.batchSeen)

	svc = &fakeSettlement{}
	NewJobs(svc, &fakeCleaner{}, quietLogger(), 0, 0).CheckWithdraws()
	assert.Equal(t, 50, svc.batchSeen)
}

func TestJobs_CleanIdempotency(t *testing.T) {
	cleaner := &fakeCleaner{}
	before := time.Now().UTC()
	NewJobs(&fakeSettlement{}, cleaner, quietLogger(), 0, 0).CleanIdempotency()
	assert.Equal(t, 1, cleaner.calls)
	require.Len(t, cleaner.cutoffs, 1)
	assert.False(t, cleaner.cutoffs[0].Before(before), "purges up to now")
}

func TestScheduler_Register(t *testing.T) {
	jobs := NewJobs(&fakeSettlement{}, &fakeCleaner{}, quietLogger(), 0, 0)

	t.Run("registers configured jobs", func(t *testing.T) {
		s := NewScheduler(jobs, quietLogger(), Schedules{
			Rates:          "*/10 * * * *",
			Balances:       "*/15 * * * *",
			WithdrawChecks: "@every 5m",
		})
		require.NoError(t, s.Register())
		assert.Equal(t, 3, s.Entries())
	})

	t.Run("rejects invalid spec", func(t *testing.T) {
		s := NewScheduler(jobs, quietLogger(), Schedules{Sweep: "every hour"})
		err := s.Register()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sweep")
	})

	t.Run("start and stop", func(t *testing.T) {
		s := NewScheduler(jobs, quietLogger(), Schedules{Rates: "@hourly"})
		require.NoError(t, s.Register())
		s.Start()
		<-s.Stop().Done()
	})
}
