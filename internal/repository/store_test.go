package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/testutil"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStore_Catalog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "plisio", "secret")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	testutil.SeedCurrency(t, db, pt.ID, "ETH", "ethereum", d("3000"))

	got, err := store.PaymentTypeBySlug(ctx, "plisio")
	require.NoError(t, err)
	assert.Equal(t, pt.ID, got.ID)
	require.NotNil(t, got.PrivateKey)
	assert.Equal(t, "secret", *got.PrivateKey)
	assert.Nil(t, got.PublicKey)

	_, err = store.PaymentTypeBySlug(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	enabled, err := store.EnabledPaymentTypes(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	currencies, err := store.CurrenciesByType(ctx, pt.ID)
	require.NoError(t, err)
	require.Len(t, currencies, 2)
	assert.Equal(t, "BTC", currencies[0].Slug)

	require.NoError(t, store.SaveCurrencyRate(ctx, btc.ID, d("64000.5")))
	cur, err := store.Currency(ctx, btc.ID)
	require.NoError(t, err)
	assert.True(t, d("64000.5").Equal(cur.Rate))

	assert.ErrorIs(t, store.SaveCurrencyRate(ctx, uuid.New(), d("1")), domain.ErrNotFound)
}

func TestStore_SaveOrderVersioned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "onchainpay", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	seeded := testutil.SeedOrder(t, db, uuid.New(), btc.ID, d("100"))

	order, err := store.Order(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Nil(t, order.Transactions)
	assert.Nil(t, order.MinAcceptableAmount)

	stale := *order
	paymentID := "inv-1"
	order.PaymentID = &paymentID
	order.PaymentSuccess = true
	order.CurrencyReceived = d("0.002")
	order.CurrencyAmount = d("0.002")
	order.Received = d("120")
	order.Amount = d("120")
	order.Transactions = json.RawMessage(`[{"hash":"0xabc"}]`)

	err = store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, order)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.Version)

	err = store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, &stale)
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := store.Order(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentSuccess)
	assert.Equal(t, domain.OrderStateSucceeded, got.State())
	assert.True(t, got.HasPaymentID("inv-1"))
	assert.JSONEq(t, `[{"hash":"0xabc"}]`, string(got.Transactions))
	assert.True(t, d("0.002").Equal(got.CurrencyReceived))
	assert.True(t, d("0.002").Equal(got.CurrencyAmount))
	assert.True(t, d("120").Equal(got.Received))
	assert.True(t, d("120").Equal(got.Amount), "overpaid amount must be persisted")
}

func TestStore_ClaimOrderSweep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "onchainpay", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	seeded := testutil.SeedOrder(t, db, uuid.New(), btc.ID, d("100"))
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	claim := func() bool {
		var claimed bool
		require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			var err error
			claimed, err = tx.ClaimOrderSweep(ctx, seeded.ID, at)
			return err
		}))
		return claimed
	}

	assert.True(t, claim())
	assert.False(t, claim(), "second claim loses")

	order, err := store.Order(ctx, seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, order.SweptAt)
	assert.True(t, at.Equal(*order.SweptAt))
	assert.Equal(t, int64(0), order.Version)

	order.PaymentSuccess = true
	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveOrder(ctx, order)
	}))
	got, err := store.Order(ctx, seeded.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SweptAt, "settlement saves keep the claim")

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.UnclaimOrderSweep(ctx, seeded.ID)
	}))
	assert.True(t, claim())
}

func TestStore_CreditWalletCommitsWithLedger(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "plisio", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	mirror := testutil.SeedWithdrawWallet(t, db, btc.ID, "plisio-btc", true, d("0.1"), d("6000"))

	err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		_, err := provider.CreditWallet(ctx, tx, provider.Movement{
			WalletID:       mirror.ID,
			CurrencyID:     btc.ID,
			Type:           domain.TransactionTypeIncome,
			CurrencyAmount: d("0.05"),
			Rate:           btc.Rate,
			Comment:        "income",
			At:             time.Now().UTC(),
		})
		return err
	})
	require.NoError(t, err)

	ca, amount := testutil.GetWalletBalance(t, db, mirror.ID)
	assert.True(t, d("0.15").Equal(ca), ca.String())
	assert.True(t, d("9000").Equal(amount), amount.String())

	entries, total, err := store.LedgerForWallet(ctx, mirror.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TransactionTypeIncome, entries[0].Type)
	assert.True(t, d("3000").Equal(entries[0].Amount))
}

func TestStore_AtomicRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "plisio", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	mirror := testutil.SeedWithdrawWallet(t, db, btc.ID, "plisio-btc", true, d("1"), d("60000"))
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		if _, err := provider.CreditWallet(ctx, tx, provider.Movement{
			WalletID: mirror.ID, CurrencyID: btc.ID, Type: domain.TransactionTypeOutcome,
			CurrencyAmount: d("-0.5"), Rate: btc.Rate, At: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	ca, _ := testutil.GetWalletBalance(t, db, mirror.ID)
	assert.True(t, d("1").Equal(ca))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, db, mirror.ID))
}

func TestStore_ConcurrentWalletSavesConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "plisio", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	mirror := testutil.SeedWithdrawWallet(t, db, btc.ID, "plisio-btc", true, d("1"), d("60000"))
	snapshot, err := store.ProviderWallet(ctx, btc.ID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := *snapshot
			w.CurrencyAmount = d("2").Add(decimal.NewFromInt(int64(i)))
			err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
				return tx.SaveWallet(ctx, &w)
			})
			if errors.Is(err, domain.ErrVersionConflict) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, conflicts)
	got, err := store.ProviderWallet(ctx, btc.ID)
	require.NoError(t, err)
	assert.Equal(t, mirror.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_SweepTargetsSkipMirrors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "onchainpay", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	testutil.SeedWithdrawWallet(t, db, btc.ID, "mirror", true, d("0"), d("0"))
	cold := testutil.SeedWithdrawWallet(t, db, btc.ID, "cold", false, d("0"), d("0"))

	targets, err := store.SweepTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, cold.ID, targets[0].Wallet.ID)
	assert.Equal(t, "bitcoin", targets[0].Currency.Network)
	assert.True(t, targets[0].Wallet.AcceptsSweeps())

	_, err = store.ProviderWallet(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UserBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "local", "")
	usd := testutil.SeedCurrency(t, db, pt.ID, "USD", "", d("1"))
	userID := uuid.New()
	testutil.SeedBalance(t, db, userID, d("50"))
	order := testutil.SeedOrder(t, db, userID, usd.ID, d("80"))

	err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.ChargeUser(ctx, userID, d("80"), order.ID)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.ChargeUser(ctx, userID, d("30"), order.ID)
	})
	require.NoError(t, err)

	bal, err := store.UserBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, d("20").Equal(bal), bal.String())

	dest := testutil.SeedUserWallet(t, db, userID, usd.ID, "addr")
	w := testutil.SeedWithdraw(t, db, dest, d("15"), d("15"))
	release := func() bool {
		var released bool
		err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			var err error
			released, err = tx.ReleaseWithdraw(ctx, &w)
			return err
		})
		require.NoError(t, err)
		return released
	}
	assert.True(t, release())
	assert.False(t, w.Moderated)
	assert.False(t, release(), "a released withdraw is not released again")

	bal, err = store.UserBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, d("35").Equal(bal), bal.String())

	got, err := store.Withdraw(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.Moderated)
	assert.Nil(t, got.ModeratedAt)

	none, err := store.UserBalance(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestStore_WithdrawChecksAndLiability(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewStore(db)
	ctx := context.Background()

	pt := testutil.SeedPaymentType(t, db, "plisio", "k")
	btc := testutil.SeedCurrency(t, db, pt.ID, "BTC", "bitcoin", d("60000"))
	dest := testutil.SeedUserWallet(t, db, uuid.New(), btc.ID, "bc1")
	sent := testutil.SeedWithdraw(t, db, dest, d("600"), d("0.01"))
	testutil.SeedWithdraw(t, db, dest, d("300"), d("0.005"))

	txID := "0xfeed"
	sent.TxID = &txID
	err := store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		return tx.SaveWithdraw(ctx, &sent)
	})
	require.NoError(t, err)

	pending, err := store.PendingWithdrawChecks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sent.ID, pending[0].ID)
	require.NotNil(t, pending[0].TxID)
	assert.Equal(t, txID, *pending[0].TxID)

	err = store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		missing := domain.Withdraw{ID: uuid.New()}
		return tx.SaveWithdraw(ctx, &missing)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	testutil.SeedPayout(t, db, monday.Add(-time.Hour), d("1000"))
	testutil.SeedPayout(t, db, monday, d("100"))
	testutil.SeedPayout(t, db, monday.Add(48*time.Hour), d("50.5"))

	total, err := store.PayoutLiabilitySince(ctx, monday)
	require.NoError(t, err)
	assert.True(t, d("150.5").Equal(total), total.String())
}

func TestWebhookEventRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewWebhookEventRepository(db)
	ctx := context.Background()

	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: "key-1",
		OrderID:        uuid.New(),
		Headers:        http.Header{"X-Api-Signature": {"abc"}},
		Query:          "a=1",
		Payload:        []byte(`{"status":"processed"}`),
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, repo.Create(ctx, event))

	dup := *event
	dup.ID = uuid.New()
	err := repo.Create(ctx, &dup)
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code)

	pending, err := repo.GetPending(ctx, 30, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "abc", pending[0].Headers.Get("X-Api-Signature"))
	assert.Equal(t, event.Payload, pending[0].Payload)

	fresh, err := repo.GetPending(ctx, 120, 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	require.NoError(t, repo.UpdateStatus(ctx, event.ID, domain.WebhookEventStatusDispatched))
	got, err := repo.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusDispatched, got.Status)
	assert.Equal(t, 1, got.Attempts)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), domain.WebhookEventStatusFailed), domain.ErrNotFound)
}

func TestOperatorRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOperatorRepository(db)

	seeded := testutil.SeedOperator(t, db, "ops@example.com")

	got, err := repo.GetByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)

	_, err = repo.GetByEmail(context.Background(), "who@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	created := &domain.Operator{ID: uuid.New(), Email: "new@example.com", Name: "New", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), created))
	assert.False(t, created.CreatedAt.IsZero())

	dup := &domain.Operator{ID: uuid.New(), Email: "ops@example.com", Name: "Dup", PasswordHash: "hash"}
	assert.ErrorIs(t, repo.Create(context.Background(), dup), domain.ErrAlreadyExists)
}
