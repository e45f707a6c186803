package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type fakeEngine struct {
	types     map[string]domain.PaymentType
	testOK    bool
	quotes    map[string]decimal.Decimal
	checked   int
	limit     int
	confirmed bool
	operator  *domain.Operator
	err       error
}

func (f *fakeEngine) PaymentTypeBySlug(_ context.Context, slug string) (*domain.PaymentType, error) {
	pt, ok := f.types[slug]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &pt, nil
}

func (f *fakeEngine) Test(context.Context, domain.PaymentType) (bool, error) { return f.testOK, f.err }

func (f *fakeEngine) UpdateCurrenciesRate(context.Context, domain.PaymentType) (map[string]decimal.Decimal, error) {
	return f.quotes, f.err
}

func (f *fakeEngine) UpdateBalances(context.Context, domain.PaymentType) error { return f.err }

func (f *fakeEngine) WithdrawToWallets(context.Context, domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error) {
	return map[uuid.UUID]decimal.Decimal{}, f.err
}

func (f *fakeEngine) CheckWithdrawByID(context.Context, uuid.UUID) (bool, error) {
	return f.confirmed, f.err
}

func (f *fakeEngine) CheckPendingWithdraws(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.checked, f.err
}

func (f *fakeEngine) CreateOperator(_ context.Context, op *domain.Operator) error {
	f.operator = op
	return f.err
}

func run(t *testing.T, e *fakeEngine, args ...string) (string, error) {
	t.Helper()
	app := newApp(func(context.Context) (engine, func(), error) {
		return e, func() {}, nil
	})
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"settlementctl"}, args...))
	return out.String(), err
}

func engineWithTypes() *fakeEngine {
	return &fakeEngine{types: map[string]domain.PaymentType{
		"plisio": {ID: uuid.New(), Slug: "plisio"},
	}}
}

func TestRates(t *testing.T) {
	e := engineWithTypes()
	e.quotes = map[string]decimal.Decimal{"ETH": decimal.NewFromInt(3000), "BTC": decimal.NewFromInt(60000)}

	out, err := run(t, e, "rates", "-p", "plisio")
	require.NoError(t, err)
	assert.Equal(t, "BTC\t60000\nETH\t3000\n", out)
}

func TestUnknownPaymentType(t *testing.T) {
	_, err := run(t, engineWithTypes(), "balances", "--payment-type", "paypal")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTestCommand(t *testing.T) {
	e := engineWithTypes()
	e.testOK = true
	out, err := run(t, e, "test", "-p", "plisio")
	require.NoError(t, err)
	assert.Contains(t, out, "plisio: ok=true")

	e.testOK = false
	_, err = run(t, e, "test", "-p", "plisio")
	require.Error(t, err)
}

func TestCheckWithdraw(t *testing.T) {
	e := engineWithTypes()
	e.checked = 4
	out, err := run(t, e, "check-withdraw", "--limit", "10")
	require.NoError(t, err)
	assert.Equal(t, 10, e.limit)
	assert.Contains(t, out, "4 withdraw(s) checked")

	e.confirmed = true
	id := uuid.New()
	out, err = run(t, e, "check-withdraw", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, id.String()+": confirmed=true")

	_, err = run(t, e, "check-withdraw", "nope")
	require.Error(t, err)
}

func TestCreateOperator(t *testing.T) {
	e := engineWithTypes()
	_, err := run(t, e, "create-operator", "--email", " Ops@Example.com ", "--name", "Ops", "--password", "long-enough-password")
	require.NoError(t, err)
	require.NotNil(t, e.operator)
	assert.Equal(t, "ops@example.com", e.operator.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(e.operator.PasswordHash), []byte("long-enough-password")))

	_, err = run(t, engineWithTypes(), "create-operator", "--email", "a@b.c", "--name", "A", "--password", "short")
	require.Error(t, err)
}

func TestEngineClosedAfterCommand(t *testing.T) {
	closed := 0
	app := newApp(func(context.Context) (engine, func(), error) {
		return engineWithTypes(), func() { closed++ }, nil
	})
	app.Writer = &bytes.Buffer{}

	require.NoError(t, app.Run([]string{"settlementctl", "balances", "-p", "plisio"}))
	assert.Equal(t, 1, closed)
}

func TestEngineErrorsPropagate(t *testing.T) {
	e := engineWithTypes()
	e.err = errors.New("upstream down")
	_, err := run(t, e, "sweep", "-p", "plisio")
	assert.EqualError(t, err, "upstream down")
}
