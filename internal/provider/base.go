package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// Base supplies the defaults for optional capabilities. Integrations embed
// it and override what they support.
type Base struct {
	Config Config
	Deps   Deps
}

func NewBase(cfg Config, deps Deps) Base {
	return Base{Config: cfg, Deps: deps.WithDefaults()}
}

func (Base) GetCurrencyRate(context.Context, domain.PaymentCurrency) decimal.Decimal {
	return decimal.NewFromInt(1)
}

func (Base) WithdrawToWallets(context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	return map[uuid.UUID]decimal.Decimal{}, nil
}

func (Base) WithdrawOrderToWallet(context.Context, domain.Order) (bool, error) {
	return true, nil
}

func (Base) WithdrawForUser(context.Context, *domain.Withdraw, string, *domain.WithdrawWallet) (string, error) {
	return "", nil
}

func (Base) CheckWithdraw(context.Context, domain.Withdraw) (bool, error) {
	return true, nil
}

func (Base) UpdateBalances(context.Context) error {
	return nil
}

func (Base) Test(context.Context) (bool, error) {
	return true, nil
}

// Now reads the injected clock in UTC.
func (b Base) Now() time.Time {
	return b.Deps.Clock.Now().UTC()
}

func (b Base) Notify(ctx context.Context, topic, msg string, fields map[string]string) {
	b.Deps.Notifier.Notify(ctx, domain.Notification{Topic: topic, Message: msg, Fields: fields})
}
