package provider

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

func TestGroupTargets_DropsMirrorWallets(t *testing.T) {
	btc := domain.PaymentCurrency{ID: uuid.New(), Slug: "BTC", Network: "bitcoin"}
	usdt := domain.PaymentCurrency{ID: uuid.New(), Slug: "USDT", Network: "tron"}

	targets := []SweepTarget{
		{Wallet: domain.WithdrawWallet{Wallet: "cold-btc-1", WithdrawFromPayments: true}, Currency: btc},
		{Wallet: domain.WithdrawWallet{Wallet: "cold-btc-2", WithdrawFromPayments: true}, Currency: btc},
		{Wallet: domain.WithdrawWallet{Wallet: "hot-btc", WithdrawFromPayments: true, PaymentSystem: true}, Currency: btc},
		{Wallet: domain.WithdrawWallet{Wallet: "cold-usdt", WithdrawFromPayments: true}, Currency: usdt},
		{Wallet: domain.WithdrawWallet{Wallet: "idle", WithdrawFromPayments: false}, Currency: usdt},
	}

	groups := GroupTargets(targets)

	assert.Len(t, groups, 2)
	assert.Len(t, groups["BTC-bitcoin"], 2)
	assert.Len(t, groups["USDT-tron"], 1)
	for _, g := range groups {
		for _, tgt := range g {
			assert.False(t, tgt.Wallet.PaymentSystem)
		}
	}

	assert.Len(t, TargetsForCurrency(targets, btc.ID), 2)
}

func TestPickTarget(t *testing.T) {
	c := []SweepTarget{{Wallet: domain.WithdrawWallet{Wallet: "a"}}, {Wallet: domain.WithdrawWallet{Wallet: "b"}}}

	got, ok := PickTarget(c, func(n int) int { return n - 1 })
	assert.True(t, ok)
	assert.Equal(t, "b", got.Wallet.Wallet)

	_, ok = PickTarget(nil, func(int) int { return 0 })
	assert.False(t, ok)
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 10, 18, 15, 4, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 12, 0, 0, 1, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StartOfWeek(tt.in), tt.in.Weekday().String())
	}
}
