package app

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/provider/providertest"
)

func TestNewRegistry(t *testing.T) {
	cfg := &config.Config{PayoutReserveRatio: decimal.RequireFromString("0.5")}
	reg := NewRegistry(cfg, provider.Deps{Store: providertest.NewStore()})

	slugs := reg.Slugs()
	sort.Strings(slugs)
	assert.Equal(t, []string{"local", "onchainpay", "plisio", "ukbank"}, slugs)

	for _, slug := range slugs {
		p, err := reg.Resolve(domain.PaymentType{ID: uuid.New(), Slug: slug})
		require.NoError(t, err, slug)
		assert.NotNil(t, p)
	}

	_, err := reg.Resolve(domain.PaymentType{Slug: "paypal"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestCallbackURL(t *testing.T) {
	id := uuid.MustParse("6f1c2d7e-8a1b-4c3d-9e0f-112233445566")

	assert.Equal(t,
		"https://pay.example.com/api/payment-callback/6f1c2d7e-8a1b-4c3d-9e0f-112233445566",
		CallbackURL("https://pay.example.com/")(id),
	)
}
