package onchainpay

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const addressesResponse = `{"success":true,"response":[
	{"id":"a1","currency":"BTC","network":"bitcoin","address":"bc1a","balance":"0.5"},
	{"id":"a2","currency":"BTC","network":"bitcoin","address":"bc1b","balance":"0"},
	{"id":"a3","currency":"ETH","network":"ethereum","address":"0xa","balance":"3"},
	{"id":"a4","currency":"BTC","network":"bitcoin","address":"bc1c","balance":"-1"}
]}`

func sweepResponses() map[string]string {
	return map[string]string{
		"account-addresses": addressesResponse,
		"fee-token":         `{"success":true,"response":{"token":"fee-tok"}}`,
		"make-withdrawal":   `{"success":true,"response":{}}`,
		"test-signature":    `{"success":true,"response":{}}`,
	}
}

func TestWithdrawToWallets(t *testing.T) {
	f := setup(t, sweepResponses())
	mirror := f.store.AddWallet(domain.WithdrawWallet{
		CurrencyID: f.btc.ID, Wallet: "hot-btc", PaymentSystem: true, WithdrawFromPayments: true,
	})
	cold := f.store.AddWallet(domain.WithdrawWallet{
		CurrencyID: f.btc.ID, Wallet: "z-cold-btc", WithdrawFromPayments: true,
		CurrencyAmount: decimal.NewFromInt(1), Amount: decimal.NewFromInt(2),
	})

	swept, err := f.client.WithdrawToWallets(context.Background())

	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "0.5", swept[cold.ID].String())
	assert.NotContains(t, swept, mirror.ID)

	saved := f.store.Wallets[cold.ID]
	assert.Equal(t, "1.5", saved.CurrencyAmount.String())
	assert.Equal(t, "3", saved.Amount.String())
	assert.Equal(t, f.store.Wallets[mirror.ID], mirror, "mirror wallet untouched")

	entries := f.store.LedgerFor(cold.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TransactionTypeIncome, entries[0].Type)
	assert.Equal(t, "0.5", entries[0].CurrencyAmount.String())
	assert.Equal(t, "1", entries[0].Amount.String())
	assert.Equal(t, "withdraw from Onchainpay", entries[0].Comment)

	assert.Equal(t, []string{"account-addresses", "fee-token", "make-withdrawal"}, f.gateway.methods())
	assert.Contains(t, f.gateway.body("make-withdrawal"), `"address":"z-cold-btc","amount":"0.500000","feeToken":"fee-tok"`)
}

func TestWithdrawToWallets_OnlyMirrorWalletsMeansNoSweep(t *testing.T) {
	f := setup(t, sweepResponses())
	f.store.AddWallet(domain.WithdrawWallet{
		CurrencyID: f.btc.ID, Wallet: "hot-btc", PaymentSystem: true, WithdrawFromPayments: true,
	})

	swept, err := f.client.WithdrawToWallets(context.Background())

	require.NoError(t, err)
	assert.Empty(t, swept)
	assert.Equal(t, []string{"account-addresses"}, f.gateway.methods())
	assert.Empty(t, f.store.Ledger)
}

func TestWithdrawToWallets_RejectedWithdrawalRecordsNothing(t *testing.T) {
	resp := sweepResponses()
	resp["make-withdrawal"] = `{"success":false}`
	f := setup(t, resp)
	cold := f.store.AddWallet(domain.WithdrawWallet{CurrencyID: f.btc.ID, Wallet: "cold", WithdrawFromPayments: true})

	swept, err := f.client.WithdrawToWallets(context.Background())

	require.NoError(t, err)
	assert.Empty(t, swept)
	assert.Equal(t, cold, f.store.Wallets[cold.ID])
	assert.Empty(t, f.store.Ledger)
}

func TestWithdrawToWallets_ListingFailureDeclines(t *testing.T) {
	f := setup(t, map[string]string{"account-addresses": `{"success":false}`})

	swept, err := f.client.WithdrawToWallets(context.Background())

	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestWithdrawOrderToWallet(t *testing.T) {
	f := setup(t, sweepResponses())
	cold := f.store.AddWallet(domain.WithdrawWallet{CurrencyID: f.btc.ID, Wallet: "cold", WithdrawFromPayments: true})
	addr := "addr-9"
	order := f.store.AddOrder(domain.Order{
		CurrencyID:        f.btc.ID,
		CurrencyReceived:  decimal.RequireFromString("0.25"),
		Received:          decimal.RequireFromString("0.5"),
		WithdrawAddressID: &addr,
		PaymentSuccess:    true,
	})

	ok, err := f.client.WithdrawOrderToWallet(context.Background(), order)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.25", f.store.Wallets[cold.ID].CurrencyAmount.String())
	entries := f.store.LedgerFor(cold.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "0.5", entries[0].Amount.String())
	assert.Contains(t, f.gateway.body("make-withdrawal"), `"addressId":"addr-9"`)
}

func TestWithdrawOrderToWallet_SweepsOnce(t *testing.T) {
	f := setup(t, sweepResponses())
	cold := f.store.AddWallet(domain.WithdrawWallet{CurrencyID: f.btc.ID, Wallet: "cold", WithdrawFromPayments: true})
	addr := "addr-9"
	order := f.store.AddOrder(domain.Order{
		CurrencyID:        f.btc.ID,
		CurrencyReceived:  decimal.RequireFromString("0.25"),
		Received:          decimal.RequireFromString("0.5"),
		WithdrawAddressID: &addr,
		PaymentSuccess:    true,
	})

	ok, err := f.client.WithdrawOrderToWallet(context.Background(), order)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.client.WithdrawOrderToWallet(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "0.25", f.store.Wallets[cold.ID].CurrencyAmount.String())
	assert.Len(t, f.store.LedgerFor(cold.ID), 1)
	withdrawals := 0
	for _, m := range f.gateway.methods() {
		if m == "make-withdrawal" {
			withdrawals++
		}
	}
	assert.Equal(t, 1, withdrawals)
	assert.NotNil(t, f.store.Orders[order.ID].SweptAt)
}

func TestWithdrawOrderToWallet_DeclinedReleasesClaim(t *testing.T) {
	resp := sweepResponses()
	resp["make-withdrawal"] = `{"success":false}`
	f := setup(t, resp)
	f.store.AddWallet(domain.WithdrawWallet{CurrencyID: f.btc.ID, Wallet: "cold", WithdrawFromPayments: true})
	addr := "addr-9"
	order := f.store.AddOrder(domain.Order{
		CurrencyID:        f.btc.ID,
		CurrencyReceived:  decimal.RequireFromString("0.25"),
		WithdrawAddressID: &addr,
		PaymentSuccess:    true,
	})

	ok, err := f.client.WithdrawOrderToWallet(context.Background(), order)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, f.store.Orders[order.ID].SweptAt, "a retry may sweep again")
	assert.Empty(t, f.store.Ledger)
}

func TestWithdrawOrderToWallet_NoAddress(t *testing.T) {
	f := setup(t, sweepResponses())

	ok, err := f.client.WithdrawOrderToWallet(context.Background(), domain.Order{CurrencyID: f.btc.ID})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.gateway.methods())
}

func TestTest(t *testing.T) {
	resp := sweepResponses()
	resp["available-currencies"] = `{"success":true,"response":[
		{"currency":"BTC","alias":"Bitcoin","allowDeposit":true,"allowWithdrawal":true,
		 "networks":[{"name":"bitcoin","alias":"BTC","allowDeposit":true,"allowWithdrawal":true},
		             {"name":"lightning","alias":"LN","allowDeposit":true,"allowWithdrawal":false}]},
		{"currency":"XMR","alias":"Monero","allowDeposit":false,"allowWithdrawal":true,"networks":[]}]}`
	resp["advanced-balances"] = `{"success":true,"response":[]}`
	f := setup(t, resp)

	ok, err := f.client.Test(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.gateway.methods(), "test-signature")

	currencies, err := f.client.AvailableCurrencies(context.Background())
	require.NoError(t, err)
	require.Len(t, currencies, 1)
	assert.Equal(t, []Network{{Name: "bitcoin", Alias: "BTC"}}, currencies[0].Networks)
}

func TestTest_BadSignature(t *testing.T) {
	resp := sweepResponses()
	resp["test-signature"] = `{"success":false}`
	f := setup(t, resp)

	ok, err := f.client.Test(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}
