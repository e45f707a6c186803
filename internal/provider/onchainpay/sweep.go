package onchainpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

// Address is a provider-held deposit address.
type Address struct {
	ID       string          `json:"id"`
	Currency string          `json:"currency"`
	Network  string          `json:"network"`
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"`
}

func (c *Client) addresses(ctx context.Context) ([]Address, error) {
	var out []Address
	err := c.call(ctx, "account-addresses", signer.Fields{
		{Key: "advancedBalanceId", Value: c.Config.AdvancedBalance},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("addresses: %w", err)
	}
	return out, nil
}

type feeToken struct {
	Token string `json:"token"`
}

// withdraw moves amount from a provider address to an external address.
// It reports whether the provider accepted the withdrawal.
func (c *Client) withdraw(ctx context.Context, addressID, address string, amount decimal.Decimal) (bool, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "address_id", addressID)

	var fee feeToken
	err := c.call(ctx, "fee-token", signer.Fields{
		{Key: "advancedBalanceId", Value: c.Config.AdvancedBalance},
		{Key: "addressId", Value: addressID},
	}, &fee)
	if err != nil {
		return false, provider.Escalate(err)
	}

	err = c.call(ctx, "make-withdrawal", signer.Fields{
		{Key: "advancedBalanceId", Value: c.Config.AdvancedBalance},
		{Key: "addressId", Value: addressID},
		{Key: "address", Value: address},
		{Key: "amount", Value: fx.Format(amount)},
		{Key: "feeToken", Value: fee.Token},
	}, nil)
	if err != nil {
		return false, provider.Escalate(err)
	}
	log.Info("withdrawal submitted", "to", address, "amount", fx.Format(amount))
	return true, nil
}

// WithdrawToWallets sweeps every funded provider address into a randomly
// chosen custody wallet of the same currency and network.
func (c *Client) WithdrawToWallets(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	log := logging.FromContext(ctx).With("provider", Slug)
	swept := map[uuid.UUID]decimal.Decimal{}

	addrs, err := c.addresses(ctx)
	if err != nil {
		if esc := provider.Escalate(err); esc != nil {
			return nil, fmt.Errorf("WithdrawToWallets: %w", esc)
		}
		log.Warn("sweep skipped, address listing failed", "error", err)
		return swept, nil
	}

	targets, err := c.Deps.Store.SweepTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	groups := provider.GroupTargets(targets)
	if len(groups) == 0 {
		return swept, nil
	}

	var errs []error
	for _, a := range addrs {
		if !a.Balance.IsPositive() {
			continue
		}
		target, ok := provider.PickTarget(groups[provider.GroupKey(a.Currency, a.Network)], c.Deps.Pick)
		if !ok {
			continue
		}

		sent, err := c.withdraw(ctx, a.ID, target.Wallet.Wallet, a.Balance)
		if err != nil {
			return swept, fmt.Errorf("WithdrawToWallets: %w", err)
		}
		if !sent {
			continue
		}

		err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			_, err := provider.CreditWallet(ctx, tx, provider.Movement{
				WalletID:       target.Wallet.ID,
				CurrencyID:     target.Currency.ID,
				Type:           domain.TransactionTypeIncome,
				CurrencyAmount: a.Balance,
				Rate:           target.Currency.Rate,
				Comment:        "withdraw from Onchainpay",
				At:             c.Now(),
			})
			return err
		})
		if err != nil {
			log.Error("swept funds not recorded", "address_id", a.ID, "wallet_id", target.Wallet.ID, "amount", a.Balance, "error", err)
			errs = append(errs, err)
			continue
		}
		swept[target.Wallet.ID] = swept[target.Wallet.ID].Add(a.Balance)
	}

	if err := errors.Join(errs...); err != nil {
		return swept, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	return swept, nil
}

// WithdrawOrderToWallet sweeps the deposit address of one paid order. The
// order is claimed first so its deposit is moved at most once; a declined
// or failed withdrawal gives the claim back.
func (c *Client) WithdrawOrderToWallet(ctx context.Context, order domain.Order) (bool, error) {
	if order.WithdrawAddressID == nil || !order.CurrencyReceived.IsPositive() {
		return false, nil
	}

	targets, err := c.Deps.Store.SweepTargets(ctx)
	if err != nil {
		return false, fmt.Errorf("WithdrawOrderToWallet: %w", err)
	}
	target, ok := provider.PickTarget(provider.TargetsForCurrency(targets, order.CurrencyID), c.Deps.Pick)
	if !ok {
		return false, nil
	}

	log := logging.FromContext(ctx).With("provider", Slug, "order_id", order.ID)
	var claimed bool
	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		var err error
		claimed, err = tx.ClaimOrderSweep(ctx, order.ID, c.Now())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("WithdrawOrderToWallet: %w", err)
	}
	if !claimed {
		log.Info("order deposit already swept")
		return false, nil
	}

	sent, err := c.withdraw(ctx, *order.WithdrawAddressID, target.Wallet.Wallet, order.CurrencyReceived)
	if err != nil || !sent {
		unclaimErr := c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			return tx.UnclaimOrderSweep(ctx, order.ID)
		})
		if unclaimErr != nil {
			log.Error("order sweep claim not released", "error", unclaimErr)
		}
		return false, err
	}

	err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		_, err := provider.CreditWallet(ctx, tx, provider.Movement{
			WalletID:       target.Wallet.ID,
			CurrencyID:     target.Currency.ID,
			Type:           domain.TransactionTypeIncome,
			CurrencyAmount: order.CurrencyReceived,
			Rate:           target.Currency.Rate,
			Comment:        "withdraw order " + order.ID.String() + " from Onchainpay",
			At:             c.Now(),
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("WithdrawOrderToWallet: %w", err)
	}
	return true, nil
}

// GetCurrencyRate quotes the currency against USDT. Quotes are cached.
func (c *Client) GetCurrencyRate(ctx context.Context, currency domain.PaymentCurrency) decimal.Decimal {
	if currency.IsPegged() {
		return decimal.NewFromInt(1)
	}

	rate, err := ratecache.Fetch(ctx, c.Deps.Rates, "onchainpay:price-rate:"+currency.Slug, func(ctx context.Context) (decimal.Decimal, error) {
		var r decimal.Decimal
		err := c.call(ctx, "price-rate", signer.Fields{
			{Key: "from", Value: currency.Slug},
			{Key: "to", Value: "USDT"},
		}, &r)
		return r, err
	})
	if err != nil {
		logging.FromContext(ctx).Warn("rate lookup failed", "provider", Slug, "currency", currency.Slug, "error", err)
		return decimal.Zero
	}
	return rate
}

type Network struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// Currency is a currency both depositable and withdrawable at the gateway.
type Currency struct {
	Name     string    `json:"name"`
	Alias    string    `json:"alias"`
	Networks []Network `json:"networks"`
}

// AvailableCurrencies lists currencies and networks that allow both
// deposit and withdrawal.
func (c *Client) AvailableCurrencies(ctx context.Context) ([]Currency, error) {
	var raw []struct {
		Currency        string `json:"currency"`
		Alias           string `json:"alias"`
		AllowDeposit    bool   `json:"allowDeposit"`
		AllowWithdrawal bool   `json:"allowWithdrawal"`
		Networks        []struct {
			Name            string `json:"name"`
			Alias           string `json:"alias"`
			AllowDeposit    bool   `json:"allowDeposit"`
			AllowWithdrawal bool   `json:"allowWithdrawal"`
		} `json:"networks"`
	}
	if err := c.call(ctx, "available-currencies", nil, &raw); err != nil {
		return nil, fmt.Errorf("AvailableCurrencies: %w", err)
	}

	var out []Currency
	for _, rc := range raw {
		if !rc.AllowDeposit || !rc.AllowWithdrawal {
			continue
		}
		cur := Currency{Name: rc.Currency, Alias: rc.Alias}
		for _, n := range rc.Networks {
			if n.AllowDeposit && n.AllowWithdrawal {
				cur.Networks = append(cur.Networks, Network{Name: n.Name, Alias: n.Alias})
			}
		}
		out = append(out, cur)
	}
	return out, nil
}

// AdvancedBalances returns the raw advanced balance listing.
func (c *Client) AdvancedBalances(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call(ctx, "advanced-balances", nil, &out); err != nil {
		return nil, fmt.Errorf("AdvancedBalances: %w", err)
	}
	return out, nil
}

// Test sweeps pending balances and then checks the request signature
// against the gateway.
func (c *Client) Test(ctx context.Context) (bool, error) {
	log := logging.FromContext(ctx).With("provider", Slug)

	if _, err := c.WithdrawToWallets(ctx); err != nil {
		return false, fmt.Errorf("Test: %w", err)
	}
	if err := c.call(ctx, "test-signature", nil, nil); err != nil {
		if esc := provider.Escalate(err); esc != nil {
			return false, fmt.Errorf("Test: %w", esc)
		}
		log.Warn("signature check failed", "error", err)
		return false, nil
	}

	if currencies, err := c.AvailableCurrencies(ctx); err != nil {
		log.Warn("currency listing failed", "error", err)
	} else {
		log.Info("gateway currencies", "count", len(currencies))
	}
	if balances, err := c.AdvancedBalances(ctx); err != nil {
		log.Warn("advanced balance listing failed", "error", err)
	} else {
		log.Debug("advanced balances", "response", string(balances))
	}
	return true, nil
}
