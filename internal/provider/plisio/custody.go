package plisio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/ratecache"
)

const currenciesCacheKey = "plisio:currencies"

type priceQuote struct {
	Currency string          `json:"currency"`
	PriceUSD decimal.Decimal `json:"price_usd"`
}

// GetCurrencyRate reads the USD price from the currency listing, which is
// cached as a whole.
func (c *Client) GetCurrencyRate(ctx context.Context, currency domain.PaymentCurrency) decimal.Decimal {
	if currency.IsPegged() {
		return decimal.NewFromInt(1)
	}

	prices, err := ratecache.Fetch(ctx, c.Deps.Rates, currenciesCacheKey, func(ctx context.Context) (map[string]decimal.Decimal, error) {
		var quotes []priceQuote
		if err := c.call(ctx, "currencies", nil, &quotes); err != nil {
			return nil, err
		}
		out := make(map[string]decimal.Decimal, len(quotes))
		for _, q := range quotes {
			out[q.Currency] = q.PriceUSD
		}
		return out, nil
	})
	if err != nil {
		logging.FromContext(ctx).Warn("rate lookup failed", "provider", Slug, "currency", currency.PaymentSlug, "error", err)
		return decimal.Zero
	}
	return prices[currency.PaymentSlug]
}

type balanceResponse struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// balance returns the provider balance of one currency. ok is false when
// the provider declined the query.
func (c *Client) balance(ctx context.Context, paymentSlug string) (decimal.Decimal, bool, error) {
	var resp balanceResponse
	if err := c.call(ctx, "balances/"+url.PathEscape(paymentSlug), nil, &resp); err != nil {
		return decimal.Zero, false, provider.Escalate(err)
	}
	return resp.Balance, true, nil
}

type currencyBalance struct {
	Currency domain.PaymentCurrency
	Balance  decimal.Decimal
}

func (c *Client) balances(ctx context.Context) ([]currencyBalance, error) {
	currencies, err := c.Deps.Store.CurrenciesByType(ctx, c.Config.Type.ID)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	var out []currencyBalance
	for _, cur := range currencies {
		bal, ok, err := c.balance(ctx, cur.PaymentSlug)
		if err != nil {
			return nil, fmt.Errorf("balances: %w", err)
		}
		if ok {
			out = append(out, currencyBalance{Currency: cur, Balance: bal})
		}
	}
	return out, nil
}

// UpdateBalances overwrites each mirror wallet with the provider balance.
func (c *Client) UpdateBalances(ctx context.Context) error {
	log := logging.FromContext(ctx).With("provider", Slug)

	bals, err := c.balances(ctx)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	var errs []error
	for _, b := range bals {
		mirror, err := c.Deps.Store.ProviderWallet(ctx, b.Currency.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			w, err := tx.WalletForUpdate(ctx, mirror.ID)
			if err != nil {
				return err
			}
			w.CurrencyAmount = b.Balance
			w.Amount = fx.ToBase(b.Balance, b.Currency.Rate)
			w.UpdatedAt = c.Now()
			return tx.SaveWallet(ctx, w)
		})
		if err != nil {
			log.Error("mirror balance not saved", "wallet_id", mirror.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		log.Info("mirror balance refreshed", "currency", b.Currency.PaymentSlug, "balance", b.Balance)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}
	return nil
}

type withdrawResponse struct {
	ID   string          `json:"id"`
	TxID json.RawMessage `json:"tx_id"`
}

// firstTxID accepts a single id or a list of ids.
func (r withdrawResponse) firstTxID() string {
	var one string
	if err := json.Unmarshal(r.TxID, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(r.TxID, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (c *Client) cashOut(ctx context.Context, paymentSlug, to string, amount decimal.Decimal) (withdrawResponse, error) {
	var resp withdrawResponse
	err := c.call(ctx, "operations/withdraw", url.Values{
		"currency": {paymentSlug},
		"type":     {"cash_out"},
		"to":       {to},
		"amount":   {fx.Format(amount)},
	}, &resp)
	return resp, err
}

// WithdrawToWallets sweeps each currency balance above this week's payout
// reserve into a random custody wallet. The mirror wallet keeps the reserve.
func (c *Client) WithdrawToWallets(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	log := logging.FromContext(ctx).With("provider", Slug)
	swept := map[uuid.UUID]decimal.Decimal{}

	bals, err := c.balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	targets, err := c.Deps.Store.SweepTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	liability, err := c.Deps.Store.PayoutLiabilitySince(ctx, provider.StartOfWeek(c.Now()))
	if err != nil {
		return nil, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	reserve := liability.Mul(c.reserveRatio)

	var errs []error
	for _, b := range bals {
		if !b.Balance.IsPositive() {
			continue
		}
		cur := b.Currency

		target, ok := provider.PickTarget(provider.TargetsForCurrency(targets, cur.ID), c.Deps.Pick)
		if !ok {
			continue
		}
		mirror, err := c.Deps.Store.ProviderWallet(ctx, cur.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if reserve.GreaterThan(b.Balance) {
			c.Notify(ctx, domain.TopicSweepTopUpRequired,
				fmt.Sprintf("Top up %s by %s, wallet %s", cur.PaymentSlug, reserve.Sub(b.Balance).String(), mirror.Wallet),
				map[string]string{
					"currency": cur.PaymentSlug,
					"balance":  b.Balance.String(),
					"reserve":  reserve.String(),
					"wallet":   mirror.Wallet,
				})
			continue
		}

		amount := b.Balance.Sub(reserve).Round(fx.SweepPlaces(cur.Rate))
		if !amount.IsPositive() {
			continue
		}
		if _, err := c.cashOut(ctx, cur.PaymentSlug, target.Wallet.Wallet, amount); err != nil {
			if esc := provider.Escalate(err); esc != nil {
				return swept, fmt.Errorf("WithdrawToWallets: %w", esc)
			}
			log.Warn("sweep withdrawal declined", "currency", cur.PaymentSlug, "error", err)
			continue
		}

		err = c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
			return c.recordSweep(ctx, tx, cur, mirror.ID, target.Wallet.ID, b.Balance, amount, reserve)
		})
		if err != nil {
			log.Error("swept funds not recorded", "currency", cur.PaymentSlug, "wallet_id", target.Wallet.ID, "amount", amount, "error", err)
			errs = append(errs, err)
			continue
		}
		swept[target.Wallet.ID] = swept[target.Wallet.ID].Add(amount)
		log.Info("balance swept", "currency", cur.PaymentSlug, "to", target.Wallet.Wallet, "amount", fx.Format(amount))
	}

	if err := errors.Join(errs...); err != nil {
		return swept, fmt.Errorf("WithdrawToWallets: %w", err)
	}
	return swept, nil
}

// recordSweep books a sweep as a transfer out of the mirror wallet and into
// the destination.
func (c *Client) recordSweep(ctx context.Context, tx provider.Tx, cur domain.PaymentCurrency, mirrorID, destID uuid.UUID, balance, amount, reserve decimal.Decimal) error {
	now := c.Now()

	mirror, err := tx.WalletForUpdate(ctx, mirrorID)
	if err != nil {
		return err
	}
	remainder := balance.Sub(amount)
	mirror.CurrencyAmount = remainder
	mirror.Amount = fx.ToBase(remainder, cur.Rate)
	mirror.SafeBalance = &reserve
	mirror.UpdatedAt = now
	if err := tx.SaveWallet(ctx, mirror); err != nil {
		return err
	}
	out := provider.Movement{
		WalletID:       mirrorID,
		CurrencyID:     cur.ID,
		Type:           domain.TransactionTypeTransfer,
		CurrencyAmount: amount.Neg(),
		Rate:           cur.Rate,
		Comment:        "withdraw from Plisio(outcome)",
		At:             now,
	}
	if err := provider.AppendEntry(ctx, tx, out, fx.ToBase(amount, cur.Rate).Neg()); err != nil {
		return err
	}

	_, err = provider.CreditWallet(ctx, tx, provider.Movement{
		WalletID:       destID,
		CurrencyID:     cur.ID,
		Type:           domain.TransactionTypeTransfer,
		CurrencyAmount: amount,
		Rate:           cur.Rate,
		Comment:        "withdraw from Plisio(income)",
		At:             now,
	})
	return err
}

// WithdrawForUser pays a user withdraw from the provider balance. ww is
// refreshed with the provider balance before the payout is attempted.
func (c *Client) WithdrawForUser(ctx context.Context, w *domain.Withdraw, address string, ww *domain.WithdrawWallet) (string, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "withdraw_id", w.ID)

	cur, err := c.Deps.Store.Currency(ctx, w.CurrencyID)
	if err != nil {
		return "", fmt.Errorf("WithdrawForUser: %w", err)
	}

	bal, ok, err := c.balance(ctx, cur.PaymentSlug)
	if err != nil {
		return "", fmt.Errorf("WithdrawForUser: %w", err)
	}
	if !ok || !bal.IsPositive() {
		log.Warn("payout declined, provider balance unavailable")
		return "", nil
	}
	ww.CurrencyAmount = bal
	ww.Amount = fx.ToBase(bal, cur.Rate)

	if bal.LessThan(w.CurrencyAmount) {
		c.Notify(ctx, domain.TopicPayoutInsufficient,
			fmt.Sprintf("Withdraw %s %s: insufficient provider balance %s/%s, top up wallet %s", w.ID, cur.Name, bal, w.CurrencyAmount, ww.Wallet),
			map[string]string{
				"withdraw_id": w.ID.String(),
				"balance":     bal.String(),
				"amount":      w.CurrencyAmount.String(),
				"wallet":      ww.Wallet,
			})
		return "", nil
	}

	resp, err := c.cashOut(ctx, cur.PaymentSlug, address, w.CurrencyAmount)
	if err != nil {
		if esc := provider.Escalate(err); esc != nil {
			return "", fmt.Errorf("WithdrawForUser: %w", esc)
		}
		if apiMessage(err) == invalidAddressMessage {
			return "", c.rejectAddress(ctx, w)
		}
		c.Notify(ctx, domain.TopicPayoutFailed, fmt.Sprintf("Withdraw %s %s failed: %s", w.ID, cur.Name, apiMessage(err)), map[string]string{
			"withdraw_id": w.ID.String(),
		})
		return "", nil
	}

	txID := resp.firstTxID()
	if txID == "" {
		log.Error("payout accepted without tx id", "operation_id", resp.ID)
		return "", fmt.Errorf("WithdrawForUser: operation %q returned no tx id: %w", resp.ID, domain.ErrInvariantViolation)
	}
	if resp.ID != "" {
		w.PaymentID = &resp.ID
	}
	w.TxID = &txID
	log.Info("payout sent", "operation_id", resp.ID, "tx_id", txID)
	return txID, nil
}

// rejectAddress sends the withdraw back to moderation and returns the held
// amount to the user.
func (c *Client) rejectAddress(ctx context.Context, w *domain.Withdraw) error {
	var released bool
	err := c.Deps.Store.Atomic(ctx, func(ctx context.Context, tx provider.Tx) error {
		var err error
		released, err = tx.ReleaseWithdraw(ctx, w)
		return err
	})
	if err != nil {
		return fmt.Errorf("rejectAddress: %w", err)
	}
	if !released {
		return fmt.Errorf("rejectAddress: withdraw %s is no longer held: %w", w.ID, domain.ErrVersionConflict)
	}
	c.Notify(ctx, domain.TopicPayoutInvalidAddress, fmt.Sprintf("Withdraw %s: destination address is invalid", w.ID), map[string]string{
		"withdraw_id": w.ID.String(),
	})
	return nil
}

type operationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CheckWithdraw reports whether a submitted payout completed. A failed
// query is returned as an error so the caller leaves the withdraw alone.
func (c *Client) CheckWithdraw(ctx context.Context, w domain.Withdraw) (bool, error) {
	log := logging.FromContext(ctx).With("provider", Slug, "withdraw_id", w.ID)

	if w.PaymentID == nil || *w.PaymentID == "" {
		return false, fmt.Errorf("CheckWithdraw: withdraw %s has no operation id: %w", w.ID, domain.ErrInvariantViolation)
	}

	var op operationResponse
	if err := c.call(ctx, "operations/"+url.PathEscape(*w.PaymentID), nil, &op); err != nil {
		c.Notify(ctx, domain.TopicWithdrawCheckFailed, fmt.Sprintf("Withdraw %s check failed", w.ID), map[string]string{
			"withdraw_id": w.ID.String(),
		})
		return false, fmt.Errorf("CheckWithdraw: %w", err)
	}
	if op.Status == "completed" {
		return true, nil
	}

	txID := ""
	if w.TxID != nil {
		txID = *w.TxID
	}
	log.Warn("confirmed payout was not completed", "operation_id", op.ID, "status", op.Status)
	c.Notify(ctx, domain.TopicWithdrawCheckFailed, fmt.Sprintf("Confirmed withdraw %s was cancelled, tx %s", w.ID, txID), map[string]string{
		"withdraw_id": w.ID.String(),
		"status":      op.Status,
	})
	return false, nil
}

// Test sweeps pending balances and then checks the API key.
func (c *Client) Test(ctx context.Context) (bool, error) {
	if _, err := c.WithdrawToWallets(ctx); err != nil {
		return false, fmt.Errorf("Test: %w", err)
	}
	if err := c.call(ctx, "test-signature", nil, nil); err != nil {
		if esc := provider.Escalate(err); esc != nil {
			return false, fmt.Errorf("Test: %w", esc)
		}
		logging.FromContext(ctx).Warn("signature check failed", "provider", Slug, "error", err)
		return false, nil
	}
	return true, nil
}
