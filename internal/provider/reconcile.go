package provider

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/fx"
)

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// Observation is what an authenticated, matched webhook reports.
type Observation struct {
	Outcome Outcome
	// CurrencyReceived is the provider's current total of confirmed funds.
	// It is ignored unless HasReceived is set.
	CurrencyReceived decimal.Decimal
	HasReceived      bool
	// Transactions replaces the stored list when non-nil.
	Transactions json.RawMessage
}

type Settlement struct {
	Order domain.Order
	// Changed is false only for orders that had already succeeded.
	Changed bool
	// Succeeded is set when this observation completed the payment in full.
	Succeeded bool
	// Partial is set when an expiring order was accepted on a partial amount.
	Partial bool
}

// Reconcile applies obs to order and returns the new snapshot. rate converts
// currency units to base units. A succeeded order is returned untouched.
func Reconcile(order domain.Order, rate decimal.Decimal, obs Observation) Settlement {
	if order.PaymentSuccess {
		return Settlement{Order: order}
	}

	next := order
	if obs.Transactions != nil {
		next.Transactions = obs.Transactions
	}

	if obs.HasReceived {
		next.CurrencyReceived = fx.Round6(obs.CurrencyReceived)
		next.Received = fx.ToBase(next.CurrencyReceived, rate)
		if next.CurrencyReceived.GreaterThan(next.CurrencyAmount) {
			next.CurrencyAmount = next.CurrencyReceived
			next.Amount = next.Received
		}
	}

	s := Settlement{Changed: true}
	switch obs.Outcome {
	case OutcomeSucceeded:
		next.PaymentSuccess = true
		next.PaymentExpired = false
		s.Succeeded = true
	case OutcomeFailed:
		// Only an amount reported with the terminal status can be accepted.
		if obs.HasReceived && acceptsPartial(next) {
			next.PaymentSuccess = true
			next.PaymentExpired = false
			next.PartialPayment = true
			next.Amount = next.Received
			next.CurrencyAmount = next.CurrencyReceived
			s.Partial = true
		} else {
			next.PaymentExpired = true
		}
	}

	s.Order = next
	return s
}

func acceptsPartial(o domain.Order) bool {
	if o.MinAcceptableAmount == nil || !o.Received.IsPositive() {
		return false
	}
	return o.Received.GreaterThanOrEqual(*o.MinAcceptableAmount)
}
