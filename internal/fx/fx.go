// Package fx holds the fixed-point rules used to move amounts between the
// settlement base unit and provider currencies.
package fx

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const (
	// AmountPlaces is the precision of every currency amount sent to or
	// received from a provider.
	AmountPlaces int32 = 6
	// BaseFeePlaces is used when an amount is rendered back to the customer.
	BaseFeePlaces int32 = 2
)

// HighValueRate is the rate above which sweep amounts are rounded to whole units.
var HighValueRate = decimal.NewFromInt(10)

// InvoiceAmount converts a base amount into currency units at rate,
// rounded half up to AmountPlaces.
func InvoiceAmount(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("InvoiceAmount: rate %s: %w", rate, domain.ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("InvoiceAmount: %w", domain.ErrInvalidAmount)
	}
	return amount.DivRound(rate, AmountPlaces), nil
}

// ToBase converts a currency amount into base units at rate.
func ToBase(currencyAmount, rate decimal.Decimal) decimal.Decimal {
	return currencyAmount.Mul(rate).Round(AmountPlaces)
}

// Round6 rounds to provider precision.
func Round6(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// Format renders d the way providers expect amounts: fixed, six places, dot separator.
func Format(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}

// SweepPlaces returns the rounding precision for sweep transfers of a
// currency: whole units for high-value currencies, six places otherwise.
func SweepPlaces(rate decimal.Decimal) int32 {
	if rate.GreaterThan(HighValueRate) {
		return 0
	}
	return AmountPlaces
}

// InverseMid returns 1 / ((buy + sale) / 2), used for fiat quotes published
// as "units of local currency per base unit".
func InverseMid(buy, sale decimal.Decimal) (decimal.Decimal, error) {
	mid := buy.Add(sale).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.Zero, fmt.Errorf("InverseMid: %w", domain.ErrInvalidAmount)
	}
	return decimal.NewFromInt(1).DivRound(mid, 10), nil
}
