package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType is the provider configuration record. Slug selects the
// provider implementation.
type PaymentType struct {
	ID              uuid.UUID
	Slug            string
	PublicKey       *string
	PrivateKey      *string
	AdvancedBalance *string
	Enabled         bool
}

type PaymentCurrency struct {
	ID            uuid.UUID
	PaymentTypeID uuid.UUID
	Slug          string
	PaymentSlug   string
	Name          string
	Network       string
	Rate          decimal.Decimal
	Enabled       bool
	UpdatedAt     time.Time
}

var (
	peggedSlugs        = map[string]bool{"USDT": true, "BUSD": true}
	peggedPaymentSlugs = map[string]bool{"USDT_TRX": true, "BUSD": true}
)

// IsPegged reports whether the currency trades 1:1 with the settlement base unit.
func (c PaymentCurrency) IsPegged() bool {
	return peggedSlugs[c.Slug] || peggedPaymentSlugs[c.PaymentSlug]
}

type OrderState string

const (
	OrderStateAwaiting          OrderState = "awaiting"
	OrderStatePartiallyReceived OrderState = "partially_received"
	OrderStateExpired           OrderState = "expired"
	OrderStateSucceeded         OrderState = "succeeded"
)

type Order struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	CurrencyID        uuid.UUID
	Amount            decimal.Decimal
	CurrencyAmount    decimal.Decimal
	Received          decimal.Decimal
	CurrencyReceived  decimal.Decimal
	PaymentID         *string
	WithdrawAddressID *string
	PaymentExpiredAt  *time.Time
	PaymentSuccess    bool
	PaymentExpired    bool
	PartialPayment    bool
	Transactions      json.RawMessage
	// MinAcceptableAmount is the smallest base amount accepted as a partial
	// settlement when an invoice expires. Nil disables partial settlement.
	MinAcceptableAmount *decimal.Decimal
	// SweptAt is set once the order's deposit was claimed for a sweep.
	SweptAt   *time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Order) State() OrderState {
	switch {
	case o.PaymentSuccess:
		return OrderStateSucceeded
	case o.PaymentExpired:
		return OrderStateExpired
	case o.CurrencyReceived.IsPositive():
		return OrderStatePartiallyReceived
	default:
		return OrderStateAwaiting
	}
}

// HasPaymentID reports whether the provider payment id stored on the order
// equals id.
func (o Order) HasPaymentID(id string) bool {
	return o.PaymentID != nil && id != "" && *o.PaymentID == id
}
