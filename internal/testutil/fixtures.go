package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

const OperatorPassword = "password123"

func SeedPaymentType(t *testing.T, db *sql.DB, slug string, privateKey string) domain.PaymentType {
	t.Helper()

	pt := domain.PaymentType{ID: uuid.New(), Slug: slug, Enabled: true}
	if privateKey != "" {
		pt.PrivateKey = &privateKey
	}
	_, err := db.Exec(
		`INSERT INTO payment_types (id, slug, private_key, enabled) VALUES ($1, $2, $3, $4)`,
		pt.ID, pt.Slug, pt.PrivateKey, pt.Enabled,
	)
	if err != nil {
		t.Fatalf("seed payment type %s: %v", slug, err)
	}
	return pt
}

func SeedCurrency(t *testing.T, db *sql.DB, paymentTypeID uuid.UUID, slug, network string, rate decimal.Decimal) domain.PaymentCurrency {
	t.Helper()

	c := domain.PaymentCurrency{
		ID:            uuid.New(),
		PaymentTypeID: paymentTypeID,
		Slug:          slug,
		PaymentSlug:   slug,
		Name:          slug,
		Network:       network,
		Rate:          rate,
		Enabled:       true,
	}
	_, err := db.Exec(
		`INSERT INTO payment_currencies (id, payment_type_id, slug, payment_slug, name, network, rate, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.PaymentTypeID, c.Slug, c.PaymentSlug, c.Name, c.Network, c.Rate, c.Enabled,
	)
	if err != nil {
		t.Fatalf("seed currency %s: %v", slug, err)
	}
	return c
}

func SeedOrder(t *testing.T, db *sql.DB, userID, currencyID uuid.UUID, amount decimal.Decimal) domain.Order {
	t.Helper()

	o := domain.Order{
		ID:         uuid.New(),
		UserID:     userID,
		CurrencyID: currencyID,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO orders (id, user_id, currency_id, amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		o.ID, o.UserID, o.CurrencyID, o.Amount, o.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

// SeedWithdrawWallet inserts a custody wallet. mirror marks the provider's
// own wallet; otherwise the wallet accepts sweeps.
func SeedWithdrawWallet(t *testing.T, db *sql.DB, currencyID uuid.UUID, address string, mirror bool, currencyAmount, amount decimal.Decimal) domain.WithdrawWallet {
	t.Helper()

	w := domain.WithdrawWallet{
		ID:                   uuid.New(),
		CurrencyID:           currencyID,
		Wallet:               address,
		CurrencyAmount:       currencyAmount,
		Amount:               amount,
		PaymentSystem:        mirror,
		WithdrawFromPayments: !mirror,
	}
	_, err := db.Exec(
		`INSERT INTO withdraw_wallets (id, currency_id, wallet, currency_amount, amount, payment_system, withdraw_from_payments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.CurrencyID, w.Wallet, w.CurrencyAmount, w.Amount, w.PaymentSystem, w.WithdrawFromPayments,
	)
	if err != nil {
		t.Fatalf("seed withdraw wallet %s: %v", address, err)
	}
	return w
}

func SeedUserWallet(t *testing.T, db *sql.DB, userID, currencyID uuid.UUID, address string) domain.Wallet {
	t.Helper()

	w := domain.Wallet{ID: uuid.New(), UserID: userID, CurrencyID: currencyID, Address: address}
	_, err := db.Exec(
		`INSERT INTO wallets (id, user_id, currency_id, address) VALUES ($1, $2, $3, $4)`,
		w.ID, w.UserID, w.CurrencyID, w.Address,
	)
	if err != nil {
		t.Fatalf("seed user wallet: %v", err)
	}
	return w
}

func SeedWithdraw(t *testing.T, db *sql.DB, wallet domain.Wallet, amount, currencyAmount decimal.Decimal) domain.Withdraw {
	t.Helper()

	now := time.Now().UTC()
	w := domain.Withdraw{
		ID:             uuid.New(),
		UserID:         wallet.UserID,
		CurrencyID:     wallet.CurrencyID,
		WalletID:       wallet.ID,
		Amount:         amount,
		CurrencyAmount: currencyAmount,
		Moderated:      true,
		ModeratedAt:    &now,
		CreatedAt:      now,
	}
	_, err := db.Exec(
		`INSERT INTO withdraws (id, user_id, currency_id, wallet_id, amount, currency_amount, moderated, moderated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.UserID, w.CurrencyID, w.WalletID, w.Amount, w.CurrencyAmount, w.Moderated, w.ModeratedAt, w.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed withdraw: %v", err)
	}
	return w
}

func SeedPayout(t *testing.T, db *sql.DB, date time.Time, total decimal.Decimal) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO payouts (id, date, total) VALUES ($1, $2, $3)`, uuid.New(), date, total)
	if err != nil {
		t.Fatalf("seed payout: %v", err)
	}
}

func SeedBalance(t *testing.T, db *sql.DB, userID uuid.UUID, balance decimal.Decimal) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		userID, balance,
	)
	if err != nil {
		t.Fatalf("seed balance %s: %v", userID, err)
	}
}

func SeedOperator(t *testing.T, db *sql.DB, email string) domain.Operator {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(OperatorPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	o := domain.Operator{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Operator",
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	_, err = db.Exec(
		`INSERT INTO operators (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.Email, o.Name, o.PasswordHash, o.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed operator %s: %v", email, err)
	}
	return o
}

func GetWalletBalance(t *testing.T, db *sql.DB, walletID uuid.UUID) (currencyAmount, amount decimal.Decimal) {
	t.Helper()

	err := db.QueryRow(
		`SELECT currency_amount, amount FROM withdraw_wallets WHERE id = $1`, walletID,
	).Scan(&currencyAmount, &amount)
	if err != nil {
		t.Fatalf("get wallet balance %s: %v", walletID, err)
	}
	return currencyAmount, amount
}

func CountLedgerEntries(t *testing.T, db *sql.DB, walletID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM internal_transactions WHERE withdraw_wallet_id = $1`, walletID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for wallet %s: %v", walletID, err)
	}
	return count
}
