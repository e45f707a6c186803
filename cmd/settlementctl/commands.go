package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
	"github.com/josh-kwaku/settlement-engine/internal/service/settlement"
)

type engine interface {
	PaymentTypeBySlug(ctx context.Context, slug string) (*domain.PaymentType, error)
	Test(ctx context.Context, pt domain.PaymentType) (bool, error)
	UpdateCurrenciesRate(ctx context.Context, pt domain.PaymentType) (map[string]decimal.Decimal, error)
	UpdateBalances(ctx context.Context, pt domain.PaymentType) error
	WithdrawToWallets(ctx context.Context, pt domain.PaymentType) (map[uuid.UUID]decimal.Decimal, error)
	CheckWithdrawByID(ctx context.Context, withdrawID uuid.UUID) (bool, error)
	CheckPendingWithdraws(ctx context.Context, limit int) (int, error)
	CreateOperator(ctx context.Context, op *domain.Operator) error
}

type ctlEngine struct {
	*settlement.Service
	operators *repository.OperatorRepository
}

func (e ctlEngine) CreateOperator(ctx context.Context, op *domain.Operator) error {
	return e.operators.Create(ctx, op)
}

type opener func(ctx context.Context) (engine, func(), error)

var paymentTypeFlag = &cli.StringFlag{
	Name:     "payment-type",
	Aliases:  []string{"p"},
	Usage:    "payment type slug, e.g. plisio",
	Required: true,
}

func newApp(open opener) *cli.App {
	// withEngine opens the engine for the duration of one command.
	withEngine := func(fn func(c *cli.Context, e engine) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			e, closeFn, err := open(c.Context)
			if err != nil {
				return err
			}
			defer closeFn()
			return fn(c, e)
		}
	}
	// withType also resolves the --payment-type flag.
	withType := func(fn func(c *cli.Context, e engine, pt domain.PaymentType) error) cli.ActionFunc {
		return withEngine(func(c *cli.Context, e engine) error {
			pt, err := e.PaymentTypeBySlug(c.Context, c.String("payment-type"))
			if err != nil {
				return fmt.Errorf("payment type %q: %w", c.String("payment-type"), err)
			}
			return fn(c, e, *pt)
		})
	}

	return &cli.App{
		Name:  "settlementctl",
		Usage: "operate payment providers and custody wallets",
		Commands: cli.Commands{
			{
				Name:  "test",
				Usage: "check provider credentials and connectivity",
				Flags: []cli.Flag{paymentTypeFlag},
				Action: withType(func(c *cli.Context, e engine, pt domain.PaymentType) error {
					ok, err := e.Test(c.Context, pt)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: ok=%t\n", pt.Slug, ok)
					if !ok {
						return cli.Exit("provider test failed", 2)
					}
					return nil
				}),
			},
			{
				Name:  "rates",
				Usage: "refresh currency rates from the provider",
				Flags: []cli.Flag{paymentTypeFlag},
				Action: withType(func(c *cli.Context, e engine, pt domain.PaymentType) error {
					quotes, err := e.UpdateCurrenciesRate(c.Context, pt)
					printQuotes(c, quotes)
					return err
				}),
			},
			{
				Name:  "balances",
				Usage: "refresh provider mirror wallet balances",
				Flags: []cli.Flag{paymentTypeFlag},
				Action: withType(func(c *cli.Context, e engine, pt domain.PaymentType) error {
					if err := e.UpdateBalances(c.Context, pt); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: balances updated\n", pt.Slug)
					return nil
				}),
			},
			{
				Name:  "sweep",
				Usage: "sweep provider balances to custody wallets",
				Flags: []cli.Flag{paymentTypeFlag},
				Action: withType(func(c *cli.Context, e engine, pt domain.PaymentType) error {
					swept, err := e.WithdrawToWallets(c.Context, pt)
					for id, amount := range swept {
						fmt.Fprintf(c.App.Writer, "%s\t%s\n", id, amount)
					}
					fmt.Fprintf(c.App.Writer, "%s: %d wallet(s) swept\n", pt.Slug, len(swept))
					return err
				}),
			},
			{
				Name:      "check-withdraw",
				Usage:     "confirm submitted payouts",
				ArgsUsage: "[withdraw-id]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "pending withdraws to check when no id is given"},
				},
				Action: withEngine(func(c *cli.Context, e engine) error {
					if c.Args().Len() == 0 {
						n, err := e.CheckPendingWithdraws(c.Context, c.Int("limit"))
						fmt.Fprintf(c.App.Writer, "%d withdraw(s) checked\n", n)
						return err
					}
					id, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("withdraw id: %w", err)
					}
					confirmed, err := e.CheckWithdrawByID(c.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s: confirmed=%t\n", id, confirmed)
					return nil
				}),
			},
			{
				Name:  "create-operator",
				Usage: "add a back-office operator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"OPERATOR_PASSWORD"}},
				},
				Action: withEngine(func(c *cli.Context, e engine) error {
					if len(c.String("password")) < 12 {
						return errors.New("password must be at least 12 characters")
					}
					hash, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcrypt.DefaultCost)
					if err != nil {
						return fmt.Errorf("hash password: %w", err)
					}
					op := &domain.Operator{
						ID:           uuid.New(),
						Email:        strings.ToLower(strings.TrimSpace(c.String("email"))),
						Name:         c.String("name"),
						PasswordHash: string(hash),
					}
					if err := e.CreateOperator(c.Context, op); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "operator %s created: %s\n", op.Email, op.ID)
					return nil
				}),
			},
		},
	}
}

func printQuotes(c *cli.Context, quotes map[string]decimal.Decimal) {
	slugs := make([]string, 0, len(quotes))
	for s := range quotes {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	for _, s := range slugs {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", s, quotes[s])
	}
}
