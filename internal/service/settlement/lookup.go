package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

// The methods below load records by id and forward to the operations in
// service.go. They back the HTTP handlers, the scheduler and the CLI.

func (s *Service) orderWithCurrency(ctx context.Context, orderID uuid.UUID) (*domain.Order, *domain.PaymentCurrency, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	cur, err := s.store.Currency(ctx, order.CurrencyID)
	if err != nil {
		return nil, nil, err
	}
	return order, cur, nil
}

// InvoiceOrder creates the invoice for a stored order.
func (s *Service) InvoiceOrder(ctx context.Context, orderID uuid.UUID) (*provider.InvoiceResult, error) {
	order, cur, err := s.orderWithCurrency(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("InvoiceOrder: %w", err)
	}
	if order.PaymentSuccess {
		return &provider.InvoiceResult{Finished: true, OrderID: order.ID}, nil
	}
	return s.CreateInvoice(ctx, *cur, *order)
}

// CallbackOrder applies a webhook addressed to a stored order.
func (s *Service) CallbackOrder(ctx context.Context, orderID uuid.UUID, wh provider.Webhook) (bool, error) {
	order, cur, err := s.orderWithCurrency(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("CallbackOrder: %w", err)
	}
	return s.Callback(ctx, wh, *order, *cur)
}

// SweepOrder sweeps the deposit of one paid order.
func (s *Service) SweepOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, cur, err := s.orderWithCurrency(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("SweepOrder: %w", err)
	}
	if !order.PaymentSuccess {
		return false, fmt.Errorf("SweepOrder: order %s is not paid: %w", order.ID, domain.ErrInvalidRequest)
	}
	if order.SweptAt != nil {
		return false, fmt.Errorf("SweepOrder: order %s already swept: %w", order.ID, domain.ErrInvalidRequest)
	}
	pt, err := s.store.PaymentType(ctx, cur.PaymentTypeID)
	if err != nil {
		return false, fmt.Errorf("SweepOrder: %w", err)
	}
	return s.WithdrawOrderToWallet(ctx, *pt, *order)
}

func (s *Service) withdrawWithType(ctx context.Context, withdrawID uuid.UUID) (*domain.Withdraw, *domain.PaymentType, error) {
	w, err := s.store.Withdraw(ctx, withdrawID)
	if err != nil {
		return nil, nil, err
	}
	cur, err := s.store.Currency(ctx, w.CurrencyID)
	if err != nil {
		return nil, nil, err
	}
	pt, err := s.store.PaymentType(ctx, cur.PaymentTypeID)
	if err != nil {
		return nil, nil, err
	}
	return w, pt, nil
}

// PayoutWithdraw pays out a moderated withdraw.
func (s *Service) PayoutWithdraw(ctx context.Context, withdrawID uuid.UUID) (*PayoutResult, error) {
	w, pt, err := s.withdrawWithType(ctx, withdrawID)
	if err != nil {
		return nil, fmt.Errorf("PayoutWithdraw: %w", err)
	}
	if !w.Moderated {
		return nil, fmt.Errorf("PayoutWithdraw: withdraw %s is not moderated: %w", w.ID, domain.ErrInvalidRequest)
	}
	if w.TxID != nil {
		return nil, fmt.Errorf("PayoutWithdraw: withdraw %s already sent: %w", w.ID, domain.ErrInvalidRequest)
	}
	return s.WithdrawForUser(ctx, *pt, *w)
}

// CheckWithdrawByID runs CheckWithdraw for a sent withdraw that is still
// awaiting confirmation.
func (s *Service) CheckWithdrawByID(ctx context.Context, withdrawID uuid.UUID) (bool, error) {
	w, pt, err := s.withdrawWithType(ctx, withdrawID)
	if err != nil {
		return false, fmt.Errorf("CheckWithdrawByID: %w", err)
	}
	if !w.Moderated || w.TxID == nil || w.CheckedAt != nil {
		return false, fmt.Errorf("CheckWithdrawByID: withdraw %s is not awaiting confirmation: %w", w.ID, domain.ErrInvalidRequest)
	}
	return s.CheckWithdraw(ctx, *pt, *w)
}

// CheckPendingWithdraws re-checks submitted payouts that have not been
// confirmed yet. Undetermined checks are left for the next run.
func (s *Service) CheckPendingWithdraws(ctx context.Context, limit int) (checked int, err error) {
	log := logging.FromContext(ctx)

	pending, err := s.store.PendingWithdrawChecks(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("CheckPendingWithdraws: %w", err)
	}

	var errs []error
	for _, w := range pending {
		cur, err := s.store.Currency(ctx, w.CurrencyID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pt, err := s.store.PaymentType(ctx, cur.PaymentTypeID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.CheckWithdraw(ctx, *pt, w); err != nil {
			log.Warn("withdraw check undetermined", "withdraw_id", w.ID, "error", err)
			if errors.Is(err, domain.ErrMissingKey) || errors.Is(err, domain.ErrUnknownProvider) {
				errs = append(errs, err)
			}
			continue
		}
		checked++
	}
	if err := errors.Join(errs...); err != nil {
		return checked, fmt.Errorf("CheckPendingWithdraws: %w", err)
	}
	return checked, nil
}

// PaymentTypeBySlug returns the configuration record of a provider.
func (s *Service) PaymentTypeBySlug(ctx context.Context, slug string) (*domain.PaymentType, error) {
	pt, err := s.store.PaymentTypeBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("PaymentTypeBySlug: %w", err)
	}
	return pt, nil
}

func (s *Service) EnabledPaymentTypes(ctx context.Context) ([]domain.PaymentType, error) {
	pts, err := s.store.EnabledPaymentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("EnabledPaymentTypes: %w", err)
	}
	return pts, nil
}
