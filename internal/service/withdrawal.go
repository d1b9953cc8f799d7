package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"stream-wallet/internal/config"
	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/repository"
)

// WithdrawalUpdate carries the fields an operator may change. Nil fields
// are left as they are.
type WithdrawalUpdate struct {
	Amount *int64                  `json:"amount,omitempty"`
	Status *model.WithdrawalStatus `json:"status,omitempty"`
}

// WithdrawalResult reports the outcome of an update.
type WithdrawalResult struct {
	Withdrawal *model.Withdrawal `json:"withdrawal"`
	Debited    int64             `json:"debited"`
	Clamped    bool              `json:"clamped"`
}

// WithdrawalService handles cash-out requests for diamonds and stars.
type WithdrawalService struct {
	db          db.Beginner
	withdrawals *repository.WithdrawalRepository
	accounts    *repository.AccountRepository
	ledger      *LedgerService

	mu       sync.RWMutex
	policies map[model.Currency]model.WithdrawalPolicy
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(
	pool db.Beginner,
	withdrawals *repository.WithdrawalRepository,
	accounts *repository.AccountRepository,
	ledger *LedgerService,
	policy config.WithdrawalConfig,
) *WithdrawalService {
	return &WithdrawalService{
		db:          pool,
		withdrawals: withdrawals,
		accounts:    accounts,
		ledger:      ledger,
		policies: map[model.Currency]model.WithdrawalPolicy{
			model.CurrencyDiamond: {Currency: model.CurrencyDiamond, Minimum: policy.Diamond.Minimum, ConversionRate: policy.Diamond.Rate()},
			model.CurrencyStar:    {Currency: model.CurrencyStar, Minimum: policy.Star.Minimum, ConversionRate: policy.Star.Rate()},
		},
	}
}

func (s *WithdrawalService) policyFor(c model.Currency) model.WithdrawalPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[c]
}

// LoadPolicies replaces the configured defaults with the overrides
// operators stored earlier.
func (s *WithdrawalService) LoadPolicies(ctx context.Context) error {
	stored, err := s.withdrawals.ListPolicies(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range stored {
		if p.Currency.Valid() {
			s.policies[p.Currency] = *p
		}
	}
	log.Info().Int("overrides", len(stored)).Msg("Withdrawal policies loaded")
	return nil
}

// Policies returns the policy in force for each currency.
func (s *WithdrawalService) Policies() []model.WithdrawalPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []model.WithdrawalPolicy{s.policies[model.CurrencyDiamond], s.policies[model.CurrencyStar]}
}

// PolicyUpdate carries the policy fields an operator may change. Nil
// fields keep their current value.
type PolicyUpdate struct {
	Minimum        *int64           `json:"minimum,omitempty"`
	ConversionRate *decimal.Decimal `json:"conversion_rate,omitempty"`
}

// UpdatePolicy stores a new minimum or conversion rate for currency. Open
// requests keep their amount and are priced with the rate in force when
// they settle.
func (s *WithdrawalService) UpdatePolicy(ctx context.Context, currency model.Currency, upd PolicyUpdate, updatedBy *int64) (*model.WithdrawalPolicy, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	if upd.Minimum != nil && *upd.Minimum < 0 {
		return nil, fmt.Errorf("%w: minimum must not be negative", ErrInvalidInput)
	}
	if upd.ConversionRate != nil && upd.ConversionRate.IsNegative() {
		return nil, fmt.Errorf("%w: conversion rate must not be negative", ErrInvalidInput)
	}

	// Held across the write so memory and table agree on the last update.
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.policies[currency]
	next.UpdatedBy = updatedBy
	if upd.Minimum != nil {
		next.Minimum = *upd.Minimum
	}
	if upd.ConversionRate != nil {
		next.ConversionRate = *upd.ConversionRate
	}

	stored, err := s.withdrawals.UpsertPolicy(ctx, &next)
	if err != nil {
		return nil, err
	}
	s.policies[currency] = *stored

	log.Info().
		Str("currency", string(currency)).
		Int64("minimum", stored.Minimum).
		Str("conversion_rate", stored.ConversionRate.String()).
		Msg("Withdrawal policy updated")
	return stored, nil
}

// Request opens a Pending withdrawal. The balance is not touched until the
// request is approved.
func (s *WithdrawalService) Request(ctx context.Context, accountID int64, currency model.Currency, amount int64) (*model.Withdrawal, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if minimum := s.policyFor(currency).Minimum; amount < minimum {
		return nil, fmt.Errorf("%w: minimum is %d %ss", ErrBelowMinimum, minimum, currency)
	}

	exists, err := s.accounts.Exists(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}

	w, err := s.withdrawals.Create(ctx, accountID, currency, amount, model.WithdrawalPending)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("withdrawal_id", w.ID).
		Int64("account_id", accountID).
		Str("currency", string(currency)).
		Int64("amount", amount).
		Msg("Withdrawal requested")
	return w, nil
}

// Update persists operator changes. Moving a request into Approved or
// Completed debits the balance once; the debit stops at zero and the
// amount actually taken is stored on the request. A settled request can
// no longer change its amount or go back to an unsettled status.
func (s *WithdrawalService) Update(ctx context.Context, id int64, upd WithdrawalUpdate) (*WithdrawalResult, error) {
	if upd.Amount != nil && *upd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if upd.Status != nil && strings.TrimSpace(string(*upd.Status)) == "" {
		return nil, fmt.Errorf("%w: empty status", ErrInvalidInput)
	}

	var (
		result  = &WithdrawalResult{}
		settled bool
	)
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		withdrawals := s.withdrawals.WithTx(tx)

		current, err := withdrawals.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}

		amount, status := current.Amount, current.Status
		if upd.Amount != nil {
			if current.Status.Settled() && *upd.Amount != current.Amount {
				return ErrAlreadySettled
			}
			amount = *upd.Amount
		}
		if upd.Status != nil {
			if current.Status.Settled() && !upd.Status.Settled() {
				return ErrAlreadySettled
			}
			status = *upd.Status
		}

		updated, err := withdrawals.Update(ctx, id, amount, status)
		if err != nil {
			return err
		}
		result.Withdrawal = updated

		if !model.WithdrawalTriggersDebit(current.Status, status) {
			return nil
		}

		ref := "withdrawal:" + strconv.FormatInt(id, 10)
		debited, _, err := s.ledger.DebitClamped(ctx, tx, updated.AccountID, updated.Currency, amount, model.KindWithdrawn, &ref)
		if err != nil {
			return err
		}

		payout := s.policyFor(updated.Currency).ConversionRate.Mul(decimal.NewFromInt(debited))
		result.Withdrawal, err = withdrawals.MarkSettled(ctx, id, debited, payout)
		if err != nil {
			return err
		}
		result.Debited = debited
		result.Clamped = debited < amount
		settled = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled {
		w := result.Withdrawal
		metrics.WithdrawalsSettledTotal.WithLabelValues(string(w.Currency), strconv.FormatBool(result.Clamped)).Inc()
		log.Info().
			Int64("withdrawal_id", id).
			Int64("account_id", w.AccountID).
			Str("status", string(w.Status)).
			Int64("requested", w.Amount).
			Int64("debited", result.Debited).
			Msg("Withdrawal settled")
	}
	return result, nil
}

// Get retrieves a withdrawal.
func (s *WithdrawalService) Get(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

// List retrieves withdrawals, optionally filtered by status.
func (s *WithdrawalService) List(ctx context.Context, status *model.WithdrawalStatus, limit int) ([]*model.Withdrawal, error) {
	return s.withdrawals.List(ctx, status, defaultLimit(limit))
}

// Delete removes a request that has not been settled.
func (s *WithdrawalService) Delete(ctx context.Context, id int64) error {
	return db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		withdrawals := s.withdrawals.WithTx(tx)

		w, err := withdrawals.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if w.Status.Settled() {
			return ErrAlreadySettled
		}
		return withdrawals.Delete(ctx, id)
	})
}

// Quote returns the money value of amount units of currency.
func (s *WithdrawalService) Quote(currency model.Currency, amount int64) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	if amount <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.policyFor(currency).ConversionRate.Mul(decimal.NewFromInt(amount)), nil
}
