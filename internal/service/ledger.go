package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/repository"
)

// LedgerService owns every balance change. Each change locks the account
// row, adjusts the balance, appends one ledger entry and feeds the wallet
// summary, all inside the caller's transaction.
type LedgerService struct {
	db       db.Beginner
	accounts *repository.AccountRepository
	ledger   *repository.LedgerRepository
	wallets  *repository.WalletRepository
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	pool db.Beginner,
	accounts *repository.AccountRepository,
	ledger *repository.LedgerRepository,
	wallets *repository.WalletRepository,
) *LedgerService {
	return &LedgerService{
		db:       pool,
		accounts: accounts,
		ledger:   ledger,
		wallets:  wallets,
	}
}

// Credit adds amount to the account's balance inside tx.
func (s *LedgerService) Credit(ctx context.Context, tx pgx.Tx, accountID int64, currency model.Currency, amount int64, kind model.EntryKind, ref *string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.lock(ctx, tx, accountID, currency); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, accountID, currency, amount, kind, ref)
}

// Debit takes amount from the account's balance inside tx.
// Returns ErrInsufficientFunds if the balance does not cover it.
func (s *LedgerService) Debit(ctx context.Context, tx pgx.Tx, accountID int64, currency model.Currency, amount int64, kind model.EntryKind, ref *string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	account, err := s.lock(ctx, tx, accountID, currency)
	if err != nil {
		return nil, err
	}
	if account.Balance(currency) < amount {
		return nil, ErrInsufficientFunds
	}
	return s.apply(ctx, tx, accountID, currency, -amount, kind, ref)
}

// DebitClamped takes at most amount from the balance, stopping at zero, and
// returns how much was actually taken. Nothing is recorded when the balance
// is already empty.
func (s *LedgerService) DebitClamped(ctx context.Context, tx pgx.Tx, accountID int64, currency model.Currency, amount int64, kind model.EntryKind, ref *string) (int64, *model.LedgerEntry, error) {
	if amount <= 0 {
		return 0, nil, ErrInvalidAmount
	}
	account, err := s.lock(ctx, tx, accountID, currency)
	if err != nil {
		return 0, nil, err
	}

	actual := model.ClampDebit(account.Balance(currency), amount)
	if actual < amount {
		log.Warn().
			Int64("account_id", accountID).
			Str("currency", string(currency)).
			Int64("requested", amount).
			Int64("debited", actual).
			Msg("Debit clamped to available balance")
	}
	if actual == 0 {
		return 0, nil, nil
	}

	entry, err := s.apply(ctx, tx, accountID, currency, -actual, kind, ref)
	if err != nil {
		return 0, nil, err
	}
	return actual, entry, nil
}

func (s *LedgerService) lock(ctx context.Context, tx pgx.Tx, accountID int64, currency model.Currency) (*model.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	account, err := s.accounts.WithTx(tx).GetForUpdate(ctx, accountID)
	if err != nil {
		return nil, notFound(err)
	}
	return account, nil
}

// apply writes a signed change on an already locked account.
func (s *LedgerService) apply(ctx context.Context, tx pgx.Tx, accountID int64, currency model.Currency, signed int64, kind model.EntryKind, ref *string) (*model.LedgerEntry, error) {
	balance, err := s.accounts.WithTx(tx).AddBalance(ctx, accountID, currency, signed)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	entry, err := s.ledger.WithTx(tx).Append(ctx, &model.LedgerEntry{
		AccountID:    accountID,
		Currency:     currency,
		Amount:       signed,
		Kind:         kind,
		BalanceAfter: balance,
		Reference:    ref,
	})
	if err != nil {
		return nil, err
	}

	if err := s.wallets.WithTx(tx).Apply(ctx, accountID, model.WalletDeltaFor(currency, kind, signed)); err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(currency), string(kind)).Inc()
	return entry, nil
}

// CreditDiamonds is an admin top-up of diamonds in its own transaction.
func (s *LedgerService) CreditDiamonds(ctx context.Context, accountID, amount int64, ref string) (*model.LedgerEntry, error) {
	return s.creditStandalone(ctx, accountID, model.CurrencyDiamond, amount, ref)
}

// CreditStars is an admin top-up of stars in its own transaction.
func (s *LedgerService) CreditStars(ctx context.Context, accountID, amount int64, ref string) (*model.LedgerEntry, error) {
	return s.creditStandalone(ctx, accountID, model.CurrencyStar, amount, ref)
}

func (s *LedgerService) creditStandalone(ctx context.Context, accountID int64, currency model.Currency, amount int64, ref string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		entry, err = s.Credit(ctx, tx, accountID, currency, amount, model.KindCredited, &ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", accountID).
		Str("currency", string(currency)).
		Int64("amount", amount).
		Int64("balance", entry.BalanceAfter).
		Msg("Balance credited")
	return entry, nil
}

// OpenAccount creates an account with zero balances.
func (s *LedgerService) OpenAccount(ctx context.Context, username *string) (*model.Account, error) {
	account, err := s.accounts.Create(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: username taken", ErrAlreadyExists)
		}
		return nil, err
	}
	return account, nil
}

// GetAccount retrieves an account with its balances.
func (s *LedgerService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, notFound(err)
	}
	return account, nil
}

// ListAccounts pages through accounts in id order.
func (s *LedgerService) ListAccounts(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	if offset < 0 {
		offset = 0
	}
	return s.accounts.List(ctx, defaultLimit(limit), offset)
}

// EntriesFor returns every ledger entry recorded against a reference, such
// as a payment order id, oldest first.
func (s *LedgerService) EntriesFor(ctx context.Context, reference string) ([]*model.LedgerEntry, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	return s.ledger.ListByReference(ctx, reference)
}

// History returns an account's most recent entries in one currency.
func (s *LedgerService) History(ctx context.Context, accountID int64, currency model.Currency, limit int) ([]*model.LedgerEntry, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.ListByAccount(ctx, accountID, currency, limit)
}

// WalletSummary returns the cached lifetime totals of an account.
func (s *LedgerService) WalletSummary(ctx context.Context, accountID int64) (*model.WalletSummary, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.wallets.Get(ctx, accountID)
}

// RebuildWalletSummary recomputes the cached totals from the ledger and
// successful payments.
func (s *LedgerService) RebuildWalletSummary(ctx context.Context, accountID int64) (*model.WalletSummary, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	summary, err := s.wallets.Rebuild(ctx, accountID)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("account_id", accountID).Msg("Wallet summary rebuilt")
	return summary, nil
}

// Consistency compares one balance against its ledger.
type Consistency struct {
	Currency     model.Currency `json:"currency"`
	Balance      int64          `json:"balance"`
	LedgerSum    int64          `json:"ledger_sum"`
	BalanceAfter int64          `json:"last_balance_after"`
}

// OK reports whether the balance equals both the ledger sum and the newest
// balance snapshot.
func (c Consistency) OK() bool {
	return c.Balance == c.LedgerSum && c.Balance == c.BalanceAfter
}

// VerifyConsistency checks both balances of an account against the ledger.
func (s *LedgerService) VerifyConsistency(ctx context.Context, accountID int64) ([]Consistency, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var out []Consistency
	for _, currency := range []model.Currency{model.CurrencyDiamond, model.CurrencyStar} {
		sum, last, err := s.ledger.Sum(ctx, accountID, currency)
		if err != nil {
			return nil, err
		}
		c := Consistency{
			Currency:     currency,
			Balance:      account.Balance(currency),
			LedgerSum:    sum,
			BalanceAfter: last,
		}
		if !c.OK() {
			log.Error().
				Int64("account_id", accountID).
				Str("currency", string(currency)).
				Int64("balance", c.Balance).
				Int64("ledger_sum", sum).
				Msg("Balance does not match ledger")
		}
		out = append(out, c)
	}
	return out, nil
}
