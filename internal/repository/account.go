package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// AccountRepository handles account balance persistence.
// Balances are only changed through AddBalance, which the ledger service
// pairs with a ledger entry inside one transaction.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{db: tx}
}

const accountColumns = `id, username, diamonds, stars, money::text, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a     model.Account
		money string
	)
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Diamonds,
		&a.Stars,
		&money,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Money, err = parseDecimal(money); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create creates a new account with zero balances.
// Returns ErrDuplicate if the username is already taken.
func (r *AccountRepository) Create(ctx context.Context, username *string) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (username, diamonds, stars, created_at, updated_at)
		VALUES ($1, 0, 0, NOW(), NOW())
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetByID retrieves an account by id.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetForUpdate retrieves an account and locks its row until the enclosing
// transaction ends. It must be called on a repository bound to a tx.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	return account, nil
}

// LockInOrder locks every account in ascending id order and returns them
// keyed by id. A consistent order keeps concurrent settlements touching the
// same pair of accounts from deadlocking.
func (r *AccountRepository) LockInOrder(ctx context.Context, ids ...int64) (map[int64]*model.Account, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	accounts := make(map[int64]*model.Account, len(sorted))
	for _, id := range sorted {
		account, err := r.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}
	return accounts, nil
}

// AddBalance adds delta to the balance of the given currency and returns the
// new balance. The non-negative CHECK constraint rejects overdrafts.
func (r *AccountRepository) AddBalance(ctx context.Context, id int64, currency model.Currency, delta int64) (int64, error) {
	var query string
	switch currency {
	case model.CurrencyDiamond:
		query = `UPDATE accounts SET diamonds = diamonds + $2, updated_at = NOW() WHERE id = $1 RETURNING diamonds`
	case model.CurrencyStar:
		query = `UPDATE accounts SET stars = stars + $2, updated_at = NOW() WHERE id = $1 RETURNING stars`
	default:
		return 0, fmt.Errorf("unknown currency %q", currency)
	}

	var balance int64
	err := r.db.QueryRow(ctx, query, id, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	return balance, nil
}

// List retrieves accounts ordered by id.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Exists checks if an account with the given id exists.
func (r *AccountRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}

	return exists, nil
}
