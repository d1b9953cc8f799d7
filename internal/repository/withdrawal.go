package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"stream-wallet/internal/model"
)

// WithdrawalRepository handles withdrawal requests.
type WithdrawalRepository struct {
	db DBTX
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(db DBTX) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *WithdrawalRepository) WithTx(tx pgx.Tx) *WithdrawalRepository {
	return &WithdrawalRepository{db: tx}
}

const withdrawalColumns = `id, account_id, currency, amount, settled_amount, payout::text, status,
	created_at, updated_at, settled_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var (
		w      model.Withdrawal
		payout *string
	)
	err := row.Scan(
		&w.ID,
		&w.AccountID,
		&w.Currency,
		&w.Amount,
		&w.SettledAmount,
		&payout,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	if w.Payout, err = parseNullDecimal(payout); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a withdrawal request.
func (r *WithdrawalRepository) Create(ctx context.Context, accountID int64, currency model.Currency, amount int64, status model.WithdrawalStatus) (*model.Withdrawal, error) {
	const query = `
		INSERT INTO withdrawals (account_id, currency, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, accountID, currency, amount, status))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return w, nil
}

// GetByID retrieves a withdrawal.
// Returns ErrWithdrawalNotFound if it does not exist.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetForUpdate retrieves a withdrawal and locks its row until the enclosing
// transaction ends.
func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *WithdrawalRepository) get(ctx context.Context, query string, id int64) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

// Update persists the requested amount and status.
func (r *WithdrawalRepository) Update(ctx context.Context, id int64, amount int64, status model.WithdrawalStatus) (*model.Withdrawal, error) {
	const query = `
		UPDATE withdrawals
		SET amount = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id, amount, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to update withdrawal: %w", err)
	}
	return w, nil
}

// MarkSettled records the amount actually debited and its money value.
func (r *WithdrawalRepository) MarkSettled(ctx context.Context, id int64, settled int64, payout decimal.Decimal) (*model.Withdrawal, error) {
	const query = `
		UPDATE withdrawals
		SET settled_amount = $2, payout = $3::numeric, settled_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, id, settled, payout.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to settle withdrawal: %w", err)
	}
	return w, nil
}

// List retrieves withdrawals, optionally filtered by status
// (case-insensitive), newest first.
func (r *WithdrawalRepository) List(ctx context.Context, status *model.WithdrawalStatus, limit int) ([]*model.Withdrawal, error) {
	const query = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE $1::text IS NULL OR UPPER(status) = UPPER($1::text)
		ORDER BY id DESC
		LIMIT $2
	`

	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}

	rows, err := r.db.Query(ctx, query, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return withdrawals, nil
}

// Delete removes a withdrawal request.
func (r *WithdrawalRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM withdrawals WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete withdrawal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

const policyColumns = `currency, minimum, conversion_rate::text, updated_by, updated_at`

func scanPolicy(row pgx.Row) (*model.WithdrawalPolicy, error) {
	var (
		p         model.WithdrawalPolicy
		rate      string
		updatedAt time.Time
	)
	if err := row.Scan(&p.Currency, &p.Minimum, &rate, &p.UpdatedBy, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ConversionRate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	p.UpdatedAt = &updatedAt
	return &p, nil
}

// ListPolicies retrieves the stored withdrawal policy overrides.
func (r *WithdrawalRepository) ListPolicies(ctx context.Context) ([]*model.WithdrawalPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM withdrawal_policies ORDER BY currency`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal policies: %w", err)
	}
	defer rows.Close()

	var policies []*model.WithdrawalPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal policy: %w", err)
		}
		policies = append(policies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal policies: %w", err)
	}
	return policies, nil
}

// UpsertPolicy stores the policy for one currency, replacing any earlier
// override.
func (r *WithdrawalRepository) UpsertPolicy(ctx context.Context, p *model.WithdrawalPolicy) (*model.WithdrawalPolicy, error) {
	const query = `
		INSERT INTO withdrawal_policies (currency, minimum, conversion_rate, updated_by, updated_at)
		VALUES ($1, $2, $3::numeric, $4, NOW())
		ON CONFLICT (currency) DO UPDATE SET
			minimum = EXCLUDED.minimum,
			conversion_rate = EXCLUDED.conversion_rate,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING ` + policyColumns

	stored, err := scanPolicy(r.db.QueryRow(ctx, query, p.Currency, p.Minimum, p.ConversionRate.String(), p.UpdatedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to save withdrawal policy: %w", err)
	}
	return stored, nil
}
