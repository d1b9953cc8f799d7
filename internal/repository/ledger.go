package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// LedgerRepository handles the append-only ledger. It has no update or
// delete paths.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *LedgerRepository) WithTx(tx pgx.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

const ledgerColumns = `id, account_id, currency, amount, kind, balance_after, reference, created_at`

func scanLedgerEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.AccountID,
		&e.Currency,
		&e.Amount,
		&e.Kind,
		&e.BalanceAfter,
		&e.Reference,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append records one signed balance change.
func (r *LedgerRepository) Append(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	const query = `
		INSERT INTO ledger_entries (account_id, currency, amount, kind, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING ` + ledgerColumns

	created, err := scanLedgerEntry(r.db.QueryRow(ctx, query,
		entry.AccountID,
		entry.Currency,
		entry.Amount,
		entry.Kind,
		entry.BalanceAfter,
		entry.Reference,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return created, nil
}

// ListByAccount retrieves an account's entries in one currency, newest first.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID int64, currency model.Currency, limit int) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = $1 AND currency = $2
		ORDER BY id DESC
		LIMIT $3
	`

	return r.list(ctx, query, accountID, currency, limit)
}

// ListByReference retrieves every entry recorded against a reference.
func (r *LedgerRepository) ListByReference(ctx context.Context, reference string) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE reference = $1
		ORDER BY id
	`

	return r.list(ctx, query, reference)
}

func (r *LedgerRepository) list(ctx context.Context, query string, args ...any) ([]*model.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// Sum returns the total of an account's entries in one currency together
// with the balance_after of the newest entry (0 when there are none).
func (r *LedgerRepository) Sum(ctx context.Context, accountID int64, currency model.Currency) (sum int64, lastBalance int64, err error) {
	const query = `
		SELECT
			COALESCE(SUM(amount), 0),
			COALESCE((
				SELECT balance_after FROM ledger_entries
				WHERE account_id = $1 AND currency = $2
				ORDER BY id DESC LIMIT 1
			), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND currency = $2
	`

	if err := r.db.QueryRow(ctx, query, accountID, currency).Scan(&sum, &lastBalance); err != nil {
		return 0, 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, lastBalance, nil
}

// PeriodSummaries totals each account's entries in one currency created at
// or after since, ordered by credited amount.
func (r *LedgerRepository) PeriodSummaries(ctx context.Context, currency model.Currency, since time.Time, limit int) ([]*model.PeriodSummary, error) {
	const query = `
		SELECT
			l.account_id,
			a.username,
			COALESCE(SUM(l.amount) FILTER (WHERE l.kind = 'credited'), 0),
			COALESCE(-SUM(l.amount) FILTER (WHERE l.kind = 'debit'), 0),
			COALESCE(SUM(l.amount) FILTER (WHERE l.kind = 'bought'), 0),
			COALESCE(-SUM(l.amount) FILTER (WHERE l.kind = 'withdrawn'), 0),
			COUNT(*)
		FROM ledger_entries l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.currency = $1 AND l.created_at >= $2
		GROUP BY l.account_id, a.username
		ORDER BY 3 DESC, l.account_id
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, currency, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get period summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*model.PeriodSummary
	for rows.Next() {
		var s model.PeriodSummary
		err := rows.Scan(
			&s.AccountID,
			&s.Username,
			&s.Credited,
			&s.Debited,
			&s.Bought,
			&s.Withdrawn,
			&s.Entries,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period summaries: %w", err)
	}

	return summaries, nil
}
