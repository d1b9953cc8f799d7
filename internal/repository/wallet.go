package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// WalletRepository maintains the derived wallet summary rows.
type WalletRepository struct {
	db DBTX
}

// NewWalletRepository creates a new WalletRepository instance.
func NewWalletRepository(db DBTX) *WalletRepository {
	return &WalletRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *WalletRepository) WithTx(tx pgx.Tx) *WalletRepository {
	return &WalletRepository{db: tx}
}

const walletColumns = `account_id, diamonds_bought, diamonds_spent, diamonds_withdrawn,
	stars_earned, stars_withdrawn, total_spent::text, updated_at`

func scanWallet(row pgx.Row) (*model.WalletSummary, error) {
	var (
		w          model.WalletSummary
		totalSpent string
	)
	err := row.Scan(
		&w.AccountID,
		&w.DiamondsBought,
		&w.DiamondsSpent,
		&w.DiamondsWithdrawn,
		&w.StarsEarned,
		&w.StarsWithdrawn,
		&totalSpent,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.TotalSpent, err = parseDecimal(totalSpent); err != nil {
		return nil, err
	}
	return &w, nil
}

// Get retrieves an account's summary. An account that never moved funds has
// no row yet and gets an all-zero summary.
func (r *WalletRepository) Get(ctx context.Context, accountID int64) (*model.WalletSummary, error) {
	const query = `SELECT ` + walletColumns + ` FROM wallet_summaries WHERE account_id = $1`

	w, err := scanWallet(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.WalletSummary{AccountID: accountID}, nil
		}
		return nil, fmt.Errorf("failed to get wallet summary: %w", err)
	}
	return w, nil
}

// Apply adds delta to the account's summary, creating the row if needed.
func (r *WalletRepository) Apply(ctx context.Context, accountID int64, d model.WalletDelta) error {
	if d.IsZero() {
		return nil
	}

	const query = `
		INSERT INTO wallet_summaries (account_id, diamonds_bought, diamonds_spent, diamonds_withdrawn,
			stars_earned, stars_withdrawn, total_spent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			diamonds_bought = wallet_summaries.diamonds_bought + EXCLUDED.diamonds_bought,
			diamonds_spent = wallet_summaries.diamonds_spent + EXCLUDED.diamonds_spent,
			diamonds_withdrawn = wallet_summaries.diamonds_withdrawn + EXCLUDED.diamonds_withdrawn,
			stars_earned = wallet_summaries.stars_earned + EXCLUDED.stars_earned,
			stars_withdrawn = wallet_summaries.stars_withdrawn + EXCLUDED.stars_withdrawn,
			total_spent = wallet_summaries.total_spent + EXCLUDED.total_spent,
			updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query,
		accountID,
		d.DiamondsBought,
		d.DiamondsSpent,
		d.DiamondsWithdrawn,
		d.StarsEarned,
		d.StarsWithdrawn,
		d.TotalSpent.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to apply wallet delta: %w", err)
	}
	return nil
}

// Rebuild recomputes the account's summary from ledger entries and
// successful payments and overwrites the cached row.
func (r *WalletRepository) Rebuild(ctx context.Context, accountID int64) (*model.WalletSummary, error) {
	const query = `
		INSERT INTO wallet_summaries (account_id, diamonds_bought, diamonds_spent, diamonds_withdrawn,
			stars_earned, stars_withdrawn, total_spent, updated_at)
		SELECT
			$1,
			COALESCE(SUM(amount) FILTER (WHERE currency = 'diamond' AND kind = 'bought'), 0),
			COALESCE(-SUM(amount) FILTER (WHERE currency = 'diamond' AND kind = 'debit'), 0),
			COALESCE(-SUM(amount) FILTER (WHERE currency = 'diamond' AND kind = 'withdrawn'), 0),
			COALESCE(SUM(amount) FILTER (WHERE currency = 'star' AND kind = 'credited'), 0),
			COALESCE(-SUM(amount) FILTER (WHERE currency = 'star' AND kind = 'withdrawn'), 0),
			COALESCE((
				SELECT SUM(amount_minor) / 100.0 FROM payments
				WHERE account_id = $1 AND status = 'SUCCESS'
			), 0),
			NOW()
		FROM ledger_entries
		WHERE account_id = $1
		ON CONFLICT (account_id) DO UPDATE SET
			diamonds_bought = EXCLUDED.diamonds_bought,
			diamonds_spent = EXCLUDED.diamonds_spent,
			diamonds_withdrawn = EXCLUDED.diamonds_withdrawn,
			stars_earned = EXCLUDED.stars_earned,
			stars_withdrawn = EXCLUDED.stars_withdrawn,
			total_spent = EXCLUDED.total_spent,
			updated_at = NOW()
		RETURNING ` + walletColumns

	w, err := scanWallet(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild wallet summary: %w", err)
	}
	return w, nil
}
