package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// GiftRepository handles the gift catalog and settled gift transactions.
type GiftRepository struct {
	db DBTX
}

// NewGiftRepository creates a new GiftRepository instance.
func NewGiftRepository(db DBTX) *GiftRepository {
	return &GiftRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *GiftRepository) WithTx(tx pgx.Tx) *GiftRepository {
	return &GiftRepository{db: tx}
}

const giftColumns = `id, name, gif_filename, diamond_cost, created_at`

func scanGift(row pgx.Row) (*model.Gift, error) {
	var g model.Gift
	if err := row.Scan(&g.ID, &g.Name, &g.GifFilename, &g.DiamondCost, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create adds a catalog item.
func (r *GiftRepository) Create(ctx context.Context, name, gifFilename string, diamondCost int64) (*model.Gift, error) {
	const query = `
		INSERT INTO gifts (name, gif_filename, diamond_cost, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + giftColumns

	gift, err := scanGift(r.db.QueryRow(ctx, query, name, gifFilename, diamondCost))
	if err != nil {
		return nil, fmt.Errorf("failed to create gift: %w", err)
	}
	return gift, nil
}

// GetByID retrieves a catalog item.
// Returns ErrGiftNotFound if the gift does not exist.
func (r *GiftRepository) GetByID(ctx context.Context, id int64) (*model.Gift, error) {
	const query = `SELECT ` + giftColumns + ` FROM gifts WHERE id = $1`

	gift, err := scanGift(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGiftNotFound
		}
		return nil, fmt.Errorf("failed to get gift: %w", err)
	}
	return gift, nil
}

// List retrieves the catalog ordered by cost.
func (r *GiftRepository) List(ctx context.Context) ([]*model.Gift, error) {
	const query = `SELECT ` + giftColumns + ` FROM gifts ORDER BY diamond_cost, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	defer rows.Close()

	var gifts []*model.Gift
	for rows.Next() {
		gift, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift: %w", err)
		}
		gifts = append(gifts, gift)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gifts: %w", err)
	}
	return gifts, nil
}

// Delete removes a catalog item. Settled transactions keep their copied
// name and cost; their gift_id becomes NULL.
func (r *GiftRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM gifts WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete gift: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrGiftNotFound
	}
	return nil
}

const giftTxColumns = `id, sender_id, receiver_id, gift_id, gift_name, diamond_amount, star_amount,
	live_stream_id, live_stream_type, created_at`

func scanGiftTransaction(row pgx.Row) (*model.GiftTransaction, error) {
	var t model.GiftTransaction
	err := row.Scan(
		&t.ID,
		&t.SenderID,
		&t.ReceiverID,
		&t.GiftID,
		&t.GiftName,
		&t.DiamondAmount,
		&t.StarAmount,
		&t.LiveStreamID,
		&t.LiveStreamType,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction records a settled gift.
func (r *GiftRepository) CreateTransaction(ctx context.Context, t *model.GiftTransaction) (*model.GiftTransaction, error) {
	const query = `
		INSERT INTO gift_transactions (sender_id, receiver_id, gift_id, gift_name, diamond_amount, star_amount,
			live_stream_id, live_stream_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + giftTxColumns

	created, err := scanGiftTransaction(r.db.QueryRow(ctx, query,
		t.SenderID,
		t.ReceiverID,
		t.GiftID,
		t.GiftName,
		t.DiamondAmount,
		t.StarAmount,
		t.LiveStreamID,
		t.LiveStreamType,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create gift transaction: %w", err)
	}
	return created, nil
}

// ListSent retrieves gifts sent by an account, newest first.
func (r *GiftRepository) ListSent(ctx context.Context, senderID int64, limit int) ([]*model.GiftTransaction, error) {
	const query = `
		SELECT ` + giftTxColumns + `
		FROM gift_transactions
		WHERE sender_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	return r.listTransactions(ctx, query, senderID, limit)
}

// ListReceived retrieves gifts received by an account, newest first.
func (r *GiftRepository) ListReceived(ctx context.Context, receiverID int64, limit int) ([]*model.GiftTransaction, error) {
	const query = `
		SELECT ` + giftTxColumns + `
		FROM gift_transactions
		WHERE receiver_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	return r.listTransactions(ctx, query, receiverID, limit)
}

// ListForStream retrieves gifts sent during one live stream, oldest first.
func (r *GiftRepository) ListForStream(ctx context.Context, streamID int64, streamType string) ([]*model.GiftTransaction, error) {
	const query = `
		SELECT ` + giftTxColumns + `
		FROM gift_transactions
		WHERE live_stream_id = $1 AND live_stream_type = $2
		ORDER BY id
	`
	return r.listTransactions(ctx, query, streamID, streamType)
}

func (r *GiftRepository) listTransactions(ctx context.Context, query string, args ...any) ([]*model.GiftTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get gift transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.GiftTransaction
	for rows.Next() {
		t, err := scanGiftTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift transaction: %w", err)
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gift transactions: %w", err)
	}
	return txs, nil
}
