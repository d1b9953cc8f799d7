package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stream-wallet/internal/model"
)

// PKBattleRepository handles PK battles and their gift events.
type PKBattleRepository struct {
	db DBTX
}

// NewPKBattleRepository creates a new PKBattleRepository instance.
func NewPKBattleRepository(db DBTX) *PKBattleRepository {
	return &PKBattleRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PKBattleRepository) WithTx(tx pgx.Tx) *PKBattleRepository {
	return &PKBattleRepository{db: tx}
}

const battleColumns = `id, left_host_id, right_host_id, left_stream_id, right_stream_id,
	left_score, right_score, winner_id, status, start_time, end_time`

func scanBattle(row pgx.Row) (*model.PKBattle, error) {
	var b model.PKBattle
	err := row.Scan(
		&b.ID,
		&b.LeftHostID,
		&b.RightHostID,
		&b.LeftStreamID,
		&b.RightStreamID,
		&b.LeftScore,
		&b.RightScore,
		&b.WinnerID,
		&b.Status,
		&b.StartTime,
		&b.EndTime,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create starts an active battle with both scores at zero.
func (r *PKBattleRepository) Create(ctx context.Context, leftHost, rightHost int64, leftStream, rightStream *int64) (*model.PKBattle, error) {
	const query = `
		INSERT INTO pk_battles (left_host_id, right_host_id, left_stream_id, right_stream_id,
			left_score, right_score, status, start_time)
		VALUES ($1, $2, $3, $4, 0, 0, 'active', NOW())
		RETURNING ` + battleColumns

	b, err := scanBattle(r.db.QueryRow(ctx, query, leftHost, rightHost, leftStream, rightStream))
	if err != nil {
		return nil, fmt.Errorf("failed to create pk battle: %w", err)
	}
	return b, nil
}

// GetByID retrieves a battle in any state.
// Returns ErrBattleNotFound if it does not exist.
func (r *PKBattleRepository) GetByID(ctx context.Context, id int64) (*model.PKBattle, error) {
	const query = `SELECT ` + battleColumns + ` FROM pk_battles WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetActiveForUpdate retrieves an active battle and locks its row.
// Returns ErrBattleNotFound if no active battle has that id.
func (r *PKBattleRepository) GetActiveForUpdate(ctx context.Context, id int64) (*model.PKBattle, error) {
	const query = `SELECT ` + battleColumns + ` FROM pk_battles WHERE id = $1 AND status = 'active' FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *PKBattleRepository) get(ctx context.Context, query string, id int64) (*model.PKBattle, error) {
	b, err := scanBattle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to get pk battle: %w", err)
	}
	return b, nil
}

// Save writes back scores, winner, status and end time.
func (r *PKBattleRepository) Save(ctx context.Context, b *model.PKBattle) error {
	const query = `
		UPDATE pk_battles
		SET left_score = $2, right_score = $3, winner_id = $4, status = $5, end_time = $6
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, b.ID, b.LeftScore, b.RightScore, b.WinnerID, b.Status, b.EndTime)
	if err != nil {
		return fmt.Errorf("failed to save pk battle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBattleNotFound
	}
	return nil
}

// ListByHost retrieves battles a host took part in, newest first. A nil
// host lists every battle.
func (r *PKBattleRepository) ListByHost(ctx context.Context, hostID *int64, limit int) ([]*model.PKBattle, error) {
	const query = `
		SELECT ` + battleColumns + `
		FROM pk_battles
		WHERE $1::bigint IS NULL OR left_host_id = $1 OR right_host_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, hostID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pk battles: %w", err)
	}
	defer rows.Close()

	var battles []*model.PKBattle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pk battle: %w", err)
		}
		battles = append(battles, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pk battles: %w", err)
	}
	return battles, nil
}

// AddEvent appends a gift event to a battle.
func (r *PKBattleRepository) AddEvent(ctx context.Context, e *model.PKGiftEvent) (*model.PKGiftEvent, error) {
	const query = `
		INSERT INTO pk_gift_events (battle_id, sender_id, receiver_id, gift_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, battle_id, sender_id, receiver_id, gift_id, amount, created_at
	`

	var created model.PKGiftEvent
	err := r.db.QueryRow(ctx, query, e.BattleID, e.SenderID, e.ReceiverID, e.GiftID, e.Amount).Scan(
		&created.ID,
		&created.BattleID,
		&created.SenderID,
		&created.ReceiverID,
		&created.GiftID,
		&created.Amount,
		&created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add pk gift event: %w", err)
	}
	return &created, nil
}

// ListEvents retrieves a battle's gift events in order.
func (r *PKBattleRepository) ListEvents(ctx context.Context, battleID int64) ([]*model.PKGiftEvent, error) {
	const query = `
		SELECT id, battle_id, sender_id, receiver_id, gift_id, amount, created_at
		FROM pk_gift_events
		WHERE battle_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pk gift events: %w", err)
	}
	defer rows.Close()

	var events []*model.PKGiftEvent
	for rows.Next() {
		var e model.PKGiftEvent
		if err := rows.Scan(&e.ID, &e.BattleID, &e.SenderID, &e.ReceiverID, &e.GiftID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pk gift event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pk gift events: %w", err)
	}
	return events, nil
}

// EventTotals sums a battle's gift events per receiving host.
func (r *PKBattleRepository) EventTotals(ctx context.Context, battleID int64) ([]*model.PKTotals, error) {
	const query = `
		SELECT receiver_id, SUM(amount), COUNT(*)
		FROM pk_gift_events
		WHERE battle_id = $1
		GROUP BY receiver_id
		ORDER BY receiver_id
	`

	rows, err := r.db.Query(ctx, query, battleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pk event totals: %w", err)
	}
	defer rows.Close()

	var totals []*model.PKTotals
	for rows.Next() {
		var t model.PKTotals
		if err := rows.Scan(&t.ReceiverID, &t.Amount, &t.Events); err != nil {
			return nil, fmt.Errorf("failed to scan pk event totals: %w", err)
		}
		totals = append(totals, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pk event totals: %w", err)
	}
	return totals, nil
}
