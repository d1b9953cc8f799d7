package model

import (
	"errors"
	"time"
)

// PK battle errors raised by the pure scoring rules.
var (
	ErrBattleNotActive = errors.New("pk battle is not active")
	ErrNotAHost        = errors.New("account is not a host of the pk battle")
)

// PKStatus is the state of a PK battle.
type PKStatus string

// PK battle states. Ended is terminal.
const (
	PKActive PKStatus = "active"
	PKEnded  PKStatus = "ended"
)

// PKBattle is a two-host contest scored by incoming gifts.
type PKBattle struct {
	ID            int64      `db:"id" json:"id"`
	LeftHostID    int64      `db:"left_host_id" json:"left_host_id"`
	RightHostID   int64      `db:"right_host_id" json:"right_host_id"`
	LeftStreamID  *int64     `db:"left_stream_id" json:"left_stream_id"`
	RightStreamID *int64     `db:"right_stream_id" json:"right_stream_id"`
	LeftScore     int64      `db:"left_score" json:"left_score"`
	RightScore    int64      `db:"right_score" json:"right_score"`
	WinnerID      *int64     `db:"winner_id" json:"winner_id"`
	Status        PKStatus   `db:"status" json:"status"`
	StartTime     time.Time  `db:"start_time" json:"start_time"`
	EndTime       *time.Time `db:"end_time" json:"end_time"`
}

// IsHost reports whether accountID is one of the two hosts.
func (b *PKBattle) IsHost(accountID int64) bool {
	return accountID == b.LeftHostID || accountID == b.RightHostID
}

// ApplyGift adds amount to the score of the receiving host.
func (b *PKBattle) ApplyGift(receiverID, amount int64) error {
	if b.Status != PKActive {
		return ErrBattleNotActive
	}
	switch receiverID {
	case b.LeftHostID:
		b.LeftScore += amount
	case b.RightHostID:
		b.RightScore += amount
	default:
		return ErrNotAHost
	}
	return nil
}

// Finish seals the battle with caller supplied scores. The final scores
// replace whatever was accumulated from gift events.
func (b *PKBattle) Finish(left, right int64, winnerID *int64, at time.Time) error {
	if b.Status != PKActive {
		return ErrBattleNotActive
	}
	if winnerID != nil && !b.IsHost(*winnerID) {
		return ErrNotAHost
	}
	b.LeftScore = left
	b.RightScore = right
	b.WinnerID = winnerID
	b.EndTime = &at
	b.Status = PKEnded
	return nil
}

// Leader returns the host currently ahead, or nil on a tie.
func (b *PKBattle) Leader() *int64 {
	switch {
	case b.LeftScore > b.RightScore:
		id := b.LeftHostID
		return &id
	case b.RightScore > b.LeftScore:
		id := b.RightHostID
		return &id
	}
	return nil
}

// PKGiftEvent is an append-only record of one gift sent during a battle.
type PKGiftEvent struct {
	ID         int64     `db:"id" json:"id"`
	BattleID   int64     `db:"battle_id" json:"battle_id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	GiftID     *int64    `db:"gift_id" json:"gift_id"`
	Amount     int64     `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PKTotals sums gift events per receiving host.
type PKTotals struct {
	ReceiverID int64 `db:"receiver_id" json:"receiver_id"`
	Amount     int64 `db:"amount" json:"amount"`
	Events     int64 `db:"events" json:"events"`
}
