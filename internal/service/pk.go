package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/repository"
)

// PKGiftRequest is one gift directed at a host during a battle.
type PKGiftRequest struct {
	BattleID   int64  `json:"battle_id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	GiftID     *int64 `json:"gift_id,omitempty"`
	Amount     int64  `json:"amount"`
}

// PKEndRequest seals a battle with final scores.
type PKEndRequest struct {
	BattleID   int64  `json:"battle_id"`
	LeftScore  int64  `json:"left_score"`
	RightScore int64  `json:"right_score"`
	WinnerID   *int64 `json:"winner_id,omitempty"`
}

// PKBattleService runs PK battles. Scores are kept per battle and do not
// move any balance; callers that want the gift paid for also call
// GiftService.SendGift.
type PKBattleService struct {
	db       db.Beginner
	battles  *repository.PKBattleRepository
	accounts *repository.AccountRepository
}

// NewPKBattleService creates a new PKBattleService instance.
func NewPKBattleService(
	pool db.Beginner,
	battles *repository.PKBattleRepository,
	accounts *repository.AccountRepository,
) *PKBattleService {
	return &PKBattleService{
		db:       pool,
		battles:  battles,
		accounts: accounts,
	}
}

// Start opens an active battle between two hosts with both scores at zero.
func (s *PKBattleService) Start(ctx context.Context, leftHost, rightHost int64, leftStream, rightStream *int64) (*model.PKBattle, error) {
	if leftHost == rightHost {
		return nil, ErrInvalidSelf
	}
	for _, id := range []int64{leftHost, rightHost} {
		exists, err := s.accounts.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFound(repository.ErrAccountNotFound)
		}
	}

	battle, err := s.battles.Create(ctx, leftHost, rightHost, leftStream, rightStream)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("battle_id", battle.ID).
		Int64("left_host", leftHost).
		Int64("right_host", rightHost).
		Msg("PK battle started")
	return battle, nil
}

// SendGift adds a gift to the receiving host's score and records the event.
func (s *PKBattleService) SendGift(ctx context.Context, req PKGiftRequest) (*model.PKBattle, *model.PKGiftEvent, error) {
	var (
		battle *model.PKBattle
		event  *model.PKGiftEvent
	)
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		battles := s.battles.WithTx(tx)

		var err error
		battle, err = battles.GetActiveForUpdate(ctx, req.BattleID)
		if err != nil {
			return notFound(err)
		}
		if req.Amount <= 0 {
			return ErrInvalidAmount
		}
		if err := battle.ApplyGift(req.ReceiverID, req.Amount); err != nil {
			return mapBattleErr(err)
		}
		if err := battles.Save(ctx, battle); err != nil {
			return err
		}

		event, err = battles.AddEvent(ctx, &model.PKGiftEvent{
			BattleID:   battle.ID,
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			GiftID:     req.GiftID,
			Amount:     req.Amount,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.PKGiftsTotal.Inc()
	return battle, event, nil
}

// End seals an active battle. The supplied scores replace the accumulated
// ones.
func (s *PKBattleService) End(ctx context.Context, req PKEndRequest) (*model.PKBattle, error) {
	var battle *model.PKBattle
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		battles := s.battles.WithTx(tx)

		var err error
		battle, err = battles.GetActiveForUpdate(ctx, req.BattleID)
		if err != nil {
			return notFound(err)
		}
		if err := battle.Finish(req.LeftScore, req.RightScore, req.WinnerID, time.Now()); err != nil {
			return mapBattleErr(err)
		}
		return battles.Save(ctx, battle)
	})
	if err != nil {
		return nil, err
	}

	ev := log.Info().
		Int64("battle_id", battle.ID).
		Int64("left_score", battle.LeftScore).
		Int64("right_score", battle.RightScore)
	if battle.WinnerID != nil {
		ev = ev.Int64("winner_id", *battle.WinnerID)
	}
	ev.Msg("PK battle ended")
	return battle, nil
}

func mapBattleErr(err error) error {
	switch {
	case errors.Is(err, model.ErrNotAHost):
		return errors.Join(ErrInvalidParticipant, err)
	case errors.Is(err, model.ErrBattleNotActive):
		return errors.Join(ErrNotFound, err)
	}
	return err
}

// Get retrieves a battle in any state.
func (s *PKBattleService) Get(ctx context.Context, id int64) (*model.PKBattle, error) {
	battle, err := s.battles.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return battle, nil
}

// History lists battles, optionally only those a host took part in.
func (s *PKBattleService) History(ctx context.Context, hostID *int64, limit int) ([]*model.PKBattle, error) {
	return s.battles.ListByHost(ctx, hostID, defaultLimit(limit))
}

// Events lists a battle's gift events in order.
func (s *PKBattleService) Events(ctx context.Context, battleID int64) ([]*model.PKGiftEvent, error) {
	if _, err := s.Get(ctx, battleID); err != nil {
		return nil, err
	}
	return s.battles.ListEvents(ctx, battleID)
}

// EventTotals sums a battle's gift events per host.
func (s *PKBattleService) EventTotals(ctx context.Context, battleID int64) ([]*model.PKTotals, error) {
	if _, err := s.Get(ctx, battleID); err != nil {
		return nil, err
	}
	return s.battles.EventTotals(ctx, battleID)
}
