package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/repository"
)

// GiftRequest describes one gift send.
type GiftRequest struct {
	SenderID       int64   `json:"sender_id"`
	ReceiverID     int64   `json:"receiver_id"`
	GiftID         int64   `json:"gift_id"`
	LiveStreamID   *int64  `json:"live_stream_id,omitempty"`
	LiveStreamType *string `json:"live_stream_type,omitempty"`
}

// GiftReceipt is the outcome of SendGift. Exactly one of Transaction and
// Declined is set.
type GiftReceipt struct {
	Transaction    *model.GiftTransaction      `json:"transaction,omitempty"`
	SenderDiamonds int64                       `json:"sender_diamonds"`
	ReceiverStars  int64                       `json:"receiver_stars,omitempty"`
	Declined       *model.InsufficientDiamonds `json:"declined,omitempty"`
}

// GiftService settles gifts and manages the gift catalog.
type GiftService struct {
	db       db.Beginner
	accounts *repository.AccountRepository
	gifts    *repository.GiftRepository
	ledger   *LedgerService
}

// NewGiftService creates a new GiftService instance.
func NewGiftService(
	pool db.Beginner,
	accounts *repository.AccountRepository,
	gifts *repository.GiftRepository,
	ledger *LedgerService,
) *GiftService {
	return &GiftService{
		db:       pool,
		accounts: accounts,
		gifts:    gifts,
		ledger:   ledger,
	}
}

// SendGift debits the sender's diamonds by the gift cost and credits the
// receiver with stars worth three times the cost, in one transaction.
// A sender who cannot afford the gift gets a receipt with Declined set and
// a nil error; nothing is persisted in that case.
func (s *GiftService) SendGift(ctx context.Context, req GiftRequest) (*GiftReceipt, error) {
	exists, err := s.accounts.Exists(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: receiver %d", ErrNotFound, req.ReceiverID)
	}

	if req.SenderID == req.ReceiverID {
		return nil, ErrInvalidSelf
	}

	gift, err := s.gifts.GetByID(ctx, req.GiftID)
	if err != nil {
		return nil, notFound(err)
	}

	if req.LiveStreamType != nil {
		switch *req.LiveStreamType {
		case model.StreamTypeAudio, model.StreamTypeVideo:
		default:
			return nil, fmt.Errorf("%w: live stream type %q", ErrInvalidInput, *req.LiveStreamType)
		}
	}

	receipt := &GiftReceipt{}
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		locked, err := s.accounts.WithTx(tx).LockInOrder(ctx, req.SenderID, req.ReceiverID)
		if err != nil {
			return notFound(err)
		}

		sender := locked[req.SenderID]
		if declined := model.QuoteGift(sender.Diamonds, gift); declined != nil {
			receipt.Declined = declined
			receipt.SenderDiamonds = sender.Diamonds
			return nil
		}

		giftTx, err := s.gifts.WithTx(tx).CreateTransaction(ctx, &model.GiftTransaction{
			SenderID:       req.SenderID,
			ReceiverID:     req.ReceiverID,
			GiftID:         &gift.ID,
			GiftName:       gift.Name,
			DiamondAmount:  gift.DiamondCost,
			StarAmount:     model.StarsForGift(gift.DiamondCost),
			LiveStreamID:   req.LiveStreamID,
			LiveStreamType: req.LiveStreamType,
		})
		if err != nil {
			return err
		}

		ref := fmt.Sprintf("gift:%d", giftTx.ID)
		debit, err := s.ledger.Debit(ctx, tx, req.SenderID, model.CurrencyDiamond, gift.DiamondCost, model.KindDebit, &ref)
		if err != nil {
			return err
		}
		credit, err := s.ledger.Credit(ctx, tx, req.ReceiverID, model.CurrencyStar, giftTx.StarAmount, model.KindCredited, &ref)
		if err != nil {
			return err
		}

		receipt.Transaction = giftTx
		receipt.SenderDiamonds = debit.BalanceAfter
		receipt.ReceiverStars = credit.BalanceAfter
		return nil
	})
	if err != nil {
		metrics.GiftsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if receipt.Declined != nil {
		metrics.GiftsTotal.WithLabelValues("declined").Inc()
		log.Info().
			Int64("sender_id", req.SenderID).
			Str("gift", gift.Name).
			Int64("shortfall", receipt.Declined.Shortfall).
			Msg("Gift declined for insufficient diamonds")
		return receipt, nil
	}

	metrics.GiftsTotal.WithLabelValues("sent").Inc()
	log.Info().
		Int64("sender_id", req.SenderID).
		Int64("receiver_id", req.ReceiverID).
		Str("gift", gift.Name).
		Int64("diamonds", gift.DiamondCost).
		Int64("stars", receipt.Transaction.StarAmount).
		Msg("Gift sent")
	return receipt, nil
}

// CreateGift adds an item to the catalog.
func (s *GiftService) CreateGift(ctx context.Context, name, gifFilename string, diamondCost int64) (*model.Gift, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: gift name is required", ErrInvalidInput)
	}
	if diamondCost <= 0 {
		return nil, ErrInvalidAmount
	}
	if diamondCost > model.MaxGiftCost {
		return nil, fmt.Errorf("%w: gift cost above %d", ErrInvalidAmount, int64(model.MaxGiftCost))
	}
	return s.gifts.Create(ctx, name, gifFilename, diamondCost)
}

// ListGifts returns the catalog ordered by cost.
func (s *GiftService) ListGifts(ctx context.Context) ([]*model.Gift, error) {
	return s.gifts.List(ctx)
}

// DeleteGift removes a catalog item. Past transactions are kept.
func (s *GiftService) DeleteGift(ctx context.Context, id int64) error {
	if err := s.gifts.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	return nil
}

// GiftsSent returns the gifts an account sent, newest first.
func (s *GiftService) GiftsSent(ctx context.Context, accountID int64, limit int) ([]*model.GiftTransaction, error) {
	return s.gifts.ListSent(ctx, accountID, defaultLimit(limit))
}

// GiftsReceived returns the gifts an account received, newest first.
func (s *GiftService) GiftsReceived(ctx context.Context, accountID int64, limit int) ([]*model.GiftTransaction, error) {
	return s.gifts.ListReceived(ctx, accountID, defaultLimit(limit))
}

// GiftsForStream returns the gifts sent during one live stream.
func (s *GiftService) GiftsForStream(ctx context.Context, streamID int64, streamType string) ([]*model.GiftTransaction, error) {
	return s.gifts.ListForStream(ctx, streamID, streamType)
}

func defaultLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
