package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"stream-wallet/internal/gateway"
	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/repository"
)

// Reconciliation sources, used for logs and metrics.
const (
	SourceClient  = "client"
	SourceWebhook = "webhook"
	SourcePoller  = "poller"
	SourceAdmin   = "admin"
)

// Gateway is the payment gateway surface the service needs.
type Gateway interface {
	CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*gateway.OrderStatus, error)
}

// PaymentOptions holds pricing and checkout settings.
// MaxDiamondsPerOrder caps a single purchase; it is lowered to whatever
// keeps the charge inside int64.
type PaymentOptions struct {
	PricePerDiamondMinor int64
	MaxDiamondsPerOrder  int64
	Currency             string
	RedirectURL          string
	Timezone             *time.Location
}

// PaymentRequest asks to buy diamonds, either a fixed amount or the cost of
// one gift.
type PaymentRequest struct {
	AccountID int64  `json:"account_id"`
	GiftID    *int64 `json:"gift_id,omitempty"`
	Diamonds  int64  `json:"diamonds,omitempty"`
}

// Checkout is the result of Initiate.
type Checkout struct {
	OrderID       string              `json:"merchant_order_id"`
	RedirectURL   string              `json:"redirect_url"`
	DiamondAmount int64               `json:"diamond_amount"`
	AmountMinor   int64               `json:"amount_minor"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Status        model.PaymentStatus `json:"status"`
	GatewayState  string              `json:"gateway_state"`
}

// ReconcileResult reports what a status report did.
type ReconcileResult struct {
	Payment   *model.Payment      `json:"payment"`
	Action    model.PaymentAction `json:"-"`
	Duplicate bool                `json:"duplicate"`
	Credited  int64               `json:"credited"`
}

// PaymentService initiates gateway checkouts and applies their outcome to
// the ledger exactly once.
type PaymentService struct {
	db       db.Beginner
	payments *repository.PaymentRepository
	accounts *repository.AccountRepository
	gifts    *repository.GiftRepository
	wallets  *repository.WalletRepository
	ledger   *LedgerService
	gateway  Gateway
	opts     PaymentOptions
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(
	pool db.Beginner,
	payments *repository.PaymentRepository,
	accounts *repository.AccountRepository,
	gifts *repository.GiftRepository,
	wallets *repository.WalletRepository,
	ledger *LedgerService,
	gw Gateway,
	opts PaymentOptions,
) *PaymentService {
	if opts.PricePerDiamondMinor <= 0 {
		opts.PricePerDiamondMinor = 100
	}
	if ceiling := math.MaxInt64 / opts.PricePerDiamondMinor; opts.MaxDiamondsPerOrder <= 0 || opts.MaxDiamondsPerOrder > ceiling {
		opts.MaxDiamondsPerOrder = ceiling
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &PaymentService{
		db:       pool,
		payments: payments,
		accounts: accounts,
		gifts:    gifts,
		wallets:  wallets,
		ledger:   ledger,
		gateway:  gw,
		opts:     opts,
	}
}

// Location is the timezone payment analytics are bucketed in.
func (s *PaymentService) Location() *time.Location {
	return s.opts.Timezone
}

// Initiate records a PENDING payment and opens a checkout on the gateway.
// If the gateway rejects the order the payment is marked FAILED.
func (s *PaymentService) Initiate(ctx context.Context, req PaymentRequest) (*Checkout, error) {
	diamonds := req.Diamonds
	var giftName string
	if req.GiftID != nil {
		gift, err := s.gifts.GetByID(ctx, *req.GiftID)
		if err != nil {
			return nil, notFound(err)
		}
		diamonds = gift.DiamondCost
		giftName = gift.Name
	}
	amountMinor, err := s.price(diamonds)
	if err != nil {
		return nil, err
	}

	exists, err := s.accounts.Exists(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, req.AccountID)
	}

	payment, err := s.payments.Create(ctx, &model.Payment{
		MerchantOrderID: uuid.NewString(),
		AccountID:       req.AccountID,
		GiftID:          req.GiftID,
		GiftName:        giftName,
		DiamondAmount:   diamonds,
		AmountMinor:     amountMinor,
		Currency:        s.opts.Currency,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		OrderID:     payment.MerchantOrderID,
		AmountMinor: payment.AmountMinor,
		RedirectURL: s.opts.RedirectURL,
		AccountID:   payment.AccountID,
		GiftID:      payment.GiftID,
		GiftName:    payment.GiftName,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", payment.MerchantOrderID).Msg("Gateway rejected checkout")
		if serr := s.payments.SetStatus(ctx, payment.MerchantOrderID, model.PaymentFailed, nil); serr != nil {
			log.Error().Err(serr).Str("order_id", payment.MerchantOrderID).Msg("Failed to mark payment failed")
		}
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	var txnID *string
	if resp.GatewayTxnID != "" {
		txnID = &resp.GatewayTxnID
	}
	if err := s.payments.SetCheckout(ctx, payment.MerchantOrderID, &resp.RedirectURL, txnID); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", payment.MerchantOrderID).
		Int64("account_id", payment.AccountID).
		Int64("diamonds", diamonds).
		Int64("amount_minor", payment.AmountMinor).
		Msg("Payment initiated")

	return &Checkout{
		OrderID:       payment.MerchantOrderID,
		RedirectURL:   resp.RedirectURL,
		DiamondAmount: diamonds,
		AmountMinor:   payment.AmountMinor,
		Amount:        payment.AmountMajor(),
		Currency:      payment.Currency,
		Status:        model.PaymentPending,
		GatewayState:  resp.State,
	}, nil
}

// price returns the charge for diamonds in minor units.
func (s *PaymentService) price(diamonds int64) (int64, error) {
	if diamonds <= 0 {
		return 0, ErrInvalidAmount
	}
	if diamonds > s.opts.MaxDiamondsPerOrder {
		return 0, fmt.Errorf("%w: at most %d diamonds per order", ErrInvalidAmount, s.opts.MaxDiamondsPerOrder)
	}
	return diamonds * s.opts.PricePerDiamondMinor, nil
}

// Reconcile applies a reported status to a payment. Diamonds are credited
// only on the PENDING to SUCCESS edge; replays of a terminal status are
// reported with Duplicate set.
func (s *PaymentService) Reconcile(ctx context.Context, orderID string, status model.PaymentStatus, gatewayTxnID *string, source string) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		payments := s.payments.WithTx(tx)

		payment, err := payments.GetForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err)
		}

		action, err := model.PaymentTransition(payment.Status, status)
		if err != nil {
			return err
		}
		result.Action = action

		switch action {
		case model.PaymentCredit:
			if _, err := s.ledger.Credit(ctx, tx, payment.AccountID, model.CurrencyDiamond, payment.DiamondAmount, model.KindBought, &orderID); err != nil {
				return err
			}
			if err := s.wallets.WithTx(tx).Apply(ctx, payment.AccountID, model.WalletDelta{TotalSpent: payment.AmountMajor()}); err != nil {
				return err
			}
			result.Credited = payment.DiamondAmount
			fallthrough
		case model.PaymentFail:
			if err := payments.SetStatus(ctx, orderID, status, gatewayTxnID); err != nil {
				return err
			}
		case model.PaymentDuplicate:
			result.Duplicate = true
		}

		result.Payment, err = payments.GetByOrderID(ctx, orderID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.ReconciliationsTotal.WithLabelValues(source, "rejected").Inc()
		}
		return nil, err
	}

	metrics.ReconciliationsTotal.WithLabelValues(source, result.Action.String()).Inc()
	log.Info().
		Str("order_id", orderID).
		Str("status", string(status)).
		Str("action", result.Action.String()).
		Str("source", source).
		Int64("credited", result.Credited).
		Msg("Payment reconciled")

	return result, nil
}

// ReconcileReported parses a status string from a client, webhook or
// operator and reconciles with it.
func (s *PaymentService) ReconcileReported(ctx context.Context, orderID, rawStatus string, gatewayTxnID *string, source string) (*ReconcileResult, error) {
	status, err := model.ParsePaymentStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.Reconcile(ctx, orderID, status, gatewayTxnID, source)
}

// Get retrieves a payment by merchant order id.
func (s *PaymentService) Get(ctx context.Context, orderID string) (*model.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, notFound(err)
	}
	return payment, nil
}

// List retrieves payments matching the filter.
func (s *PaymentService) List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, error) {
	return s.payments.List(ctx, f)
}

// Analytics aggregates payments per day over [from, to) in the configured
// timezone.
func (s *PaymentService) Analytics(ctx context.Context, from, to time.Time) ([]*model.PaymentDay, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty date range", ErrInvalidInput)
	}
	return s.payments.DailyAnalytics(ctx, from, to, s.opts.Timezone)
}

// Pending lists payments still PENDING that were created before cutoff.
func (s *PaymentService) Pending(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	return s.payments.ListPendingBefore(ctx, cutoff, defaultLimit(limit))
}
