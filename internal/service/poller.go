package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/lock"
	"stream-wallet/internal/pkg/metrics"
)

// PollOutcome is how a payment watcher finished.
type PollOutcome string

// Watcher outcomes. Timing out is a normal outcome, not an error.
const (
	PollCredited       PollOutcome = "credited"
	PollFailed         PollOutcome = "failed"
	PollTimedOut       PollOutcome = "timed_out"
	PollAlreadyWatched PollOutcome = "already_watched"
	PollCancelled      PollOutcome = "cancelled"
)

var errStillPending = errors.New("payment still pending")

// PaymentPoller asks the gateway for the status of pending orders until
// they settle or the attempt ceiling is reached.
type PaymentPoller struct {
	payments *PaymentService
	gateway  Gateway
	interval time.Duration
	attempts int
	watching *lock.KeyedLock[string]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPaymentPoller creates a poller. Background watchers started with
// WatchAsync run until Stop is called.
func NewPaymentPoller(payments *PaymentService, gw Gateway, interval time.Duration, attempts int) *PaymentPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if attempts <= 0 {
		attempts = 240
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentPoller{
		payments: payments,
		gateway:  gw,
		interval: interval,
		attempts: attempts,
		watching: lock.New[string](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Watch polls one order until it reaches a terminal status and reconciles
// it. Only one watcher runs per order; a second call returns
// PollAlreadyWatched immediately.
func (p *PaymentPoller) Watch(ctx context.Context, orderID string) (PollOutcome, error) {
	if !p.watching.TryLock(orderID) {
		return PollAlreadyWatched, nil
	}
	defer p.watching.Unlock(orderID)

	var outcome PollOutcome
	attempt := 0

	op := func() error {
		attempt++

		// A webhook or client report may already have settled it.
		payment, err := p.payments.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		if payment.Status.Terminal() {
			outcome = outcomeFor(payment.Status)
			return nil
		}

		status, err := p.gateway.GetOrderStatus(ctx, orderID)
		if err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Int("attempt", attempt).Msg("Order status query failed")
			return err
		}
		if !status.Status.Terminal() {
			return errStillPending
		}

		if _, err := p.payments.Reconcile(ctx, orderID, status.Status, status.GatewayTxnID, SourcePoller); err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
				return backoff.Permanent(err)
			}
			return err
		}
		outcome = outcomeFor(status.Status)
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), uint64(p.attempts-1)),
		ctx,
	)

	err := backoff.Retry(op, b)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = PollCancelled
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidTransition):
		metrics.PollOutcomesTotal.WithLabelValues("error").Inc()
		return "", err
	default:
		outcome = PollTimedOut
		log.Warn().Str("order_id", orderID).Int("attempts", attempt).Msg("Payment still pending after last poll")
	}

	metrics.PollOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	log.Info().Str("order_id", orderID).Str("outcome", string(outcome)).Int("attempts", attempt).Msg("Payment watcher finished")
	return outcome, nil
}

func outcomeFor(status model.PaymentStatus) PollOutcome {
	if status == model.PaymentSuccess {
		return PollCredited
	}
	return PollFailed
}

// WatchAsync starts a background watcher for orderID.
func (p *PaymentPoller) WatchAsync(orderID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Watch(p.ctx, orderID); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Payment watcher failed")
		}
	}()
}

// Resume starts watchers for payments left PENDING, for example by a
// restart, and returns how many were started.
func (p *PaymentPoller) Resume(ctx context.Context, limit int) (int, error) {
	pending, err := p.payments.Pending(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}
	for _, payment := range pending {
		p.WatchAsync(payment.MerchantOrderID)
	}
	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("Resumed payment watchers")
	}
	return len(pending), nil
}

// Watching reports whether a watcher is running for orderID.
func (p *PaymentPoller) Watching(orderID string) bool {
	return p.watching.IsLocked(orderID)
}

// Stop cancels background watchers and waits for them to return.
func (p *PaymentPoller) Stop() {
	p.cancel()
	p.wg.Wait()
}
