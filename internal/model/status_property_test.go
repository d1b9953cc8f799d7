// Package model property-based tests for the pure settlement rules.
package model

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var paymentStatuses = []PaymentStatus{PaymentPending, PaymentSuccess, PaymentFailed}

// simulateReconcile replays a sequence of reported statuses against a
// payment starting at PENDING and returns how many times it was credited.
func simulateReconcile(reports []PaymentStatus) (PaymentStatus, int) {
	status := PaymentPending
	credits := 0
	for _, next := range reports {
		action, err := PaymentTransition(status, next)
		if err != nil {
			continue
		}
		switch action {
		case PaymentCredit:
			credits++
			status = next
		case PaymentFail:
			status = next
		}
	}
	return status, credits
}

// TestPaymentCreditedAtMostOnceProperty checks that any sequence of status
// reports credits a payment at most once, and exactly once when it ends in
// SUCCESS.
func TestPaymentCreditedAtMostOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reports := rapid.SliceOf(rapid.SampledFrom(paymentStatuses)).Draw(t, "reports")

		final, credits := simulateReconcile(reports)

		if credits > 1 {
			t.Fatalf("payment credited %d times for reports %v", credits, reports)
		}
		if final == PaymentSuccess && credits != 1 {
			t.Fatalf("successful payment credited %d times", credits)
		}
		if final != PaymentSuccess && credits != 0 {
			t.Fatalf("payment in %s credited %d times", final, credits)
		}
	})
}

// TestTerminalPaymentNeverChangesProperty checks that once a payment is
// terminal, every different status is rejected.
func TestTerminalPaymentNeverChangesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prev := rapid.SampledFrom([]PaymentStatus{PaymentSuccess, PaymentFailed}).Draw(t, "prev")
		next := rapid.SampledFrom(paymentStatuses).Draw(t, "next")

		action, err := PaymentTransition(prev, next)
		if prev == next {
			if err != nil || action != PaymentDuplicate {
				t.Fatalf("%s -> %s: want duplicate, got %s, %v", prev, next, action, err)
			}
			return
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: want ErrInvalidTransition, got %v", prev, next, err)
		}
	})
}

// TestWithdrawalDebitsOnceProperty checks that a sequence of status edits
// fires the debit edge at most once, however the operator cases the status.
func TestWithdrawalDebitsOnceProperty(t *testing.T) {
	statuses := []WithdrawalStatus{
		"Pending", "pending", "Approved", "APPROVED", "approved",
		"Completed", "completed", "Rejected", "processing",
	}
	rapid.Check(t, func(t *rapid.T) {
		edits := rapid.SliceOfN(rapid.SampledFrom(statuses), 1, 20).Draw(t, "edits")

		prev := WithdrawalPending
		debits := 0
		settledOnce := false
		for _, next := range edits {
			if WithdrawalTriggersDebit(prev, next) {
				debits++
			}
			if next.Settled() {
				settledOnce = true
			}
			// Once settled, operators can only move it between settled states.
			if prev.Settled() && !next.Settled() {
				continue
			}
			prev = next
		}

		if settledOnce && debits != 1 {
			t.Fatalf("edits %v debited %d times", edits, debits)
		}
		if !settledOnce && debits != 0 {
			t.Fatalf("unsettled edits %v debited %d times", edits, debits)
		}
	})
}

// TestClampDebitNeverOverdrawsProperty checks the clamp keeps balances
// non-negative and takes the full amount whenever it is covered.
func TestClampDebitNeverOverdrawsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, 1_000_000).Draw(t, "balance")
		amount := rapid.Int64Range(1, 1_000_000).Draw(t, "amount")

		taken := ClampDebit(balance, amount)

		if balance-taken < 0 {
			t.Fatalf("balance %d went negative after taking %d", balance, taken)
		}
		if taken > amount {
			t.Fatalf("took %d, more than requested %d", taken, amount)
		}
		if amount <= balance && taken != amount {
			t.Fatalf("covered debit %d of %d clamped to %d", amount, balance, taken)
		}
		if amount > balance && taken != balance {
			t.Fatalf("uncovered debit %d of %d took %d", amount, balance, taken)
		}
	})
}

// TestGiftQuoteProperty checks a gift is declined exactly when the balance
// does not cover it and the shortfall closes the gap.
func TestGiftQuoteProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, 100_000).Draw(t, "balance")
		cost := rapid.Int64Range(1, 100_000).Draw(t, "cost")
		gift := &Gift{Name: "rose", DiamondCost: cost}

		declined := QuoteGift(balance, gift)

		if balance >= cost {
			if declined != nil {
				t.Fatalf("balance %d covers cost %d but gift declined", balance, cost)
			}
			return
		}
		if declined == nil {
			t.Fatalf("balance %d below cost %d but gift accepted", balance, cost)
		}
		if declined.Current+declined.Shortfall != declined.Required {
			t.Fatalf("shortfall does not close the gap: %+v", declined)
		}
	})
}

// TestPKScoreIsSumOfGiftsProperty checks the running score of each host is
// the sum of the gifts directed at them, and that Finish overrides it.
func TestPKScoreIsSumOfGiftsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		battle := &PKBattle{LeftHostID: 1, RightHostID: 2, Status: PKActive}
		gifts := rapid.SliceOf(rapid.Int64Range(1, 10_000)).Draw(t, "gifts")

		var wantLeft, wantRight int64
		for i, amount := range gifts {
			receiver := int64(1 + i%2)
			if err := battle.ApplyGift(receiver, amount); err != nil {
				t.Fatalf("apply gift: %v", err)
			}
			if receiver == 1 {
				wantLeft += amount
			} else {
				wantRight += amount
			}
		}
		if battle.LeftScore != wantLeft || battle.RightScore != wantRight {
			t.Fatalf("scores %d/%d, want %d/%d", battle.LeftScore, battle.RightScore, wantLeft, wantRight)
		}

		left := rapid.Int64Range(0, 1_000).Draw(t, "finalLeft")
		right := rapid.Int64Range(0, 1_000).Draw(t, "finalRight")
		if err := battle.Finish(left, right, nil, time.Now()); err != nil {
			t.Fatalf("finish: %v", err)
		}
		if battle.LeftScore != left || battle.RightScore != right {
			t.Fatalf("final scores %d/%d, want override %d/%d", battle.LeftScore, battle.RightScore, left, right)
		}
		if err := battle.ApplyGift(1, 1); !errors.Is(err, ErrBattleNotActive) {
			t.Fatalf("gift after end: want ErrBattleNotActive, got %v", err)
		}
	})
}

// TestStarsForGiftNeverWrapsProperty checks that every cost up to
// MaxGiftCost earns a positive star credit of exactly StarMultiplier times
// the cost.
func TestStarsForGiftNeverWrapsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cost := rapid.Int64Range(1, MaxGiftCost).Draw(t, "cost")
		stars := StarsForGift(cost)
		if stars <= 0 || stars/StarMultiplier != cost || stars%StarMultiplier != 0 {
			t.Fatalf("StarsForGift(%d) = %d", cost, stars)
		}
	})
}
