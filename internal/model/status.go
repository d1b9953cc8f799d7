package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition is returned when a settled payment is asked to move
// to a different terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

// Payment states. PENDING is the only non-terminal state.
const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Terminal reports whether no further transition may change the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// ParsePaymentStatus normalizes a status reported by a client or the gateway.
// The gateway reports completed orders as COMPLETED.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return PaymentPending, nil
	case "SUCCESS", "COMPLETED":
		return PaymentSuccess, nil
	case "FAILED":
		return PaymentFailed, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
}

// PaymentAction is the side effect a payment status change requires.
type PaymentAction int

// Payment actions.
const (
	PaymentNoop      PaymentAction = iota // Nothing changes
	PaymentDuplicate                      // Repeat of an already applied terminal state
	PaymentCredit                         // PENDING -> SUCCESS, credit diamonds exactly once
	PaymentFail                           // PENDING -> FAILED, record status only
)

func (a PaymentAction) String() string {
	switch a {
	case PaymentDuplicate:
		return "duplicate"
	case PaymentCredit:
		return "credit"
	case PaymentFail:
		return "fail"
	default:
		return "noop"
	}
}

// PaymentTransition decides what moving a payment from prev to next requires.
// Diamonds are credited only on the PENDING -> SUCCESS edge, so replays of
// the same status are reported as duplicates and never credit twice.
func PaymentTransition(prev, next PaymentStatus) (PaymentAction, error) {
	switch {
	case prev == next && prev.Terminal():
		return PaymentDuplicate, nil
	case prev == next:
		return PaymentNoop, nil
	case prev.Terminal():
		return PaymentNoop, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	case next == PaymentSuccess:
		return PaymentCredit, nil
	case next == PaymentFailed:
		return PaymentFail, nil
	default:
		return PaymentNoop, nil
	}
}

// WithdrawalStatus is free text set by operators; only the settled states
// carry meaning and they are compared case-insensitively.
type WithdrawalStatus string

// Well-known withdrawal states.
const (
	WithdrawalPending   WithdrawalStatus = "Pending"
	WithdrawalApproved  WithdrawalStatus = "Approved"
	WithdrawalCompleted WithdrawalStatus = "Completed"
	WithdrawalRejected  WithdrawalStatus = "Rejected"
)

// Settled reports whether the status is Approved or Completed.
func (s WithdrawalStatus) Settled() bool {
	switch strings.ToUpper(strings.TrimSpace(string(s))) {
	case "APPROVED", "COMPLETED":
		return true
	}
	return false
}

// WithdrawalTriggersDebit reports whether moving from prev to next is the
// single edge on which the balance must be debited.
func WithdrawalTriggersDebit(prev, next WithdrawalStatus) bool {
	return !prev.Settled() && next.Settled()
}

// ClampDebit returns how much of amount can be taken from balance without
// going below zero.
func ClampDebit(balance, amount int64) int64 {
	if amount <= 0 || balance <= 0 {
		return 0
	}
	if amount > balance {
		return balance
	}
	return amount
}
