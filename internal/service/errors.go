// Package service provides the settlement business logic: ledger, gifts,
// payments, withdrawals and PK battles.
package service

import (
	"errors"
	"fmt"

	"stream-wallet/internal/model"
	"stream-wallet/internal/repository"
)

// Common errors for settlement operations.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidSelf        = errors.New("sender and receiver must differ")
	ErrInvalidParticipant = errors.New("receiver is not a participant")
	ErrInvalidAmount      = errors.New("invalid amount: must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTransition  = model.ErrInvalidTransition
	ErrAlreadySettled     = errors.New("withdrawal already settled")
	ErrBelowMinimum       = errors.New("amount below withdrawal minimum")
)

// notFound maps repository lookup misses onto ErrNotFound while keeping the
// original error in the chain.
func notFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrGiftNotFound),
		errors.Is(err, repository.ErrPaymentNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, repository.ErrBattleNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
