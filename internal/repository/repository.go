// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrGiftNotFound       = errors.New("gift not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrBattleNotFound     = errors.New("pk battle not found")
	ErrDuplicate          = errors.New("duplicate record")
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, so every
// repository can run either standalone or inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// parseDecimal converts a NUMERIC column selected as text.
func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", raw, err)
	}
	return d, nil
}

// parseNullDecimal converts a nullable NUMERIC column selected as text.
func parseNullDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := parseDecimal(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
