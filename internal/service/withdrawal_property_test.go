package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"stream-wallet/internal/config"
	"stream-wallet/internal/model"
)

// TestQuoteIsLinearProperty checks that a quote is the unit rate times the
// amount, so quoting a+b equals quoting a plus quoting b.
func TestQuoteIsLinearProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 100000).Draw(t, "rateCents")
		rate := decimal.New(cents, -2)
		s := NewWithdrawalService(nil, nil, nil, nil, config.WithdrawalConfig{
			Diamond: config.WithdrawalPolicy{ConversionRate: rate.String()},
			Star:    config.WithdrawalPolicy{ConversionRate: rate.String()},
		})

		currency := rapid.SampledFrom([]model.Currency{model.CurrencyDiamond, model.CurrencyStar}).Draw(t, "currency")
		a := rapid.Int64Range(1, 1_000_000).Draw(t, "a")
		b := rapid.Int64Range(1, 1_000_000).Draw(t, "b")

		qa, err := s.Quote(currency, a)
		if err != nil {
			t.Fatalf("quote a: %v", err)
		}
		qb, err := s.Quote(currency, b)
		if err != nil {
			t.Fatalf("quote b: %v", err)
		}
		qab, err := s.Quote(currency, a+b)
		if err != nil {
			t.Fatalf("quote a+b: %v", err)
		}

		if !qa.Add(qb).Equal(qab) {
			t.Fatalf("quote(%d)+quote(%d)=%s, quote(%d)=%s", a, b, qa.Add(qb), a+b, qab)
		}
		if !qa.Equal(rate.Mul(decimal.NewFromInt(a))) {
			t.Fatalf("quote(%d)=%s, want %s", a, qa, rate.Mul(decimal.NewFromInt(a)))
		}
	})
}

// TestQuoteRejectsNonPositiveProperty checks that zero and negative amounts
// are never quoted.
func TestQuoteRejectsNonPositiveProperty(t *testing.T) {
	s := NewWithdrawalService(nil, nil, nil, nil, config.WithdrawalConfig{})
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(-1_000_000, 0).Draw(t, "amount")
		if _, err := s.Quote(model.CurrencyDiamond, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("quote(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	})
}

// TestDefaultLimitProperty checks that listing limits stay within bounds.
func TestDefaultLimitProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.Int().Draw(t, "limit")
		got := defaultLimit(limit)
		if got < 1 || got > 500 {
			t.Fatalf("defaultLimit(%d) = %d out of range", limit, got)
		}
		if limit >= 1 && limit <= 500 && got != limit {
			t.Fatalf("defaultLimit(%d) = %d, want unchanged", limit, got)
		}
	})
}
