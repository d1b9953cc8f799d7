package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"stream-wallet/internal/model"
)

// TestPriceNeverWrapsProperty checks that every accepted order is charged
// exactly diamonds times the unit price, and that orders whose charge would
// not fit in int64 are refused.
func TestPriceNeverWrapsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unit := rapid.Int64Range(2, 1_000_000).Draw(t, "unit")
		s := NewPaymentService(nil, nil, nil, nil, nil, nil, &fakeGateway{}, PaymentOptions{PricePerDiamondMinor: unit})

		ceiling := int64(math.MaxInt64) / unit
		if s.opts.MaxDiamondsPerOrder != ceiling {
			t.Fatalf("order cap %d, want %d", s.opts.MaxDiamondsPerOrder, ceiling)
		}

		diamonds := rapid.Int64Range(1, ceiling).Draw(t, "diamonds")
		charge, err := s.price(diamonds)
		if err != nil {
			t.Fatalf("price(%d) at %d: %v", diamonds, unit, err)
		}
		if charge <= 0 || charge/unit != diamonds || charge%unit != 0 {
			t.Fatalf("price(%d) at %d = %d", diamonds, unit, charge)
		}

		over := rapid.Int64Range(ceiling+1, math.MaxInt64).Draw(t, "over")
		if _, err := s.price(over); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("price(%d) at %d error = %v, want ErrInvalidAmount", over, unit, err)
		}
	})
}

func TestConfiguredOrderCap(t *testing.T) {
	s := NewPaymentService(nil, nil, nil, nil, nil, nil, &fakeGateway{}, PaymentOptions{
		PricePerDiamondMinor: 100,
		MaxDiamondsPerOrder:  5000,
	})

	charge, err := s.price(5000)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), charge)

	_, err = s.price(5001)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// A cap above the int64 ceiling is lowered to it.
	s = NewPaymentService(nil, nil, nil, nil, nil, nil, &fakeGateway{}, PaymentOptions{
		PricePerDiamondMinor: 100,
		MaxDiamondsPerOrder:  math.MaxInt64,
	})
	assert.Equal(t, int64(math.MaxInt64/100), s.opts.MaxDiamondsPerOrder)
}

func TestInitiateRefusesOrderThatWouldWrap(t *testing.T) {
	gw := &fakeGateway{}
	s := NewPaymentService(nil, nil, nil, nil, nil, nil, gw, PaymentOptions{PricePerDiamondMinor: 100})

	// 184467440737095517 * 100 wraps to 84.
	_, err := s.Initiate(context.Background(), PaymentRequest{AccountID: 1, Diamonds: 184467440737095517})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, gw.Checkouts())

	_, err = s.Initiate(context.Background(), PaymentRequest{AccountID: 1, Diamonds: -3})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, gw.Checkouts())
}

func TestCreateGiftRefusesCostThatWouldWrapStars(t *testing.T) {
	s := NewGiftService(nil, nil, nil, nil)

	// 6148914691236517206 * 3 wraps to 2.
	_, err := s.CreateGift(context.Background(), "Whale", "whale.gif", 6148914691236517206)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = s.CreateGift(context.Background(), "Whale", "whale.gif", model.MaxGiftCost+1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
