package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    PaymentStatus
		wantErr bool
	}{
		{"SUCCESS", PaymentSuccess, false},
		{"success", PaymentSuccess, false},
		{"COMPLETED", PaymentSuccess, false},
		{" pending ", PaymentPending, false},
		{"Failed", PaymentFailed, false},
		{"REFUNDED", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePaymentStatus(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentTransition(t *testing.T) {
	tests := []struct {
		prev, next PaymentStatus
		want       PaymentAction
		wantErr    bool
	}{
		{PaymentPending, PaymentSuccess, PaymentCredit, false},
		{PaymentPending, PaymentFailed, PaymentFail, false},
		{PaymentPending, PaymentPending, PaymentNoop, false},
		{PaymentSuccess, PaymentSuccess, PaymentDuplicate, false},
		{PaymentFailed, PaymentFailed, PaymentDuplicate, false},
		{PaymentSuccess, PaymentFailed, PaymentNoop, true},
		{PaymentFailed, PaymentSuccess, PaymentNoop, true},
		{PaymentSuccess, PaymentPending, PaymentNoop, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.prev)+"->"+string(tt.next), func(t *testing.T) {
			got, err := PaymentTransition(tt.prev, tt.next)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithdrawalTriggersDebit(t *testing.T) {
	assert.True(t, WithdrawalTriggersDebit("Pending", "Approved"))
	assert.True(t, WithdrawalTriggersDebit("Pending", "completed"))
	assert.True(t, WithdrawalTriggersDebit("Rejected", "APPROVED"))
	assert.False(t, WithdrawalTriggersDebit("Approved", "Approved"))
	assert.False(t, WithdrawalTriggersDebit("approved", "Completed"))
	assert.False(t, WithdrawalTriggersDebit("Pending", "Rejected"))
}

func TestClampDebit(t *testing.T) {
	assert.Equal(t, int64(20), ClampDebit(20, 30))
	assert.Equal(t, int64(30), ClampDebit(100, 30))
	assert.Equal(t, int64(0), ClampDebit(0, 30))
	assert.Equal(t, int64(0), ClampDebit(10, 0))
}

func TestQuoteGift(t *testing.T) {
	gift := &Gift{Name: "Rocket", DiamondCost: 40}

	assert.Nil(t, QuoteGift(100, gift))
	assert.Nil(t, QuoteGift(40, gift))

	declined := QuoteGift(25, gift)
	require.NotNil(t, declined)
	assert.Equal(t, InsufficientDiamonds{GiftName: "Rocket", Required: 40, Current: 25, Shortfall: 15}, *declined)
	assert.Equal(t, int64(120), StarsForGift(40))
}

func TestWalletDeltaFor(t *testing.T) {
	assert.Equal(t, int64(50), WalletDeltaFor(CurrencyDiamond, KindBought, 50).DiamondsBought)
	assert.Equal(t, int64(40), WalletDeltaFor(CurrencyDiamond, KindDebit, -40).DiamondsSpent)
	assert.Equal(t, int64(20), WalletDeltaFor(CurrencyDiamond, KindWithdrawn, -20).DiamondsWithdrawn)
	assert.Equal(t, int64(120), WalletDeltaFor(CurrencyStar, KindCredited, 120).StarsEarned)
	assert.Equal(t, int64(7), WalletDeltaFor(CurrencyStar, KindWithdrawn, -7).StarsWithdrawn)
	assert.True(t, WalletDeltaFor(CurrencyDiamond, KindCredited, 10).IsZero())
}

func TestPaymentAmountMajor(t *testing.T) {
	p := &Payment{AmountMinor: 5000}
	assert.True(t, decimal.NewFromInt(50).Equal(p.AmountMajor()))
}

func TestPKBattleFinish(t *testing.T) {
	battle := &PKBattle{LeftHostID: 7, RightHostID: 9, Status: PKActive}

	require.NoError(t, battle.ApplyGift(7, 30))
	assert.ErrorIs(t, battle.ApplyGift(8, 10), ErrNotAHost)

	outsider := int64(8)
	assert.ErrorIs(t, battle.Finish(1, 2, &outsider, time.Now()), ErrNotAHost)

	winner := int64(9)
	require.NoError(t, battle.Finish(10, 99, &winner, time.Now()))
	assert.Equal(t, PKEnded, battle.Status)
	assert.Equal(t, int64(10), battle.LeftScore)
	assert.Equal(t, int64(99), battle.RightScore)
	assert.NotNil(t, battle.EndTime)
	assert.ErrorIs(t, battle.Finish(1, 1, nil, time.Now()), ErrBattleNotActive)
}

func TestPeriodStart(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// Thursday 2024-03-14 15:30 local.
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, loc), PeriodDaily.Start(now))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), PeriodWeekly.Start(now))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), PeriodMonthly.Start(now))

	sunday := time.Date(2024, 3, 17, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), PeriodWeekly.Start(sunday))

	_, err := ParsePeriod("yearly")
	assert.Error(t, err)
	p, err := ParsePeriod("Weekly")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeekly, p)
}
