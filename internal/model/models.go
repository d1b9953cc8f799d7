// Package model defines the data models for the wallet and settlement service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency identifies which balance of an account a ledger entry moves.
type Currency string

// Supported currencies.
const (
	CurrencyDiamond Currency = "diamond" // Spendable currency, bought with money
	CurrencyStar    Currency = "star"    // Earned only by receiving gifts
)

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	return c == CurrencyDiamond || c == CurrencyStar
}

// EntryKind categorizes a ledger entry.
type EntryKind string

// Ledger entry kinds.
const (
	KindCredited  EntryKind = "credited"  // Admin credit or gift stars received
	KindDebit     EntryKind = "debit"     // Diamonds spent on a gift
	KindBought    EntryKind = "bought"    // Diamonds bought through the payment gateway
	KindWithdrawn EntryKind = "withdrawn" // Approved withdrawal
)

// Account holds the balances of one user. Money is carried for display; no
// settlement path writes it.
type Account struct {
	ID        int64           `db:"id" json:"id"`
	Username  *string         `db:"username" json:"username"`
	Diamonds  int64           `db:"diamonds" json:"diamonds"`
	Stars     int64           `db:"stars" json:"stars"`
	Money     decimal.Decimal `db:"money" json:"money"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Balance returns the balance held in the given currency.
func (a *Account) Balance(c Currency) int64 {
	if c == CurrencyStar {
		return a.Stars
	}
	return a.Diamonds
}

// LedgerEntry is an immutable record of one signed balance change.
type LedgerEntry struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Currency     Currency  `db:"currency" json:"currency"`
	Amount       int64     `db:"amount" json:"amount"`
	Kind         EntryKind `db:"kind" json:"kind"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	Reference    *string   `db:"reference" json:"reference"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// WalletSummary is a derived per-account cache of lifetime totals.
// It can always be rebuilt from ledger entries and successful payments.
type WalletSummary struct {
	AccountID         int64           `db:"account_id" json:"account_id"`
	DiamondsBought    int64           `db:"diamonds_bought" json:"diamonds_bought"`
	DiamondsSpent     int64           `db:"diamonds_spent" json:"diamonds_spent"`
	DiamondsWithdrawn int64           `db:"diamonds_withdrawn" json:"diamonds_withdrawn"`
	StarsEarned       int64           `db:"stars_earned" json:"stars_earned"`
	StarsWithdrawn    int64           `db:"stars_withdrawn" json:"stars_withdrawn"`
	TotalSpent        decimal.Decimal `db:"total_spent" json:"total_spent"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletDelta is an increment applied to a WalletSummary.
type WalletDelta struct {
	DiamondsBought    int64
	DiamondsSpent     int64
	DiamondsWithdrawn int64
	StarsEarned       int64
	StarsWithdrawn    int64
	TotalSpent        decimal.Decimal
}

// IsZero reports whether applying d would change nothing.
func (d WalletDelta) IsZero() bool {
	return d.DiamondsBought == 0 && d.DiamondsSpent == 0 && d.DiamondsWithdrawn == 0 &&
		d.StarsEarned == 0 && d.StarsWithdrawn == 0 && d.TotalSpent.IsZero()
}

// WalletDeltaFor maps a ledger movement onto the summary counters it feeds.
// amount is the signed ledger amount.
func WalletDeltaFor(c Currency, kind EntryKind, amount int64) WalletDelta {
	var d WalletDelta
	switch {
	case c == CurrencyDiamond && kind == KindBought:
		d.DiamondsBought = amount
	case c == CurrencyDiamond && kind == KindDebit:
		d.DiamondsSpent = -amount
	case c == CurrencyDiamond && kind == KindWithdrawn:
		d.DiamondsWithdrawn = -amount
	case c == CurrencyStar && kind == KindCredited:
		d.StarsEarned = amount
	case c == CurrencyStar && kind == KindWithdrawn:
		d.StarsWithdrawn = -amount
	}
	return d
}

// Gift is a catalog item that can be sent to another user.
type Gift struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	GifFilename string    `db:"gif_filename" json:"gif_filename"`
	DiamondCost int64     `db:"diamond_cost" json:"diamond_cost"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Live stream types a gift can be sent from.
const (
	StreamTypeAudio = "audio"
	StreamTypeVideo = "video"
)

// GiftTransaction records one settled gift. Name and cost are copied from
// the catalog so the record survives deletion of the gift.
type GiftTransaction struct {
	ID             int64     `db:"id" json:"id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	ReceiverID     int64     `db:"receiver_id" json:"receiver_id"`
	GiftID         *int64    `db:"gift_id" json:"gift_id"`
	GiftName       string    `db:"gift_name" json:"gift_name"`
	DiamondAmount  int64     `db:"diamond_amount" json:"diamond_amount"`
	StarAmount     int64     `db:"star_amount" json:"star_amount"`
	LiveStreamID   *int64    `db:"live_stream_id" json:"live_stream_id"`
	LiveStreamType *string   `db:"live_stream_type" json:"live_stream_type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Payment tracks one gateway checkout used to buy diamonds.
type Payment struct {
	MerchantOrderID string        `db:"merchant_order_id" json:"merchant_order_id"`
	AccountID       int64         `db:"account_id" json:"account_id"`
	GiftID          *int64        `db:"gift_id" json:"gift_id"`
	GiftName        string        `db:"gift_name" json:"gift_name"`
	DiamondAmount   int64         `db:"diamond_amount" json:"diamond_amount"`
	AmountMinor     int64         `db:"amount_minor" json:"amount_minor"`
	Currency        string        `db:"currency" json:"currency"`
	Status          PaymentStatus `db:"status" json:"status"`
	GatewayTxnID    *string       `db:"gateway_transaction_id" json:"gateway_transaction_id"`
	RedirectURL     *string       `db:"redirect_url" json:"redirect_url"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// AmountMajor converts the charged amount from minor units (paise) to rupees.
func (p *Payment) AmountMajor() decimal.Decimal {
	return decimal.New(p.AmountMinor, -2)
}

// PaymentFilter narrows payment listings. Nil fields are ignored.
type PaymentFilter struct {
	AccountID *int64
	GiftID    *int64
	Status    *PaymentStatus
	Limit     int
}

// PaymentDay aggregates the payments created on one calendar day.
type PaymentDay struct {
	Day          time.Time       `db:"day" json:"day"`
	Total        int64           `db:"total" json:"total"`
	Successful   int64           `db:"successful" json:"successful"`
	Failed       int64           `db:"failed" json:"failed"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	DiamondsSold int64           `db:"diamonds_sold" json:"diamonds_sold"`
}

// SuccessRate returns the percentage of successful payments for the day.
func (d PaymentDay) SuccessRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Successful) / float64(d.Total) * 100
}

// Withdrawal is a request to cash out diamonds or stars. SettledAmount is
// the amount actually debited, which can be lower than Amount when the
// balance no longer covered it. Payout is its money value at settlement.
type Withdrawal struct {
	ID            int64            `db:"id" json:"id"`
	AccountID     int64            `db:"account_id" json:"account_id"`
	Currency      Currency         `db:"currency" json:"currency"`
	Amount        int64            `db:"amount" json:"amount"`
	SettledAmount *int64           `db:"settled_amount" json:"settled_amount"`
	Payout        *decimal.Decimal `db:"payout" json:"payout"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
	SettledAt     *time.Time       `db:"settled_at" json:"settled_at"`
}

// WithdrawalPolicy is the smallest request accepted for a currency and the
// money value of one unit. UpdatedBy is nil for the configured defaults.
type WithdrawalPolicy struct {
	Currency       Currency        `db:"currency" json:"currency"`
	Minimum        int64           `db:"minimum" json:"minimum"`
	ConversionRate decimal.Decimal `db:"conversion_rate" json:"conversion_rate"`
	UpdatedBy      *int64          `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt      *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// PeriodSummary totals one account's ledger activity inside a reporting window.
type PeriodSummary struct {
	AccountID int64   `db:"account_id" json:"account_id"`
	Username  *string `db:"username" json:"username"`
	Credited  int64   `db:"credited" json:"credited"`
	Debited   int64   `db:"debited" json:"debited"`
	Bought    int64   `db:"bought" json:"bought"`
	Withdrawn int64   `db:"withdrawn" json:"withdrawn"`
	Entries   int64   `db:"entries" json:"entries"`
}
