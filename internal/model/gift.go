package model

import "math"

// StarMultiplier is the number of stars a receiver earns per diamond spent
// on a gift.
const StarMultiplier = 3

// MaxGiftCost is the largest catalog price whose star credit fits in int64.
const MaxGiftCost = math.MaxInt64 / StarMultiplier

// StarsForGift returns the stars credited to the receiver of a gift.
// diamondCost must not exceed MaxGiftCost.
func StarsForGift(diamondCost int64) int64 {
	return diamondCost * StarMultiplier
}

// InsufficientDiamonds is the diagnostic payload of a declined gift.
// It is a soft decline rather than a failure: nothing is persisted.
type InsufficientDiamonds struct {
	GiftName  string `json:"gift_name"`
	Required  int64  `json:"required"`
	Current   int64  `json:"current"`
	Shortfall int64  `json:"shortfall"`
}

// QuoteGift checks whether balance covers the gift cost. It returns nil
// when the gift can be sent.
func QuoteGift(balance int64, gift *Gift) *InsufficientDiamonds {
	if balance >= gift.DiamondCost {
		return nil
	}
	return &InsufficientDiamonds{
		GiftName:  gift.Name,
		Required:  gift.DiamondCost,
		Current:   balance,
		Shortfall: gift.DiamondCost - balance,
	}
}
