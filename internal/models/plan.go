// Package models contains the domain structures shared between the business
// services and the storage layer.
package models

// Plan identifies a subscription tier.
type Plan string

// Subscription tiers, ordered START < PREMIUM < ETERNAL.
const (
	PlanStart   Plan = "START"
	PlanPremium Plan = "PREMIUM"
	PlanEternal Plan = "ETERNAL"
)

// PlanLimits are the per-feature limits of a tier. A limit of -1 means unlimited.
type PlanLimits struct {
	MaxGifts          int  `json:"max_gifts"`
	MaxPhotosPerGift  int  `json:"max_photos_per_gift"`
	MaxMusicPerGift   int  `json:"max_music_per_gift"`
	PremiumAnimations bool `json:"premium_animations"`
}

var planLimits = map[Plan]PlanLimits{
	PlanStart:   {MaxGifts: 1, MaxPhotosPerGift: 5, MaxMusicPerGift: 0, PremiumAnimations: false},
	PlanPremium: {MaxGifts: 5, MaxPhotosPerGift: 20, MaxMusicPerGift: 3, PremiumAnimations: true},
	PlanEternal: {MaxGifts: -1, MaxPhotosPerGift: -1, MaxMusicPerGift: 10, PremiumAnimations: true},
}

// Prices of purchasable tiers in cents. START is the free tier and cannot be bought.
var planPrices = map[Plan]int64{
	PlanPremium: 2990,
	PlanEternal: 9990,
}

var planRank = map[Plan]int{
	PlanStart:   0,
	PlanPremium: 1,
	PlanEternal: 2,
}

// LimitsFor returns the static feature limits of a tier.
// Unknown tiers fall back to the free tier.
func LimitsFor(p Plan) PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanStart]
}

// PriceFor returns the price of a purchasable tier in cents.
func PriceFor(p Plan) (int64, bool) {
	price, ok := planPrices[p]
	return price, ok
}

// Rank returns the order of a tier; higher means more features.
func (p Plan) Rank() int {
	return planRank[p]
}

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	_, ok := planRank[p]
	return ok
}
