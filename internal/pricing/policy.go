// Package pricing computes card prices from the applicant's qualification
// tier and the owning region's discount policy.
//
// Tiers 1-9 split into two buckets: 1-6 pay the low rate, 7-9 the high rate.
// The same split drives the serial number's bucket code, so the mapping lives
// here and is shared.
package pricing

import (
	"fmt"

	"kta/internal/platform/config"
	dErrors "kta/pkg/domain-errors"
)

// Tier bounds of the qualification scale.
const (
	MinTier = 1
	MaxTier = 9

	// highTierThreshold is the first tier billed at the high rate.
	highTierThreshold = 7
)

// Bucket codes embedded in serial numbers.
const (
	BucketHigh = "01" // tiers 7-9
	BucketLow  = "02" // tiers 1-6
)

// Quote is the price pair snapshotted onto a request at submission time.
type Quote struct {
	BasePrice  int64
	FinalPrice int64
}

// Policy holds the configured base rates, in IDR.
type Policy struct {
	lowTierRate  int64
	highTierRate int64
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg config.PricingConfig) *Policy {
	return &Policy{
		lowTierRate:  cfg.LowTierRate,
		highTierRate: cfg.HighTierRate,
	}
}

// ValidTier reports whether tier is on the 1-9 scale.
func ValidTier(tier int) bool {
	return tier >= MinTier && tier <= MaxTier
}

// Bucket maps a tier to its two-digit serial bucket code.
func Bucket(tier int) (string, error) {
	if !ValidTier(tier) {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tier %d outside 1-9 scale", tier))
	}
	if tier >= highTierThreshold {
		return BucketHigh, nil
	}
	return BucketLow, nil
}

// ComputePrice returns the base and discounted price for a tier under the
// given regional discount. The final price is floor-rounded integer math:
// finalPrice = floor(basePrice * (100 - discount) / 100).
func (p *Policy) ComputePrice(tier int, discountPercent int) (Quote, error) {
	if !ValidTier(tier) {
		return Quote{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tier %d outside 1-9 scale", tier))
	}
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("discount %d%% outside 0-100", discountPercent))
	}

	base := p.lowTierRate
	if tier >= highTierThreshold {
		base = p.highTierRate
	}

	final := base * int64(100-discountPercent) / 100

	return Quote{BasePrice: base, FinalPrice: final}, nil
}
