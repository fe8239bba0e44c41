// Package models defines the region aggregate.
//
// A region owns a discount policy that is read at submission time and
// snapshotted onto each request. Later discount changes never touch already
// submitted requests.
package models

import (
	"fmt"
	"time"

	dErrors "kta/pkg/domain-errors"
)

const maxNameLength = 128

// Region is a regional chapter of the organization.
//
// Invariants:
//   - Code is 2-5 uppercase ASCII letters and immutable after construction
//   - DiscountPercent is within [0, 100]
//   - CreatedAt is immutable after construction
type Region struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	DiscountPercent int       `json:"discount_percent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewRegion validates inputs and constructs a Region.
func NewRegion(code, name string, discountPercent int, now time.Time) (*Region, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "region name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("region name exceeds %d characters", maxNameLength))
	}
	if err := ValidateDiscount(discountPercent); err != nil {
		return nil, err
	}
	return &Region{
		Code:            code,
		Name:            name,
		DiscountPercent: discountPercent,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanChangeDiscount checks the proposed discount against policy bounds.
// Use with ApplyDiscountChange in Execute callbacks.
func (r *Region) CanChangeDiscount(percent int) error {
	return ValidateDiscount(percent)
}

// ApplyDiscountChange sets the discount. Call CanChangeDiscount first.
func (r *Region) ApplyDiscountChange(percent int, now time.Time) {
	r.DiscountPercent = percent
	r.UpdatedAt = now
}

// ValidateCode checks the region code shape: 2-5 uppercase ASCII letters.
func ValidateCode(code string) error {
	if len(code) < 2 || len(code) > 5 {
		return dErrors.New(dErrors.CodeValidation, "region code must be 2-5 uppercase letters")
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return dErrors.New(dErrors.CodeValidation, "region code must be 2-5 uppercase letters")
		}
	}
	return nil
}

// ValidateDiscount checks the discount bounds.
func ValidateDiscount(percent int) error {
	if percent < 0 || percent > 100 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("discount %d%% outside 0-100", percent))
	}
	return nil
}
