package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kta/internal/platform/config"
	dErrors "kta/pkg/domain-errors"
)

func testPolicy() *Policy {
	return NewPolicy(config.PricingConfig{LowTierRate: 100_000, HighTierRate: 300_000})
}

func TestComputePrice(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name      string
		tier      int
		discount  int
		wantBase  int64
		wantFinal int64
	}{
		{"low tier no discount", 3, 0, 100_000, 100_000},
		{"low tier ten percent", 3, 10, 100_000, 90_000},
		{"boundary tier six is low rate", 6, 0, 100_000, 100_000},
		{"boundary tier seven is high rate", 7, 0, 300_000, 300_000},
		{"high tier half discount", 9, 50, 300_000, 150_000},
		{"full discount", 2, 100, 100_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.ComputePrice(tt.tier, tt.discount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, q.BasePrice)
			assert.Equal(t, tt.wantFinal, q.FinalPrice)
		})
	}
}

func TestComputePriceFloorRounds(t *testing.T) {
	p := NewPolicy(config.PricingConfig{LowTierRate: 99_999, HighTierRate: 300_000})

	q, err := p.ComputePrice(1, 33)
	require.NoError(t, err)
	// 99999 * 67 / 100 = 6699933 / 100 = 66999.33, floored.
	assert.Equal(t, int64(66_999), q.FinalPrice)
}

func TestComputePriceRejectsBadInput(t *testing.T) {
	p := testPolicy()

	_, err := p.ComputePrice(0, 10)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = p.ComputePrice(10, 10)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = p.ComputePrice(3, -1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = p.ComputePrice(3, 101)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestBucketFollowsTierSplit(t *testing.T) {
	for tier := 1; tier <= 6; tier++ {
		b, err := Bucket(tier)
		require.NoError(t, err)
		assert.Equal(t, BucketLow, b)
	}
	for tier := 7; tier <= 9; tier++ {
		b, err := Bucket(tier)
		require.NoError(t, err)
		assert.Equal(t, BucketHigh, b)
	}

	_, err := Bucket(0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
