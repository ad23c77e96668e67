package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duelbet/settlement/internal/domain"
)

func TestAdditionalFeeBpsStepFunction(t *testing.T) {
	cases := []struct {
		name   string
		volume int64
		maxBps int64
		want   int64
	}{
		{"zero volume", 0, 300, 0},
		{"just below first step", 999, 300, 0},
		{"first step boundary", 1_000, 300, 1},
		{"inside first step", 1_999, 300, 1},
		{"second step", 2_000, 300, 2},
		{"exactly at cap", 300_000, 300, 300},
		{"far beyond cap", 1_000_000_000, 300, 300},
		{"zero cap", 50_000, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AdditionalFeeBps(tc.volume, tc.maxBps))
		})
	}
}

func TestComputeFeeWorkedExample(t *testing.T) {
	fees := domain.FeeParams{
		BaseFeeBps:          200,
		PlatformFeeBps:      100,
		CreatorFeeBps:       100,
		MaxAdditionalFeeBps: 300,
	}

	fb := ComputeFee(fees, 0, 1_000)
	assert.Equal(t, int64(400), fb.TotalBps)
	assert.Equal(t, int64(40), fb.Fee)
	assert.Equal(t, int64(10), fb.CreatorFee)
	assert.Equal(t, int64(30), fb.PlatformFee)
	assert.Equal(t, int64(960), fb.Net)
}

func TestComputeFeeVolumeRaisesRate(t *testing.T) {
	fees := domain.FeeParams{BaseFeeBps: 100, MaxAdditionalFeeBps: 200}

	early := ComputeFee(fees, 0, 10_000)
	late := ComputeFee(fees, 50_000, 10_000)
	capped := ComputeFee(fees, 10_000_000, 10_000)

	assert.Equal(t, int64(100), early.TotalBps)
	assert.Equal(t, int64(150), late.TotalBps)
	assert.Equal(t, int64(300), capped.TotalBps)
	assert.Greater(t, late.Fee, early.Fee)
}

func TestComputeFeeComponentsSumExactly(t *testing.T) {
	fees := domain.FeeParams{
		BaseFeeBps:          150,
		PlatformFeeBps:      75,
		CreatorFeeBps:       125,
		MaxAdditionalFeeBps: 300,
	}

	// Amounts chosen to force flooring on both the total and creator cuts.
	for _, gross := range []int64{1, 3, 7, 99, 101, 999, 12_345, 1_000_001} {
		for _, volume := range []int64{0, 500, 1_500, 250_000, 9_999_999} {
			fb := ComputeFee(fees, volume, gross)
			assert.Equal(t, fb.Fee, fb.CreatorFee+fb.PlatformFee,
				"gross=%d volume=%d", gross, volume)
			assert.Equal(t, gross, fb.Fee+fb.Net, "gross=%d volume=%d", gross, volume)
			assert.GreaterOrEqual(t, fb.PlatformFee, int64(0))
			assert.GreaterOrEqual(t, fb.CreatorFee, int64(0))
		}
	}
}

func TestComputeFeeSmallStakeNonZeroFee(t *testing.T) {
	fees := domain.FeeParams{BaseFeeBps: 50}

	// 100 * 50 / 10000 = 0.5, floored to 0: sub-unit fees round to zero.
	fb := ComputeFee(fees, 0, 100)
	assert.Equal(t, int64(0), fb.Fee)
	assert.Equal(t, int64(100), fb.Net)

	// 10000 * 50 / 10000 = 50: multiply-before-divide keeps precision.
	fb = ComputeFee(fees, 0, 10_000)
	assert.Equal(t, int64(50), fb.Fee)
	assert.Equal(t, int64(9_950), fb.Net)
}

func TestComputeFeeNoOverflowOnLargeAmounts(t *testing.T) {
	fees := domain.FeeParams{BaseFeeBps: 100, PlatformFeeBps: 100, CreatorFeeBps: 100, MaxAdditionalFeeBps: 400}

	gross := int64(9_000_000_000_000_000_000) // near int64 max
	fb := ComputeFee(fees, 1_000_000_000, gross)

	assert.Equal(t, int64(700), fb.TotalBps)
	assert.Equal(t, int64(630_000_000_000_000_000), fb.Fee)
	assert.Equal(t, gross-fb.Fee, fb.Net)
	assert.Equal(t, fb.Fee, fb.CreatorFee+fb.PlatformFee)
}

func TestComputeFeeZeroSchedule(t *testing.T) {
	fb := ComputeFee(domain.FeeParams{}, 123_456, 5_000)
	assert.Equal(t, int64(0), fb.Fee)
	assert.Equal(t, int64(5_000), fb.Net)
}
