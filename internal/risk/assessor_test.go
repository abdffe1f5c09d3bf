package risk

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

var testLimits = Limits{
	MaxLTVBps:               8000,
	MaxRiskToleranceBps:     5000,
	MaxVolatilityBps:        200,
	LiquidationThresholdBps: 8500,
}

func venueData(risk int64, liquidity int64, history ...int64) types.CachedData {
	return types.CachedData{
		Liquidity:    sdkmath.NewInt(liquidity),
		RiskScore:    risk,
		Valid:        true,
		YieldHistory: history,
	}
}

func TestCalculateVolatility(t *testing.T) {
	_, err := CalculateVolatility([]int64{500})
	assert.ErrorIs(t, err, ErrInsufficientData)

	vol, err := CalculateVolatility([]int64{500, 500, 500})
	require.NoError(t, err)
	assert.Equal(t, int64(0), vol)

	// Population std-dev of {2,4,4,4,5,5,7,9} is exactly 2.
	vol, err = CalculateVolatility([]int64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), vol)
}

func TestAssessLeverageViable(t *testing.T) {
	a := NewAssessor(nil)
	got := a.AssessLeverage("v1", sdkmath.NewInt(10_000), venueData(2500, 1_000_000, 600, 620, 610), testLimits)

	require.True(t, got.Viable, got.Reason)
	// safeLTV = 8000 * 7500 / 10000 = 6000
	assert.Equal(t, int64(6000), got.LTVBps)
	assert.Equal(t, "6000", got.Borrow.String())
	assert.LessOrEqual(t, got.LTVBps, testLimits.MaxLTVBps)
}

func TestAssessLeverageRejections(t *testing.T) {
	a := NewAssessor(nil)
	amount := sdkmath.NewInt(10_000)

	cases := map[string]struct {
		data   types.CachedData
		amount sdkmath.Int
		limits Limits
	}{
		"risk above tolerance":   {venueData(6000, 1_000_000, 600, 600), amount, testLimits},
		"no history":             {venueData(1000, 1_000_000, 600), amount, testLimits},
		"volatile yield":         {venueData(1000, 1_000_000, 100, 900), amount, testLimits},
		"borrow above liquidity": {venueData(0, 100, 600, 600), amount, testLimits},
		"zero amount":            {venueData(0, 1_000_000, 600, 600), sdkmath.ZeroInt(), testLimits},
		"liquidation threshold": {venueData(0, 1_000_000, 500, 700), amount, Limits{
			MaxLTVBps: 8000, MaxRiskToleranceBps: 5000, MaxVolatilityBps: 500, LiquidationThresholdBps: 8000,
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := a.AssessLeverage("v1", tc.amount, tc.data, tc.limits)
			assert.False(t, got.Viable)
			assert.NotEmpty(t, got.Reason)
			assert.True(t, got.Borrow.IsZero())
		})
	}
}

func TestAssessLeverageModelVeto(t *testing.T) {
	data := venueData(0, 1_000_000, 600, 600)
	amount := sdkmath.NewInt(10_000)

	capped := NewAssessor(LTVCapModel{"v1": 5000})
	assert.False(t, capped.AssessLeverage("v1", amount, data, testLimits).Viable)
	assert.True(t, capped.AssessLeverage("v2", amount, data, testLimits).Viable)

	var seenLTV int64
	fn := NewAssessor(ModelFunc(func(_ types.VenueID, _ sdkmath.Int, ltv int64) bool {
		seenLTV = ltv
		return true
	}))
	require.True(t, fn.AssessLeverage("v1", amount, data, testLimits).Viable)
	assert.Equal(t, int64(8000), seenLTV)
}

func TestAssessLeverageNeverExceedsHardCap(t *testing.T) {
	a := NewAssessor(nil)
	limits := testLimits
	limits.MaxLTVBps = 9500
	limits.LiquidationThresholdBps = types.Scale

	got := a.AssessLeverage("v1", sdkmath.NewInt(1_000_003), venueData(0, 10_000_000, 600, 600), limits)
	require.True(t, got.Viable, got.Reason)
	assert.LessOrEqual(t, got.LTVBps, int64(types.MaxLTVCapBps))
}

func TestSafeAndStressedLTV(t *testing.T) {
	assert.Equal(t, int64(8000), SafeLTV(8000, 0))
	assert.Equal(t, int64(0), SafeLTV(8000, types.MaxRiskScore))
	assert.Equal(t, int64(8000), SafeLTV(8000, -5))
	assert.Equal(t, int64(8080), StressedLTV(8000, 100))
}
