/*

This file contains the Risk & Leverage Assessor. It decides whether a venue may carry a leveraged
position of a given size and, if so, at what loan-to-value. It is read-only: nothing here touches
the cache or the venues.

*/

package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/utils"

	sdkmath "cosmossdk.io/math"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData indicates that not enough yield observations exist to estimate volatility.
var ErrInsufficientData = errors.New("insufficient yield history to calculate volatility")

// Model is the external risk manager's veto on a leveraged position.
type Model interface {
	IsViable(venue types.VenueID, amount sdkmath.Int, ltvBps int64) bool
}

// ModelFunc adapts a function to Model.
type ModelFunc func(venue types.VenueID, amount sdkmath.Int, ltvBps int64) bool

func (f ModelFunc) IsViable(venue types.VenueID, amount sdkmath.Int, ltvBps int64) bool {
	return f(venue, amount, ltvBps)
}

// LTVCapModel allows a position when its LTV does not exceed the venue's cap. Venues without a cap
// are allowed.
type LTVCapModel map[types.VenueID]int64

func (m LTVCapModel) IsViable(venue types.VenueID, _ sdkmath.Int, ltvBps int64) bool {
	limit, ok := m[venue]
	return !ok || ltvBps <= limit
}

// Limits are the leverage bounds taken from the cycle's parameter snapshot.
type Limits struct {
	MaxLTVBps               int64
	MaxRiskToleranceBps     int64
	MaxVolatilityBps        int64
	LiquidationThresholdBps int64
}

func LimitsFrom(p types.EngineParameters) Limits {
	return Limits{
		MaxLTVBps:               p.MaxLTVBps,
		MaxRiskToleranceBps:     p.MaxRiskToleranceBps,
		MaxVolatilityBps:        p.MaxVolatilityBps,
		LiquidationThresholdBps: p.LiquidationThresholdBps,
	}
}

// Assessment is the verdict for one venue and amount. Borrow and LTVBps are only meaningful when
// Viable is true.
type Assessment struct {
	Viable        bool        `json:"viable"`
	LTVBps        int64       `json:"ltv_bps"`
	Borrow        sdkmath.Int `json:"borrow"`
	VolatilityBps int64       `json:"volatility_bps"`
	Reason        string      `json:"reason,omitempty"`
}

type Assessor struct {
	model Model
}

// NewAssessor builds an assessor. A nil model vetoes nothing.
func NewAssessor(model Model) *Assessor {
	return &Assessor{model: model}
}

// AssessLeverage evaluates a leveraged position of amount in the venue described by data.
func (a *Assessor) AssessLeverage(venue types.VenueID, amount sdkmath.Int, data types.CachedData, limits Limits) Assessment {
	reject := func(format string, args ...interface{}) Assessment {
		return Assessment{Borrow: sdkmath.ZeroInt(), Reason: fmt.Sprintf(format, args...)}
	}

	if amount.IsNil() || !amount.IsPositive() {
		return reject("amount must be positive")
	}
	if data.RiskScore > limits.MaxRiskToleranceBps {
		return reject("risk score %d above tolerance %d", data.RiskScore, limits.MaxRiskToleranceBps)
	}

	volatility, err := CalculateVolatility(data.YieldHistory)
	if err != nil {
		return reject("%v", err)
	}
	if volatility > limits.MaxVolatilityBps {
		return reject("volatility %d bps above tolerance %d", volatility, limits.MaxVolatilityBps)
	}

	maxLTV := limits.MaxLTVBps
	if maxLTV > types.MaxLTVCapBps {
		maxLTV = types.MaxLTVCapBps
	}
	safeLTV := SafeLTV(maxLTV, data.RiskScore)
	borrow := utils.MulBps(amount, safeLTV)
	ltv := utils.RatioBps(borrow, amount)

	result := Assessment{LTVBps: ltv, Borrow: borrow, VolatilityBps: volatility}
	switch {
	case ltv > maxLTV:
		result.Reason = fmt.Sprintf("ltv %d above maximum %d", ltv, maxLTV)
	case a.model != nil && !a.model.IsViable(venue, amount, ltv):
		result.Reason = "rejected by risk model"
	case data.Liquidity.IsNil() || borrow.GT(data.Liquidity):
		result.Reason = fmt.Sprintf("borrow %s exceeds venue liquidity", borrow)
	case StressedLTV(ltv, volatility) > limits.LiquidationThresholdBps:
		result.Reason = fmt.Sprintf("stressed ltv %d above liquidation threshold %d", StressedLTV(ltv, volatility), limits.LiquidationThresholdBps)
	default:
		result.Viable = true
	}
	if !result.Viable {
		result.Borrow = sdkmath.ZeroInt()
		result.LTVBps = 0
	}
	return result
}

// SafeLTV scales the maximum LTV down by the venue risk score.
func SafeLTV(maxLTVBps, riskScore int64) int64 {
	if riskScore < 0 {
		riskScore = 0
	}
	if riskScore > types.MaxRiskScore {
		riskScore = types.MaxRiskScore
	}
	return maxLTVBps * (types.Scale - riskScore) / types.Scale
}

// StressedLTV is the LTV after a yield shock of one standard deviation.
func StressedLTV(ltvBps, volatilityBps int64) int64 {
	return ltvBps * (types.Scale + volatilityBps) / types.Scale
}

// CalculateVolatility returns the population standard deviation of a yield history, in basis
// points, rounded to the nearest integer.
func CalculateVolatility(history []int64) (int64, error) {
	if len(history) < 2 {
		return 0, ErrInsufficientData
	}
	samples := make([]float64, len(history))
	for i, v := range history {
		samples[i] = float64(v)
	}
	stdDev := stat.PopStdDev(samples, nil)
	if math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return 0, ErrInsufficientData
	}
	return int64(math.Round(stdDev)), nil
}
