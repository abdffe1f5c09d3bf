/*

This file contains the process-wide engine parameters and the hard protocol constants they are checked against.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	Scale = 10000 // Basis-point scale used for yields, risk scores, fees, LTV and weights.

	MaxYieldBps  = 10000 // Upper bound for any yield figure (100%).
	MaxRiskScore = 10000 // Upper bound for any risk score.

	MaxLTVCapBps         = 8000 // Hard LTV ceiling (80%). Governance may only lower it.
	MaxManagementFeeBps  = 200  // 2% management fee cap.
	MaxPerformanceFeeBps = 2000 // 20% performance fee cap.

	MaxOracleWeightBps = 10000 // Oracle reliability weights are in (0, MaxOracleWeightBps].

	TimelockDelay = 48 * time.Hour // Delay between proposing and executing a fee change.
)

// EngineParameters holds every governance-mutated setting the engine reads during a cycle.
// A copy is taken at the start of each cycle so a concurrent governance update never changes
// the numbers a running cycle works with.
type EngineParameters struct {
	// --- Fees (only changed through the fee timelock) ---
	ManagementFeeBps  int64 `json:"management_fee_bps"`  // Annual management fee on managed capital.
	PerformanceFeeBps int64 `json:"performance_fee_bps"` // Share of realized venue profit.

	// --- Allocation ---
	LeverageEnabled   bool        `json:"leverage_enabled"`     // Global switch for tagging allocations as leveraged.
	MinLiquidity      sdkmath.Int `json:"min_liquidity"`        // Venues reporting less available liquidity are skipped.
	MinAllocation     sdkmath.Int `json:"min_allocation"`       // Allocations below this amount are forfeited.
	MaxVenuesPerCycle int         `json:"max_venues_per_cycle"` // Venue list is truncated to this length before filtering.
	MaxVenues         int         `json:"max_venues"`           // Registration limit.

	// --- Risk ---
	MaxLTVBps               int64 `json:"max_ltv_bps"`               // Maximum loan-to-value for leveraged positions.
	MaxRiskToleranceBps     int64 `json:"max_risk_tolerance_bps"`    // Venues riskier than this are never leveraged.
	MaxVolatilityBps        int64 `json:"max_volatility_bps"`        // Yield volatility tolerance for leverage.
	LiquidationThresholdBps int64 `json:"liquidation_threshold_bps"` // Stressed LTV must stay below this.

	// --- Oracles ---
	OracleQuorum         int           `json:"oracle_quorum"`          // Minimum valid responses for consensus.
	OracleTimeout        time.Duration `json:"oracle_timeout"`         // Per-query deadline and staleness bound.
	MaxTimestampVariance time.Duration `json:"max_timestamp_variance"` // Allowed spread between response timestamps.
	MaxOracleSources     int           `json:"max_oracle_sources"`     // Registration limit.

	// --- Yield estimation ---
	BlendWeightBps   int64         `json:"blend_weight_bps"`   // Weight of the on-chain figure in the blended yield.
	FallbackYieldBps int64         `json:"fallback_yield_bps"` // Off-chain term used when consensus is unavailable.
	CacheTTL         time.Duration `json:"cache_ttl"`          // Venue cache entry lifetime.

	// --- Safety ---
	CircuitBreakerEngaged bool `json:"circuit_breaker_engaged"` // Manual override disabling off-chain data.
}

// Fees returns the fee part of the parameters.
func (p EngineParameters) Fees() FeeRates {
	return FeeRates{ManagementFeeBps: p.ManagementFeeBps, PerformanceFeeBps: p.PerformanceFeeBps}
}

// Validate checks every bound. It never modifies the receiver, so a failed update leaves the
// live parameters untouched.
func (p EngineParameters) Validate() error {
	if err := ValidateFeeRates(p.ManagementFeeBps, p.PerformanceFeeBps); err != nil {
		return err
	}
	if p.MinLiquidity.IsNil() || p.MinLiquidity.IsNegative() {
		return Wrapf(ErrConfiguration, "min liquidity must be a non-negative amount")
	}
	if p.MinAllocation.IsNil() || p.MinAllocation.IsNegative() {
		return Wrapf(ErrConfiguration, "min allocation must be a non-negative amount")
	}
	if p.MaxVenuesPerCycle <= 0 {
		return Wrapf(ErrConfiguration, "max venues per cycle must be positive, got %d", p.MaxVenuesPerCycle)
	}
	if p.MaxVenues <= 0 {
		return Wrapf(ErrConfiguration, "max venues must be positive, got %d", p.MaxVenues)
	}
	if p.MaxLTVBps <= 0 || p.MaxLTVBps > MaxLTVCapBps {
		return Wrapf(ErrConfiguration, "max LTV %d bps outside (0, %d]", p.MaxLTVBps, MaxLTVCapBps)
	}
	if p.MaxRiskToleranceBps < 0 || p.MaxRiskToleranceBps > MaxRiskScore {
		return Wrapf(ErrConfiguration, "risk tolerance %d outside [0, %d]", p.MaxRiskToleranceBps, MaxRiskScore)
	}
	if p.MaxVolatilityBps < 0 {
		return Wrapf(ErrConfiguration, "volatility tolerance cannot be negative")
	}
	if p.LiquidationThresholdBps < p.MaxLTVBps || p.LiquidationThresholdBps > Scale {
		return Wrapf(ErrConfiguration, "liquidation threshold %d must be within [max LTV %d, %d]",
			p.LiquidationThresholdBps, p.MaxLTVBps, Scale)
	}
	if p.MaxOracleSources <= 0 {
		return Wrapf(ErrConfiguration, "max oracle sources must be positive, got %d", p.MaxOracleSources)
	}
	if p.OracleQuorum <= 0 || p.OracleQuorum > p.MaxOracleSources {
		return Wrapf(ErrConfiguration, "oracle quorum %d outside [1, %d]", p.OracleQuorum, p.MaxOracleSources)
	}
	if p.OracleTimeout <= 0 {
		return Wrapf(ErrConfiguration, "oracle timeout must be positive")
	}
	if p.MaxTimestampVariance < 0 {
		return Wrapf(ErrConfiguration, "timestamp variance cannot be negative")
	}
	if p.BlendWeightBps < 0 || p.BlendWeightBps > Scale {
		return Wrapf(ErrConfiguration, "blend weight %d outside [0, %d]", p.BlendWeightBps, Scale)
	}
	if p.FallbackYieldBps < 0 || p.FallbackYieldBps > MaxYieldBps {
		return Wrapf(ErrConfiguration, "fallback yield %d outside [0, %d]", p.FallbackYieldBps, MaxYieldBps)
	}
	if p.CacheTTL <= 0 {
		return Wrapf(ErrConfiguration, "cache TTL must be positive")
	}
	return nil
}

// ValidateFeeRates enforces the hard fee caps.
func ValidateFeeRates(managementFeeBps, performanceFeeBps int64) error {
	if managementFeeBps < 0 || managementFeeBps > MaxManagementFeeBps {
		return Wrapf(ErrConfiguration, "management fee %d bps outside [0, %d]", managementFeeBps, MaxManagementFeeBps)
	}
	if performanceFeeBps < 0 || performanceFeeBps > MaxPerformanceFeeBps {
		return Wrapf(ErrConfiguration, "performance fee %d bps outside [0, %d]", performanceFeeBps, MaxPerformanceFeeBps)
	}
	return nil
}
