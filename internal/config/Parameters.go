/*

This file contains the default engine parameters.

They are used when no active parameter set is found in the database at startup, and are then saved
as version 1. Governance changes them afterwards through UpdateParameters and the fee timelock.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// DefaultEngineParameters provides a conservative baseline for a fresh deployment.
var DefaultEngineParameters = types.EngineParameters{
	// --- Fees ---
	ManagementFeeBps:  100,  // 1% a year on managed capital.
	PerformanceFeeBps: 1000, // 10% of realized venue profit.
	// Both sit well under the hard caps so a later increase still needs a proposal, not a redeploy.

	// --- Allocation ---
	LeverageEnabled: false, // Off until governance has reviewed the venues' liquidation mechanics.

	MinLiquidity: sdkmath.NewInt(100_000),
	// Rationale: a venue with less free liquidity than this cannot absorb a meaningful deposit
	// and is likely to block withdrawals.

	MinAllocation: sdkmath.NewInt(1_000),
	// Rationale: smaller positions cost more in settlement than they earn in a cycle.

	MaxVenuesPerCycle: 10, // Bounds oracle traffic and settlement calls per cycle.
	MaxVenues:         25, // Registration limit.

	// --- Risk ---
	MaxLTVBps:               6000, // 60%, under the 80% protocol ceiling.
	MaxRiskToleranceBps:     4000, // Venues above this risk score are never leveraged.
	MaxVolatilityBps:        500,  // Yield stdev above 5% blocks leverage.
	LiquidationThresholdBps: 8000, // Stressed LTV must stay below 80%.

	// --- Oracles ---
	OracleQuorum:         2,
	OracleTimeout:        5 * time.Second,
	MaxTimestampVariance: 2 * time.Minute,
	MaxOracleSources:     7,
	// Rationale: a quorum of two tolerates one failed source out of three without dropping into
	// degraded mode, and the five-second timeout keeps a cycle well under a minute.

	// --- Yield estimation ---
	BlendWeightBps:   6000, // 60% on-chain, 40% oracle consensus.
	FallbackYieldBps: 500,  // Off-chain term used when consensus fails.
	CacheTTL:         5 * time.Minute,

	// --- Safety ---
	CircuitBreakerEngaged: false,
}
