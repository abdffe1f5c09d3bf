/*

This is a custom type for venues which contains all the state the engine caches between cycles.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type VenueID string

// VenueInfo is the registration record of a venue.
type VenueInfo struct {
	ID                VenueID   `json:"id"`                  // e.g., "aave-usdc"
	RiskScore         int64     `json:"risk_score"`          // On-chain risk-manager score, 0..MaxRiskScore
	Compliant         bool      `json:"compliant"`           // Set by governance; non-compliant venues are never allocated to
	OffChainDependent bool      `json:"off_chain_dependent"` // Venue cannot be priced without oracle data
	RegisteredAt      time.Time `json:"registered_at"`
}

// CachedData is one Venue Cache entry.
type CachedData struct {
	VenueID         VenueID     `json:"venue_id"`
	Liquidity       sdkmath.Int `json:"liquidity"`  // Available liquidity reported by the venue
	YieldBps        int64       `json:"yield_bps"`  // Blended consensus yield
	RiskScore       int64       `json:"risk_score"` // Consensus risk when available, on-chain score otherwise
	OnChainYieldBps int64       `json:"on_chain_yield_bps"`
	Valid           bool        `json:"valid"`
	LastUpdated     time.Time   `json:"last_updated"`
	OffChainUsed    bool        `json:"off_chain_used"` // Oracle consensus contributed to YieldBps
	FallbackUsed    bool        `json:"fallback_used"`  // Fallback yield replaced the off-chain term
	YieldHistory    []int64     `json:"yield_history,omitempty"`
}

// VenueSnapshot is the observer view returned by GetVenueSnapshot.
type VenueSnapshot struct {
	Info      VenueInfo   `json:"info"`
	Data      *CachedData `json:"data,omitempty"` // nil until the venue has been estimated once
	Fresh     bool        `json:"fresh"`
	Allocated sdkmath.Int `json:"allocated"`
}

// Estimate is the result of one Hybrid Yield Estimator call.
type Estimate struct {
	VenueID         VenueID     `json:"venue_id"`
	YieldBps        int64       `json:"yield_bps"`
	RiskScore       int64       `json:"risk_score"`
	Liquidity       sdkmath.Int `json:"liquidity"`
	OnChainYieldBps int64       `json:"on_chain_yield_bps"`
	OffChainUsed    bool        `json:"off_chain_used"`
	FallbackUsed    bool        `json:"fallback_used"`
	Timestamp       time.Time   `json:"timestamp"`
}
