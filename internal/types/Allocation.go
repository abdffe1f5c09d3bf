/*

This file contains the types for allocation plans produced by a planning cycle.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Allocation is the capital assigned to one venue by one cycle.
type Allocation struct {
	VenueID      VenueID     `json:"venue_id"`
	Amount       sdkmath.Int `json:"amount"`
	YieldBps     int64       `json:"yield_bps"` // Yield at time of allocation
	Timestamp    time.Time   `json:"timestamp"`
	Leveraged    bool        `json:"leveraged"`
	BorrowAmount sdkmath.Int `json:"borrow_amount"` // Zero unless leveraged
	LTVBps       int64       `json:"ltv_bps"`       // Zero unless leveraged
}

// SkipReason explains why a venue did not receive capital.
type SkipReason string

const (
	SkipStale          SkipReason = "STALE_CACHE"
	SkipNotEligible    SkipReason = "NOT_ELIGIBLE"
	SkipYieldRange     SkipReason = "YIELD_OUT_OF_RANGE"
	SkipLowLiquidity   SkipReason = "LIQUIDITY_BELOW_MINIMUM"
	SkipCircuitBreaker SkipReason = "CIRCUIT_BREAKER"
	SkipZeroWeight     SkipReason = "ZERO_WEIGHT"
	SkipBelowMinimum   SkipReason = "BELOW_MIN_ALLOCATION"
	SkipOverCycleLimit SkipReason = "OVER_CYCLE_LIMIT"
	SkipEstimateFailed SkipReason = "ESTIMATE_FAILED"
	SkipOverLiquidity  SkipReason = "EXCEEDS_LIQUIDITY"
)

type SkippedVenue struct {
	VenueID VenueID    `json:"venue_id"`
	Reason  SkipReason `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
}

// AllocationPlan is the ordered output of the planner. Allocations follow venue registration
// order. An empty Allocations slice means "hold capital uninvested this cycle". Allocated plus
// Unallocated equals TotalAmount whenever the plan is non-empty.
type AllocationPlan struct {
	CycleID     string         `json:"cycle_id"`
	TotalAmount sdkmath.Int    `json:"total_amount"`
	Allocations []Allocation   `json:"allocations"`
	Skipped     []SkippedVenue `json:"skipped,omitempty"`
	Forfeited   sdkmath.Int    `json:"forfeited"`   // Amount from skipped survivors folded into the rounding correction
	Unallocated sdkmath.Int    `json:"unallocated"` // Correction no survivor had liquidity for; stays idle
	CreatedAt   time.Time      `json:"created_at"`
}

// Allocated returns the sum of all allocation amounts.
func (p AllocationPlan) Allocated() sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for _, a := range p.Allocations {
		sum = sum.Add(a.Amount)
	}
	return sum
}

// IsEmpty reports whether the plan invests nothing.
func (p AllocationPlan) IsEmpty() bool {
	return len(p.Allocations) == 0
}
