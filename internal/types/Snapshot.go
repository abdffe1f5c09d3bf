/*

This file contains the per-cycle snapshot persisted after every planning cycle.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// SettlementResult is what the settlement collaborator reports back after applying a plan.
type SettlementResult struct {
	Deposited          sdkmath.Int `json:"deposited"`
	Withdrawn          sdkmath.Int `json:"withdrawn"`
	ManagementFee      sdkmath.Int `json:"management_fee"`
	PerformanceFee     sdkmath.Int `json:"performance_fee"`
	FailedVenues       []VenueID   `json:"failed_venues,omitempty"`
	AppliedManagement  int64       `json:"applied_management_fee_bps"`
	AppliedPerformance int64       `json:"applied_performance_fee_bps"`
}

// CycleSnapshot records one planning cycle: the inputs, the plan and the outcome.
type CycleSnapshot struct {
	SnapshotID     int64             `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleNumber    int               `json:"cycle_number"`
	CycleID        string            `json:"cycle_id"`
	Timestamp      time.Time         `json:"timestamp"`
	TotalCapital   sdkmath.Int       `json:"total_capital"`
	Plan           AllocationPlan    `json:"plan"`
	FallbackVenues []string          `json:"fallback_venues"`
	CircuitBreaker bool              `json:"circuit_breaker"`
	Fees           FeeRates          `json:"fees"`
	Settlement     *SettlementResult `json:"settlement,omitempty"`
	Error          string            `json:"error,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
}
