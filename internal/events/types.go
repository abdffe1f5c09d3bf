// Package events carries the facts the engine emits for external collaborators.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	AllocationComputed    EventType = "ALLOCATION_COMPUTED"
	VenueCacheRefreshed   EventType = "VENUE_CACHE_REFRESHED"
	OracleConsensusFailed EventType = "ORACLE_CONSENSUS_FAILED"
	DegradedMode          EventType = "DEGRADED_MODE"
	CircuitBreakerToggled EventType = "CIRCUIT_BREAKER_TOGGLED"

	FeeProposalCreated   EventType = "FEE_PROPOSAL_CREATED"
	FeeProposalExecuted  EventType = "FEE_PROPOSAL_EXECUTED"
	FeeProposalCancelled EventType = "FEE_PROPOSAL_CANCELLED"

	CycleCompleted EventType = "CYCLE_COMPLETED"
)

// Event is one emitted fact. Data holds one of the *Data structs below.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Module    string      `json:"module"`
	Data      interface{} `json:"data"`
}

type AllocationComputedData struct {
	CycleID     string `json:"cycle_id"`
	TotalAmount string `json:"total_amount"`
	Venues      int    `json:"venues"`
	Skipped     int    `json:"skipped"`
	Forfeited   string `json:"forfeited"`
}

type VenueCacheRefreshedData struct {
	VenueID      string `json:"venue_id"`
	YieldBps     int64  `json:"yield_bps"`
	RiskScore    int64  `json:"risk_score"`
	Liquidity    string `json:"liquidity"`
	OffChainUsed bool   `json:"off_chain_used"`
	FallbackUsed bool   `json:"fallback_used"`
}

type OracleConsensusFailedData struct {
	VenueID   string `json:"venue_id"`
	Reason    string `json:"reason"`
	Responded int    `json:"responded"`
	Quorum    int    `json:"quorum"`
}

type DegradedModeData struct {
	VenueID          string `json:"venue_id"`
	FallbackYieldBps int64  `json:"fallback_yield_bps"`
}

type CircuitBreakerToggledData struct {
	Engaged bool   `json:"engaged"`
	Source  string `json:"source"` // "manual" or "automatic"
}

type FeeProposalData struct {
	ProposalID        string    `json:"proposal_id"`
	ManagementFeeBps  int64     `json:"management_fee_bps"`
	PerformanceFeeBps int64     `json:"performance_fee_bps"`
	ExecutableAt      time.Time `json:"executable_at"`
}

type CycleCompletedData struct {
	CycleID     string `json:"cycle_id"`
	CycleNumber int    `json:"cycle_number"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}
