/*

This file contains the types exchanged with oracle sources and produced by the aggregator.

*/

package types

import "time"

// Prediction is what a single oracle source answers for a venue.
type Prediction struct {
	YieldBps  int64     `json:"yield_bps"`
	RiskScore int64     `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

// OracleResponse is a prediction tagged with its source. It only lives for one aggregation call.
type OracleResponse struct {
	SourceID  string    `json:"source_id"`
	WeightBps int64     `json:"weight_bps"`
	YieldBps  int64     `json:"yield_bps"`
	RiskScore int64     `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

// OracleSourceInfo describes a registered source.
type OracleSourceInfo struct {
	ID        string `json:"id"`
	WeightBps int64  `json:"weight_bps"`
}

// ConsensusFailure names the reason an aggregation produced no consensus.
type ConsensusFailure string

const (
	ConsensusQuorum    ConsensusFailure = "QUORUM_NOT_MET"
	ConsensusVariance  ConsensusFailure = "TIMESTAMP_VARIANCE"
	ConsensusOutliers  ConsensusFailure = "TOO_MANY_OUTLIERS"
	ConsensusNoSources ConsensusFailure = "NO_SOURCES"
)

// Consensus is the aggregator's output. Valid=false is not an error: callers must fall back.
type Consensus struct {
	YieldBps  int64            `json:"yield_bps"`
	RiskScore int64            `json:"risk_score"`
	Valid     bool             `json:"valid"`
	Timestamp time.Time        `json:"timestamp"`
	Responded int              `json:"responded"` // Valid responses before outlier filtering
	Used      int              `json:"used"`      // Responses that contributed to the average
	Failure   ConsensusFailure `json:"failure,omitempty"`
}
