/*

This file contains the types for fee rates and the timelocked proposals that change them.

*/

package types

import "time"

type FeeRates struct {
	ManagementFeeBps  int64 `json:"management_fee_bps"`
	PerformanceFeeBps int64 `json:"performance_fee_bps"`
}

type ProposalStatus string

const (
	ProposalProposed  ProposalStatus = "PROPOSED"
	ProposalExecuted  ProposalStatus = "EXECUTED"
	ProposalCancelled ProposalStatus = "CANCELLED"
)

// FeeProposal is one timelocked fee change.
type FeeProposal struct {
	ID                string         `json:"id"` // hex sha256 of rates, proposal time and nonce
	ManagementFeeBps  int64          `json:"management_fee_bps"`
	PerformanceFeeBps int64          `json:"performance_fee_bps"`
	ProposedAt        time.Time      `json:"proposed_at"`
	ExecutableAt      time.Time      `json:"executable_at"`
	Nonce             uint64         `json:"nonce"`
	Proposer          string         `json:"proposer"`
	Status            ProposalStatus `json:"status"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"` // Set on execution or cancellation
}

// Executed reports whether the proposal has already been applied.
func (p FeeProposal) Executed() bool {
	return p.Status == ProposalExecuted
}

// Rates returns the rates the proposal would install.
func (p FeeProposal) Rates() FeeRates {
	return FeeRates{ManagementFeeBps: p.ManagementFeeBps, PerformanceFeeBps: p.PerformanceFeeBps}
}
