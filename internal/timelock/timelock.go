/*

This file contains the Fee Governance Timelock. Fee rates change in two phases: a proposal is
recorded first and can only be executed once the delay has passed. Execution happens at most once
and replaces the live fee rates atomically. The timelock is the only writer of the live rates.

*/

package timelock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

var tlLogger = logger.GetForComponent("fee_timelock")

// Store persists proposals and the live fee rates. A nil Store keeps everything in memory.
type Store interface {
	SaveProposal(ctx context.Context, p types.FeeProposal) error
	// ExecuteProposal marks p executed and installs its rates in one transaction.
	ExecuteProposal(ctx context.Context, p types.FeeProposal) error
	LoadProposals(ctx context.Context) ([]types.FeeProposal, error)
}

type Timelock struct {
	mu        sync.Mutex
	delay     time.Duration
	now       func() time.Time
	store     Store
	nonce     uint64
	current   types.FeeRates
	proposals map[string]types.FeeProposal
}

// New creates a timelock holding the given live rates.
func New(initial types.FeeRates, store Store) *Timelock {
	return &Timelock{
		delay:     types.TimelockDelay,
		now:       time.Now,
		store:     store,
		current:   initial,
		proposals: make(map[string]types.FeeProposal),
	}
}

// SetClock replaces the time source.
func (t *Timelock) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Load restores proposals from the store. The nonce continues after the highest stored one.
func (t *Timelock) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	proposals, err := t.store.LoadProposals(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range proposals {
		t.proposals[p.ID] = p
		if p.Nonce > t.nonce {
			t.nonce = p.Nonce
		}
	}
	return nil
}

// Propose records a fee change executable after the delay.
func (t *Timelock) Propose(ctx context.Context, proposer string, managementFeeBps, performanceFeeBps int64) (types.FeeProposal, error) {
	if err := types.ValidateFeeRates(managementFeeBps, performanceFeeBps); err != nil {
		return types.FeeProposal{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	nonce := t.nonce + 1
	p := types.FeeProposal{
		ID:                ProposalID(managementFeeBps, performanceFeeBps, now, nonce),
		ManagementFeeBps:  managementFeeBps,
		PerformanceFeeBps: performanceFeeBps,
		ProposedAt:        now,
		ExecutableAt:      now.Add(t.delay),
		Nonce:             nonce,
		Proposer:          proposer,
		Status:            types.ProposalProposed,
	}
	if t.store != nil {
		if err := t.store.SaveProposal(ctx, p); err != nil {
			return types.FeeProposal{}, err
		}
	}
	t.nonce = nonce
	t.proposals[p.ID] = p

	tlLogger.Info().
		Str("proposal_id", p.ID).
		Int64("management_fee_bps", managementFeeBps).
		Int64("performance_fee_bps", performanceFeeBps).
		Time("executable_at", p.ExecutableAt).
		Msg("Fee change proposed")
	return p, nil
}

// Execute applies a proposal whose delay has passed.
func (t *Timelock) Execute(ctx context.Context, id string) (types.FeeProposal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.proposals[id]
	if !ok {
		return types.FeeProposal{}, types.Wrapf(types.ErrTimelockViolation, "proposal %s does not exist", id)
	}
	if p.Status != types.ProposalProposed {
		return types.FeeProposal{}, types.Wrapf(types.ErrTimelockViolation, "proposal %s is %s", id, p.Status)
	}
	now := t.now()
	if now.Before(p.ExecutableAt) {
		return types.FeeProposal{}, types.Wrapf(types.ErrTimelockViolation, "proposal %s executable at %s, now %s",
			id, p.ExecutableAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	p.Status = types.ProposalExecuted
	p.ResolvedAt = &now
	if t.store != nil {
		if err := t.store.ExecuteProposal(ctx, p); err != nil {
			return types.FeeProposal{}, err
		}
	}
	t.proposals[id] = p
	t.current = p.Rates()

	tlLogger.Info().
		Str("proposal_id", id).
		Int64("management_fee_bps", p.ManagementFeeBps).
		Int64("performance_fee_bps", p.PerformanceFeeBps).
		Msg("Fee change executed")
	return p, nil
}

// Cancel withdraws a pending proposal.
func (t *Timelock) Cancel(ctx context.Context, id string) (types.FeeProposal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.proposals[id]
	if !ok {
		return types.FeeProposal{}, types.Wrapf(types.ErrNotFound, "proposal %s", id)
	}
	if p.Status != types.ProposalProposed {
		return types.FeeProposal{}, types.Wrapf(types.ErrTimelockViolation, "proposal %s is %s", id, p.Status)
	}
	now := t.now()
	p.Status = types.ProposalCancelled
	p.ResolvedAt = &now
	if t.store != nil {
		if err := t.store.SaveProposal(ctx, p); err != nil {
			return types.FeeProposal{}, err
		}
	}
	t.proposals[id] = p
	tlLogger.Info().Str("proposal_id", id).Msg("Fee change cancelled")
	return p, nil
}

// Current returns the live fee rates.
func (t *Timelock) Current() types.FeeRates {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Get returns one proposal.
func (t *Timelock) Get(id string) (types.FeeProposal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.proposals[id]
	return p, ok
}

// List returns all proposals ordered by nonce.
func (t *Timelock) List() []types.FeeProposal {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.FeeProposal, 0, len(t.proposals))
	for _, p := range t.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// ProposalID is the hex SHA-256 of the rates, the proposal time and the nonce.
func ProposalID(managementFeeBps, performanceFeeBps int64, proposedAt time.Time, nonce uint64) string {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(managementFeeBps))
	binary.BigEndian.PutUint64(buf[8:16], uint64(performanceFeeBps))
	binary.BigEndian.PutUint64(buf[16:24], uint64(proposedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[24:32], nonce)
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}
