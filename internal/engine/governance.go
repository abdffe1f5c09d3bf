package engine

import (
	"context"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/oracle"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"
)

// ProposeFeeChange records a timelocked fee change.
func (e *Engine) ProposeFeeChange(ctx context.Context, caller string, managementFeeBps, performanceFeeBps int64) (types.FeeProposal, error) {
	if err := e.authorize(caller); err != nil {
		return types.FeeProposal{}, err
	}
	p, err := e.timelock.Propose(ctx, caller, managementFeeBps, performanceFeeBps)
	if err != nil {
		return types.FeeProposal{}, err
	}
	e.events.Emit(events.FeeProposalCreated, module, feeEventData(p))
	return p, nil
}

// ExecuteFeeChange applies a matured proposal and installs its rates in the live parameters.
func (e *Engine) ExecuteFeeChange(ctx context.Context, caller, proposalID string) (types.FeeProposal, error) {
	if err := e.authorize(caller); err != nil {
		return types.FeeProposal{}, err
	}
	p, err := e.timelock.Execute(ctx, proposalID)
	if err != nil {
		return types.FeeProposal{}, err
	}

	e.mu.Lock()
	e.params.ManagementFeeBps = p.ManagementFeeBps
	e.params.PerformanceFeeBps = p.PerformanceFeeBps
	e.mu.Unlock()

	e.events.Emit(events.FeeProposalExecuted, module, feeEventData(p))
	return p, nil
}

// CancelFeeChange withdraws a pending proposal.
func (e *Engine) CancelFeeChange(ctx context.Context, caller, proposalID string) (types.FeeProposal, error) {
	if err := e.authorize(caller); err != nil {
		return types.FeeProposal{}, err
	}
	p, err := e.timelock.Cancel(ctx, proposalID)
	if err != nil {
		return types.FeeProposal{}, err
	}
	e.events.Emit(events.FeeProposalCancelled, module, feeEventData(p))
	return p, nil
}

func feeEventData(p types.FeeProposal) *events.FeeProposalData {
	return &events.FeeProposalData{
		ProposalID:        p.ID,
		ManagementFeeBps:  p.ManagementFeeBps,
		PerformanceFeeBps: p.PerformanceFeeBps,
		ExecutableAt:      p.ExecutableAt,
	}
}

// RegisterVenue adds a venue at the end of the iteration order.
func (e *Engine) RegisterVenue(ctx context.Context, caller string, info types.VenueInfo, handle venue.Handle) (types.VenueInfo, error) {
	if err := e.authorize(caller); err != nil {
		return types.VenueInfo{}, err
	}
	registered, err := e.venues.Register(info, handle, e.now())
	if err != nil {
		return types.VenueInfo{}, err
	}
	e.logger.Info().Str("venue", string(registered.ID)).Int64("risk_score", registered.RiskScore).Msg("Venue registered")
	e.publishSnapshot(ctx, registered.ID)
	return registered, nil
}

// DeregisterVenue removes a venue that holds no allocation and, when a vault is attached, no
// settled capital. It waits for no cycle: a running cycle makes the call fail with
// ErrCycleInProgress.
func (e *Engine) DeregisterVenue(ctx context.Context, caller string, id types.VenueID) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if !e.cycleMu.TryLock() {
		return types.Wrapf(types.ErrCycleInProgress, "cannot deregister %s while a cycle runs", id)
	}
	defer e.cycleMu.Unlock()

	if allocated := e.allocatedTo(id); allocated.IsPositive() {
		return types.Wrapf(types.ErrConstraintViolation, "venue %s still holds an allocation of %s", id, allocated)
	}
	if e.vault != nil {
		if held, ok := e.vault.Positions()[id]; ok && held.IsPositive() {
			return types.Wrapf(types.ErrConstraintViolation, "vault still holds %s in venue %s", held, id)
		}
	}
	if err := e.venues.Remove(id); err != nil {
		return err
	}
	e.cache.Delete(id)
	if e.mirror != nil {
		if err := e.mirror.Remove(ctx, id); err != nil {
			e.logger.Warn().Err(err).Str("venue", string(id)).Msg("Failed to remove mirrored venue snapshot")
		}
	}
	e.logger.Info().Str("venue", string(id)).Msg("Venue deregistered")
	return nil
}

// UpdateVenue changes the governance-owned fields of a venue and drops its cache entry.
func (e *Engine) UpdateVenue(ctx context.Context, caller string, id types.VenueID, compliant bool, riskScore int64) (types.VenueInfo, error) {
	if err := e.authorize(caller); err != nil {
		return types.VenueInfo{}, err
	}
	info, err := e.venues.UpdateInfo(id, compliant, riskScore)
	if err != nil {
		return types.VenueInfo{}, err
	}
	e.cache.Invalidate(id)
	e.publishSnapshot(ctx, id)
	return info, nil
}

// RegisterOracleSource adds a source behind a rate limiter and a breaker.
func (e *Engine) RegisterOracleSource(caller string, src oracle.Source, weightBps int64) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if src == nil {
		return types.Wrapf(types.ErrConfiguration, "oracle source cannot be nil")
	}
	if err := e.sources.Register(oracle.Guard(src, e.guard), weightBps); err != nil {
		return err
	}
	e.logger.Info().Str("source", src.ID()).Int64("weight_bps", weightBps).Msg("Oracle source registered")
	return nil
}

// RemoveOracleSource removes a source.
func (e *Engine) RemoveOracleSource(caller, id string) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.sources.Remove(id); err != nil {
		return err
	}
	e.logger.Info().Str("source", id).Msg("Oracle source removed")
	return nil
}

// UpdateParameters replaces the live parameters. The update is validated in full and applied
// all at once; fee rates can only change through the timelock.
func (e *Engine) UpdateParameters(ctx context.Context, caller string, next types.EngineParameters) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	return e.applyParameters(ctx, caller, func(current types.EngineParameters) (types.EngineParameters, error) {
		if next.Fees() != current.Fees() {
			return types.EngineParameters{}, types.Wrapf(types.ErrConfiguration, "fee rates only change through an executed fee proposal")
		}
		return next, nil
	})
}

// SetCircuitBreaker engages or releases the manual circuit breaker.
func (e *Engine) SetCircuitBreaker(ctx context.Context, caller string, engaged bool) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	return e.applyParameters(ctx, caller, func(p types.EngineParameters) (types.EngineParameters, error) {
		p.CircuitBreakerEngaged = engaged
		return p, nil
	})
}

// SetLeverageEnabled toggles leverage tagging for future cycles.
func (e *Engine) SetLeverageEnabled(ctx context.Context, caller string, enabled bool) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	return e.applyParameters(ctx, caller, func(p types.EngineParameters) (types.EngineParameters, error) {
		p.LeverageEnabled = enabled
		return p, nil
	})
}

// applyParameters validates, persists and then installs a parameter change. Nothing changes when
// any step fails. A change of the manual breaker flag emits CircuitBreakerToggled, whichever
// operation made it.
func (e *Engine) applyParameters(ctx context.Context, caller string, change func(types.EngineParameters) (types.EngineParameters, error)) error {
	previous, next, err := e.installParameters(ctx, caller, change)
	if err != nil {
		return err
	}
	if previous.CircuitBreakerEngaged != next.CircuitBreakerEngaged {
		e.events.Emit(events.CircuitBreakerToggled, module, &events.CircuitBreakerToggledData{
			Engaged: next.CircuitBreakerEngaged,
			Source:  "manual",
		})
	}
	return nil
}

func (e *Engine) installParameters(ctx context.Context, caller string, change func(types.EngineParameters) (types.EngineParameters, error)) (types.EngineParameters, types.EngineParameters, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var none types.EngineParameters
	previous := e.params
	next, err := change(previous)
	if err != nil {
		return none, none, err
	}
	if err := next.Validate(); err != nil {
		return none, none, err
	}
	if n := e.venues.Len(); next.MaxVenues < n {
		return none, none, types.Wrapf(types.ErrConfiguration, "max venues %d below the %d registered venues", next.MaxVenues, n)
	}
	if n := e.sources.Len(); next.MaxOracleSources < n {
		return none, none, types.Wrapf(types.ErrConfiguration, "max oracle sources %d below the %d registered sources", next.MaxOracleSources, n)
	}

	version := e.paramsVersion + 1
	if e.store != nil {
		if err := e.store.SaveParameters(ctx, next, version, caller); err != nil {
			return none, none, types.Wrapf(types.ErrDataUnavailable, "failed to persist parameters: %v", err)
		}
	}

	e.params = next
	e.paramsVersion = version
	e.venues.SetMax(next.MaxVenues)
	e.sources.SetMax(next.MaxOracleSources)
	e.cache.SetTTL(next.CacheTTL)

	e.logger.Info().
		Int("version", version).
		Str("updated_by", caller).
		Bool("leverage", next.LeverageEnabled).
		Bool("circuit_breaker", next.CircuitBreakerEngaged).
		Msg("Engine parameters updated")
	return previous, next, nil
}
