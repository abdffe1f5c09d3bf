/*

This file contains the planning cycle. A cycle refreshes stale venue data, plans the allocation of
the capital it was given and commits the new allocation set only after planning (and, when a vault
is attached, settlement) succeeded. Cycles never overlap: a second caller is rejected instead of
queued.

*/

package engine

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/estimator"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/planner"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// maxParallelEstimates bounds concurrent venue refreshes in the read phase.
const maxParallelEstimates = 8

type cycleOutcome struct {
	plan     types.AllocationPlan
	params   types.EngineParameters
	breaker  bool
	fallback []string
}

// PlanAllocation plans and commits an allocation of totalAmount without settling it.
func (e *Engine) PlanAllocation(ctx context.Context, totalAmount sdkmath.Int) (types.AllocationPlan, error) {
	if !e.cycleMu.TryLock() {
		return types.AllocationPlan{}, types.Wrapf(types.ErrCycleInProgress, "a planning cycle is already running")
	}
	defer e.cycleMu.Unlock()

	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	params, breakerEngaged := e.paramsSnapshot()
	out, err := e.plan(ctx, cycleID, totalAmount, params, breakerEngaged, cycleLogger)
	if err != nil {
		return types.AllocationPlan{}, err
	}
	if err := e.commit(ctx, out.plan, out.plan.Allocations, cycleLogger); err != nil {
		return types.AllocationPlan{}, err
	}
	return out.plan, nil
}

// RunCycle executes a complete cycle: read total capital from the vault, plan, settle, commit
// and record a snapshot. The snapshot is returned even when the cycle failed.
func (e *Engine) RunCycle(ctx context.Context) (types.CycleSnapshot, error) {
	if !e.cycleMu.TryLock() {
		return types.CycleSnapshot{}, types.Wrapf(types.ErrCycleInProgress, "a planning cycle is already running")
	}
	defer e.cycleMu.Unlock()

	cycleStartTime := e.now()
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	snapshot := types.CycleSnapshot{
		CycleNumber:  e.nextCycleNumber(ctx),
		CycleID:      cycleID,
		Timestamp:    cycleStartTime,
		TotalCapital: sdkmath.ZeroInt(),
	}
	cycleLogger.Info().Int("cycleNumber", snapshot.CycleNumber).Msg("--- Starting Planning Cycle ---")

	err := e.runCycle(ctx, &snapshot, cycleLogger)
	if err != nil {
		snapshot.Error = err.Error()
		cycleLogger.Error().Err(err).Str("class", types.ErrorClass(err)).Msg("Cycle failed")
	}
	snapshot.DurationMs = e.now().Sub(cycleStartTime).Milliseconds()

	if e.store != nil {
		if serr := e.store.SaveSnapshot(ctx, snapshot); serr != nil {
			cycleLogger.Error().Err(serr).Msg("Failed to save cycle snapshot")
		}
	}
	e.events.Emit(events.CycleCompleted, module, &events.CycleCompletedData{
		CycleID:     cycleID,
		CycleNumber: snapshot.CycleNumber,
		DurationMs:  snapshot.DurationMs,
		Error:       snapshot.Error,
	})
	cycleLogger.Info().Int64("durationMs", snapshot.DurationMs).Msg("--- Planning Cycle Completed ---")
	return snapshot, err
}

func (e *Engine) runCycle(ctx context.Context, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) error {
	if e.vault == nil {
		return types.Wrapf(types.ErrConfiguration, "no vault attached, cycles need a capital source")
	}

	params, breakerEngaged := e.paramsSnapshot()
	snapshot.Fees = params.Fees()

	// Fees are booked before capital is read so the plan only deploys what is not owed.
	accrued, err := e.vault.AccrueFees(ctx, snapshot.Fees)
	if err != nil {
		return types.Wrapf(types.ErrDataUnavailable, "failed to accrue fees: %v", err)
	}
	if accrued.IsPositive() {
		cycleLogger.Info().Str("management_fee", accrued.String()).Msg("Management fee accrued")
	}

	total, err := e.vault.TotalCapital(ctx)
	if err != nil {
		return types.Wrapf(types.ErrDataUnavailable, "failed to read total capital: %v", err)
	}
	snapshot.TotalCapital = total

	out, err := e.plan(ctx, snapshot.CycleID, total, params, breakerEngaged, cycleLogger)
	if err != nil {
		return err
	}
	snapshot.Plan = out.plan
	snapshot.FallbackVenues = out.fallback
	snapshot.CircuitBreaker = out.breaker

	settlement, err := e.vault.ApplyPlan(ctx, out.plan, snapshot.Fees)
	snapshot.Settlement = settlement
	if err != nil {
		return err
	}

	committed := e.reconcile(out.plan.Allocations, settlement)
	return e.commit(ctx, out.plan, committed, cycleLogger)
}

// RunLoop runs a cycle immediately and then every interval until ctx is done.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Starting engine main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	snapshot, err := e.RunCycle(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Int("cycle", snapshot.CycleNumber).Msg("Engine cycle ended with error")
		return
	}
	e.logger.Info().Int("cycle", snapshot.CycleNumber).Msg("Engine cycle completed")
}

func (e *Engine) nextCycleNumber(ctx context.Context) int {
	if e.store != nil {
		n, err := e.store.NextCycleNumber(ctx)
		if err == nil {
			return n
		}
		e.logger.Error().Err(err).Msg("Failed to increment persistent cycle counter, using in-memory count")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycleCount++
	return e.cycleCount
}

// plan runs the read phase and the planner against the given parameter snapshot.
func (e *Engine) plan(ctx context.Context, cycleID string, total sdkmath.Int, params types.EngineParameters, breakerEngaged bool, cycleLogger zerolog.Logger) (cycleOutcome, error) {
	if total.IsNil() || total.IsNegative() {
		return cycleOutcome{}, types.Wrapf(types.ErrConfiguration, "total amount must be a non-negative integer")
	}

	now := e.now()

	candidates, fallback := e.refresh(ctx, now, params, breakerEngaged, cycleLogger)

	plan, err := e.planner.Plan(cycleID, total, candidates, now, planner.SettingsFrom(params, breakerEngaged))
	if err != nil {
		return cycleOutcome{}, err
	}

	e.events.Emit(events.AllocationComputed, module, &events.AllocationComputedData{
		CycleID:     cycleID,
		TotalAmount: total.String(),
		Venues:      len(plan.Allocations),
		Skipped:     len(plan.Skipped),
		Forfeited:   plan.Forfeited.String(),
	})
	return cycleOutcome{plan: plan, params: params, breaker: breakerEngaged, fallback: fallback}, nil
}

// refresh builds planner candidates in registration order. Only the venues the planner will
// consider are refreshed; entries still within their TTL are reused.
func (e *Engine) refresh(ctx context.Context, now time.Time, params types.EngineParameters, breakerEngaged bool, cycleLogger zerolog.Logger) ([]planner.Candidate, []string) {
	entries := e.venues.List()
	candidates := make([]planner.Candidate, len(entries))
	settings := estimator.SettingsFrom(params, breakerEngaged)

	var g errgroup.Group
	g.SetLimit(maxParallelEstimates)
	for i, entry := range entries {
		candidates[i].Info = entry.Info
		candidates[i].Held = e.allocatedTo(entry.Info.ID)
		if i >= params.MaxVenuesPerCycle {
			continue
		}
		if data, ok := e.cache.Get(entry.Info.ID, now); ok {
			candidates[i].Data = data
			candidates[i].Fresh = true
			continue
		}
		i, entry := i, entry
		g.Go(func() error {
			if _, err := e.estimator.Estimate(ctx, entry, now, settings); err != nil {
				cycleLogger.Warn().Err(err).Str("venue", string(entry.Info.ID)).Msg("Venue estimate failed")
				candidates[i].EstimateErr = err
				return nil
			}
			data, _ := e.cache.Get(entry.Info.ID, now)
			candidates[i].Data = data
			candidates[i].Fresh = data.Valid
			return nil
		})
	}
	_ = g.Wait()

	var fallback []string
	for _, c := range candidates {
		if c.Fresh && c.Data.FallbackUsed {
			fallback = append(fallback, string(c.Info.ID))
		}
	}
	return candidates, fallback
}

// reconcile keeps the previous allocation for venues whose settlement failed, so the committed
// set matches where capital actually sits.
func (e *Engine) reconcile(planned []types.Allocation, settlement *types.SettlementResult) []types.Allocation {
	if settlement == nil || len(settlement.FailedVenues) == 0 {
		return planned
	}
	failed := make(map[types.VenueID]bool, len(settlement.FailedVenues))
	for _, id := range settlement.FailedVenues {
		failed[id] = true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Allocation, 0, len(planned))
	for _, a := range planned {
		if !failed[a.VenueID] {
			out = append(out, a)
			continue
		}
		if prev, ok := e.allocations[a.VenueID]; ok {
			out = append(out, prev)
		}
		delete(failed, a.VenueID)
	}
	for id := range failed {
		if prev, ok := e.allocations[id]; ok {
			out = append(out, prev)
		}
	}
	return out
}

// commit persists the allocation set and then swaps it in. A persistence failure leaves the
// previous set in place.
func (e *Engine) commit(ctx context.Context, plan types.AllocationPlan, allocations []types.Allocation, cycleLogger zerolog.Logger) error {
	kept := make([]types.Allocation, 0, len(allocations))
	for _, a := range allocations {
		if a.Amount.IsPositive() {
			kept = append(kept, a)
		}
	}

	if e.store != nil {
		if err := e.store.SaveAllocations(ctx, plan.CycleID, kept); err != nil {
			return types.Wrapf(types.ErrDataUnavailable, "failed to persist allocations: %v", err)
		}
	}

	next := make(map[types.VenueID]types.Allocation, len(kept))
	for _, a := range kept {
		next[a.VenueID] = a
	}

	e.mu.Lock()
	previous := e.allocations
	e.allocations = next
	e.lastPlan = &plan
	e.mu.Unlock()

	cycleLogger.Info().
		Int("allocations", len(kept)).
		Int("previous", len(previous)).
		Msg("Allocations committed")

	for _, entry := range e.venues.List() {
		e.publishSnapshot(ctx, entry.Info.ID)
	}
	return nil
}
