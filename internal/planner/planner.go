/*

This file contains the Allocation Planner. It splits the capital of one cycle across the eligible
venues in proportion to a risk-adjusted weight, drops allocations that are too small to be worth
making or too large for the venue to absorb, and folds everything that was not allocated into the
surviving venues in registration order, the first one first. A survivor never receives more than
its capacity (free liquidity plus what the engine already holds there). The plan sums to exactly
the capital it was given unless the survivors together cannot hold it; the rest is reported as
Unallocated and stays idle.

*/

package planner

import (
	"fmt"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/risk"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	sdkmath "cosmossdk.io/math"
)

var plannerLogger = logger.GetForComponent("allocation_planner")

// Candidate is one registered venue as seen by the planner, in registration order.
type Candidate struct {
	Info        types.VenueInfo
	Data        types.CachedData
	Fresh       bool        // Cache entry is valid and within TTL
	EstimateErr error       // Set when refreshing the entry failed this cycle
	Held        sdkmath.Int // Currently allocated to the venue; nil means nothing
}

// Capacity is the most the venue can hold after settlement.
func (c Candidate) Capacity() sdkmath.Int {
	if c.Data.Liquidity.IsNil() {
		return sdkmath.ZeroInt()
	}
	if c.Held.IsNil() || !c.Held.IsPositive() {
		return c.Data.Liquidity
	}
	return c.Data.Liquidity.Add(c.Held)
}

// LeverageAssessor decides whether an allocation may be leveraged.
type LeverageAssessor interface {
	AssessLeverage(venue types.VenueID, amount sdkmath.Int, data types.CachedData, limits risk.Limits) risk.Assessment
}

// Settings are the planning bounds taken from the cycle's parameter snapshot.
type Settings struct {
	MinLiquidity          sdkmath.Int
	MinAllocation         sdkmath.Int
	MaxVenuesPerCycle     int
	LeverageEnabled       bool
	CircuitBreakerEngaged bool
	Risk                  risk.Limits
}

// SettingsFrom builds planner settings. breakerEngaged is the effective breaker state.
func SettingsFrom(p types.EngineParameters, breakerEngaged bool) Settings {
	return Settings{
		MinLiquidity:          p.MinLiquidity,
		MinAllocation:         p.MinAllocation,
		MaxVenuesPerCycle:     p.MaxVenuesPerCycle,
		LeverageEnabled:       p.LeverageEnabled,
		CircuitBreakerEngaged: breakerEngaged,
		Risk:                  risk.LimitsFrom(p),
	}
}

type Planner struct {
	assessor LeverageAssessor
}

func New(assessor LeverageAssessor) *Planner {
	return &Planner{assessor: assessor}
}

type weighted struct {
	candidate Candidate
	weight    sdkmath.Int
	amount    sdkmath.Int
}

// Plan allocates total across candidates. An empty plan is a valid result.
func (p *Planner) Plan(cycleID string, total sdkmath.Int, candidates []Candidate, now time.Time, s Settings) (types.AllocationPlan, error) {
	if total.IsNil() || total.IsNegative() {
		return types.AllocationPlan{}, types.Wrapf(types.ErrConfiguration, "total amount must be a non-negative integer")
	}
	if s.MaxVenuesPerCycle <= 0 {
		return types.AllocationPlan{}, types.Wrapf(types.ErrConfiguration, "max venues per cycle must be positive")
	}

	plan := types.AllocationPlan{
		CycleID:     cycleID,
		TotalAmount: total,
		Allocations: []types.Allocation{},
		Forfeited:   sdkmath.ZeroInt(),
		Unallocated: sdkmath.ZeroInt(),
		CreatedAt:   now,
	}
	skip := func(id types.VenueID, reason types.SkipReason, format string, args ...interface{}) {
		plan.Skipped = append(plan.Skipped, types.SkippedVenue{VenueID: id, Reason: reason, Detail: fmt.Sprintf(format, args...)})
	}

	if len(candidates) > s.MaxVenuesPerCycle {
		for _, c := range candidates[s.MaxVenuesPerCycle:] {
			skip(c.Info.ID, types.SkipOverCycleLimit, "beyond the first %d venues", s.MaxVenuesPerCycle)
		}
		candidates = candidates[:s.MaxVenuesPerCycle]
	}

	eligible := make([]weighted, 0, len(candidates))
	sumWeights := sdkmath.ZeroInt()
	for _, c := range candidates {
		id := c.Info.ID
		switch {
		case c.EstimateErr != nil:
			skip(id, types.SkipEstimateFailed, "%v", c.EstimateErr)
			continue
		case !c.Info.Compliant:
			skip(id, types.SkipNotEligible, "venue is not compliant")
			continue
		case s.CircuitBreakerEngaged && c.Info.OffChainDependent:
			skip(id, types.SkipCircuitBreaker, "venue depends on off-chain data")
			continue
		case !c.Fresh || !c.Data.Valid:
			skip(id, types.SkipStale, "no fresh cache entry")
			continue
		case c.Data.YieldBps <= 0 || c.Data.YieldBps > types.MaxYieldBps:
			skip(id, types.SkipYieldRange, "yield %d outside (0, %d]", c.Data.YieldBps, types.MaxYieldBps)
			continue
		case c.Data.Liquidity.IsNil() || c.Data.Liquidity.LT(s.MinLiquidity):
			skip(id, types.SkipLowLiquidity, "liquidity %s below minimum %s", c.Data.Liquidity, s.MinLiquidity)
			continue
		}

		w := Weight(c.Data.YieldBps, c.Data.Liquidity, c.Data.RiskScore)
		if !w.IsPositive() {
			skip(id, types.SkipZeroWeight, "weight is zero")
			continue
		}
		eligible = append(eligible, weighted{candidate: c, weight: w})
		sumWeights = sumWeights.Add(w)
	}

	if len(eligible) == 0 || total.IsZero() {
		plannerLogger.Info().Str("cycle_id", cycleID).Int("skipped", len(plan.Skipped)).Msg("No venue eligible for allocation, holding capital")
		return plan, nil
	}

	survivors := make([]weighted, 0, len(eligible))
	allocated := sdkmath.ZeroInt()
	for _, e := range eligible {
		e.amount = total.Mul(e.weight).Quo(sumWeights)
		if e.amount.LT(s.MinAllocation) {
			skip(e.candidate.Info.ID, types.SkipBelowMinimum, "allocation %s below minimum %s", e.amount, s.MinAllocation)
			plan.Forfeited = plan.Forfeited.Add(e.amount)
			continue
		}
		if capacity := e.candidate.Capacity(); e.amount.GT(capacity) {
			skip(e.candidate.Info.ID, types.SkipOverLiquidity, "allocation %s exceeds capacity %s", e.amount, capacity)
			plan.Forfeited = plan.Forfeited.Add(e.amount)
			continue
		}
		survivors = append(survivors, e)
		allocated = allocated.Add(e.amount)
	}

	if len(survivors) == 0 {
		plannerLogger.Info().Str("cycle_id", cycleID).Msg("Every allocation fell below the minimum, holding capital")
		return plan, nil
	}

	// Rounding dust and forfeited amounts go to the first survivor in registration order, spilling
	// to the next one only when a survivor is full.
	remainder := total.Sub(allocated)
	for i := range survivors {
		if !remainder.IsPositive() {
			break
		}
		room := survivors[i].candidate.Capacity().Sub(survivors[i].amount)
		if !room.IsPositive() {
			continue
		}
		if room.GT(remainder) {
			room = remainder
		}
		survivors[i].amount = survivors[i].amount.Add(room)
		remainder = remainder.Sub(room)
	}
	plan.Unallocated = remainder

	for _, e := range survivors {
		if e.amount.IsZero() {
			skip(e.candidate.Info.ID, types.SkipBelowMinimum, "allocation rounds to zero")
			continue
		}
		alloc := types.Allocation{
			VenueID:      e.candidate.Info.ID,
			Amount:       e.amount,
			YieldBps:     e.candidate.Data.YieldBps,
			Timestamp:    now,
			BorrowAmount: sdkmath.ZeroInt(),
		}
		if s.LeverageEnabled && p.assessor != nil {
			verdict := p.assessor.AssessLeverage(alloc.VenueID, alloc.Amount, e.candidate.Data, s.Risk)
			if verdict.Viable {
				alloc.Leveraged = true
				alloc.BorrowAmount = verdict.Borrow
				alloc.LTVBps = verdict.LTVBps
			} else {
				plannerLogger.Debug().Str("venue", string(alloc.VenueID)).Str("reason", verdict.Reason).Msg("Leverage not viable")
			}
		}
		plan.Allocations = append(plan.Allocations, alloc)

		plannerLogger.Debug().
			Str("cycle_id", cycleID).
			Str("venue", string(alloc.VenueID)).
			Str("amount", alloc.Amount.String()).
			Bool("leveraged", alloc.Leveraged).
			Msg("Venue allocated")
	}

	plannerLogger.Info().
		Str("cycle_id", cycleID).
		Str("total", total.String()).
		Int("venues", len(plan.Allocations)).
		Int("skipped", len(plan.Skipped)).
		Str("forfeited", plan.Forfeited.String()).
		Str("unallocated", plan.Unallocated.String()).
		Msg("Allocation plan computed")
	return plan, nil
}

// Weight is yield * liquidity / max(risk, 1).
func Weight(yieldBps int64, liquidity sdkmath.Int, riskScore int64) sdkmath.Int {
	if riskScore < 1 {
		riskScore = 1
	}
	return sdkmath.NewInt(yieldBps).Mul(liquidity).Quo(sdkmath.NewInt(riskScore))
}
