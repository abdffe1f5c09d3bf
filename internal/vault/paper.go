/*

This file contains the paper vault. It keeps the book of where capital sits in memory and moves
it through the venue handles: withdrawals first so freed capital can be redeployed in the same
settlement, deposits after in plan order. The management fee accrues as a liability that is netted
out of TotalCapital, so the engine plans only what the vault can still deploy. Owed fees are paid
before deposits, from idle capital first and then from positions.

*/

package vault

import (
	"context"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/utils"
)

var vaultLogger = logger.GetForComponent("paper_vault")

const secondsPerYear = 365 * 24 * 60 * 60

type PaperVault struct {
	mu            sync.Mutex
	venues        Venues
	idle          sdkmath.Int
	positions     map[types.VenueID]sdkmath.Int
	feesCollected sdkmath.Int
	feesOwed      sdkmath.Int
	lastAccrued   time.Time
	now           func() time.Time
}

// NewPaperVault starts a book holding initial idle capital.
func NewPaperVault(venues Venues, initial sdkmath.Int) (*PaperVault, error) {
	if err := utils.ValidateAmount(initial); err != nil {
		return nil, types.Wrapf(types.ErrConfiguration, "initial capital: %v", err)
	}
	return &PaperVault{
		venues:        venues,
		idle:          initial,
		positions:     make(map[types.VenueID]sdkmath.Int),
		feesCollected: sdkmath.ZeroInt(),
		feesOwed:      sdkmath.ZeroInt(),
		now:           time.Now,
	}, nil
}

// SetClock replaces the time source used for management fee accrual.
func (v *PaperVault) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

// AddCapital credits new idle capital.
func (v *PaperVault) AddCapital(amount sdkmath.Int) error {
	if err := utils.ValidateAmount(amount); err != nil {
		return types.Wrapf(types.ErrConfiguration, "capital: %v", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idle = v.idle.Add(amount)
	return nil
}

// TotalCapital is the gross book less fees owed.
func (v *PaperVault) TotalCapital(context.Context) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.netLocked(), nil
}

// AccrueFees books the management fee earned since the last accrual and returns it.
func (v *PaperVault) AccrueFees(_ context.Context, fees types.FeeRates) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accrueLocked(v.now(), fees.ManagementFeeBps), nil
}

// FeesOwed returns accrued fees not yet paid.
func (v *PaperVault) FeesOwed() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.feesOwed
}

func (v *PaperVault) accrueLocked(now time.Time, bps int64) sdkmath.Int {
	if v.lastAccrued.IsZero() || now.Before(v.lastAccrued) {
		v.lastAccrued = now
		return sdkmath.ZeroInt()
	}
	fee := ManagementFee(v.netLocked(), bps, now.Sub(v.lastAccrued))
	v.lastAccrued = now
	v.feesOwed = v.feesOwed.Add(fee)
	return fee
}

func (v *PaperVault) netLocked() sdkmath.Int {
	net := v.totalLocked().Sub(v.feesOwed)
	if net.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return net
}

func (v *PaperVault) totalLocked() sdkmath.Int {
	total := v.idle
	for _, amount := range v.positions {
		total = total.Add(amount)
	}
	return total
}

// Idle returns capital not placed in any venue.
func (v *PaperVault) Idle() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.idle
}

// FeesCollected returns the fees charged so far.
func (v *PaperVault) FeesCollected() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.feesCollected
}

func (v *PaperVault) Positions() map[types.VenueID]sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[types.VenueID]sdkmath.Int, len(v.positions))
	for id, amount := range v.positions {
		out[id] = amount
	}
	return out
}

func (v *PaperVault) ApplyPlan(ctx context.Context, plan types.AllocationPlan, fees types.FeeRates) (*types.SettlementResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := &types.SettlementResult{
		Deposited:          sdkmath.ZeroInt(),
		Withdrawn:          sdkmath.ZeroInt(),
		ManagementFee:      sdkmath.ZeroInt(),
		PerformanceFee:     sdkmath.ZeroInt(),
		AppliedManagement:  fees.ManagementFeeBps,
		AppliedPerformance: fees.PerformanceFeeBps,
	}

	v.accrueLocked(v.now(), fees.ManagementFeeBps)

	targets := make(map[types.VenueID]sdkmath.Int, len(plan.Allocations))
	for _, a := range plan.Allocations {
		targets[a.VenueID] = a.Amount
	}

	held := make([]types.VenueID, 0, len(v.positions))
	for id := range v.positions {
		held = append(held, id)
	}
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })

	attempted := 0
	realizedGain := sdkmath.ZeroInt()
	for _, id := range held {
		current := v.positions[id]
		target, ok := targets[id]
		if !ok {
			target = sdkmath.ZeroInt()
		}
		if !current.GT(target) {
			continue
		}
		attempted++
		delta := current.Sub(target)
		entry, found := v.venues.Get(id)
		if !found {
			vaultLogger.Warn().Str("venue", string(id)).Msg("Venue no longer registered, position left in place")
			result.FailedVenues = append(result.FailedVenues, id)
			continue
		}
		actual, err := entry.Handle.Withdraw(ctx, delta)
		if err != nil {
			vaultLogger.Error().Err(err).Str("venue", string(id)).Str("amount", delta.String()).Msg("Withdrawal failed")
			result.FailedVenues = append(result.FailedVenues, id)
			continue
		}
		if actual.GT(delta) {
			realizedGain = realizedGain.Add(actual.Sub(delta))
		}
		v.idle = v.idle.Add(actual)
		result.Withdrawn = result.Withdrawn.Add(actual)
		v.setPosition(id, target)
	}

	result.PerformanceFee = v.chargeLocked(utils.MulBps(realizedGain, fees.PerformanceFeeBps))
	result.ManagementFee = v.payOwedLocked(ctx, held)

	for _, a := range plan.Allocations {
		current, ok := v.positions[a.VenueID]
		if !ok {
			current = sdkmath.ZeroInt()
		}
		if !a.Amount.GT(current) {
			continue
		}
		delta := utils.MinInt(a.Amount.Sub(current), v.idle)
		if !delta.IsPositive() {
			vaultLogger.Warn().Str("venue", string(a.VenueID)).Msg("No idle capital left for deposit")
			continue
		}
		attempted++
		entry, found := v.venues.Get(a.VenueID)
		if !found {
			result.FailedVenues = append(result.FailedVenues, a.VenueID)
			continue
		}
		if err := entry.Handle.Deposit(ctx, delta); err != nil {
			vaultLogger.Error().Err(err).Str("venue", string(a.VenueID)).Str("amount", delta.String()).Msg("Deposit failed")
			result.FailedVenues = append(result.FailedVenues, a.VenueID)
			continue
		}
		v.idle = v.idle.Sub(delta)
		result.Deposited = result.Deposited.Add(delta)
		v.setPosition(a.VenueID, current.Add(delta))
	}

	vaultLogger.Info().
		Str("cycle_id", plan.CycleID).
		Str("deposited", result.Deposited.String()).
		Str("withdrawn", result.Withdrawn.String()).
		Str("management_fee", result.ManagementFee.String()).
		Str("performance_fee", result.PerformanceFee.String()).
		Int("failed", len(result.FailedVenues)).
		Msg("Plan settled")

	if attempted > 0 && len(result.FailedVenues) == attempted {
		return result, types.Wrapf(types.ErrDataUnavailable, "settlement failed for every venue (%d)", attempted)
	}
	return result, nil
}

func (v *PaperVault) setPosition(id types.VenueID, amount sdkmath.Int) {
	if amount.IsZero() {
		delete(v.positions, id)
		return
	}
	v.positions[id] = amount
}

// payOwedLocked pays owed fees from idle capital, then draws any shortfall from positions in
// venue id order. Whatever cannot be drawn stays owed.
func (v *PaperVault) payOwedLocked(ctx context.Context, held []types.VenueID) sdkmath.Int {
	if !v.feesOwed.IsPositive() {
		return sdkmath.ZeroInt()
	}
	for _, id := range held {
		shortfall := v.feesOwed.Sub(v.idle)
		if !shortfall.IsPositive() {
			break
		}
		current, ok := v.positions[id]
		if !ok {
			continue
		}
		entry, found := v.venues.Get(id)
		if !found {
			continue
		}
		draw := utils.MinInt(shortfall, current)
		actual, err := entry.Handle.Withdraw(ctx, draw)
		if err != nil {
			vaultLogger.Error().Err(err).Str("venue", string(id)).Str("amount", draw.String()).Msg("Fee withdrawal failed")
			continue
		}
		v.idle = v.idle.Add(actual)
		v.setPosition(id, current.Sub(utils.MinInt(actual, current)))
	}
	paid := v.chargeLocked(v.feesOwed)
	v.feesOwed = v.feesOwed.Sub(paid)
	return paid
}

// chargeLocked moves up to fee from idle capital to collected fees and returns what was charged.
func (v *PaperVault) chargeLocked(fee sdkmath.Int) sdkmath.Int {
	fee = utils.MinInt(fee, v.idle)
	if !fee.IsPositive() {
		return sdkmath.ZeroInt()
	}
	v.idle = v.idle.Sub(fee)
	v.feesCollected = v.feesCollected.Add(fee)
	return fee
}

func (v *PaperVault) Close() error {
	return nil
}

// ManagementFee pro-rates an annual rate over elapsed: capital * bps * seconds / (10000 * year).
func ManagementFee(capital sdkmath.Int, bps int64, elapsed time.Duration) sdkmath.Int {
	seconds := int64(elapsed / time.Second)
	if capital.IsNil() || bps <= 0 || seconds <= 0 {
		return sdkmath.ZeroInt()
	}
	return capital.MulRaw(bps).MulRaw(seconds).QuoRaw(types.Scale * secondsPerYear)
}
