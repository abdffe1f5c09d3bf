/*

This file contains the Hybrid Yield Estimator. It blends the yield a venue reports on-chain with the
oracle consensus and writes the result through to the Venue Cache. When no consensus is available
the off-chain term is replaced by a fixed fallback yield and the result is flagged, so a degraded
estimate is never mistaken for a normal one.

*/

package estimator

import (
	"context"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/cache"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/oracle"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"

	sdkmath "cosmossdk.io/math"
)

const module = "estimator"

var estLogger = logger.GetForComponent("yield_estimator")

// ConsensusSource produces the off-chain consensus for a venue.
type ConsensusSource interface {
	Aggregate(ctx context.Context, venue types.VenueID, now time.Time, settings oracle.Settings) types.Consensus
}

// OutcomeRecorder is told whether each aggregation reached consensus.
type OutcomeRecorder interface {
	Record(valid bool)
}

// Settings are the estimation inputs taken from the cycle's parameter snapshot.
type Settings struct {
	BlendWeightBps        int64
	FallbackYieldBps      int64
	CircuitBreakerEngaged bool
	Oracle                oracle.Settings
}

// SettingsFrom builds estimator settings. breakerEngaged is the effective breaker state, manual
// or automatic.
func SettingsFrom(p types.EngineParameters, breakerEngaged bool) Settings {
	return Settings{
		BlendWeightBps:        p.BlendWeightBps,
		FallbackYieldBps:      p.FallbackYieldBps,
		CircuitBreakerEngaged: breakerEngaged,
		Oracle:                oracle.SettingsFrom(p),
	}
}

type Estimator struct {
	consensus ConsensusSource
	cache     *cache.VenueCache
	events    *events.Manager
	recorder  OutcomeRecorder
	probe     sdkmath.Int
}

// NewEstimator wires the estimator. recorder and events may be nil.
func NewEstimator(consensus ConsensusSource, venueCache *cache.VenueCache, eventManager *events.Manager, recorder OutcomeRecorder) *Estimator {
	return &Estimator{
		consensus: consensus,
		cache:     venueCache,
		events:    eventManager,
		recorder:  recorder,
		probe:     sdkmath.ZeroInt(),
	}
}

// SetProbeAmount sets the amount passed to Venue.Query, for venues whose quoted yield depends on size.
func (e *Estimator) SetProbeAmount(amount sdkmath.Int) {
	e.probe = amount
}

// Estimate computes the current yield and risk of a venue at now and stores it in the cache.
func (e *Estimator) Estimate(ctx context.Context, entry venue.Entry, now time.Time, settings Settings) (types.Estimate, error) {
	id := entry.Info.ID

	liquidity, onChain, err := entry.Handle.Query(ctx, e.probe)
	if err != nil {
		e.cache.Invalidate(id)
		return types.Estimate{}, types.Wrapf(types.ErrDataUnavailable, "venue %s query failed: %v", id, err)
	}
	if liquidity.IsNil() || liquidity.IsNegative() {
		e.cache.Invalidate(id)
		return types.Estimate{}, types.Wrapf(types.ErrDataUnavailable, "venue %s reported invalid liquidity", id)
	}
	if onChain < 0 || onChain > types.MaxYieldBps {
		e.cache.Invalidate(id)
		return types.Estimate{}, types.Wrapf(types.ErrDataUnavailable, "venue %s on-chain yield %d outside [0, %d]", id, onChain, types.MaxYieldBps)
	}

	est := types.Estimate{
		VenueID:         id,
		Liquidity:       liquidity,
		OnChainYieldBps: onChain,
		RiskScore:       entry.Info.RiskScore,
		Timestamp:       now,
	}

	if settings.CircuitBreakerEngaged {
		est.YieldBps = onChain
	} else {
		consensus := e.consensus.Aggregate(ctx, id, now, settings.Oracle)
		if e.recorder != nil {
			e.recorder.Record(consensus.Valid)
		}

		offChain := consensus.YieldBps
		if consensus.Valid {
			est.OffChainUsed = true
			est.RiskScore = consensus.RiskScore
		} else {
			offChain = settings.FallbackYieldBps
			est.FallbackUsed = true
			e.reportDegraded(id, consensus, settings)
		}
		est.YieldBps = Blend(onChain, offChain, settings.BlendWeightBps)
	}

	if est.YieldBps < 0 || est.YieldBps > types.MaxYieldBps {
		if !est.FallbackUsed {
			e.cache.Invalidate(id)
			return types.Estimate{}, types.Wrapf(types.ErrDataUnavailable, "venue %s blended yield %d outside [0, %d]", id, est.YieldBps, types.MaxYieldBps)
		}
		est.YieldBps = settings.FallbackYieldBps
	}

	e.cache.Put(id, types.CachedData{
		Liquidity:       est.Liquidity,
		YieldBps:        est.YieldBps,
		RiskScore:       est.RiskScore,
		OnChainYieldBps: est.OnChainYieldBps,
		Valid:           true,
		OffChainUsed:    est.OffChainUsed,
		FallbackUsed:    est.FallbackUsed,
	}, now)

	e.events.Emit(events.VenueCacheRefreshed, module, &events.VenueCacheRefreshedData{
		VenueID:      string(id),
		YieldBps:     est.YieldBps,
		RiskScore:    est.RiskScore,
		Liquidity:    est.Liquidity.String(),
		OffChainUsed: est.OffChainUsed,
		FallbackUsed: est.FallbackUsed,
	})

	estLogger.Debug().
		Str("venue", string(id)).
		Int64("yield_bps", est.YieldBps).
		Int64("on_chain_bps", onChain).
		Int64("risk", est.RiskScore).
		Bool("off_chain", est.OffChainUsed).
		Bool("fallback", est.FallbackUsed).
		Msg("Venue estimated")
	return est, nil
}

func (e *Estimator) reportDegraded(id types.VenueID, consensus types.Consensus, settings Settings) {
	estLogger.Warn().
		Str("venue", string(id)).
		Str("reason", string(consensus.Failure)).
		Int64("fallback_bps", settings.FallbackYieldBps).
		Msg("Oracle consensus unavailable, using fallback yield")

	e.events.Emit(events.OracleConsensusFailed, module, &events.OracleConsensusFailedData{
		VenueID:   string(id),
		Reason:    string(consensus.Failure),
		Responded: consensus.Responded,
		Quorum:    settings.Oracle.Quorum,
	})
	e.events.Emit(events.DegradedMode, module, &events.DegradedModeData{
		VenueID:          string(id),
		FallbackYieldBps: settings.FallbackYieldBps,
	})
}

// Blend returns (onChain*w + offChain*(Scale-w)) / Scale.
func Blend(onChainBps, offChainBps, weightBps int64) int64 {
	return (onChainBps*weightBps + offChainBps*(types.Scale-weightBps)) / types.Scale
}
