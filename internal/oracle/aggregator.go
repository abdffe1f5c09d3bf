/*

This file contains the Oracle Aggregator. It queries every registered source in parallel and reduces
the answers to one consensus yield and risk score, or to a "no consensus" result that callers must
fall back from. Failing sources never surface as errors here.

*/

package oracle

import (
	"context"
	"sort"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	"golang.org/x/sync/errgroup"
)

var aggLogger = logger.GetForComponent("oracle_aggregator")

// Settings are the aggregation bounds taken from the cycle's parameter snapshot.
type Settings struct {
	Quorum               int
	Timeout              time.Duration
	MaxTimestampVariance time.Duration
}

// SettingsFrom extracts the aggregation bounds from engine parameters.
func SettingsFrom(p types.EngineParameters) Settings {
	return Settings{
		Quorum:               p.OracleQuorum,
		Timeout:              p.OracleTimeout,
		MaxTimestampVariance: p.MaxTimestampVariance,
	}
}

// Observer is notified about every source call. Implemented by the consensus breaker and metrics.
type Observer interface {
	SourceQueried(sourceID string, ok bool)
}

type Aggregator struct {
	registry *Registry
	observer Observer
}

func NewAggregator(registry *Registry, observer Observer) *Aggregator {
	return &Aggregator{registry: registry, observer: observer}
}

// Aggregate queries every source for venue and computes the consensus at now.
func (a *Aggregator) Aggregate(ctx context.Context, venue types.VenueID, now time.Time, settings Settings) types.Consensus {
	sources := a.registry.Sources()
	if len(sources) == 0 {
		return types.Consensus{Timestamp: now, Failure: types.ConsensusNoSources}
	}

	answers := make([]*types.OracleResponse, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, settings.Timeout)
			defer cancel()

			pred, err := src.Predict(qctx, venue)
			if err == nil && qctx.Err() != nil {
				err = qctx.Err()
			}
			if a.observer != nil {
				a.observer.SourceQueried(src.ID(), err == nil)
			}
			if err != nil {
				aggLogger.Debug().Err(err).Str("source", src.ID()).Str("venue", string(venue)).Msg("Oracle source failed")
				return nil
			}
			answers[i] = &types.OracleResponse{
				SourceID:  src.ID(),
				WeightBps: src.WeightBps,
				YieldBps:  pred.YieldBps,
				RiskScore: pred.RiskScore,
				Timestamp: pred.Timestamp,
			}
			return nil
		})
	}
	_ = g.Wait()

	responses := make([]types.OracleResponse, 0, len(answers))
	for _, r := range answers {
		if r != nil {
			responses = append(responses, *r)
		}
	}

	consensus := ComputeConsensus(responses, now, settings)
	if !consensus.Valid {
		aggLogger.Warn().
			Str("venue", string(venue)).
			Str("reason", string(consensus.Failure)).
			Int("responded", consensus.Responded).
			Int("sources", len(sources)).
			Msg("No oracle consensus")
	}
	return consensus
}

// ComputeConsensus reduces raw responses to a consensus. It is deterministic and does not depend
// on the order of responses.
func ComputeConsensus(responses []types.OracleResponse, now time.Time, settings Settings) types.Consensus {
	result := types.Consensus{Timestamp: now}

	oldest := now.Add(-settings.Timeout)
	valid := make([]types.OracleResponse, 0, len(responses))
	for _, r := range responses {
		if r.Timestamp.Before(oldest) {
			continue
		}
		if r.YieldBps < 0 || r.YieldBps > types.MaxYieldBps || r.RiskScore < 0 || r.RiskScore > types.MaxRiskScore {
			continue
		}
		valid = append(valid, r)
	}
	result.Responded = len(valid)

	if len(valid) == 0 || len(valid) < settings.Quorum {
		result.Failure = types.ConsensusQuorum
		return result
	}

	minTs, maxTs := valid[0].Timestamp, valid[0].Timestamp
	for _, r := range valid[1:] {
		if r.Timestamp.Before(minTs) {
			minTs = r.Timestamp
		}
		if r.Timestamp.After(maxTs) {
			maxTs = r.Timestamp
		}
	}
	if maxTs.Sub(minTs) > settings.MaxTimestampVariance {
		result.Failure = types.ConsensusVariance
		return result
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].YieldBps != valid[j].YieldBps {
			return valid[i].YieldBps < valid[j].YieldBps
		}
		if valid[i].RiskScore != valid[j].RiskScore {
			return valid[i].RiskScore < valid[j].RiskScore
		}
		return valid[i].SourceID < valid[j].SourceID
	})

	yields := make([]int64, len(valid))
	risks := make([]int64, len(valid))
	for i, r := range valid {
		yields[i] = r.YieldBps
		risks[i] = r.RiskScore
	}
	sort.Slice(risks, func(i, j int) bool { return risks[i] < risks[j] })

	yieldFence := newFence(yields)
	riskFence := newFence(risks)

	survivors := make([]types.OracleResponse, 0, len(valid))
	for _, r := range valid {
		if yieldFence.contains(r.YieldBps) && riskFence.contains(r.RiskScore) {
			survivors = append(survivors, r)
		}
	}
	result.Used = len(survivors)

	if len(survivors) == 0 || 2*len(survivors) < len(valid) {
		result.Failure = types.ConsensusOutliers
		return result
	}

	var totalWeight, yieldSum, riskSum int64
	for _, r := range survivors {
		totalWeight += r.WeightBps
		yieldSum += r.YieldBps * r.WeightBps
		riskSum += r.RiskScore * r.WeightBps
	}

	if totalWeight > 0 {
		result.YieldBps = yieldSum / totalWeight
		result.RiskScore = riskSum / totalWeight
	} else {
		result.YieldBps, result.RiskScore = medians(survivors)
	}
	result.Valid = true
	return result
}

// fence holds the doubled Tukey bounds [2*Q1 - 3*IQR, 2*Q3 + 3*IQR] so the 1.5 factor stays exact.
type fence struct {
	lower2 int64
	upper2 int64
}

// newFence takes an ascending sample. Q1 is the lower nearest rank of (n-1)/4. Q3 is the rank
// 3(n-1)/4 rounded down unless its fraction is 3/4, so two responses give Q1 and Q3 at either end.
func newFence(sorted []int64) fence {
	n := len(sorted)
	q1 := sorted[(n-1)/4]
	q3 := sorted[(3*(n-1)+1)/4]
	iqr := q3 - q1
	return fence{lower2: 2*q1 - 3*iqr, upper2: 2*q3 + 3*iqr}
}

func (f fence) contains(v int64) bool {
	return 2*v >= f.lower2 && 2*v <= f.upper2
}

// medians returns the lower median yield and risk of the responses.
func medians(responses []types.OracleResponse) (int64, int64) {
	yields := make([]int64, len(responses))
	risks := make([]int64, len(responses))
	for i, r := range responses {
		yields[i] = r.YieldBps
		risks[i] = r.RiskScore
	}
	sort.Slice(yields, func(i, j int) bool { return yields[i] < yields[j] })
	sort.Slice(risks, func(i, j int) bool { return risks[i] < risks[j] })
	mid := (len(responses) - 1) / 2
	return yields[mid], risks[mid]
}
