package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited        = errors.New("oracle source rate limited")
	errConsensusUnhealthy = errors.New("oracle consensus failed")
)

// GuardSettings bound how hard a single source is called.
type GuardSettings struct {
	RatePerSecond       float64
	Burst               int
	ConsecutiveFailures uint32        // Failures in a row that open the source breaker
	OpenTimeout         time.Duration // Time the breaker stays open before probing again
}

// DefaultGuardSettings suit sources that are queried once per venue per cycle.
var DefaultGuardSettings = GuardSettings{
	RatePerSecond:       20,
	Burst:               40,
	ConsecutiveFailures: 5,
	OpenTimeout:         time.Minute,
}

// GuardedSource wraps a source with a rate limiter and a circuit breaker. A rejected call fails
// like any other source failure.
type GuardedSource struct {
	inner   Source
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func Guard(src Source, settings GuardSettings) *GuardedSource {
	threshold := settings.ConsecutiveFailures
	return &GuardedSource{
		inner:   src,
		limiter: rate.NewLimiter(rate.Limit(settings.RatePerSecond), settings.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oracle-" + src.ID(),
			MaxRequests: 1,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				aggLogger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Oracle source breaker changed state")
			},
		}),
	}
}

func (g *GuardedSource) ID() string { return g.inner.ID() }

func (g *GuardedSource) Predict(ctx context.Context, venue types.VenueID) (types.Prediction, error) {
	if !g.limiter.Allow() {
		return types.Prediction{}, fmt.Errorf("%w: %s", ErrRateLimited, g.inner.ID())
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Predict(ctx, venue)
	})
	if err != nil {
		return types.Prediction{}, err
	}
	return res.(types.Prediction), nil
}

// State reports the source breaker state.
func (g *GuardedSource) State() gobreaker.State {
	return g.breaker.State()
}

// ConsensusBreakerSettings configure automatic circuit breaking on consensus failures.
type ConsensusBreakerSettings struct {
	Window          time.Duration // Counts are cleared every Window while closed
	MinSamples      uint32        // Aggregations needed before the ratio is judged
	FailureRatioBps int64         // Failure share that trips the breaker
	OpenTimeout     time.Duration // Time off-chain data stays disabled before a probe
}

var DefaultConsensusBreakerSettings = ConsensusBreakerSettings{
	Window:          time.Hour,
	MinSamples:      10,
	FailureRatioBps: 5000,
	OpenTimeout:     30 * time.Minute,
}

// ConsensusBreaker trips when too many aggregations in a window produce no consensus. While it is
// open the engine treats the circuit breaker as engaged and ignores off-chain data.
type ConsensusBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewConsensusBreaker builds the breaker. onToggle is called with true when it opens and false when
// it leaves the open state.
func NewConsensusBreaker(settings ConsensusBreakerSettings, onToggle func(engaged bool)) *ConsensusBreaker {
	return &ConsensusBreaker{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oracle-consensus",
			MaxRequests: 1,
			Interval:    settings.Window,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < settings.MinSamples {
					return false
				}
				return int64(counts.TotalFailures)*types.Scale >= int64(counts.Requests)*settings.FailureRatioBps
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				if onToggle == nil {
					return
				}
				switch {
				case to == gobreaker.StateOpen:
					onToggle(true)
				case from == gobreaker.StateOpen:
					onToggle(false)
				}
			},
		}),
	}
}

// Record counts one aggregation outcome. Outcomes arriving while the breaker is open are dropped.
func (b *ConsensusBreaker) Record(valid bool) {
	_, _ = b.breaker.Execute(func() (interface{}, error) {
		if !valid {
			return nil, errConsensusUnhealthy
		}
		return nil, nil
	})
}

// Engaged reports whether the breaker is open.
func (b *ConsensusBreaker) Engaged() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

func (b *ConsensusBreaker) State() string {
	return b.breaker.State().String()
}
