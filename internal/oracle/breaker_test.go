package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

type countingSource struct {
	StaticSource
	mu    sync.Mutex
	calls int
}

func (c *countingSource) Predict(ctx context.Context, venue types.VenueID) (types.Prediction, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.StaticSource.Predict(ctx, venue)
}

func TestGuardedSourceOpensAfterFailures(t *testing.T) {
	inner := &countingSource{StaticSource: StaticSource{SourceID: "flaky", Err: errors.New("boom")}}
	g := Guard(inner, GuardSettings{RatePerSecond: 1000, Burst: 100, ConsecutiveFailures: 3, OpenTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := g.Predict(context.Background(), "v1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Predict(context.Background(), "v1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls, "open breaker does not reach the source")
	assert.Equal(t, "flaky", g.ID())
}

func TestGuardedSourceRateLimited(t *testing.T) {
	inner := &StaticSource{SourceID: "a", Prediction: types.Prediction{YieldBps: 600}}
	g := Guard(inner, GuardSettings{RatePerSecond: 0.001, Burst: 1, ConsecutiveFailures: 3, OpenTimeout: time.Hour})

	pred, err := g.Predict(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), pred.YieldBps)

	_, err = g.Predict(context.Background(), "v1")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestConsensusBreakerTripsAndRecovers(t *testing.T) {
	var mu sync.Mutex
	var toggles []bool
	b := NewConsensusBreaker(ConsensusBreakerSettings{
		Window:          time.Hour,
		MinSamples:      4,
		FailureRatioBps: 5000,
		OpenTimeout:     20 * time.Millisecond,
	}, func(engaged bool) {
		mu.Lock()
		defer mu.Unlock()
		toggles = append(toggles, engaged)
	})

	b.Record(true)
	b.Record(false)
	b.Record(true)
	assert.False(t, b.Engaged(), "below the sample minimum")

	b.Record(false)
	assert.True(t, b.Engaged(), "2 of 4 failed")

	require.Eventually(t, func() bool { return !b.Engaged() }, time.Second, 5*time.Millisecond)
	b.Record(true)
	assert.False(t, b.Engaged())
	assert.Equal(t, "closed", b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, toggles)
}
