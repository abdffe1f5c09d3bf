package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

var (
	testNow      = time.Unix(1_700_000_000, 0)
	testSettings = Settings{Quorum: 2, Timeout: 5 * time.Second, MaxTimestampVariance: 2 * time.Second}
)

func resp(id string, weight, yield, risk int64, age time.Duration) types.OracleResponse {
	return types.OracleResponse{SourceID: id, WeightBps: weight, YieldBps: yield, RiskScore: risk, Timestamp: testNow.Add(-age)}
}

func TestConsensusExcludesOutlier(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 5000, 600, 1000, 0),
		resp("b", 5000, 650, 1000, 0),
		resp("c", 5000, 5000, 1000, 0),
	}

	c := ComputeConsensus(responses, testNow, testSettings)
	require.True(t, c.Valid)
	assert.Equal(t, int64(625), c.YieldBps)
	assert.Equal(t, int64(1000), c.RiskScore)
	assert.Equal(t, 3, c.Responded)
	assert.Equal(t, 2, c.Used)
	assert.Equal(t, testNow, c.Timestamp)
}

func TestConsensusWeightedAverage(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 3000, 600, 900, 0),
		resp("b", 1000, 700, 1300, 0),
	}
	c := ComputeConsensus(responses, testNow, testSettings)
	require.True(t, c.Valid)
	// (600*3000 + 700*1000) / 4000 = 625, (900*3000 + 1300*1000) / 4000 = 1000
	assert.Equal(t, int64(625), c.YieldBps)
	assert.Equal(t, int64(1000), c.RiskScore)
}

func TestConsensusTwoSourcesBothSurvive(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 5000, 600, 1000, 0),
		resp("b", 5000, 900, 2000, 0),
	}
	c := ComputeConsensus(responses, testNow, testSettings)
	require.True(t, c.Valid)
	assert.Equal(t, 2, c.Used)
	assert.Equal(t, int64(750), c.YieldBps)
	assert.Equal(t, int64(1500), c.RiskScore)
}

func TestFenceQuartileRanks(t *testing.T) {
	cases := []struct {
		sample  []int64
		inside  []int64
		outside []int64
	}{
		{sample: []int64{600, 700}, inside: []int64{600, 700}, outside: []int64{449, 851}},
		{sample: []int64{600, 650, 5000}, inside: []int64{600, 650, 725}, outside: []int64{726, 5000}},
		{sample: []int64{600, 610, 620, 640}, inside: []int64{570, 650}, outside: []int64{569, 651}},
	}
	for _, tc := range cases {
		f := newFence(tc.sample)
		for _, v := range tc.inside {
			assert.True(t, f.contains(v), "%v should contain %d", tc.sample, v)
		}
		for _, v := range tc.outside {
			assert.False(t, f.contains(v), "%v should exclude %d", tc.sample, v)
		}
	}
}

func TestConsensusQuorum(t *testing.T) {
	c := ComputeConsensus([]types.OracleResponse{resp("a", 5000, 600, 1000, 0)}, testNow, testSettings)
	assert.False(t, c.Valid)
	assert.Equal(t, types.ConsensusQuorum, c.Failure)

	// Stale and out-of-range responses do not count towards quorum.
	c = ComputeConsensus([]types.OracleResponse{
		resp("a", 5000, 600, 1000, 0),
		resp("b", 5000, 600, 1000, 6*time.Second),
		resp("c", 5000, types.MaxYieldBps+1, 1000, 0),
		resp("d", 5000, 600, -1, 0),
	}, testNow, testSettings)
	assert.False(t, c.Valid)
	assert.Equal(t, types.ConsensusQuorum, c.Failure)
	assert.Equal(t, 1, c.Responded)

	c = ComputeConsensus(nil, testNow, Settings{Quorum: 0, Timeout: time.Second})
	assert.False(t, c.Valid, "an empty response set never forms a consensus")
}

func TestConsensusTimestampVariance(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 5000, 600, 1000, 0),
		resp("b", 5000, 610, 1000, 3*time.Second),
	}
	c := ComputeConsensus(responses, testNow, testSettings)
	assert.False(t, c.Valid)
	assert.Equal(t, types.ConsensusVariance, c.Failure)

	responses[1].Timestamp = testNow.Add(-2 * time.Second)
	c = ComputeConsensus(responses, testNow, testSettings)
	assert.True(t, c.Valid, "spread equal to the tolerance is accepted")
}

func TestConsensusRiskOutlier(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 5000, 600, 1000, 0),
		resp("b", 5000, 620, 1100, 0),
		resp("c", 5000, 640, 1050, 0),
		resp("d", 5000, 610, 9000, 0),
	}
	c := ComputeConsensus(responses, testNow, testSettings)
	require.True(t, c.Valid)
	assert.Equal(t, 3, c.Used)
	assert.Equal(t, int64(620), c.YieldBps)
	assert.Equal(t, int64(1050), c.RiskScore)
}

func TestConsensusZeroWeightUsesMedian(t *testing.T) {
	responses := []types.OracleResponse{
		resp("a", 0, 600, 1000, 0),
		resp("b", 0, 640, 1200, 0),
		resp("c", 0, 620, 1100, 0),
	}
	c := ComputeConsensus(responses, testNow, testSettings)
	require.True(t, c.Valid)
	assert.Equal(t, int64(620), c.YieldBps)
	assert.Equal(t, int64(1100), c.RiskScore)
}

func TestConsensusOrderIndependent(t *testing.T) {
	base := []types.OracleResponse{
		resp("a", 1000, 600, 1000, 0),
		resp("b", 2500, 650, 1200, time.Second),
		resp("c", 4000, 5000, 1100, 0),
		resp("d", 700, 630, 1150, 0),
		resp("e", 7000, 630, 900, 0),
	}
	want := ComputeConsensus(append([]types.OracleResponse(nil), base...), testNow, testSettings)
	require.True(t, want.Valid)

	permute(base, 0, func(p []types.OracleResponse) {
		got := ComputeConsensus(append([]types.OracleResponse(nil), p...), testNow, testSettings)
		assert.Equal(t, want, got)
	})
}

func permute(s []types.OracleResponse, k int, visit func([]types.OracleResponse)) {
	if k == len(s) {
		visit(s)
		return
	}
	for i := k; i < len(s); i++ {
		s[k], s[i] = s[i], s[k]
		permute(s, k+1, visit)
		s[k], s[i] = s[i], s[k]
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]bool
}

func (o *recordingObserver) SourceQueried(id string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]bool)
	}
	o.calls[id] = ok
}

func TestAggregateTimeoutsFallBelowQuorum(t *testing.T) {
	now := time.Now()
	reg := NewRegistry(5)
	pred := types.Prediction{YieldBps: 600, RiskScore: 1000, Timestamp: now}
	require.NoError(t, reg.Register(&StaticSource{SourceID: "fast", Prediction: pred}, 5000))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "slow1", Prediction: pred, Delay: time.Second}, 5000))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "slow2", Prediction: pred, Delay: time.Second}, 5000))

	obs := &recordingObserver{}
	agg := NewAggregator(reg, obs)

	start := time.Now()
	c := agg.Aggregate(context.Background(), "v1", now, Settings{Quorum: 2, Timeout: 30 * time.Millisecond, MaxTimestampVariance: time.Second})
	assert.Less(t, time.Since(start), 500*time.Millisecond, "slow sources are cut off at the timeout")

	assert.False(t, c.Valid)
	assert.Equal(t, types.ConsensusQuorum, c.Failure)
	assert.Equal(t, 1, c.Responded)
	assert.Equal(t, map[string]bool{"fast": true, "slow1": false, "slow2": false}, obs.calls)
}

func TestAggregateConsensus(t *testing.T) {
	now := time.Now()
	reg := NewRegistry(5)
	require.NoError(t, reg.Register(&StaticSource{SourceID: "a", Prediction: types.Prediction{YieldBps: 600, RiskScore: 1000, Timestamp: now}}, 5000))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "b", Prediction: types.Prediction{YieldBps: 650, RiskScore: 1000, Timestamp: now}}, 5000))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "c", Prediction: types.Prediction{YieldBps: 5000, RiskScore: 1000, Timestamp: now}}, 5000))
	require.NoError(t, reg.Register(&StaticSource{SourceID: "d", Err: errors.New("down")}, 5000))

	c := NewAggregator(reg, nil).Aggregate(context.Background(), "v1", now, Settings{Quorum: 2, Timeout: time.Second, MaxTimestampVariance: time.Second})
	require.True(t, c.Valid)
	assert.Equal(t, int64(625), c.YieldBps)
	assert.Equal(t, 3, c.Responded)
}

func TestAggregateNoSources(t *testing.T) {
	c := NewAggregator(NewRegistry(1), nil).Aggregate(context.Background(), "v1", testNow, testSettings)
	assert.False(t, c.Valid)
	assert.Equal(t, types.ConsensusNoSources, c.Failure)
}
