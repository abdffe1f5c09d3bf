package timelock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type memStore struct {
	saved    []types.FeeProposal
	executed []types.FeeProposal
	failNext error
}

func (m *memStore) SaveProposal(_ context.Context, p types.FeeProposal) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.saved = append(m.saved, p)
	return nil
}

func (m *memStore) ExecuteProposal(_ context.Context, p types.FeeProposal) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.executed = append(m.executed, p)
	return nil
}

func (m *memStore) LoadProposals(context.Context) ([]types.FeeProposal, error) {
	return append(m.saved, m.executed...), nil
}

func newTimelock(store Store) (*Timelock, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	tl := New(types.FeeRates{ManagementFeeBps: 50, PerformanceFeeBps: 1000}, store)
	tl.SetClock(c.now)
	return tl, c
}

func TestExecuteRespectsDelay(t *testing.T) {
	ctx := context.Background()
	tl, c := newTimelock(nil)

	p, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalProposed, p.Status)
	assert.Equal(t, p.ProposedAt.Add(48*time.Hour), p.ExecutableAt)

	c.advance(48*time.Hour - time.Second)
	_, err = tl.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrTimelockViolation)
	assert.Equal(t, types.FeeRates{ManagementFeeBps: 50, PerformanceFeeBps: 1000}, tl.Current())

	c.advance(2 * time.Second)
	executed, err := tl.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, executed.Executed())
	require.NotNil(t, executed.ResolvedAt)
	assert.Equal(t, types.FeeRates{ManagementFeeBps: 100, PerformanceFeeBps: 1500}, tl.Current())

	_, err = tl.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrTimelockViolation)
	assert.Equal(t, types.FeeRates{ManagementFeeBps: 100, PerformanceFeeBps: 1500}, tl.Current())
}

func TestExecuteAtExactDeadline(t *testing.T) {
	ctx := context.Background()
	tl, c := newTimelock(nil)
	p, err := tl.Propose(ctx, "gov", 0, 0)
	require.NoError(t, err)

	c.advance(types.TimelockDelay)
	_, err = tl.Execute(ctx, p.ID)
	assert.NoError(t, err)
}

func TestProposeRejectsCaps(t *testing.T) {
	tl, _ := newTimelock(nil)
	ctx := context.Background()

	_, err := tl.Propose(ctx, "gov", types.MaxManagementFeeBps+1, 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = tl.Propose(ctx, "gov", 0, types.MaxPerformanceFeeBps+1)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	_, err = tl.Propose(ctx, "gov", -1, 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = tl.Propose(ctx, "gov", types.MaxManagementFeeBps, types.MaxPerformanceFeeBps)
	assert.NoError(t, err)
}

func TestUnknownProposal(t *testing.T) {
	tl, _ := newTimelock(nil)
	_, err := tl.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrTimelockViolation)
	_, err = tl.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIdenticalProposalsGetDistinctIDs(t *testing.T) {
	tl, _ := newTimelock(nil)
	ctx := context.Background()

	a, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)
	b, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Nonce+1, b.Nonce)
	assert.Len(t, a.ID, 64)
	assert.Equal(t, a.ID, ProposalID(100, 1500, a.ProposedAt, a.Nonce))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	tl, c := newTimelock(nil)
	p, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)

	cancelled, err := tl.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalCancelled, cancelled.Status)

	c.advance(types.TimelockDelay)
	_, err = tl.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrTimelockViolation)
	_, err = tl.Cancel(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrTimelockViolation)
	assert.Equal(t, int64(50), tl.Current().ManagementFeeBps)
}

// Fee rates only ever change through an executed proposal whose delay has passed.
func TestFeesChangeOnlyThroughMaturedProposals(t *testing.T) {
	ctx := context.Background()
	tl, c := newTimelock(nil)

	var ids []string
	for i := int64(0); i < 5; i++ {
		p, err := tl.Propose(ctx, "gov", i*10, i*100)
		require.NoError(t, err)
		ids = append(ids, p.ID)
		c.advance(12 * time.Hour)
	}

	prev := tl.Current()
	for step := 0; step < 10; step++ {
		for _, id := range ids {
			before := tl.Current()
			p, err := tl.Execute(ctx, id)
			if err != nil {
				assert.Equal(t, before, tl.Current())
				continue
			}
			assert.False(t, c.t.Before(p.ProposedAt.Add(types.TimelockDelay)))
			assert.Equal(t, p.Rates(), tl.Current())
		}
		c.advance(6 * time.Hour)
	}
	assert.NotEqual(t, prev, tl.Current())
	for _, p := range tl.List() {
		assert.Equal(t, types.ProposalExecuted, p.Status)
	}
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tl, c := newTimelock(store)

	p, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)

	c.advance(types.TimelockDelay)
	store.failNext = errors.New("db down")
	_, err = tl.Execute(ctx, p.ID)
	require.Error(t, err)
	got, _ := tl.Get(p.ID)
	assert.Equal(t, types.ProposalProposed, got.Status)
	assert.Equal(t, int64(50), tl.Current().ManagementFeeBps)

	_, err = tl.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, store.executed, 1)
}

func TestLoadRestoresNonce(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tl, _ := newTimelock(store)
	_, err := tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)
	_, err = tl.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)

	restored, _ := newTimelock(store)
	require.NoError(t, restored.Load(ctx))
	assert.Len(t, restored.List(), 2)

	p, err := restored.Propose(ctx, "gov", 100, 1500)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.Nonce)
}
