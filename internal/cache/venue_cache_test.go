package cache

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

func entry(yield int64, valid bool) types.CachedData {
	return types.CachedData{
		Liquidity: sdkmath.NewInt(1_000_000),
		YieldBps:  yield,
		RiskScore: 1000,
		Valid:     valid,
	}
}

func TestVenueCacheFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewVenueCache(time.Minute)

	_, ok := c.Get("v1", now)
	assert.False(t, ok, "empty cache must miss")

	c.Put("v1", entry(600, true), now)

	data, ok := c.Get("v1", now.Add(59*time.Second))
	require.True(t, ok)
	assert.Equal(t, int64(600), data.YieldBps)
	assert.Equal(t, types.VenueID("v1"), data.VenueID)
	assert.Equal(t, now, data.LastUpdated)

	_, ok = c.Get("v1", now.Add(time.Minute))
	assert.False(t, ok, "entry exactly TTL old is stale")

	stored, ok := c.Peek("v1")
	require.True(t, ok)
	assert.False(t, c.IsFresh(stored, now.Add(2*time.Minute)))
}

func TestVenueCacheInvalidEntryMisses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewVenueCache(time.Minute)

	c.Put("v1", entry(600, false), now)
	_, ok := c.Get("v1", now)
	assert.False(t, ok)

	c.Put("v1", entry(700, true), now)
	c.Invalidate("v1")
	_, ok = c.Get("v1", now)
	assert.False(t, ok)

	stored, ok := c.Peek("v1")
	require.True(t, ok)
	assert.Equal(t, []int64{700}, stored.YieldHistory)
}

func TestVenueCacheHistoryBounded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewVenueCache(time.Hour)

	for i := 0; i < HistoryLength+8; i++ {
		c.Put("v1", entry(int64(i), true), now.Add(time.Duration(i)*time.Second))
	}

	data, ok := c.Peek("v1")
	require.True(t, ok)
	require.Len(t, data.YieldHistory, HistoryLength)
	assert.Equal(t, int64(8), data.YieldHistory[0])
	assert.Equal(t, int64(HistoryLength+7), data.YieldHistory[HistoryLength-1])

	// Returned history is a copy.
	data.YieldHistory[0] = -1
	again, _ := c.Peek("v1")
	assert.Equal(t, int64(8), again.YieldHistory[0])
}

func TestVenueCacheDeleteAndTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewVenueCache(time.Minute)
	c.Put("v1", entry(600, true), now)
	assert.Equal(t, 1, c.Len())

	c.SetTTL(time.Second)
	_, ok := c.Get("v1", now.Add(2*time.Second))
	assert.False(t, ok)

	c.Delete("v1")
	assert.Equal(t, 0, c.Len())
	_, ok = c.Peek("v1")
	assert.False(t, ok)
}
