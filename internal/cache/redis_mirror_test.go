package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

func testSnapshot() types.VenueSnapshot {
	return types.VenueSnapshot{
		Info:      types.VenueInfo{ID: "aave-usdc", RiskScore: 1200, Compliant: true},
		Fresh:     true,
		Allocated: sdkmath.NewInt(7000),
	}
}

func TestRedisMirrorPublish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client, "", 30*time.Second)

	snapshot := testSnapshot()
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)

	mock.ExpectSet("venue:aave-usdc", payload, 30*time.Second).SetVal("OK")
	require.NoError(t, mirror.Publish(context.Background(), snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisMirrorPublishError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client, "engine:", time.Minute)

	snapshot := testSnapshot()
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)

	mock.ExpectSet("engine:aave-usdc", payload, time.Minute).SetErr(errors.New("connection refused"))
	err = mirror.Publish(context.Background(), snapshot)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisMirrorFetchAndRemove(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewRedisMirror(client, "", time.Minute)
	ctx := context.Background()

	payload, err := json.Marshal(testSnapshot())
	require.NoError(t, err)

	mock.ExpectGet("venue:aave-usdc").SetVal(string(payload))
	got, found, err := mirror.Fetch(ctx, "aave-usdc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.VenueID("aave-usdc"), got.Info.ID)
	assert.Equal(t, "7000", got.Allocated.String())

	mock.ExpectGet("venue:missing").RedisNil()
	_, found, err = mirror.Fetch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectDel("venue:aave-usdc").SetVal(1)
	require.NoError(t, mirror.Remove(ctx, "aave-usdc"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

var _ Mirror = (*RedisMirror)(nil)
