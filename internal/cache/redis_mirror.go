package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	"github.com/go-redis/redis/v8"
)

var mirrorLogger = logger.GetForComponent("venue_mirror")

// Mirror publishes venue snapshots for observers outside the engine process.
type Mirror interface {
	Publish(ctx context.Context, snapshot types.VenueSnapshot) error
	Remove(ctx context.Context, venue types.VenueID) error
}

// RedisMirror writes snapshots as JSON strings under "<prefix><venue id>" with an expiry equal to
// the cache TTL, so a stale mirror entry disappears on its own.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror on an existing client.
func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = "venue:"
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient opens a client for addr and verifies it with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (m *RedisMirror) key(venue types.VenueID) string {
	return m.prefix + string(venue)
}

// Publish stores the snapshot.
func (m *RedisMirror) Publish(ctx context.Context, snapshot types.VenueSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal venue snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.key(snapshot.Info.ID), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot for %s: %w", snapshot.Info.ID, err)
	}
	mirrorLogger.Debug().Str("venue", string(snapshot.Info.ID)).Msg("Published venue snapshot")
	return nil
}

// Remove deletes the mirrored snapshot of a de-registered venue.
func (m *RedisMirror) Remove(ctx context.Context, venue types.VenueID) error {
	if err := m.client.Del(ctx, m.key(venue)).Err(); err != nil {
		return fmt.Errorf("failed to remove snapshot for %s: %w", venue, err)
	}
	return nil
}

// Fetch reads a mirrored snapshot. found is false when the key does not exist.
func (m *RedisMirror) Fetch(ctx context.Context, venue types.VenueID) (types.VenueSnapshot, bool, error) {
	payload, err := m.client.Get(ctx, m.key(venue)).Bytes()
	if err == redis.Nil {
		return types.VenueSnapshot{}, false, nil
	}
	if err != nil {
		return types.VenueSnapshot{}, false, fmt.Errorf("failed to fetch snapshot for %s: %w", venue, err)
	}
	var snapshot types.VenueSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return types.VenueSnapshot{}, false, fmt.Errorf("failed to decode snapshot for %s: %w", venue, err)
	}
	return snapshot, true, nil
}
