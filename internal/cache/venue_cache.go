/*

This file contains the Venue Cache: per-venue metadata with a time-to-live. It has no dependencies
on the rest of the engine and never blocks beyond a short in-memory lock.

*/

package cache

import (
	"sync"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// HistoryLength bounds the per-venue yield history used for volatility estimates.
const HistoryLength = 32

type VenueCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[types.VenueID]types.CachedData
}

// NewVenueCache creates an empty cache with the given TTL.
func NewVenueCache(ttl time.Duration) *VenueCache {
	return &VenueCache{
		ttl:     ttl,
		entries: make(map[types.VenueID]types.CachedData),
	}
}

// Get returns the entry for venue only if it is valid and fresh at now. Anything else is a miss.
func (c *VenueCache) Get(venue types.VenueID, now time.Time) (types.CachedData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.entries[venue]
	if !ok || !c.isFresh(data, now) {
		return types.CachedData{}, false
	}
	return copyData(data), true
}

// Peek returns the stored entry regardless of freshness.
func (c *VenueCache) Peek(venue types.VenueID) (types.CachedData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.entries[venue]
	if !ok {
		return types.CachedData{}, false
	}
	return copyData(data), true
}

// Put stores data stamped with now. Valid yields are appended to the venue's history.
func (c *VenueCache) Put(venue types.VenueID, data types.CachedData, now time.Time) types.CachedData {
	c.mu.Lock()
	defer c.mu.Unlock()

	var history []int64
	if prev, ok := c.entries[venue]; ok {
		history = prev.YieldHistory
	}
	if data.Valid {
		history = append(append([]int64(nil), history...), data.YieldBps)
		if len(history) > HistoryLength {
			history = history[len(history)-HistoryLength:]
		}
	}

	data.VenueID = venue
	data.LastUpdated = now
	data.YieldHistory = history
	c.entries[venue] = data
	return copyData(data)
}

// Invalidate marks an entry invalid so the next Get misses. The history is kept.
func (c *VenueCache) Invalidate(venue types.VenueID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.entries[venue]; ok {
		data.Valid = false
		c.entries[venue] = data
	}
}

// Delete removes the venue entirely (de-registration).
func (c *VenueCache) Delete(venue types.VenueID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, venue)
}

// SetTTL changes the TTL for all subsequent lookups.
func (c *VenueCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// IsFresh reports whether data would be served by Get at now.
func (c *VenueCache) IsFresh(data types.CachedData, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isFresh(data, now)
}

func (c *VenueCache) isFresh(data types.CachedData, now time.Time) bool {
	return data.Valid && now.Sub(data.LastUpdated) < c.ttl
}

// Len returns the number of stored entries.
func (c *VenueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyData(data types.CachedData) types.CachedData {
	if data.YieldHistory != nil {
		data.YieldHistory = append([]int64(nil), data.YieldHistory...)
	}
	return data
}
