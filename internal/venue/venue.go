/*

This file contains the venue capability the engine allocates to, and the registry that fixes the
iteration order of venues for every cycle.

*/

package venue

import (
	"context"
	"sync"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"

	sdkmath "cosmossdk.io/math"
)

// Handle is the capability every venue exposes. Query is read-only.
type Handle interface {
	Query(ctx context.Context, amount sdkmath.Int) (liquidity sdkmath.Int, yieldBps int64, err error)
	Deposit(ctx context.Context, amount sdkmath.Int) error
	Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)
}

// Entry is a registered venue.
type Entry struct {
	Info   types.VenueInfo
	Handle Handle
}

// Registry keeps venues in registration order, bounded by a maximum.
type Registry struct {
	mu      sync.RWMutex
	max     int
	order   []types.VenueID
	entries map[types.VenueID]Entry
}

func NewRegistry(max int) *Registry {
	return &Registry{
		max:     max,
		entries: make(map[types.VenueID]Entry),
	}
}

// Register adds a venue. RegisteredAt is set to now.
func (r *Registry) Register(info types.VenueInfo, handle Handle, now time.Time) (types.VenueInfo, error) {
	if info.ID == "" {
		return types.VenueInfo{}, types.Wrapf(types.ErrConfiguration, "venue must have an id")
	}
	if handle == nil {
		return types.VenueInfo{}, types.Wrapf(types.ErrConfiguration, "venue %s has no handle", info.ID)
	}
	if info.RiskScore < 0 || info.RiskScore > types.MaxRiskScore {
		return types.VenueInfo{}, types.Wrapf(types.ErrConfiguration, "venue %s risk score %d outside [0, %d]", info.ID, info.RiskScore, types.MaxRiskScore)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.ID]; exists {
		return types.VenueInfo{}, types.Wrapf(types.ErrConfiguration, "venue %s already registered", info.ID)
	}
	if len(r.order) >= r.max {
		return types.VenueInfo{}, types.Wrapf(types.ErrResourceExhaustion, "venue limit %d reached", r.max)
	}
	info.RegisteredAt = now
	r.order = append(r.order, info.ID)
	r.entries[info.ID] = Entry{Info: info, Handle: handle}
	return info, nil
}

// Remove de-registers a venue.
func (r *Registry) Remove(id types.VenueID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		return types.Wrapf(types.ErrNotFound, "venue %s", id)
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns one venue.
func (r *Registry) Get(id types.VenueID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// UpdateInfo replaces the governance-controlled fields of a registered venue.
func (r *Registry) UpdateInfo(id types.VenueID, compliant bool, riskScore int64) (types.VenueInfo, error) {
	if riskScore < 0 || riskScore > types.MaxRiskScore {
		return types.VenueInfo{}, types.Wrapf(types.ErrConfiguration, "risk score %d outside [0, %d]", riskScore, types.MaxRiskScore)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return types.VenueInfo{}, types.Wrapf(types.ErrNotFound, "venue %s", id)
	}
	e.Info.Compliant = compliant
	e.Info.RiskScore = riskScore
	r.entries[id] = e
	return e.Info, nil
}

// List returns the venues in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SetMax changes the registration limit. Venues already registered are kept.
func (r *Registry) SetMax(max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = max
}
