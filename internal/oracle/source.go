package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
)

// Source answers yield and risk predictions for a venue.
type Source interface {
	ID() string
	Predict(ctx context.Context, venue types.VenueID) (types.Prediction, error)
}

// WeightedSource is a registered source with its reliability weight.
type WeightedSource struct {
	Source
	WeightBps int64
}

// Registry holds the oracle sources in registration order, bounded by a maximum.
type Registry struct {
	mu      sync.RWMutex
	max     int
	order   []string
	sources map[string]WeightedSource
}

func NewRegistry(max int) *Registry {
	return &Registry{
		max:     max,
		sources: make(map[string]WeightedSource),
	}
}

// Register adds src with the given weight in (0, MaxOracleWeightBps].
func (r *Registry) Register(src Source, weightBps int64) error {
	if src == nil || src.ID() == "" {
		return types.Wrapf(types.ErrConfiguration, "oracle source must have an id")
	}
	if weightBps <= 0 || weightBps > types.MaxOracleWeightBps {
		return types.Wrapf(types.ErrConfiguration, "oracle weight %d outside (0, %d]", weightBps, types.MaxOracleWeightBps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[src.ID()]; exists {
		return types.Wrapf(types.ErrConfiguration, "oracle source %s already registered", src.ID())
	}
	if len(r.order) >= r.max {
		return types.Wrapf(types.ErrResourceExhaustion, "oracle source limit %d reached", r.max)
	}
	r.order = append(r.order, src.ID())
	r.sources[src.ID()] = WeightedSource{Source: src, WeightBps: weightBps}
	return nil
}

// Remove de-registers a source.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[id]; !exists {
		return types.Wrapf(types.ErrNotFound, "oracle source %s", id)
	}
	delete(r.sources, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetMax changes the registration limit. Sources already registered are kept.
func (r *Registry) SetMax(max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = max
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Sources returns the registered sources in registration order.
func (r *Registry) Sources() []WeightedSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WeightedSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Infos returns id and weight of every registered source.
func (r *Registry) Infos() []types.OracleSourceInfo {
	sources := r.Sources()
	out := make([]types.OracleSourceInfo, len(sources))
	for i, s := range sources {
		out[i] = types.OracleSourceInfo{ID: s.ID(), WeightBps: s.WeightBps}
	}
	return out
}

// StaticSource returns a fixed prediction. Used for in-process sources and tests.
type StaticSource struct {
	SourceID   string
	Prediction types.Prediction
	Err        error
	Delay      time.Duration
}

func (s *StaticSource) ID() string { return s.SourceID }

func (s *StaticSource) Predict(ctx context.Context, _ types.VenueID) (types.Prediction, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return types.Prediction{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return types.Prediction{}, s.Err
	}
	return s.Prediction, nil
}
