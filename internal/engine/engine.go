package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/cache"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/estimator"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/oracle"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/planner"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/risk"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/timelock"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/vault"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"
)

const module = "engine"

// Governance names the single account allowed to mutate engine state.
type Governance interface {
	CurrentAuthority() string
}

// StaticAuthority is a Governance with a fixed authority.
type StaticAuthority string

func (a StaticAuthority) CurrentAuthority() string { return string(a) }

// Store persists what the engine owns. Every method is called before the in-memory state changes.
type Store interface {
	SaveAllocations(ctx context.Context, cycleID string, allocations []types.Allocation) error
	SaveSnapshot(ctx context.Context, snapshot types.CycleSnapshot) error
	NextCycleNumber(ctx context.Context) (int, error)
	SaveParameters(ctx context.Context, params types.EngineParameters, version int, updatedBy string) error
}

// Engine is the yield allocation engine with all its dependencies
type Engine struct {
	logger zerolog.Logger

	// cycleMu is held from reading total capital until the plan is committed.
	cycleMu sync.Mutex

	mu            sync.RWMutex
	params        types.EngineParameters
	paramsVersion int
	allocations   map[types.VenueID]types.Allocation
	lastPlan      *types.AllocationPlan
	cycleCount    int

	governance Governance
	venues     *venue.Registry
	sources    *oracle.Registry
	cache      *cache.VenueCache
	estimator  *estimator.Estimator
	planner    *planner.Planner
	timelock   *timelock.Timelock
	breaker    *oracle.ConsensusBreaker
	guard      oracle.GuardSettings

	vault  vault.Manager
	store  Store
	mirror cache.Mirror
	events *events.Manager

	now func() time.Time
}

// Config holds the configuration for creating a new Engine instance
type Config struct {
	Governance        Governance
	Parameters        types.EngineParameters
	ParametersVersion int

	// Optional collaborators. Nil values keep the engine in memory only.
	Venues      *venue.Registry // Shared with the vault when settlement resolves handles
	Vault       vault.Manager
	Store       Store
	FeeStore    timelock.Store
	RiskModel   risk.Model
	Mirror      cache.Mirror
	Events      *events.Manager
	Observer    oracle.Observer
	Breaker     *oracle.ConsensusBreakerSettings
	SourceGuard *oracle.GuardSettings
	Clock       func() time.Time
}

// NewEngine creates a new Engine instance with dependency injection
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	params := cfg.Parameters
	version := cfg.ParametersVersion
	if version <= 0 {
		version = 1
	}

	venues := cfg.Venues
	if venues == nil {
		venues = venue.NewRegistry(params.MaxVenues)
	} else {
		venues.SetMax(params.MaxVenues)
	}

	e := &Engine{
		logger:        logger.GetForComponent("engine_core"),
		params:        params,
		paramsVersion: version,
		allocations:   make(map[types.VenueID]types.Allocation),
		governance:    cfg.Governance,
		venues:        venues,
		sources:       oracle.NewRegistry(params.MaxOracleSources),
		cache:         cache.NewVenueCache(params.CacheTTL),
		planner:       planner.New(risk.NewAssessor(cfg.RiskModel)),
		timelock:      timelock.New(params.Fees(), cfg.FeeStore),
		guard:         oracle.DefaultGuardSettings,
		vault:         cfg.Vault,
		store:         cfg.Store,
		mirror:        cfg.Mirror,
		events:        cfg.Events,
		now:           now,
	}
	if cfg.SourceGuard != nil {
		e.guard = *cfg.SourceGuard
	}
	e.timelock.SetClock(now)

	breakerSettings := oracle.DefaultConsensusBreakerSettings
	if cfg.Breaker != nil {
		breakerSettings = *cfg.Breaker
	}
	e.breaker = oracle.NewConsensusBreaker(breakerSettings, e.onAutomaticBreaker)

	aggregator := oracle.NewAggregator(e.sources, cfg.Observer)
	e.estimator = estimator.NewEstimator(aggregator, e.cache, cfg.Events, e.breaker)

	e.logger.Info().
		Int("paramsVersion", version).
		Str("authority", cfg.Governance.CurrentAuthority()).
		Bool("settlement", cfg.Vault != nil).
		Bool("persistence", cfg.Store != nil).
		Msg("Engine instance created")

	return e, nil
}

// validateConfig validates the engine configuration
func validateConfig(cfg Config) error {
	if cfg.Governance == nil {
		return types.Wrapf(types.ErrConfiguration, "governance cannot be nil")
	}
	if cfg.Governance.CurrentAuthority() == "" {
		return types.Wrapf(types.ErrConfiguration, "governance authority cannot be empty")
	}
	if err := cfg.Parameters.Validate(); err != nil {
		return err
	}
	if cfg.Breaker != nil && (cfg.Breaker.FailureRatioBps <= 0 || cfg.Breaker.FailureRatioBps > types.Scale) {
		return types.Wrapf(types.ErrConfiguration, "breaker failure ratio %d outside (0, %d]", cfg.Breaker.FailureRatioBps, types.Scale)
	}
	return nil
}

// LoadState restores fee proposals from the fee store and the last committed allocations.
func (e *Engine) LoadState(ctx context.Context, allocations []types.Allocation) error {
	if err := e.timelock.Load(ctx); err != nil {
		return fmt.Errorf("failed to load fee proposals: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range allocations {
		if a.Amount.IsNil() || !a.Amount.IsPositive() {
			continue
		}
		e.allocations[a.VenueID] = a
	}
	e.logger.Info().Int("allocations", len(e.allocations)).Int("proposals", len(e.timelock.List())).Msg("Engine state restored")
	return nil
}

func (e *Engine) authorize(caller string) error {
	if caller == "" || caller != e.governance.CurrentAuthority() {
		return types.Wrapf(types.ErrUnauthorized, "caller %q is not the engine authority", caller)
	}
	return nil
}

// paramsSnapshot returns the parameters a cycle works with and the effective breaker state.
func (e *Engine) paramsSnapshot() (types.EngineParameters, bool) {
	e.mu.RLock()
	p := e.params
	e.mu.RUnlock()
	return p, p.CircuitBreakerEngaged || e.breaker.Engaged()
}

func (e *Engine) onAutomaticBreaker(engaged bool) {
	e.logger.Warn().Bool("engaged", engaged).Msg("Automatic circuit breaker changed state")
	e.events.Emit(events.CircuitBreakerToggled, module, &events.CircuitBreakerToggledData{
		Engaged: engaged,
		Source:  "automatic",
	})
}

// Parameters returns a copy of the live parameters and their version.
func (e *Engine) Parameters() (types.EngineParameters, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params, e.paramsVersion
}

// CircuitBreakerEngaged reports the effective breaker state, manual or automatic.
func (e *Engine) CircuitBreakerEngaged() bool {
	_, engaged := e.paramsSnapshot()
	return engaged
}

// BreakerState reports the automatic breaker state.
func (e *Engine) BreakerState() string {
	return e.breaker.State()
}

// CurrentFees returns the live fee rates.
func (e *Engine) CurrentFees() types.FeeRates {
	return e.timelock.Current()
}

// FeeProposals lists every fee proposal ordered by nonce.
func (e *Engine) FeeProposals() []types.FeeProposal {
	return e.timelock.List()
}

// FeeProposal returns one proposal.
func (e *Engine) FeeProposal(id string) (types.FeeProposal, error) {
	p, ok := e.timelock.Get(id)
	if !ok {
		return types.FeeProposal{}, types.Wrapf(types.ErrNotFound, "proposal %s", id)
	}
	return p, nil
}

// Allocations returns the committed allocations in venue registration order.
func (e *Engine) Allocations() []types.Allocation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Allocation, 0, len(e.allocations))
	seen := make(map[types.VenueID]bool, len(e.allocations))
	for _, entry := range e.venues.List() {
		if a, ok := e.allocations[entry.Info.ID]; ok {
			out = append(out, a)
			seen[entry.Info.ID] = true
		}
	}
	for id, a := range e.allocations {
		if !seen[id] {
			out = append(out, a)
		}
	}
	return out
}

// LastPlan returns the most recently committed plan, if any.
func (e *Engine) LastPlan() (types.AllocationPlan, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastPlan == nil {
		return types.AllocationPlan{}, false
	}
	return *e.lastPlan, true
}

func (e *Engine) allocatedTo(id types.VenueID) sdkmath.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a, ok := e.allocations[id]; ok {
		return a.Amount
	}
	return sdkmath.ZeroInt()
}

// GetVenueSnapshot returns the registration record, cache entry and allocation of one venue.
func (e *Engine) GetVenueSnapshot(id types.VenueID) (types.VenueSnapshot, error) {
	entry, ok := e.venues.Get(id)
	if !ok {
		return types.VenueSnapshot{}, types.Wrapf(types.ErrNotFound, "venue %s", id)
	}
	snap := types.VenueSnapshot{Info: entry.Info, Allocated: e.allocatedTo(id)}
	if data, ok := e.cache.Peek(id); ok {
		snap.Data = &data
		snap.Fresh = e.cache.IsFresh(data, e.now())
	}
	return snap, nil
}

// Venues lists registered venues in registration order.
func (e *Engine) Venues() []types.VenueInfo {
	entries := e.venues.List()
	out := make([]types.VenueInfo, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Info)
	}
	return out
}

// OracleSources lists registered sources in registration order.
func (e *Engine) OracleSources() []types.OracleSourceInfo {
	return e.sources.Infos()
}

func (e *Engine) publishSnapshot(ctx context.Context, id types.VenueID) {
	if e.mirror == nil {
		return
	}
	snap, err := e.GetVenueSnapshot(id)
	if err != nil {
		return
	}
	if err := e.mirror.Publish(ctx, snap); err != nil {
		e.logger.Warn().Err(err).Str("venue", string(id)).Msg("Failed to mirror venue snapshot")
	}
}
