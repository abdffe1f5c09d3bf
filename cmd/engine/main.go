package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/cache"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/config"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/engine"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/metrics"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/oracle"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/rpc"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/scheduler"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/state"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/vault"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/web"
)

const (
	bootstrapUpdater = "bootstrap"
	mirrorPrefix     = "engine:venue:"
	shutdownTimeout  = 10 * time.Second
)

// main is the entry point for the yield allocation engine.
func main() {
	// --- 1. Initialization Phase ---
	config.LoadDotEnv()
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Str("mode", config.EngineMode).Msg("Yield allocation engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := config.DefaultEngineParameters
	version := 1
	var store *state.PostgresStore
	var allocations []types.Allocation

	if config.DatabaseEnabled {
		if err := state.InitDB(config.Database); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = state.NewPostgresStore()
		params, version = loadParameters(ctx, store, params)

		var err error
		allocations, err = store.LoadAllocations(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load committed allocations")
		}
	} else {
		log.Warn().Msg("DB_NAME not set. Running without persistence.")
	}

	// --- 2. Observability ---
	bus := events.NewBus()
	recorder := events.NewRecorder(500)
	bus.SubscribeAll(recorder.Record)
	collector := metrics.NewCollector()
	collector.Attach(bus)
	eventManager := events.NewManager(bus, logger.GetForComponent("events"))

	// --- 3. Settlement ---
	venues := venue.NewRegistry(params.MaxVenues)
	paperVault, err := vault.NewPaperVault(venues, config.InitialCapital)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize paper vault")
	}
	defer paperVault.Close()

	// --- 4. Create Engine Instance with Dependency Injection ---
	engineConfig := engine.Config{
		Governance:        engine.StaticAuthority(config.EngineAuthority),
		Parameters:        params,
		ParametersVersion: version,
		Venues:            venues,
		Vault:             paperVault,
		Events:            eventManager,
		Observer:          collector,
	}
	if store != nil {
		engineConfig.Store = store
		engineConfig.FeeStore = store
	}

	if config.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			log.Error().Err(err).Msg("Redis unavailable, venue snapshots will not be mirrored")
		} else {
			defer client.Close()
			engineConfig.Mirror = cache.NewRedisMirror(client, mirrorPrefix, 2*params.CacheTTL)
			log.Info().Str("addr", config.RedisAddr).Msg("Venue snapshot mirror enabled")
		}
	}

	eng, err := engine.NewEngine(engineConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}
	if err := eng.LoadState(ctx, allocations); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore engine state")
	}

	closeConns := registerEndpoints(ctx, eng)
	defer closeConns()

	// --- 5. Start Web Server ---
	webServer := web.NewWebServer(web.Options{
		Port:     config.WebPort,
		Engine:   eng,
		Recorder: recorder,
		Metrics:  collector.Handler(),
		History:  config.DatabaseEnabled,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting engine HTTP API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 6. Run Cycles ---
	if config.CycleCron != "" {
		sched := scheduler.New(ctx, eng)
		if err := sched.RegisterCycle(config.CycleCron); err != nil {
			log.Fatal().Err(err).Msg("Invalid CYCLE_CRON")
		}
		sched.Start()
		<-ctx.Done()
		sched.Stop()
	} else {
		eng.RunLoop(ctx, config.CycleInterval)
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
}

// loadParameters returns the active parameter set, saving the defaults as version 1 when the
// database has none. Executed fee rates override the stored parameter fees.
func loadParameters(ctx context.Context, store *state.PostgresStore, defaults types.EngineParameters) (types.EngineParameters, int) {
	params := defaults
	version := 1

	loaded, loadedVersion, err := store.LoadParameters(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load engine parameters")
	}
	if loaded == nil {
		log.Warn().Msg("No active engine parameters found, saving defaults.")
		if err := store.SaveParameters(ctx, defaults, version, bootstrapUpdater); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
	} else {
		params, version = *loaded, loadedVersion
	}

	fees, err := state.LoadFeeRates(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load fee rates")
	}
	if fees != nil {
		params.ManagementFeeBps = fees.ManagementFeeBps
		params.PerformanceFeeBps = fees.PerformanceFeeBps
	}
	log.Info().Int("version", version).Msg("Engine parameters loaded successfully.")
	return params, version
}

// registerEndpoints dials the configured oracle sources and venues and registers them with the
// engine. The returned func closes every connection.
func registerEndpoints(ctx context.Context, eng *engine.Engine) func() {
	var closers []func() error
	authority := config.EngineAuthority

	for _, ep := range config.OracleEndpoints {
		conn, err := rpc.Dial(ep.Address)
		if err != nil {
			log.Error().Err(err).Str("source", ep.ID).Msg("Skipping oracle source")
			continue
		}
		closers = append(closers, conn.Close)
		if err := eng.RegisterOracleSource(authority, oracle.NewGRPCSource(ep.ID, conn), ep.WeightBps); err != nil {
			log.Fatal().Err(err).Str("source", ep.ID).Msg("Failed to register oracle source")
		}
	}

	for _, ep := range config.VenueEndpoints {
		conn, err := rpc.Dial(ep.Address)
		if err != nil {
			log.Error().Err(err).Str("venue", ep.ID).Msg("Skipping venue")
			continue
		}
		closers = append(closers, conn.Close)
		info := types.VenueInfo{
			ID:                types.VenueID(ep.ID),
			RiskScore:         ep.RiskScore,
			Compliant:         true,
			OffChainDependent: config.OffChainVenues[ep.ID],
		}
		if _, err := eng.RegisterVenue(ctx, authority, info, venue.NewGRPCHandle(info.ID, conn)); err != nil {
			log.Fatal().Err(err).Str("venue", ep.ID).Msg("Failed to register venue")
		}
	}

	return func() {
		for _, c := range closers {
			_ = c()
		}
	}
}
