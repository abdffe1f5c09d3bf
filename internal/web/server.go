package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/engine"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/logger"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/state"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// CallerHeader carries the identity of the account issuing a governance request.
const CallerHeader = "X-Engine-Caller"

// Options configure the web server. Recorder, Metrics and History are optional.
type Options struct {
	Port     string
	Engine   *engine.Engine
	Recorder *events.Recorder
	Metrics  http.Handler
	History  bool // Serve cycle history and summary from the database
}

// WebServer exposes the engine over HTTP
type WebServer struct {
	router   *mux.Router
	port     string
	engine   *engine.Engine
	recorder *events.Recorder
	metrics  http.Handler
	history  bool
	server   *http.Server
	started  time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	port := opts.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		engine:   opts.Engine,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		history:  opts.History,
		started:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// Handler returns the routed handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Planning
	api.HandleFunc("/plan", ws.handlePlan).Methods("POST")
	api.HandleFunc("/cycles/run", ws.handleRunCycle).Methods("POST")
	api.HandleFunc("/allocations", ws.handleGetAllocations).Methods("GET")

	// Venues and oracle sources
	api.HandleFunc("/venues", ws.handleGetVenues).Methods("GET")
	api.HandleFunc("/venues/{id}", ws.handleGetVenue).Methods("GET")
	api.HandleFunc("/venues/{id}", ws.handleUpdateVenue).Methods("PATCH")
	api.HandleFunc("/venues/{id}", ws.handleDeregisterVenue).Methods("DELETE")
	api.HandleFunc("/oracles", ws.handleGetOracles).Methods("GET")
	api.HandleFunc("/oracles/{id}", ws.handleRemoveOracle).Methods("DELETE")

	// Fees
	api.HandleFunc("/fees", ws.handleGetFees).Methods("GET")
	api.HandleFunc("/fees/proposals", ws.handleGetProposals).Methods("GET")
	api.HandleFunc("/fees/proposals", ws.handlePropose).Methods("POST")
	api.HandleFunc("/fees/proposals/{id}", ws.handleGetProposal).Methods("GET")
	api.HandleFunc("/fees/proposals/{id}/execute", ws.handleExecuteProposal).Methods("POST")
	api.HandleFunc("/fees/proposals/{id}/cancel", ws.handleCancelProposal).Methods("POST")

	// Parameters and switches
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/parameters", ws.handleUpdateParameters).Methods("PUT")
	api.HandleFunc("/circuit-breaker", ws.handleCircuitBreaker).Methods("POST")
	api.HandleFunc("/leverage", ws.handleLeverage).Methods("POST")

	// History
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{number:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server and engine health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	params, version := ws.engine.Parameters()
	degraded := false

	engineStatus := map[string]interface{}{
		"parameters_version":      version,
		"circuit_breaker_engaged": ws.engine.CircuitBreakerEngaged(),
		"manual_breaker":          params.CircuitBreakerEngaged,
		"consensus_breaker":       ws.engine.BreakerState(),
		"venues":                  len(ws.engine.Venues()),
		"oracle_sources":          len(ws.engine.OracleSources()),
		"allocations":             len(ws.engine.Allocations()),
	}
	if plan, ok := ws.engine.LastPlan(); ok {
		engineStatus["last_plan_at"] = plan.CreatedAt
		engineStatus["last_cycle_id"] = plan.CycleID
	}

	if ws.history {
		dbHealthy := state.TestDBConnection() == nil
		engineStatus["database_healthy"] = dbHealthy
		degraded = degraded || !dbHealthy
	}
	if len(ws.engine.OracleSources()) < params.OracleQuorum && !params.CircuitBreakerEngaged {
		engineStatus["oracle_quorum_reachable"] = false
		degraded = true
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if degraded {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"engine": engineStatus,
	})
}

type planRequest struct {
	TotalAmount string `json:"total_amount"`
}

func (ws *WebServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !ws.decode(w, r, &req) {
		return
	}
	total, err := utils.ParseAmount(req.TotalAmount)
	if err != nil {
		ws.writeEngineError(w, types.Wrapf(types.ErrConfiguration, "total_amount: %v", err))
		return
	}
	plan, err := ws.engine.PlanAllocation(r.Context(), total)
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, plan)
}

func (ws *WebServer) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	snapshot, err := ws.engine.RunCycle(r.Context())
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

func (ws *WebServer) handleGetAllocations(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"allocations": ws.engine.Allocations(),
	}
	if plan, ok := ws.engine.LastPlan(); ok {
		response["last_plan"] = plan
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetVenues(w http.ResponseWriter, r *http.Request) {
	venues := ws.engine.Venues()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"venues": venues,
		"count":  len(venues),
	})
}

func (ws *WebServer) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	snap, err := ws.engine.GetVenueSnapshot(types.VenueID(mux.Vars(r)["id"]))
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snap)
}

type venueUpdateRequest struct {
	Compliant bool  `json:"compliant"`
	RiskScore int64 `json:"risk_score"`
}

func (ws *WebServer) handleUpdateVenue(w http.ResponseWriter, r *http.Request) {
	var req venueUpdateRequest
	if !ws.decode(w, r, &req) {
		return
	}
	info, err := ws.engine.UpdateVenue(r.Context(), caller(r), types.VenueID(mux.Vars(r)["id"]), req.Compliant, req.RiskScore)
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, info)
}

func (ws *WebServer) handleDeregisterVenue(w http.ResponseWriter, r *http.Request) {
	if err := ws.engine.DeregisterVenue(r.Context(), caller(r), types.VenueID(mux.Vars(r)["id"])); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ws *WebServer) handleGetOracles(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sources": ws.engine.OracleSources(),
	})
}

func (ws *WebServer) handleRemoveOracle(w http.ResponseWriter, r *http.Request) {
	if err := ws.engine.RemoveOracleSource(caller(r), mux.Vars(r)["id"]); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ws *WebServer) handleGetFees(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.CurrentFees())
}

func (ws *WebServer) handleGetProposals(w http.ResponseWriter, r *http.Request) {
	proposals := ws.engine.FeeProposals()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (ws *WebServer) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := ws.engine.FeeProposal(mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

func (ws *WebServer) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req types.FeeRates
	if !ws.decode(w, r, &req) {
		return
	}
	p, err := ws.engine.ProposeFeeChange(r.Context(), caller(r), req.ManagementFeeBps, req.PerformanceFeeBps)
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, p)
}

func (ws *WebServer) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	p, err := ws.engine.ExecuteFeeChange(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

func (ws *WebServer) handleCancelProposal(w http.ResponseWriter, r *http.Request) {
	p, err := ws.engine.CancelFeeChange(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params, version := ws.engine.Parameters()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"parameters": params,
		"version":    version,
	})
}

func (ws *WebServer) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	var next types.EngineParameters
	if !ws.decode(w, r, &next) {
		return
	}
	if err := ws.engine.UpdateParameters(r.Context(), caller(r), next); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.handleGetParameters(w, r)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (ws *WebServer) handleCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if err := ws.engine.SetCircuitBreaker(r.Context(), caller(r), req.Enabled); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"circuit_breaker_engaged": ws.engine.CircuitBreakerEngaged(),
	})
}

func (ws *WebServer) handleLeverage(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if err := ws.engine.SetLeverageEnabled(r.Context(), caller(r), req.Enabled); err != nil {
		ws.writeEngineError(w, err)
		return
	}
	params, _ := ws.engine.Parameters()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"leverage_enabled": params.LeverageEnabled,
	})
}

// handleGetCycles returns recent cycle snapshots
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := state.GetRecentCycles(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	cycles, err := state.GetRecentCycles(r.Context(), 1)
	if err != nil || len(cycles) == 0 {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle number")
		return
	}
	cycle, err := state.GetCycleByNumber(r.Context(), number)
	if err != nil {
		ws.writeEngineError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	summary, err := state.GetEngineSummary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get engine summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve engine summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if ws.recorder == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Event recording is disabled")
		return
	}
	var list []events.Event
	if t := r.URL.Query().Get("type"); t != "" {
		list = ws.recorder.OfType(events.EventType(t))
	} else {
		list = ws.recorder.Events()
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": list,
		"count":  len(list),
	})
}

func (ws *WebServer) requireHistory(w http.ResponseWriter) bool {
	if !ws.history {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle history requires a database")
		return false
	}
	return true
}

func caller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}

func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an engine error class to an HTTP status.
func statusFor(err error) int {
	switch types.ErrorClass(err) {
	case "configuration":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "cycle_in_progress", "timelock_violation", "constraint_violation", "resource_exhaustion":
		return http.StatusConflict
	case "data_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg("Request failed")
	}
	ws.writeJSONResponse(w, status, map[string]interface{}{
		"error":     true,
		"class":     types.ErrorClass(err),
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CallerHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
