package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/engine"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/types"
	"github.com/Emantesta/Sonic-Harvest-sub002/internal/venue"
)

func testParams() types.EngineParameters {
	return types.EngineParameters{
		ManagementFeeBps:        50,
		PerformanceFeeBps:       1000,
		MinLiquidity:            sdkmath.NewInt(1),
		MinAllocation:           sdkmath.NewInt(1),
		MaxVenuesPerCycle:       10,
		MaxVenues:               20,
		MaxLTVBps:               6000,
		MaxRiskToleranceBps:     5000,
		MaxVolatilityBps:        500,
		LiquidationThresholdBps: 8500,
		OracleQuorum:            1,
		OracleTimeout:           time.Second,
		MaxTimestampVariance:    time.Minute,
		MaxOracleSources:        5,
		BlendWeightBps:          5000,
		FallbackYieldBps:        500,
		CacheTTL:                time.Minute,
		CircuitBreakerEngaged:   true,
	}
}

func newTestServer(t *testing.T) (*WebServer, *engine.Engine, *events.Recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := events.NewRecorder(50)
	bus.SubscribeAll(rec.Record)

	e, err := engine.NewEngine(engine.Config{
		Governance: engine.StaticAuthority("gov"),
		Parameters: testParams(),
		Events:     events.NewManager(bus, zerolog.Nop()),
	})
	require.NoError(t, err)

	_, err = e.RegisterVenue(context.Background(), "gov", types.VenueInfo{ID: "a", Compliant: true, RiskScore: 1}, venue.NewMemoryVenue(700, sdkmath.NewInt(100_000)))
	require.NoError(t, err)
	_, err = e.RegisterVenue(context.Background(), "gov", types.VenueInfo{ID: "b", Compliant: true, RiskScore: 1}, venue.NewMemoryVenue(300, sdkmath.NewInt(100_000)))
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("yield_engine_cycles_total 0\n"))
	})
	return NewWebServer(Options{Engine: e, Recorder: rec, Metrics: metrics}), e, rec
}

func do(t *testing.T, ws *WebServer, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rr := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rr := do(t, ws, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "OK", body["status"])
	engineStatus := body["engine"].(map[string]interface{})
	assert.Equal(t, float64(2), engineStatus["venues"])
}

func TestPlanEndpoint(t *testing.T) {
	ws, e, rec := newTestServer(t)

	rr := do(t, ws, "POST", "/api/plan", "", planRequest{TotalAmount: "10000"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var plan types.AllocationPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "7000", plan.Allocations[0].Amount.String())
	assert.Len(t, e.Allocations(), 2)
	assert.Len(t, rec.OfType(events.AllocationComputed), 1)

	rr = do(t, ws, "GET", "/api/allocations", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeBody(t, rr), "last_plan")
}

func TestPlanRejectsBadAmount(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rr := do(t, ws, "POST", "/api/plan", "", planRequest{TotalAmount: "-1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "configuration", decodeBody(t, rr)["class"])

	rr = do(t, ws, "POST", "/api/plan", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVenueEndpoints(t *testing.T) {
	ws, _, _ := newTestServer(t)

	rr := do(t, ws, "GET", "/api/venues", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])

	rr = do(t, ws, "GET", "/api/venues/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, ws, "PATCH", "/api/venues/a", "gov", venueUpdateRequest{Compliant: false, RiskScore: 200})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, ws, "GET", "/api/venues/a", "", nil)
	var snap types.VenueSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.False(t, snap.Info.Compliant)
	assert.Equal(t, int64(200), snap.Info.RiskScore)
}

func TestDeregisterAllocatedVenueConflicts(t *testing.T) {
	ws, _, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, ws, "POST", "/api/plan", "", planRequest{TotalAmount: "100"}).Code)

	rr := do(t, ws, "DELETE", "/api/venues/a", "gov", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "constraint_violation", decodeBody(t, rr)["class"])
}

func TestGovernanceRequiresCaller(t *testing.T) {
	ws, _, _ := newTestServer(t)

	rr := do(t, ws, "POST", "/api/fees/proposals", "", types.FeeRates{ManagementFeeBps: 100, PerformanceFeeBps: 1500})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, ws, "POST", "/api/circuit-breaker", "someone", toggleRequest{Enabled: false})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestFeeProposalLifecycle(t *testing.T) {
	ws, _, rec := newTestServer(t)

	rr := do(t, ws, "POST", "/api/fees/proposals", "gov", types.FeeRates{ManagementFeeBps: 100, PerformanceFeeBps: 1500})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var p types.FeeProposal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))

	rr = do(t, ws, "POST", "/api/fees/proposals/"+p.ID+"/execute", "gov", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "timelock_violation", decodeBody(t, rr)["class"])

	rr = do(t, ws, "POST", "/api/fees/proposals/"+p.ID+"/cancel", "gov", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, ws, "GET", "/api/fees/proposals/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, types.ProposalCancelled, p.Status)

	rr = do(t, ws, "GET", "/api/fees", "", nil)
	var fees types.FeeRates
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fees))
	assert.Equal(t, int64(50), fees.ManagementFeeBps)

	rr = do(t, ws, "GET", "/api/events?type="+string(events.FeeProposalCancelled), "", nil)
	assert.Equal(t, float64(1), decodeBody(t, rr)["count"])
	assert.Len(t, rec.Events(), 2)
}

func TestParametersEndpoints(t *testing.T) {
	ws, e, _ := newTestServer(t)

	next := testParams()
	next.MaxVenuesPerCycle = 4
	rr := do(t, ws, "PUT", "/api/parameters", "gov", next)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, rr)["version"])

	bad := testParams()
	bad.PerformanceFeeBps = 1500
	rr = do(t, ws, "PUT", "/api/parameters", "gov", bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	params, version := e.Parameters()
	assert.Equal(t, 4, params.MaxVenuesPerCycle)
	assert.Equal(t, 2, version)

	rr = do(t, ws, "POST", "/api/leverage", "gov", toggleRequest{Enabled: true})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["leverage_enabled"])
}

func TestHistoryRequiresDatabase(t *testing.T) {
	ws, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, ws, "GET", "/api/cycles", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, ws, "GET", "/api/summary", "", nil).Code)
}

func TestRunCycleWithoutVault(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rr := do(t, ws, "POST", "/api/cycles/run", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsRoute(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rr := do(t, ws, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "yield_engine_cycles_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(types.Wrapf(types.ErrCycleInProgress, "busy")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(types.Wrapf(types.ErrDataUnavailable, "down")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
