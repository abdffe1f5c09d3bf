package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Emantesta/Sonic-Harvest-sub002/internal/events"
)

// Collector holds the engine's Prometheus metrics. It is fed by the event bus and by the oracle
// aggregator through SourceQueried.
type Collector struct {
	registry *prometheus.Registry

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	AllocatedVenues   prometheus.Gauge
	SkippedVenues     prometheus.Gauge
	ForfeitedAmount   prometheus.Gauge
	ConsensusFailures *prometheus.CounterVec
	DegradedEstimates *prometheus.CounterVec
	OracleQueries     *prometheus.CounterVec
	VenueYield        *prometheus.GaugeVec
	CircuitBreaker    prometheus.Gauge
	FeeProposals      *prometheus.CounterVec
}

// NewCollector creates and registers every metric on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yield_engine_cycles_total",
				Help: "Planning cycles by outcome",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "yield_engine_cycle_duration_seconds",
				Help:    "Duration of a planning cycle in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		AllocatedVenues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yield_engine_allocated_venues",
			Help: "Venues receiving capital in the latest plan",
		}),
		SkippedVenues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yield_engine_skipped_venues",
			Help: "Venues skipped by the latest plan",
		}),
		ForfeitedAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yield_engine_forfeited_amount",
			Help: "Amount folded into the rounding correction by the latest plan",
		}),
		ConsensusFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yield_engine_consensus_failures_total",
				Help: "Oracle consensus failures by reason",
			},
			[]string{"reason"},
		),
		DegradedEstimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yield_engine_degraded_estimates_total",
				Help: "Estimates that used the fallback yield, by venue",
			},
			[]string{"venue"},
		),
		OracleQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yield_engine_oracle_queries_total",
				Help: "Oracle source calls by source and result",
			},
			[]string{"source", "result"},
		),
		VenueYield: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "yield_engine_venue_yield_bps",
				Help: "Latest blended yield per venue in basis points",
			},
			[]string{"venue"},
		),
		CircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yield_engine_circuit_breaker_engaged",
			Help: "1 when off-chain data is disabled",
		}),
		FeeProposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yield_engine_fee_proposals_total",
				Help: "Fee proposals by lifecycle transition",
			},
			[]string{"transition"},
		),
	}

	c.registry.MustRegister(
		c.CyclesTotal,
		c.CycleDuration,
		c.AllocatedVenues,
		c.SkippedVenues,
		c.ForfeitedAmount,
		c.ConsensusFailures,
		c.DegradedEstimates,
		c.OracleQueries,
		c.VenueYield,
		c.CircuitBreaker,
		c.FeeProposals,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SourceQueried implements oracle.Observer.
func (c *Collector) SourceQueried(sourceID string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.OracleQueries.WithLabelValues(sourceID, result).Inc()
}

// Attach subscribes the collector to every event on the bus.
func (c *Collector) Attach(bus *events.Bus) {
	bus.SubscribeAll(c.Observe)
}

// Observe updates metrics from one event.
func (c *Collector) Observe(e events.Event) {
	switch data := e.Data.(type) {
	case *events.AllocationComputedData:
		c.AllocatedVenues.Set(float64(data.Venues))
		c.SkippedVenues.Set(float64(data.Skipped))
		if f, err := parseAmount(data.Forfeited); err == nil {
			c.ForfeitedAmount.Set(f)
		}
	case *events.VenueCacheRefreshedData:
		c.VenueYield.WithLabelValues(data.VenueID).Set(float64(data.YieldBps))
	case *events.OracleConsensusFailedData:
		c.ConsensusFailures.WithLabelValues(data.Reason).Inc()
	case *events.DegradedModeData:
		c.DegradedEstimates.WithLabelValues(data.VenueID).Inc()
	case *events.CircuitBreakerToggledData:
		if data.Engaged {
			c.CircuitBreaker.Set(1)
		} else {
			c.CircuitBreaker.Set(0)
		}
	case *events.FeeProposalData:
		switch e.Type {
		case events.FeeProposalCreated:
			c.FeeProposals.WithLabelValues("created").Inc()
		case events.FeeProposalExecuted:
			c.FeeProposals.WithLabelValues("executed").Inc()
		case events.FeeProposalCancelled:
			c.FeeProposals.WithLabelValues("cancelled").Inc()
		}
	case *events.CycleCompletedData:
		status := "ok"
		if data.Error != "" {
			status = "error"
		}
		c.CyclesTotal.WithLabelValues(status).Inc()
		c.CycleDuration.Observe(float64(data.DurationMs) / 1000)
	}
}

// Amounts can exceed float64 precision; the gauge only needs the magnitude.
func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
