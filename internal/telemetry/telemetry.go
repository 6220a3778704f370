// Package telemetry exposes prometheus metrics for the planning core. The
// Telemetry value is constructed once at process start and injected; there
// is no package-level registry to leak across tests.
package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Telemetry bundles the planning core's metrics.
type Telemetry struct {
	registry *prometheus.Registry

	planTurns            *prometheus.CounterVec
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
	oracleRetries        prometheus.Counter
	oracleLatency        prometheus.Histogram
	oracleTokens         *prometheus.CounterVec
	oracleCost           prometheus.Counter
	validationRejections prometheus.Counter
	stepsDesigned        prometheus.Counter
	stepsExecutable      prometheus.Counter
}

// New creates a Telemetry with its own registry.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		registry: reg,
		planTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_plan_turns_total",
			Help: "Planning turns by resulting protocol state",
		}, []string{"state"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_plan_cache_hits_total",
			Help: "Plan cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_plan_cache_misses_total",
			Help: "Plan cache misses",
		}),
		oracleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_oracle_retries_total",
			Help: "Oracle invocation retries after connectivity failures",
		}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowweave_oracle_latency_seconds",
			Help:    "Oracle completion latency",
			Buckets: prometheus.DefBuckets,
		}),
		oracleTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowweave_oracle_tokens_total",
			Help: "Oracle token usage by direction",
		}, []string{"direction"}),
		oracleCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_oracle_cost_dollars_total",
			Help: "Accumulated oracle spend in dollars",
		}),
		validationRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_validation_rejections_total",
			Help: "Plans rejected by the execution validator",
		}),
		stepsDesigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_steps_designed_total",
			Help: "Steps produced by the planner",
		}),
		stepsExecutable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowweave_steps_executable_total",
			Help: "Steps converted into executable form",
		}),
	}
	reg.MustRegister(t.planTurns, t.cacheHits, t.cacheMisses, t.oracleRetries,
		t.oracleLatency, t.oracleTokens, t.oracleCost,
		t.validationRejections, t.stepsDesigned, t.stepsExecutable)
	return t
}

// RecordTurn counts a finished planning turn. Nil receivers are no-ops so
// callers need no telemetry in tests.
func (t *Telemetry) RecordTurn(state string) {
	if t == nil {
		return
	}
	t.planTurns.WithLabelValues(state).Inc()
}

// RecordCache counts a cache lookup outcome.
func (t *Telemetry) RecordCache(hit bool) {
	if t == nil {
		return
	}
	if hit {
		t.cacheHits.Inc()
	} else {
		t.cacheMisses.Inc()
	}
}

// RecordOracleRetry counts one retry attempt.
func (t *Telemetry) RecordOracleRetry() {
	if t == nil {
		return
	}
	t.oracleRetries.Inc()
}

// RecordOracleLatency observes a completed oracle call.
func (t *Telemetry) RecordOracleLatency(d time.Duration) {
	if t == nil {
		return
	}
	t.oracleLatency.Observe(d.Seconds())
}

// RecordOracleUsage observes one completed call's token counts and cost.
func (t *Telemetry) RecordOracleUsage(inputTokens, outputTokens int64, cost float64) {
	if t == nil {
		return
	}
	t.oracleTokens.WithLabelValues("input").Add(float64(inputTokens))
	t.oracleTokens.WithLabelValues("output").Add(float64(outputTokens))
	t.oracleCost.Add(cost)
}

// RecordValidationRejection counts a rejected plan.
func (t *Telemetry) RecordValidationRejection() {
	if t == nil {
		return
	}
	t.validationRejections.Inc()
}

// RecordSteps counts designed versus executable steps for the
// designed/executed observability summary.
func (t *Telemetry) RecordSteps(designed, executable int) {
	if t == nil {
		return
	}
	t.stepsDesigned.Add(float64(designed))
	t.stepsExecutable.Add(float64(executable))
}

// Gather collects the current metric families from the underlying registry.
func (t *Telemetry) Gather() ([]*dto.MetricFamily, error) {
	return t.registry.Gather()
}

// Serve exposes /metrics on the given port and blocks.
func (t *Telemetry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	log.Printf("[TELEMETRY] metrics listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
