// Package metrics publishes Prometheus metrics for datafetch providers.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/n-r-w/datafetch"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached response.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached response was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
)

var _ datafetch.IMetrics = (*Recorder)(nil)

// Recorder publishes Prometheus metrics for executor activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datafetch",
		Subsystem: "executor",
		Name:      "requests_total",
		Help:      "Settled requests by method, path and final state.",
	}, []string{"method", "path", "state"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datafetch",
		Subsystem: "executor",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for dispatched requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "path", "state"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datafetch",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Response cache lookups by key and result.",
	}, []string{"key", "result"})

	reg.MustRegister(requests, requestLatency, cacheLookups)

	return &Recorder{
		gatherer:       reg,
		handler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests:       requests,
		requestLatency: requestLatency,
		cacheLookups:   cacheLookups,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCacheLookup records a cache hit or miss for key.
func (r *Recorder) ObserveCacheLookup(_ context.Context, key string, hit bool) {
	if r == nil {
		return
	}
	result := CacheLookupMiss
	if hit {
		result = CacheLookupHit
	}
	r.cacheLookups.WithLabelValues(normalizeLabel(key), string(result)).Inc()
}

// ObserveRequest records the final state of a request. Cache hits report a zero duration
// and are counted without a latency sample.
func (r *Recorder) ObserveRequest(
	_ context.Context, method, path string, state datafetch.RequestState, duration time.Duration,
) {
	if r == nil {
		return
	}
	methodLabel := strings.ToUpper(normalizeLabel(method))
	pathLabel := normalizeLabel(path)
	stateLabel := state.String()

	r.requests.WithLabelValues(methodLabel, pathLabel, stateLabel).Inc()
	if duration > 0 {
		r.requestLatency.WithLabelValues(methodLabel, pathLabel, stateLabel).Observe(duration.Seconds())
	}
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
