// Package metrics exposes Prometheus collectors for the query pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query paths.
const (
	PathWorkflow = "workflow"
	PathSimple   = "simple"
	PathCache    = "cache"
)

var (
	once sync.Once

	queryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportdesk_query_latency_ms",
		Help:    "End-to-end query latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"path"})

	stageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportdesk_stage_latency_ms",
		Help:    "Latency of retrieval and generation in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"stage"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_cache_lookups_total",
		Help: "Query cache lookups by result (hit/miss)",
	}, []string{"result"})

	escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_escalations_total",
		Help: "Answers flagged for human escalation",
	}, []string{"path"})

	fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_workflow_fallbacks_total",
		Help: "Workflow failures answered by the simple path",
	})

	retrievalFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_retrieval_failures_total",
		Help: "Simple-path retrieval errors answered with no documents",
	})

	feedbackRatings = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportdesk_feedback_rating",
		Help:    "Submitted feedback ratings",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveQuery records end-to-end latency for a query answered via path.
func ObserveQuery(path string, start time.Time, escalated bool) {
	ensureRegistered()
	queryLatency.WithLabelValues(path).Observe(float64(time.Since(start).Milliseconds()))
	if escalated {
		escalations.WithLabelValues(path).Inc()
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	ensureRegistered()
	stageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// IncCacheLookup counts a cache hit or miss.
func IncCacheLookup(hit bool) {
	ensureRegistered()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// IncFallback counts a workflow failure handled by the simple path.
func IncFallback() {
	ensureRegistered()
	fallbacks.Inc()
}

// IncRetrievalFailure counts a retrieval error the simple path absorbed.
func IncRetrievalFailure() {
	ensureRegistered()
	retrievalFailures.Inc()
}

// ObserveRating records a feedback rating.
func ObserveRating(rating int) {
	ensureRegistered()
	feedbackRatings.Observe(float64(rating))
}

// Collectors returns every collector, for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		queryLatency, stageLatency, cacheLookups, escalations, fallbacks, retrievalFailures, feedbackRatings,
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}
