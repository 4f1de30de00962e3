package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RetrievalDuration  prometheus.Histogram
	RetrievalFallbacks *prometheus.CounterVec
	Recommendations    prometheus.Counter
	TriageResults      *prometheus.CounterVec
	NarrativeFailures  *prometheus.CounterVec
	StreamEvents       *prometheus.CounterVec
	StreamsAborted     prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "finassist_retrieval_duration_seconds",
			Help:    "Time spent embedding a query and searching the resource index",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		RetrievalFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finassist_retrieval_fallbacks_total",
			Help: "Number of retrievals answered from catalog order",
		}, []string{"reason"}),
		Recommendations: f.NewCounter(prometheus.CounterOpts{
			Name: "finassist_recommendations_total",
			Help: "Number of recommendation lists produced",
		}),
		TriageResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finassist_triage_total",
			Help: "Number of triaged messages by urgency",
		}, []string{"urgency"}),
		NarrativeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finassist_narrative_failures_total",
			Help: "Number of narrative calls answered with their default payload",
		}, []string{"operation"}),
		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finassist_stream_events_total",
			Help: "Number of stream events delivered by kind",
		}, []string{"kind"}),
		StreamsAborted: f.NewCounter(prometheus.CounterOpts{
			Name: "finassist_streams_aborted_total",
			Help: "Number of streams stopped because the consumer went away",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finassist_http_requests_total",
			Help: "Number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finassist_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ObserveRetrieval(start time.Time) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.RetrievalFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Recommended() {
	if m == nil {
		return
	}
	m.Recommendations.Inc()
}

func (m *Metrics) Triaged(urgency string) {
	if m == nil {
		return
	}
	m.TriageResults.WithLabelValues(urgency).Inc()
}

func (m *Metrics) NarrativeFailed(operation string) {
	if m == nil {
		return
	}
	m.NarrativeFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) StreamEvent(kind string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) StreamAborted() {
	if m == nil {
		return
	}
	m.StreamsAborted.Inc()
}

func (m *Metrics) ObserveHTTP(route, status string, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
