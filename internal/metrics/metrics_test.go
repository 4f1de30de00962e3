package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"finassist/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Fallback("empty_index")
	m.Fallback("empty_index")
	m.Triaged("critical")
	m.NarrativeFailed("triage")
	m.StreamEvent("token")
	m.StreamAborted()
	m.Recommended()
	m.ObserveRetrieval(time.Now())
	m.ObserveHTTP("/api/recommend", "200", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetrievalFallbacks.WithLabelValues("empty_index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriageResults.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NarrativeFailures.WithLabelValues("triage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsAborted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recommendations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/recommend", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RetrievalDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Fallback("x")
		m.Triaged("low")
		m.NarrativeFailed("x")
		m.StreamEvent("x")
		m.StreamAborted()
		m.Recommended()
		m.ObserveRetrieval(time.Now())
		m.ObserveHTTP("r", "200", time.Now())
	})
}
