package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage("validation", "ok", 20*time.Millisecond)
	m.IncFallback("module_structure")
	m.IncFallback("module_structure")
	m.IncGeneration("completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageFallback.WithLabelValues("module_structure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))

	m.ObserveBackend("vector", "search", nil, 10*time.Millisecond)
	m.ObserveAPI("GET", "/healthz", "200", time.Millisecond)
	m.ApiInflightInc()
	assert.Equal(t, 1, testutil.CollectAndCount(m.backendCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/healthz", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiInflight))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("x", "ok", time.Second)
	m.IncFallback("x")
	m.ObserveLLMRequest("/v1/responses", "200", time.Second)
	m.ObserveBackend("graph", "skills", nil, time.Second)
	m.ApiInflightInc()
	assert.NotNil(t, m.Handler())
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("a=1, b = 2 ,broken,=x")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
	assert.Nil(t, ParseHeaders(" "))
}
