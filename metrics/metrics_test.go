package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Batch(ResultApplied)
	m.Batch(ResultApplied)
	m.Batch(ResultRejected)
	m.Update("insertText")
	m.SessionStarted()
	m.FlushError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues(ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("insertText")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushErrors))
}

func TestMetrics_SessionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SessionStarted()
	m.SessionStarted()
	m.SessionStopped()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	m.SessionStopped()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessions))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Batch(ResultApplied)
		m.Update("undo")
		m.SessionStarted()
		m.SessionStopped()
		m.FlushError()
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).Batch(ResultStale)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `notebook_batches_total{result="stale"} 1`)
}
