package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Hit()
	m.Hit()
	m.Miss()
	m.TransportError()
	m.ObserveSearch("ok", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Hit()
		m.Miss()
		m.TransportError()
		m.ObserveSearch("ok", 1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Miss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stackfind_cache_misses_total 1")
}
