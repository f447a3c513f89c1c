package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.AnalysesTotal.WithLabelValues("video").Inc()
	m.VehiclesCounted.WithLabelValues("car").Add(6)
	m.UploadRejections.WithLabelValues("invalid_type").Inc()
	m.ProcessingSeconds.Observe(1.5)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("video")), 1e-9)
	assert.InDelta(t, 6.0, testutil.ToFloat64(m.VehiclesCounted.WithLabelValues("car")), 1e-9)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `trafficsentinel_analyses_total{media_type="video"} 1`)
	assert.Contains(t, string(body), `trafficsentinel_upload_rejections_total{reason="invalid_type"} 1`)
	assert.Contains(t, string(body), "trafficsentinel_processing_seconds_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetricsArePerInstance(t *testing.T) {
	a, b := New(), New()
	a.HistoryClears.Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.HistoryClears), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.HistoryClears), 1e-9)
}
