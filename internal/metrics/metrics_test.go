package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_CountersAreUsable(t *testing.T) {
	r := NewRegistry()
	r.SignalsEmitted.WithLabelValues("reversal", "long").Inc()
	r.DispatchOutcomes.WithLabelValues("sent").Inc()
	r.WSReconnects.Inc()
	r.UniverseSize.Set(42)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.SignalsEmitted.WithLabelValues("reversal", "long")))
	assert.Equal(t, float64(42), testutil.ToFloat64(r.UniverseSize))
}

func TestAddrFor(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9090", addrFor(9090))
}

func TestServer_RoutesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(0).httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
