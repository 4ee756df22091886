package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer_ExposesCollectors(t *testing.T) {
	srv, err := New("nodewiring_test", "127.0.0.1:0")
	require.NoError(t, err)

	RecordTrustCycle("verified")
	RecordDiscoveryEvent("set")
	SetRegistrySize(2, 3)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nodewiring_trust_cycles_total{outcome="verified"}`)
	assert.Contains(t, string(body), `nodewiring_discovery_events_total{action="set"}`)
	assert.Contains(t, string(body), "nodewiring_registry_endpoints 3")
}

func TestMetricsServer_NewTwice(t *testing.T) {
	_, err := New("a", "127.0.0.1:0")
	require.NoError(t, err)
	_, err = New("b", "127.0.0.1:0")
	require.NoError(t, err)
}
