package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_DrainUndrain(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()

	code, body := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "alive")

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.server.IsReady())

	_, body = get(t, h, "/drain")
	assert.Contains(t, body, `"draining"`)
	_, body = get(t, h, "/drain")
	assert.Contains(t, body, "already draining")

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.server.IsReady())

	// Liveness is unaffected by draining
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	_, body = get(t, h, "/undrain")
	assert.Contains(t, body, `"ready"`)
	_, body = get(t, h, "/undrain")
	assert.Contains(t, body, "already ready")

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_PprofDisabled(t *testing.T) {
	env := newTestEnv(t)

	code, _ := get(t, env.server.Handler(), "/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/nodes", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
