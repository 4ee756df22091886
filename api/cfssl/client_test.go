package cfssl

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return NewClient(host, port, cryptoutils.NewCodec(rand.Reader), timeout, logger).
		WithCommonName(func() string { return "test-node" })
}

func TestClient_RoundTrip(t *testing.T) {
	mux, ca := newTestRouter(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv, 0)
	ctx := context.Background()

	caCert, err := client.RequestCACertificate(ctx)
	require.NoError(t, err)
	expected, err := ca.CACertificate()
	require.NoError(t, err)
	assert.Equal(t, expected, caCert)

	key, err := cryptoutils.NewCodec(rand.Reader).GenerateKeypair()
	require.NoError(t, err)

	cert, err := client.SignCSR(ctx, key)
	require.NoError(t, err)
	assert.NoError(t, caCert.VerifyCertificate(cert, cryptoutils.DefaultRefreshThreshold))

	leaf, err := cert.GetX509Cert()
	require.NoError(t, err)
	assert.Equal(t, "test-node", leaf.Subject.CommonName)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(t, srv, 0)
	srv.Close()

	_, err := client.RequestCACertificate(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrCAUnreachable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, srv, 100*time.Millisecond)

	start := time.Now()
	_, err := client.RequestCACertificate(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrCAUnreachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_InvalidEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "success false", status: http.StatusBadRequest, body: `{"success":false,"errors":[{"code":1200,"message":"bad"}]}`, wantErr: interfaces.ErrCAResponseInvalid},
		{name: "missing result", status: http.StatusOK, body: `{"success":true}`, wantErr: interfaces.ErrCAResponseInvalid},
		{name: "certificate not a string", status: http.StatusOK, body: `{"success":true,"result":{"certificate":42}}`, wantErr: interfaces.ErrCAResponseInvalid},
		{name: "certificate not PEM", status: http.StatusOK, body: `{"success":true,"result":{"certificate":"abc"}}`, wantErr: interfaces.ErrCAResponseInvalid},
		{name: "malformed json", status: http.StatusOK, body: `{"success":`, wantErr: interfaces.ErrCAResponseInvalid},
		{name: "server error page", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantErr: interfaces.ErrCAUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv, 0)
			_, err := client.RequestCACertificate(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
