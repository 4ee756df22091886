package trustmanager

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/inaetics/node-wiring-go/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSReloader_NoMaterial(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureStorageDir())
	worker := newTestWorker(t, new(MockCAClient), store)

	reloader := NewTLSReloader(store.BaseDir(), worker, testLogger)

	_, err := reloader.GetClientCertificate(nil)
	assert.ErrorIs(t, err, ErrNoCertificate)
	assert.Nil(t, reloader.RootCAs())
}

func TestTLSReloader_LoadsCurrentGeneration(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)
	require.NoError(t, worker.cycle(context.Background()))

	reloader := NewTLSReloader(store.BaseDir(), worker, testLogger)

	cert, err := reloader.GetCertificate(nil)
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	cfg := reloader.ClientTLSConfig()
	require.NotNil(t, cfg.RootCAs)
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     cfg.RootCAs,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err)

	serverCfg, err := reloader.ServerTLSConfig().GetConfigForClient(nil)
	require.NoError(t, err)
	assert.NotNil(t, serverCfg.ClientCAs)
}

func TestTLSReloader_ReloadsOnRotation(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	require.NoError(t, store.EnsureStorageDir())
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	reloader := NewTLSReloader(store.BaseDir(), worker, testLogger, WithDebounce(20*time.Millisecond))
	reloader.StartAsync()
	defer reloader.Stop()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, worker.cycle(context.Background()))

	require.Eventually(t, func() bool {
		_, err := reloader.Certificate()
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	first, err := reloader.Certificate()
	require.NoError(t, err)

	worker.ForceRefresh()
	require.NoError(t, worker.cycle(context.Background()))

	require.Eventually(t, func() bool {
		current, err := reloader.Certificate()
		return err == nil && current != first
	}, 5*time.Second, 20*time.Millisecond)
}
