package trustmanager

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inaetics/node-wiring-go/api/cfssl"
	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/kms"
	"github.com/inaetics/node-wiring-go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testConfig = Config{
	RefreshInterval: 50 * time.Millisecond,
	CARetryDelay:    time.Millisecond,
}

// MockCAClient implements interfaces.CAClient for testing
type MockCAClient struct {
	mock.Mock
}

func (m *MockCAClient) RequestCACertificate(ctx context.Context) (interfaces.CACert, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.CACert), args.Error(1)
}

func (m *MockCAClient) SignCSR(ctx context.Context, key *rsa.PrivateKey) (interfaces.TLSCert, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.TLSCert), args.Error(1)
}

// startCFSSL serves the CFSSL-compatible API of ca and returns a client for it.
func startCFSSL(t *testing.T, ca *kms.LocalCA) *cfssl.Client {
	t.Helper()

	mux := chi.NewRouter()
	cfssl.NewHandler(ca, testLogger).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return cfssl.NewClient(host, port, cryptoutils.NewCodec(rand.Reader), time.Second, testLogger).
		WithCommonName(func() string { return "10.0.0.7" })
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	return storage.NewFileStore(filepath.Join(t.TempDir(), "trust"), testLogger)
}

func newTestWorker(t *testing.T, ca interfaces.CAClient, store interfaces.CertificateStore) *Worker {
	t.Helper()
	return NewWorker(testConfig, cryptoutils.NewCodec(rand.Reader), ca, store, testLogger)
}

// signWith issues a certificate for key from ca, the way a CFSSL server would.
func signWith(t *testing.T, ca *kms.LocalCA, key *rsa.PrivateKey) interfaces.TLSCert {
	t.Helper()
	csr, err := cryptoutils.NewCodec(rand.Reader).BuildCSR(key, "10.0.0.7")
	require.NoError(t, err)
	cert, err := ca.SignCSR(csr)
	require.NoError(t, err)
	return cert
}

func countPEMBlocks(data []byte) int {
	n := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return n
		}
		n++
	}
}

func TestWorker_FirstCycleRotates(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	require.NoError(t, worker.cycle(context.Background()))

	caPEM, err := worker.CurrentCACertificateContent()
	require.NoError(t, err)
	expectedCA, err := ca.CACertificate()
	require.NoError(t, err)
	assert.Equal(t, []byte(expectedCA), caPEM)

	certPEM, err := worker.CurrentCertificateContent()
	require.NoError(t, err)
	assert.NoError(t, expectedCA.VerifyCertificate(certPEM, cryptoutils.DefaultRefreshThreshold))

	keyPEM, err := worker.CurrentPrivateKeyContent()
	require.NoError(t, err)
	assert.NoError(t, cryptoutils.VerifyKeyMatchesCertificate(keyPEM, certPEM))

	bundle, err := worker.CurrentFullBundleContent()
	require.NoError(t, err)
	assert.Equal(t, 3, countPEMBlocks(bundle))

	for _, accessor := range []func() (string, error){
		worker.CurrentCertificatePath,
		worker.CurrentPrivateKeyPath,
		worker.CurrentCACertificatePath,
		worker.CurrentFullBundlePath,
	} {
		path, err := accessor()
		require.NoError(t, err)
		assert.FileExists(t, path)
	}

	assert.False(t, worker.LastRotation().IsZero())
}

func TestWorker_ValidCertificateIsKept(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	require.NoError(t, worker.cycle(context.Background()))
	first, err := worker.CurrentCertificateContent()
	require.NoError(t, err)

	require.NoError(t, worker.cycle(context.Background()))
	second, err := worker.CurrentCertificateContent()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	gens, err := store.Generations()
	require.NoError(t, err)
	assert.Len(t, gens, 1)
}

func TestWorker_ExpiringCertificateIsRotated(t *testing.T) {
	// Leaves live 10s, below the 30s refresh threshold
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	ca.WithLeafValidity(10 * time.Second)

	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	var certs [][]byte
	for i := 0; i < 3; i++ {
		require.NoError(t, worker.cycle(context.Background()))
		cert, err := worker.CurrentCertificateContent()
		require.NoError(t, err)
		certs = append(certs, cert)
	}

	assert.NotEqual(t, certs[0], certs[1])
	assert.NotEqual(t, certs[1], certs[2])

	gens, err := store.Generations()
	require.NoError(t, err)
	assert.Len(t, gens, storage.DefaultRetention)
}

func TestWorker_ForeignCertificateIsRotated(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	other, err := kms.NewLocalCA("other CA")
	require.NoError(t, err)

	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)
	require.NoError(t, worker.cycle(context.Background()))

	// Replace the committed certificate with one from another CA
	key, err := cryptoutils.NewCodec(rand.Reader).GenerateKeypair()
	require.NoError(t, err)
	path, err := worker.CurrentCertificatePath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, signWith(t, other, key), 0600))

	require.NoError(t, worker.cycle(context.Background()))

	caCert, err := ca.CACertificate()
	require.NoError(t, err)
	cert, err := worker.CurrentCertificateContent()
	require.NoError(t, err)
	assert.NoError(t, caCert.VerifyCertificate(cert, cryptoutils.DefaultRefreshThreshold))
}

func TestWorker_ForceRefresh(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	require.NoError(t, worker.cycle(context.Background()))
	first, err := worker.CurrentCertificateContent()
	require.NoError(t, err)

	worker.ForceRefresh()
	require.NoError(t, worker.cycle(context.Background()))
	second, err := worker.CurrentCertificateContent()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

// flakyCAClient signs with a LocalCA unless signErr is set.
type flakyCAClient struct {
	t         *testing.T
	ca        *kms.LocalCA
	signErr   error
	signCalls int
}

func (c *flakyCAClient) RequestCACertificate(context.Context) (interfaces.CACert, error) {
	return c.ca.CACertificate()
}

func (c *flakyCAClient) SignCSR(_ context.Context, key *rsa.PrivateKey) (interfaces.TLSCert, error) {
	c.signCalls++
	if c.signErr != nil {
		return nil, c.signErr
	}
	return signWith(c.t, c.ca, key), nil
}

func TestWorker_SignFailureKeepsPreviousGeneration(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)

	client := &flakyCAClient{t: t, ca: ca, signErr: interfaces.ErrCAUnreachable}
	store := newTestStore(t)
	worker := newTestWorker(t, client, store)

	// No previous generation: nothing becomes visible and the pending one is discarded
	require.NoError(t, worker.cycle(context.Background()))
	_, err = worker.CurrentCertificatePath()
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.ErrorIs(t, worker.LastError(), interfaces.ErrCAUnreachable)

	dirs, err := filepath.Glob(filepath.Join(store.BaseDir(), "gen-*"))
	require.NoError(t, err)
	assert.Empty(t, dirs)

	// The next cycle retries and succeeds
	client.signErr = nil
	require.NoError(t, worker.cycle(context.Background()))
	good, err := worker.CurrentCertificateContent()
	require.NoError(t, err)
	assert.NoError(t, worker.LastError())

	// A failed forced rotation leaves the good generation current
	client.signErr = interfaces.ErrCAResponseInvalid
	worker.ForceRefresh()
	require.NoError(t, worker.cycle(context.Background()))

	current, err := worker.CurrentCertificateContent()
	require.NoError(t, err)
	assert.Equal(t, good, current)
	assert.Equal(t, 3, client.signCalls)
}

func TestWorker_MismatchedCertificateIsRejected(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	caCert, err := ca.CACertificate()
	require.NoError(t, err)

	otherKey, err := cryptoutils.NewCodec(rand.Reader).GenerateKeypair()
	require.NoError(t, err)

	client := new(MockCAClient)
	client.On("RequestCACertificate", mock.Anything).Return(caCert, nil)
	client.On("SignCSR", mock.Anything, mock.Anything).Return(signWith(t, ca, otherKey), nil)

	worker := newTestWorker(t, client, newTestStore(t))
	require.NoError(t, worker.cycle(context.Background()))

	_, err = worker.CurrentCertificatePath()
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.ErrorIs(t, worker.LastError(), interfaces.ErrCAResponseInvalid)
}

func TestWorker_CAUnavailableIsRetriedThenSkipped(t *testing.T) {
	client := new(MockCAClient)
	client.On("RequestCACertificate", mock.Anything).Return(nil, interfaces.ErrCAUnreachable)

	worker := newTestWorker(t, client, newTestStore(t))
	require.NoError(t, worker.cycle(context.Background()))

	client.AssertNumberOfCalls(t, "RequestCACertificate", int(DefaultCARetries)+1)
	client.AssertNotCalled(t, "SignCSR", mock.Anything, mock.Anything)
	assert.ErrorIs(t, worker.LastError(), interfaces.ErrCAUnreachable)
}

func TestWorker_StorageUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	client := new(MockCAClient)
	worker := newTestWorker(t, client, storage.NewFileStore(file, testLogger))

	err := worker.Run(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrStorageUnavailable)
	assert.Equal(t, StateFailed, worker.State())
	client.AssertNotCalled(t, "RequestCACertificate", mock.Anything)
}

func TestWorker_StartShutdown(t *testing.T) {
	ca, err := kms.NewLocalCA("test CA")
	require.NoError(t, err)
	store := newTestStore(t)
	worker := newTestWorker(t, startCFSSL(t, ca), store)

	worker.Start(context.Background())
	require.Eventually(t, func() bool {
		_, err := worker.CurrentCertificatePath()
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	worker.Shutdown()

	select {
	case <-worker.Done():
	default:
		t.Fatal("worker still running after Shutdown")
	}
	assert.Equal(t, StateStopped, worker.State())
	assert.NoError(t, worker.Err())

	// Shutdown is idempotent
	worker.Shutdown()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "rekey", StateRekey.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
