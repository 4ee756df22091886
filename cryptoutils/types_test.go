package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCA struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
	pem  CACert
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &testCA{
		key:  key,
		cert: cert,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

func (ca *testCA) issue(t *testing.T, pub *rsa.PublicKey, notAfter time.Time) TLSCert {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestCACert_VerifyCertificate_Threshold(t *testing.T) {
	ca := newTestCA(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name      string
		expiresIn time.Duration
		wantValid bool
	}{
		{name: "expires within threshold", expiresIn: 10 * time.Second, wantValid: false},
		{name: "expires in an hour", expiresIn: 3600 * time.Second, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := ca.issue(t, &key.PublicKey, time.Now().Add(tt.expiresIn))
			err := ca.pem.VerifyCertificate(cert, DefaultRefreshThreshold)
			if tt.wantValid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrVerificationFailed)
			}
		})
	}
}

func TestCACert_VerifyCertificate_WrongSigner(t *testing.T) {
	ca := newTestCA(t)
	other := newTestCA(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cert := other.issue(t, &key.PublicKey, time.Now().Add(time.Hour))
	assert.ErrorIs(t, ca.pem.VerifyCertificate(cert, DefaultRefreshThreshold), ErrVerificationFailed)
}

func TestCACert_VerifyCertificate_Malformed(t *testing.T) {
	ca := newTestCA(t)
	assert.ErrorIs(t, ca.pem.VerifyCertificate(TLSCert("garbage"), 0), ErrVerificationFailed)
	assert.ErrorIs(t, CACert("garbage").VerifyCertificate(TLSCert("garbage"), 0), ErrVerificationFailed)
}

func TestNewCACert_RejectsLeaf(t *testing.T) {
	ca := newTestCA(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leaf := ca.issue(t, &key.PublicKey, time.Now().Add(time.Hour))

	_, err = NewCACert(leaf)
	assert.Error(t, err)

	_, err = NewCACert(ca.pem)
	assert.NoError(t, err)
}

func TestVerifyKeyMatchesCertificate(t *testing.T) {
	ca := newTestCA(t)
	codec := NewCodec(rand.Reader)
	key, err := codec.GenerateKeypair()
	require.NoError(t, err)
	other, err := codec.GenerateKeypair()
	require.NoError(t, err)

	cert := ca.issue(t, &key.PublicKey, time.Now().Add(time.Hour))
	keyPEM, err := codec.RenderPrivateKey(key)
	require.NoError(t, err)
	otherPEM, err := codec.RenderPrivateKey(other)
	require.NoError(t, err)

	assert.NoError(t, VerifyKeyMatchesCertificate(keyPEM, cert))
	assert.Error(t, VerifyKeyMatchesCertificate(otherPEM, cert))
	assert.Error(t, VerifyKeyMatchesCertificate([]byte("nope"), cert))
}
