package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/inaetics/node-wiring-go/interfaces"
)

// DefaultLeafValidity is the lifetime of certificates issued by a LocalCA.
const DefaultLeafValidity = 365 * 24 * time.Hour

// LocalCA signs CSRs with an in-memory CA key.
type LocalCA struct {
	mu sync.RWMutex

	key    *ecdsa.PrivateKey
	caCert interfaces.CACert

	leafValidity time.Duration
}

// NewLocalCA creates a CA with a freshly generated key.
func NewLocalCA(commonName string) (*LocalCA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	return newLocalCA(key, commonName)
}

// NewLocalCAFromSeed creates a CA whose key is derived from seed.
// The seed must be at least 32 bytes long.
func NewLocalCAFromSeed(seed []byte, commonName string) (*LocalCA, error) {
	if len(seed) < 32 {
		return nil, errors.New("seed must be at least 32 bytes")
	}
	return newLocalCA(deriveCAKey(seed), commonName)
}

func newLocalCA(key *ecdsa.PrivateKey, commonName string) (*LocalCA, error) {
	certPEM, err := createCACertificate(key, commonName)
	if err != nil {
		return nil, err
	}
	return &LocalCA{
		key:          key,
		caCert:       certPEM,
		leafValidity: DefaultLeafValidity,
	}, nil
}

// WithLeafValidity sets the lifetime of certificates issued afterwards.
func (ca *LocalCA) WithLeafValidity(d time.Duration) *LocalCA {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.leafValidity = d
	return ca
}

// CACertificate returns the PEM encoded CA certificate.
func (ca *LocalCA) CACertificate() (interfaces.CACert, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.caCert, nil
}

// SignCSR signs a certificate signing request.
// Verifies the CSR signature before issuing a client and server certificate.
func (ca *LocalCA) SignCSR(csr interfaces.TLSCSR) (interfaces.TLSCert, error) {
	parsedCSR, err := csr.GetX509CSR()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}

	if err := parsedCSR.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature verification failed: %w", err)
	}

	ca.mu.RLock()
	key, caCertPEM, validity := ca.key, ca.caCert, ca.leafValidity
	ca.mu.RUnlock()

	caCert, err := caCertPEM.GetX509Cert()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               parsedCSR.Subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              parsedCSR.DNSNames,
		IPAddresses:           parsedCSR.IPAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, caCert, parsedCSR.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	}), nil
}

// deriveCAKey derives a P-256 key from seed.
func deriveCAKey(seed []byte) *ecdsa.PrivateKey {
	h := sha256.New()
	h.Write(seed)
	h.Write([]byte("ca"))
	d := h.Sum(nil)

	curve := elliptic.P256()
	n := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	k := new(big.Int).SetBytes(d)
	k.Mod(k, n)
	k.Add(k, big.NewInt(1))

	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         k,
	}
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(k.FillBytes(make([]byte, 32)))
	return privateKey
}

// createCACertificate creates a self-signed CA certificate valid for 10 years.
func createCACertificate(caKey *ecdsa.PrivateKey, cn string) (interfaces.CACert, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"INAETICS"},
			CommonName:   cn,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	}), nil
}
