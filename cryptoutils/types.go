package cryptoutils

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// DefaultRefreshThreshold is how long before expiry a certificate is already
// treated as needing rotation.
const DefaultRefreshThreshold = 30 * time.Second

// TLSCSR represents a TLS Certificate Signing Request in PEM format.
type TLSCSR []byte

// NewTLSCSR creates a new CSR object from PEM-encoded data with validation.
func NewTLSCSR(data []byte) (TLSCSR, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return TLSCSR{}, errors.New("invalid CSR: not in PEM format or not a certificate request")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return TLSCSR{}, fmt.Errorf("invalid CSR structure: %w", err)
	}

	if err := csr.CheckSignature(); err != nil {
		return TLSCSR{}, fmt.Errorf("invalid CSR signature: %w", err)
	}

	return TLSCSR(data), nil
}

// Validate checks if the CSR is properly formed.
func (csr TLSCSR) Validate() error {
	_, err := NewTLSCSR(csr)
	return err
}

// GetX509CSR returns the parsed X.509 certificate request.
func (csr TLSCSR) GetX509CSR() (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csr)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// TLSCert represents a TLS Certificate in PEM format.
type TLSCert []byte

// NewTLSCert creates a new certificate object from PEM-encoded data with validation.
func NewTLSCert(data []byte) (TLSCert, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return TLSCert{}, errors.New("invalid certificate: not in PEM format or not a certificate")
	}

	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return TLSCert{}, fmt.Errorf("invalid certificate structure: %w", err)
	}

	return TLSCert(data), nil
}

// Validate checks if the certificate is properly formed.
func (cert TLSCert) Validate() error {
	_, err := NewTLSCert(cert)
	return err
}

// GetX509Cert returns the parsed X.509 certificate.
func (cert TLSCert) GetX509Cert() (*x509.Certificate, error) {
	block, _ := pem.Decode(cert)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// IsExpired checks if the certificate has expired.
func (cert TLSCert) IsExpired() (bool, error) {
	x509Cert, err := cert.GetX509Cert()
	if err != nil {
		return false, err
	}
	return x509Cert.NotAfter.Before(time.Now()), nil
}

// CACert represents a Certificate Authority Certificate in PEM format.
type CACert []byte

// NewCACert creates a new CA certificate object from PEM-encoded data with validation.
func NewCACert(data []byte) (CACert, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return CACert{}, errors.New("invalid CA certificate: not in PEM format or not a certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return CACert{}, fmt.Errorf("invalid CA certificate structure: %w", err)
	}

	if !cert.IsCA {
		return CACert{}, errors.New("certificate is not a CA certificate (IsCA flag not set)")
	}

	return CACert(data), nil
}

// Validate checks if the CA certificate is properly formed.
func (ca CACert) Validate() error {
	_, err := NewCACert(ca)
	return err
}

// GetX509Cert returns the parsed X.509 certificate.
func (ca CACert) GetX509Cert() (*x509.Certificate, error) {
	block, _ := pem.Decode(ca)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// CertPool returns a pool holding only this CA.
func (ca CACert) CertPool() (*x509.CertPool, error) {
	caCert, err := ca.GetX509Cert()
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	return pool, nil
}

// VerifyCertificate checks that cert chains to this CA and stays valid for
// longer than threshold. Every failure wraps ErrVerificationFailed.
func (ca CACert) VerifyCertificate(cert TLSCert, threshold time.Duration) error {
	return ca.VerifyCertificateAt(cert, threshold, time.Now())
}

// VerifyCertificateAt is VerifyCertificate evaluated at now.
func (ca CACert) VerifyCertificateAt(cert TLSCert, threshold time.Duration, now time.Time) error {
	caPool, err := ca.CertPool()
	if err != nil {
		return fmt.Errorf("%w: parse CA certificate: %w", ErrVerificationFailed, err)
	}

	leafCert, err := cert.GetX509Cert()
	if err != nil {
		return fmt.Errorf("%w: parse certificate: %w", ErrVerificationFailed, err)
	}

	_, err = leafCert.Verify(x509.VerifyOptions{
		Roots:       caPool,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if remaining := leafCert.NotAfter.Sub(now); remaining <= threshold {
		return fmt.Errorf("%w: certificate expires in %s, refresh threshold is %s", ErrVerificationFailed, remaining.Round(time.Second), threshold)
	}

	return nil
}

// PublicKeyPEM represents an RSA public key in PKIX PEM format.
type PublicKeyPEM []byte

// RSAPublicKey returns the parsed RSA public key.
func (pub PublicKeyPEM) RSAPublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pub)
	if block == nil || (block.Type != "PUBLIC KEY" && block.Type != "RSA PUBLIC KEY") {
		return nil, errors.New("invalid public key: not in PEM format or not a public key")
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key structure: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type: %T", parsed)
	}
	return key, nil
}

// PrivateKeyPEM represents an RSA private key in PKCS#1 or PKCS#8 PEM format.
type PrivateKeyPEM []byte

// RSAPrivateKey returns the parsed RSA private key.
func (priv PrivateKeyPEM) RSAPrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(priv)
	if block == nil || (block.Type != "RSA PRIVATE KEY" && block.Type != "PRIVATE KEY") {
		return nil, errors.New("invalid private key: not in PEM format or not a private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key structure: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type: %T", parsed)
	}
	return key, nil
}
