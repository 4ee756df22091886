package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// RSAKeyBits is the modulus size of generated keypairs.
	RSAKeyBits = 2048

	// SubjectOrganization and SubjectCountry complete the CSR subject.
	SubjectOrganization = "INAETICS"
	SubjectCountry      = "NL"

	// DefaultPersonalization separates the trust manager's DRBG output.
	DefaultPersonalization = "inaetics_trust_manager_keygen"
)

var (
	oidExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtensionExtendedKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtKeyUsageClientAuth     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
	oidNetscapeCertType          = asn1.ObjectIdentifier{2, 16, 840, 1, 113730, 1, 1}
)

// Codec generates keypairs and certificate requests from its own random source.
type Codec struct {
	rand io.Reader
	bits int
}

// NewCodec returns a codec reading randomness from r.
func NewCodec(r io.Reader) *Codec {
	return &Codec{rand: r, bits: RSAKeyBits}
}

// NewDefaultCodec returns a codec backed by a DRBG seeded from crypto/rand.
func NewDefaultCodec(personalization string) (*Codec, error) {
	drbg, err := NewDRBG(rand.Reader, personalization)
	if err != nil {
		return nil, err
	}
	return NewCodec(drbg), nil
}

// GenerateKeypair generates an RSA keypair with public exponent 65537.
func (c *Codec) GenerateKeypair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(c.rand, c.bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeygen, err)
	}
	return key, nil
}

// RenderPublicKey serializes the public half of key as a PKIX PEM block.
func (c *Codec) RenderPublicKey(key *rsa.PrivateKey) (PublicKeyPEM, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %w", ErrEncoding, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// RenderPrivateKey serializes key as a PKCS#1 PEM block.
func (c *Codec) RenderPrivateKey(key *rsa.PrivateKey) (PrivateKeyPEM, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrEncoding)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}), nil
}

// BuildCSR creates a SHA-256 signed certificate request for
// CN=<commonName>,O=INAETICS,C=NL asking for a key encipherment SSL client certificate.
func (c *Codec) BuildCSR(key *rsa.PrivateKey, commonName string) (TLSCSR, error) {
	extensions, err := clientExtensions()
	if err != nil {
		return nil, err
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{SubjectOrganization},
			Country:      []string{SubjectCountry},
		},
		SignatureAlgorithm: x509.SHA256WithRSA,
		ExtraExtensions:    extensions,
	}

	der, err := x509.CreateCertificateRequest(c.rand, &template, key)
	if err != nil {
		return nil, fmt.Errorf("%w: create certificate request: %w", ErrEncoding, err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}

// clientExtensions encodes key usage, extended key usage and the Netscape
// certificate type for an SSL client.
func clientExtensions() ([]pkix.Extension, error) {
	keyUsage, err := asn1.Marshal(asn1.BitString{Bytes: []byte{0x20}, BitLength: 3})
	if err != nil {
		return nil, fmt.Errorf("%w: key usage: %w", ErrEncoding, err)
	}

	extKeyUsage, err := asn1.Marshal([]asn1.ObjectIdentifier{oidExtKeyUsageClientAuth})
	if err != nil {
		return nil, fmt.Errorf("%w: extended key usage: %w", ErrEncoding, err)
	}

	nsCertType, err := asn1.Marshal(asn1.BitString{Bytes: []byte{0x80}, BitLength: 1})
	if err != nil {
		return nil, fmt.Errorf("%w: netscape cert type: %w", ErrEncoding, err)
	}

	return []pkix.Extension{
		{Id: oidExtensionKeyUsage, Critical: true, Value: keyUsage},
		{Id: oidExtensionExtendedKeyUsage, Value: extKeyUsage},
		{Id: oidNetscapeCertType, Value: nsCertType},
	}, nil
}

// SignRequest is the body of a CFSSL sign call.
type SignRequest struct {
	CertificateRequest string `json:"certificate_request"`
}

// CSRRequestJSON wraps csr into the CFSSL sign request envelope. Line breaks of
// the PEM body end up as \n escapes.
func CSRRequestJSON(csr TLSCSR) ([]byte, error) {
	body, err := json.Marshal(SignRequest{CertificateRequest: string(csr)})
	if err != nil {
		return nil, fmt.Errorf("%w: sign request: %w", ErrEncoding, err)
	}
	return body, nil
}
