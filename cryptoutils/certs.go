package cryptoutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// VerifyKeyMatchesCertificate checks that the private key in keyPEM belongs to
// the public key of the certificate in certPEM. PKCS#1, PKCS#8 and SEC1 keys
// are accepted.
func VerifyKeyMatchesCertificate(keyPEM, certPEM []byte) error {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return errors.New("failed to decode private key PEM block")
	}

	privateKey, err := parseAnyPrivateKey(keyBlock)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return errors.New("failed to decode certificate PEM block")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	privatePublicKey := privateKey.(interface{ Public() crypto.PublicKey }).Public()

	switch certKey := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		rsaKey, ok := privatePublicKey.(*rsa.PublicKey)
		if !ok {
			return errors.New("private key type doesn't match certificate")
		}
		if !certKey.Equal(rsaKey) {
			return errors.New("private key doesn't match certificate")
		}
		return nil
	case *ecdsa.PublicKey:
		ecdsaKey, ok := privatePublicKey.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("private key type doesn't match certificate")
		}
		if !certKey.Equal(ecdsaKey) {
			return errors.New("private key doesn't match certificate")
		}
		return nil
	}

	return errors.New("unsupported key type")
}

func parseAnyPrivateKey(block *pem.Block) (any, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
}
