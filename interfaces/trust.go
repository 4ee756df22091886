package interfaces

import (
	"context"
	"crypto/rsa"
)

// ArtifactKind names one piece of certificate material kept by a CertificateStore.
type ArtifactKind string

const (
	ArtifactCertificate   ArtifactKind = "certificate"
	ArtifactFullBundle    ArtifactKind = "full-bundle"
	ArtifactCACertificate ArtifactKind = "ca-certificate"
	ArtifactPrivateKey    ArtifactKind = "private-key"
	ArtifactPublicKey     ArtifactKind = "public-key"
)

// ArtifactKinds lists every kind in a stable order.
var ArtifactKinds = []ArtifactKind{
	ArtifactCertificate,
	ArtifactFullBundle,
	ArtifactCACertificate,
	ArtifactPrivateKey,
	ArtifactPublicKey,
}

// CAClient performs the signing round trip against a remote certificate authority.
type CAClient interface {
	// RequestCACertificate fetches the CA's own certificate.
	RequestCACertificate(ctx context.Context) (CACert, error)

	// SignCSR builds a CSR for key and returns the certificate signed by the CA.
	SignCSR(ctx context.Context, key *rsa.PrivateKey) (TLSCert, error)
}

// CertificateStore keeps generations of client key material plus the CA certificate.
//
// Writes go to a pending generation obtained through NextPath and become
// visible to MostRecent only after Commit. The CA certificate is not
// generation-tracked and is visible as soon as it is written.
type CertificateStore interface {
	// EnsureStorageDir creates the storage directory with owner-only permissions.
	EnsureStorageDir() error

	// NextPath returns the path the next artifact of kind should be written to.
	NextPath(kind ArtifactKind) (string, error)

	// WriteArtifact writes (or appends) pem to path under an exclusive file lock.
	WriteArtifact(pem []byte, path string, appendMode bool) error

	// Commit makes the pending generation current.
	Commit() error

	// Abort discards the pending generation.
	Abort() error

	// Prune deletes generations beyond the retention count.
	Prune() error

	// MostRecent resolves the current path of kind.
	MostRecent(kind ArtifactKind) (string, error)

	// ReadArtifactContent returns the current content of kind.
	ReadArtifactContent(kind ArtifactKind) ([]byte, error)
}

// CertificateProvider exposes the current trust material to transport components.
type CertificateProvider interface {
	CurrentCertificatePath() (string, error)
	CurrentCertificateContent() ([]byte, error)
	CurrentPrivateKeyPath() (string, error)
	CurrentPrivateKeyContent() ([]byte, error)
	CurrentCACertificatePath() (string, error)
	CurrentCACertificateContent() ([]byte, error)
	CurrentFullBundlePath() (string, error)
	CurrentFullBundleContent() ([]byte, error)
}

// CertificateAuthority signs certificate requests. It backs the CFSSL-compatible
// signing API served by development deployments.
type CertificateAuthority interface {
	CACertificate() (CACert, error)
	SignCSR(csr TLSCSR) (TLSCert, error)
}
