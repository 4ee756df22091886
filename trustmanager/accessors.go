package trustmanager

import (
	"github.com/inaetics/node-wiring-go/interfaces"
)

var _ interfaces.CertificateProvider = (*Worker)(nil)

func (w *Worker) CurrentCertificatePath() (string, error) {
	return w.store.MostRecent(interfaces.ArtifactCertificate)
}

func (w *Worker) CurrentCertificateContent() ([]byte, error) {
	return w.store.ReadArtifactContent(interfaces.ArtifactCertificate)
}

func (w *Worker) CurrentPrivateKeyPath() (string, error) {
	return w.store.MostRecent(interfaces.ArtifactPrivateKey)
}

func (w *Worker) CurrentPrivateKeyContent() ([]byte, error) {
	return w.store.ReadArtifactContent(interfaces.ArtifactPrivateKey)
}

func (w *Worker) CurrentCACertificatePath() (string, error) {
	return w.store.MostRecent(interfaces.ArtifactCACertificate)
}

func (w *Worker) CurrentCACertificateContent() ([]byte, error) {
	return w.store.ReadArtifactContent(interfaces.ArtifactCACertificate)
}

func (w *Worker) CurrentFullBundlePath() (string, error) {
	return w.store.MostRecent(interfaces.ArtifactFullBundle)
}

func (w *Worker) CurrentFullBundleContent() ([]byte, error) {
	return w.store.ReadArtifactContent(interfaces.ArtifactFullBundle)
}

// ArtifactContent returns the current content of kind.
func (w *Worker) ArtifactContent(kind interfaces.ArtifactKind) ([]byte, error) {
	return w.store.ReadArtifactContent(kind)
}
