package trustmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/metrics"
	"go.uber.org/atomic"
)

const (
	DefaultRefreshInterval = 5 * time.Second
	// DefaultCARetries bounds how often a failed CA certificate load is
	// retried after refetching it from the CA.
	DefaultCARetries = 2
)

// Config tunes a Worker. Zero values take the defaults.
type Config struct {
	RefreshInterval time.Duration
	Threshold       time.Duration
	CARetries       uint
	CARetryDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = cryptoutils.DefaultRefreshThreshold
	}
	if c.CARetries == 0 {
		c.CARetries = DefaultCARetries
	}
	if c.CARetryDelay <= 0 {
		c.CARetryDelay = 100 * time.Millisecond
	}
}

// Worker rotates the client certificate held in a CertificateStore.
type Worker struct {
	cfg   Config
	codec *cryptoutils.Codec
	ca    interfaces.CAClient
	store interfaces.CertificateStore
	log   *slog.Logger

	state        atomic.Int32
	forceRefresh atomic.Bool
	wake         chan struct{}

	lastRotation atomic.Time
	lastError    atomic.Error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewWorker wires a worker. It does nothing until Start or Run is called.
func NewWorker(cfg Config, codec *cryptoutils.Codec, ca interfaces.CAClient, store interfaces.CertificateStore, log *slog.Logger) *Worker {
	cfg.applyDefaults()
	return &Worker{
		cfg:   cfg,
		codec: codec,
		ca:    ca,
		store: store,
		log:   log,
		wake:  make(chan struct{}, 1),
	}
}

// State returns the step the worker is currently in.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// LastRotation returns the time of the last successful rekey, zero if none.
func (w *Worker) LastRotation() time.Time {
	return w.lastRotation.Load()
}

// LastError returns the error of the last failed cycle step, if any.
func (w *Worker) LastError() error {
	return w.lastError.Load()
}

func (w *Worker) setState(s State) {
	if State(w.state.Swap(int32(s))) != s {
		w.log.Debug("Trust worker transition", "state", s.String())
	}
}

// Run executes cycles until ctx is cancelled. It returns nil on cancellation
// and an ErrStorageUnavailable error when the storage directory is unusable.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.cycle(ctx); err != nil {
			w.setState(StateFailed)
			w.lastError.Store(err)
			metrics.RecordTrustCycle("failed")
			w.log.Error("Trust worker failed", "err", err)
			return err
		}

		if !w.sleep(ctx) {
			w.setState(StateStopped)
			return nil
		}
	}
}

// Start runs the worker in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		err := w.Run(ctx)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
}

// Done is closed once a started worker has returned.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err returns the error Run returned, nil while running.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Shutdown stops a started worker and waits for it. No store write happens
// after it returns.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ForceRefresh makes the next cycle rekey and refetch the CA certificate
// regardless of verification, waking a sleeping worker.
func (w *Worker) ForceRefresh() {
	w.forceRefresh.Store(true)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) cycle(ctx context.Context) error {
	w.setState(StateIdle)

	if err := w.store.EnsureStorageDir(); err != nil {
		if !errors.Is(err, interfaces.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", interfaces.ErrStorageUnavailable, err)
		}
		return err
	}

	forced := w.forceRefresh.Swap(false)

	w.setState(StateLoadCACert)
	caCert, err := w.loadCACert(ctx, forced)
	if err != nil {
		if ctx.Err() == nil {
			w.lastError.Store(err)
			metrics.RecordTrustCycle("ca-unavailable")
			w.log.Warn("CA certificate unavailable", "err", err)
		}
		if forced {
			w.forceRefresh.Store(true)
		}
		return nil
	}

	rekey := forced
	if !rekey {
		w.setState(StateLoadClientCert)
		cert, err := w.loadClientCert()
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			w.log.Info("No client certificate present")
			rekey = true
		case err != nil:
			w.log.Warn("Client certificate unreadable", "err", err)
			rekey = true
		default:
			w.setState(StateVerify)
			if err := caCert.VerifyCertificate(cert, w.cfg.Threshold); err != nil {
				w.log.Info("Client certificate needs rotation", "reason", err)
				rekey = true
			} else {
				recordExpiry(cert)
			}
		}
	}

	if !rekey {
		metrics.RecordTrustCycle("verified")
		w.prune()
		return nil
	}

	if ctx.Err() != nil {
		return nil
	}

	w.setState(StateRekey)
	start := time.Now()
	if err := w.rekey(ctx, caCert); err != nil {
		metrics.RecordRotation("failed", time.Since(start).Seconds())
		metrics.RecordTrustCycle("rekey-failed")
		w.lastError.Store(err)
		w.log.Error("Rekey failed", "err", err)
		return nil
	}

	metrics.RecordRotation("success", time.Since(start).Seconds())
	metrics.RecordTrustCycle("rotated")
	w.lastRotation.Store(time.Now())
	w.lastError.Store(nil)
	w.prune()
	return nil
}

// loadCACert reads the stored CA certificate, refetching it from the CA when
// it is absent, unreadable or when refresh is set.
func (w *Worker) loadCACert(ctx context.Context, refresh bool) (cryptoutils.CACert, error) {
	var caCert cryptoutils.CACert

	err := retry.Do(
		func() error {
			if !refresh {
				content, err := w.store.ReadArtifactContent(interfaces.ArtifactCACertificate)
				if err == nil {
					caCert, err = cryptoutils.NewCACert(content)
					if err == nil {
						return nil
					}
					w.log.Warn("Stored CA certificate is invalid", "err", err)
				} else if errors.Is(err, interfaces.ErrStorageUnavailable) {
					return retry.Unrecoverable(err)
				}
			}
			refresh = false

			return w.refreshCACert(ctx)
		},
		retry.Attempts(w.cfg.CARetries+1),
		retry.Delay(w.cfg.CARetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.log.Debug("Retrying CA certificate load", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	if caCert == nil {
		content, err := w.store.ReadArtifactContent(interfaces.ArtifactCACertificate)
		if err != nil {
			return nil, err
		}
		return cryptoutils.NewCACert(content)
	}
	return caCert, nil
}

func (w *Worker) refreshCACert(ctx context.Context) error {
	caCert, err := w.ca.RequestCACertificate(ctx)
	if err != nil {
		return err
	}

	path, err := w.store.NextPath(interfaces.ArtifactCACertificate)
	if err != nil {
		return err
	}
	if err := w.store.WriteArtifact(caCert, path, false); err != nil {
		return err
	}

	w.log.Info("Fetched CA certificate", "path", path)
	return nil
}

func (w *Worker) loadClientCert() (cryptoutils.TLSCert, error) {
	content, err := w.store.ReadArtifactContent(interfaces.ArtifactCertificate)
	if err != nil {
		return nil, err
	}
	return cryptoutils.NewTLSCert(content)
}

// rekey writes a new generation. Any failure discards the pending generation.
func (w *Worker) rekey(ctx context.Context, caCert cryptoutils.CACert) (err error) {
	defer func() {
		if err != nil {
			if abortErr := w.store.Abort(); abortErr != nil {
				w.log.Warn("Failed to discard pending generation", "err", abortErr)
			}
		}
	}()

	key, err := w.codec.GenerateKeypair()
	if err != nil {
		return err
	}

	pubPEM, err := w.codec.RenderPublicKey(key)
	if err != nil {
		return err
	}
	privPEM, err := w.codec.RenderPrivateKey(key)
	if err != nil {
		return err
	}

	if err := w.write(interfaces.ArtifactPublicKey, pubPEM, false); err != nil {
		return err
	}
	if err := w.write(interfaces.ArtifactPrivateKey, privPEM, false); err != nil {
		return err
	}

	cert, err := w.ca.SignCSR(ctx, key)
	if err != nil {
		return err
	}

	if err := cryptoutils.VerifyKeyMatchesCertificate(privPEM, cert); err != nil {
		return fmt.Errorf("%w: signed certificate does not match key: %w", interfaces.ErrCAResponseInvalid, err)
	}
	if err := caCert.VerifyCertificate(cert, 0); err != nil {
		return err
	}

	if err := w.write(interfaces.ArtifactCertificate, cert, false); err != nil {
		return err
	}

	// The bundle is the certificate followed by the key and the CA certificate.
	if err := w.write(interfaces.ArtifactFullBundle, cert, false); err != nil {
		return err
	}
	if err := w.write(interfaces.ArtifactFullBundle, privPEM, true); err != nil {
		return err
	}
	if err := w.write(interfaces.ArtifactFullBundle, caCert, true); err != nil {
		return err
	}

	if err := w.store.Commit(); err != nil {
		return err
	}

	recordExpiry(cert)
	w.log.Info("Rotated client certificate")
	return nil
}

func (w *Worker) write(kind interfaces.ArtifactKind, pem []byte, appendMode bool) error {
	path, err := w.store.NextPath(kind)
	if err != nil {
		return err
	}
	return w.store.WriteArtifact(pem, path, appendMode)
}

func (w *Worker) prune() {
	if err := w.store.Prune(); err != nil {
		w.log.Warn("Failed to prune old generations", "err", err)
	}
}

// sleep waits for the refresh interval or a forced refresh. It returns false
// once ctx is done.
func (w *Worker) sleep(ctx context.Context) bool {
	w.setState(StateSleep)

	timer := time.NewTimer(w.cfg.RefreshInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-w.wake:
	}
	return ctx.Err() == nil
}

func recordExpiry(cert cryptoutils.TLSCert) {
	if x509Cert, err := cert.GetX509Cert(); err == nil {
		metrics.TrustCertificateExpiry.Set(float64(x509Cert.NotAfter.Unix()))
	}
}
