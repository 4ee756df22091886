package trustmanager

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/inaetics/node-wiring-go/interfaces"
)

var ErrNoCertificate = errors.New("no client certificate available")

// reloadTriggers are the store files whose replacement changes the current material.
var reloadTriggers = map[string]bool{
	"manifest.json": true,
	"ca.pem":        true,
}

// TLSReloader keeps the current client certificate and CA pool in memory and
// reloads them when the store directory changes.
type TLSReloader struct {
	dir      string
	provider interfaces.CertificateProvider
	log      *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate
	pool *x509.CertPool

	timerMu sync.Mutex
	timer   *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// TLSReloaderOption configures a TLSReloader.
type TLSReloaderOption func(*TLSReloader)

// WithDebounce sets how long the reloader waits for changes to settle.
func WithDebounce(d time.Duration) TLSReloaderOption {
	return func(r *TLSReloader) {
		r.debounce = d
	}
}

// NewTLSReloader creates a reloader for the store rooted at dir. Missing
// material is not an error; it is picked up once the worker writes it.
func NewTLSReloader(dir string, provider interfaces.CertificateProvider, log *slog.Logger, opts ...TLSReloaderOption) *TLSReloader {
	r := &TLSReloader{
		dir:      dir,
		provider: provider,
		log:      log,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.Reload(); err != nil {
		r.log.Debug("TLS material not loaded yet", "err", err)
	}
	return r
}

// Reload reads the current certificate, key and CA certificate from the provider.
func (r *TLSReloader) Reload() error {
	certPEM, err := r.provider.CurrentCertificateContent()
	if err != nil {
		return err
	}
	keyPEM, err := r.provider.CurrentPrivateKeyContent()
	if err != nil {
		return err
	}
	caPEM, err := r.provider.CurrentCACertificateContent()
	if err != nil {
		return err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return fmt.Errorf("%w: no CA certificate in %d bytes", interfaces.ErrMalformedKey, len(caPEM))
	}

	r.mu.Lock()
	r.cert = &cert
	r.pool = pool
	r.mu.Unlock()

	r.log.Info("TLS material reloaded", "dir", r.dir)
	return nil
}

// Start watches the store directory and blocks until Stop is called.
func (r *TLSReloader) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	r.log.Debug("TLS reloader started", "dir", r.dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !reloadTriggers[filepath.Base(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error("TLS reloader watch error", "err", err)

		case <-r.done:
			r.timerMu.Lock()
			if r.timer != nil {
				r.timer.Stop()
			}
			r.timerMu.Unlock()
			return nil
		}
	}
}

// StartAsync runs Start in a goroutine.
func (r *TLSReloader) StartAsync() {
	go func() {
		if err := r.Start(); err != nil {
			r.log.Error("TLS reloader stopped", "err", err)
		}
	}()
}

// Stop ends watching. It is safe to call more than once.
func (r *TLSReloader) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// scheduleReload reloads once no trigger arrived for the debounce period.
func (r *TLSReloader) scheduleReload() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()

	if r.timer != nil {
		r.timer.Reset(r.debounce)
		return
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		if err := r.Reload(); err != nil {
			r.log.Warn("TLS reload failed", "err", err)
		}
	})
}

// Certificate returns the loaded certificate or ErrNoCertificate.
func (r *TLSReloader) Certificate() (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, ErrNoCertificate
	}
	return r.cert, nil
}

// RootCAs returns the loaded CA pool, nil if nothing is loaded.
func (r *TLSReloader) RootCAs() *x509.CertPool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pool
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *TLSReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate()
}

// GetClientCertificate implements tls.Config.GetClientCertificate.
func (r *TLSReloader) GetClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return r.Certificate()
}

// ClientTLSConfig returns a client config presenting the current certificate
// and trusting the CA loaded at the time of the call.
func (r *TLSReloader) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:           tls.VersionTLS12,
		RootCAs:              r.RootCAs(),
		GetClientCertificate: r.GetClientCertificate,
	}
}

// ServerTLSConfig returns a server config requiring client certificates issued
// by the current CA.
func (r *TLSReloader) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return &tls.Config{
				MinVersion:     tls.VersionTLS12,
				GetCertificate: r.GetCertificate,
				ClientCAs:      r.RootCAs(),
				ClientAuth:     tls.RequireAndVerifyClientCert,
			}, nil
		},
	}
}
