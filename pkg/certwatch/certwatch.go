// Package certwatch hot-reloads the server's TLS certificate when its PEM
// files change on disk, so a renewed cert/key pair can be dropped in place
// without restarting the listener.
package certwatch

import (
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/shroud/pkg/log"
)

// Watcher monitors a certificate/key file pair and keeps an atomically
// swappable *tls.Certificate current.
type Watcher struct {
	mu sync.Mutex

	certFile string
	keyFile  string
	logger   *log.Logger

	fsWatcher *fsnotify.Watcher
	current   atomic.Pointer[tls.Certificate]

	debounceDelay time.Duration
	eventTimer    *time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a watcher for the given certificate/key pair and loads the
// initial certificate. The returned Watcher's GetCertificate method can be
// assigned directly to tls.Config.GetCertificate.
func New(certFile, keyFile string, logger *log.Logger) (*Watcher, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		certFile:      certFile,
		keyFile:       keyFile,
		logger:        logger,
		fsWatcher:     fsw,
		debounceDelay: 250 * time.Millisecond,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	w.current.Store(&cert)

	if err := fsw.Add(certFile); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(keyFile); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start begins watching for file changes in the background.
func (w *Watcher) Start() {
	go w.processEvents()
}

// Stop stops the watcher and releases its fsnotify resources.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.fsWatcher.Close()
}

// GetCertificate implements the tls.Config.GetCertificate signature.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.current.Load(), nil
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.mu.Lock()
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			w.mu.Unlock()
			return

		case _, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			w.eventTimer = time.AfterFunc(w.debounceDelay, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.System().Warn("certificate watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		w.logger.System().Warn("certificate reload failed, keeping previous certificate",
			"error", err.Error())
		return
	}
	w.current.Store(&cert)
	w.logger.System().Info("certificate reloaded", "cert_file", w.certFile)
}
