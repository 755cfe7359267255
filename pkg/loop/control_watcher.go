// pkg/loop/control_watcher.go
package loop

import (
	"crypto/sha256"
	"log"
	"os"
	"sync"
	"time"
)

// ControlWatcher watches a loop-control.yaml file for changes and
// hot-reloads it. A missing or unparsable file keeps the last good config.
type ControlWatcher struct {
	path        string
	interval    time.Duration
	current     *ControlConfig
	lastHash    [32]byte
	mu          sync.RWMutex
	stopCh      chan struct{}
	stopOnce    sync.Once
	started     bool
	errorLogger *log.Logger
}

// ControlWatcherOption configures a ControlWatcher.
type ControlWatcherOption func(*ControlWatcher)

// WithErrorLogger sets the logger for control watcher errors.
func WithErrorLogger(logger *log.Logger) ControlWatcherOption {
	return func(w *ControlWatcher) {
		w.errorLogger = logger
	}
}

// NewControlWatcher creates a ControlWatcher that polls the given path at
// the specified interval. Default interval is 1 second if zero.
func NewControlWatcher(path string, interval time.Duration, opts ...ControlWatcherOption) *ControlWatcher {
	if interval == 0 {
		interval = time.Second
	}
	w := &ControlWatcher{
		path:     path,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start loads the config and begins polling. Returns an error if the file
// cannot be read or parsed on startup.
func (w *ControlWatcher) Start() error {
	if w == nil {
		return nil
	}

	cfg, hash, err := w.loadAndHash()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg
	w.lastHash = hash
	w.started = true
	w.mu.Unlock()

	go w.poll()

	return nil
}

// Stop stops watching the control file. Safe to call multiple times.
func (w *ControlWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Config returns the current control configuration.
func (w *ControlWatcher) Config() *ControlConfig {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ControlWatcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *ControlWatcher) checkForChanges() {
	cfg, hash, err := w.loadAndHash()
	if err != nil {
		// Keep the last good config; a half-written control file must not
		// take the loop down.
		w.logError("control watcher reload failed: %v", err)
		return
	}

	w.mu.Lock()
	changed := hash != w.lastHash
	if changed {
		w.current = cfg
		w.lastHash = hash
	}
	w.mu.Unlock()
}

func (w *ControlWatcher) loadAndHash() (*ControlConfig, [32]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [32]byte{}, err
	}
	cfg, err := ParseControlConfig(data)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}

func (w *ControlWatcher) logError(format string, args ...any) {
	if w.errorLogger != nil {
		w.errorLogger.Printf(format, args...)
	}
}
