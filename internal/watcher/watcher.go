// Package watcher watches the config file and the persisted token record and
// triggers hot reloads. It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/KiteMCP/internal/config"
	"gopkg.in/yaml.v3"
)

const (
	// replaceCheckDelay is a short delay to allow atomic replace (rename) to
	// settle before deciding whether a missing file indicates a real deletion.
	replaceCheckDelay = 50 * time.Millisecond
	reloadDebounce    = 150 * time.Millisecond
)

// Watcher manages file watching for the configuration file and the persisted
// token record. Config changes are republished through the reload callback;
// token record changes invoke the token callback so a session manager can
// rebind credentials written by another process.
type Watcher struct {
	configPath string

	mu             sync.RWMutex
	config         *config.Config
	tokenPath      string
	lastConfigHash string
	lastTokenHash  string
	oldConfigYaml  []byte
	reloadCallback func(*config.Config)
	tokenCallback  func()

	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
	tokenReloadMu     sync.Mutex
	tokenReloadTimer  *time.Timer

	watcher *fsnotify.Watcher
}

// NewWatcher creates a new file watcher instance. tokenPath may name a file
// that does not exist yet: its parent directory is watched so the first save
// is picked up too.
func NewWatcher(configPath, tokenPath string, reloadCallback func(*config.Config)) (*Watcher, error) {
	fsw, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		configPath:     configPath,
		tokenPath:      tokenPath,
		reloadCallback: reloadCallback,
		watcher:        fsw,
	}, nil
}

// Start begins watching the configuration file and the token record.
func (w *Watcher) Start(ctx context.Context) error {
	return w.start(ctx)
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.stopReloadTimers()
	return w.watcher.Close()
}

// SetConfig updates the configuration snapshot used for change diffing.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	w.oldConfigYaml, _ = yaml.Marshal(cfg)
}

// OnTokenChange registers the callback invoked after the token record file
// changes on disk.
func (w *Watcher) OnTokenChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokenCallback = fn
}

func (w *Watcher) tokenPathSnapshot() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tokenPath
}

func (w *Watcher) stopReloadTimers() {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()

	w.tokenReloadMu.Lock()
	if w.tokenReloadTimer != nil {
		w.tokenReloadTimer.Stop()
		w.tokenReloadTimer = nil
	}
	w.tokenReloadMu.Unlock()
}
