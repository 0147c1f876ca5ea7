package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/providers"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Live holds the current configuration and is swapped on reload. Only
// preferences and credentials are read from it per request; the model
// catalog and chains are built once at startup.
type Live struct {
	current atomic.Pointer[Config]
}

// NewLive wraps cfg.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.current.Store(cfg)
	return l
}

// Current returns the active configuration.
func (l *Live) Current() *Config {
	return l.current.Load()
}

// Store replaces the active configuration.
func (l *Live) Store(cfg *Config) {
	if cfg != nil {
		l.current.Store(cfg)
	}
}

// Preferences returns the configured default preferences.
func (l *Live) Preferences() models.UserPreferences {
	return l.Current().Preferences
}

// Credentials returns the configured credentials with environment fallback.
func (l *Live) Credentials() providers.Credentials {
	return l.Current().Credentials()
}

// Lookup resolves a provider key against the active configuration, so a Live
// can be handed out as long-lived credentials that follow reloads.
func (l *Live) Lookup(provider string) (string, bool) {
	return l.Current().Credentials().Lookup(provider)
}

// Watcher reloads a config file into a Live when it changes on disk.
type Watcher struct {
	path     string
	live     *Live
	logger   *slog.Logger
	debounce time.Duration
	onReload func(*Config)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long to wait for writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// OnReload registers a callback run after each successful reload.
func OnReload(fn func(*Config)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// Watch starts watching path. The parent directory is watched so editors that
// replace the file by rename are seen. Invalid files are logged and ignored.
func Watch(ctx context.Context, path string, live *Live, logger *slog.Logger, opts ...WatchOption) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		live:     live,
		logger:   logger.With("component", "config"),
		debounce: defaultWatchDebounce,
		watcher:  fw,
	}
	for _, opt := range opts {
		opt(w)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(watchCtx)
	return w, nil
}

// Close stops the watcher and waits for it to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.live.Store(cfg)
	w.logger.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
