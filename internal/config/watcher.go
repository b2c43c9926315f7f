package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Change is delivered to a [Watcher] callback after a successful reload.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher monitors a config file, and the vocabulary file it names, for
// changes and calls a callback when either is modified. It uses polling to
// keep dependencies minimal.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)
	log      *slog.Logger

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte
	vocabHash [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine. Call
// [Watcher.Stop] to end polling.
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = mtime
	w.vocabHash = hashFile(cfg.Extraction.VocabularyFile)

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if c, ok := w.check(); ok && w.onChange != nil {
				// Outside the lock so the callback can call Current.
				w.onChange(c)
			}
		}
	}
}

// check reloads the config when its file or the vocabulary file changed.
// It returns false when nothing changed or the new config is invalid; the
// previous config then stays current.
func (w *Watcher) check() (Change, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return Change{}, false
	}

	configTouched := !info.ModTime().Equal(w.lastMtime)
	vocabHash := hashFile(w.current.Extraction.VocabularyFile)
	vocabChanged := vocabHash != w.vocabHash

	if !configTouched && !vocabChanged {
		return Change{}, false
	}

	next := w.current
	if configTouched {
		cfg, hash, mtime, err := w.load()
		if err != nil {
			w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			return Change{}, false
		}
		w.lastMtime = mtime
		if hash != w.lastHash {
			w.lastHash = hash
			next = cfg
		}
	}

	if next == w.current && !vocabChanged {
		// Touched without a content change.
		return Change{}, false
	}

	c := Change{Old: w.current, New: next, Diff: Diff(w.current, next)}
	if vocabChanged {
		c.Diff.VocabularyChanged = true
	}
	w.current = next
	w.vocabHash = hashFile(next.Extraction.VocabularyFile)

	w.log.Info("config watcher: configuration reloaded",
		"path", w.path,
		"hot_reloadable", c.Diff.HotReloadable(),
		"restart_required", c.Diff.RestartRequired,
	)
	return c, true
}

// load reads, parses and validates the config file and returns it with the
// file's SHA-256 hash and modification time.
func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}

// hashFile returns the SHA-256 of the file at path. A missing path or file
// hashes to zero.
func hashFile(path string) [sha256.Size]byte {
	if path == "" {
		return [sha256.Size]byte{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("config watcher: cannot read vocabulary file", "path", path, "err", err)
		}
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}
