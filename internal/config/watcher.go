package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls when no interval is set.
const DefaultWatchInterval = 5 * time.Second

// Watcher follows a config file on disk and hands each new valid version to
// a callback. Edits that fail to parse or validate are logged and skipped,
// leaving the last good config in place.
type Watcher struct {
	path     string
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte
}

// fileStamp is the cheap part of change detection. Content is only hashed
// once the stamp moves.
type fileStamp struct {
	mtime time.Time
	size  int64
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload and failure messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads the config at path. The file must be valid now; later
// edits are picked up by [Watcher.Run].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, log: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum
	return w, nil
}

// Current returns the last valid config read from disk.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done and calls onChange with the previous
// and the new config after every content change that validates. onChange
// runs on the polling goroutine, so a slow callback delays the next poll.
func (w *Watcher) Run(ctx context.Context, onChange func(old, new *Config)) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if old, cfg, ok := w.poll(); ok && onChange != nil {
				onChange(old, cfg)
			}
		}
	}
}

// poll reports whether the file now holds a different valid config.
func (w *Watcher) poll() (old, cfg *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config file unreadable", "path", w.path, "err", err)
		return nil, nil, false
	}
	w.mu.Lock()
	same := w.stamp.mtime.Equal(info.ModTime()) && w.stamp.size == info.Size()
	w.mu.Unlock()
	if same {
		return nil, nil, false
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		w.log.Warn("config edit rejected, keeping previous", "path", w.path, "err", err)
		w.mu.Lock()
		w.stamp = stamp
		w.mu.Unlock()
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp = stamp
	if sum == w.sum {
		return nil, nil, false
	}
	old, w.current, w.sum = w.current, cfg, sum
	w.log.Info("config reloaded", "path", w.path)
	return old, cfg, true
}

// read loads the file once, returning the parsed config with the stamp and
// checksum of exactly the bytes that were parsed. The stamp is filled even
// when parsing fails, so a broken edit is reported once rather than on every
// tick.
func (w *Watcher) read() (*Config, fileStamp, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	stamp := fileStamp{info.ModTime(), info.Size()}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp, sum, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp, sum, err
	}
	return cfg, stamp, sha256.Sum256(data), nil
}
