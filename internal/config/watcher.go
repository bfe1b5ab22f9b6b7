package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Change is delivered to the [Watcher] callback after a successful reload.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher reloads the config file when it changes on disk or when
// [Watcher.Reload] is called. File system notifications trigger a reload
// right away; polling catches what they miss. Edits that fail to parse or
// validate are logged and ignored; the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)
	trigger  chan struct{}

	mu      sync.Mutex
	current *Config
	raw     []byte
	stamp   fileStamp

	stop     chan struct{}
	stopOnce sync.Once
}

// fileStamp is compared before reading the file on every tick.
type fileStamp struct {
	mod  time.Time
	size int64
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

// NewWatcher loads path once. onChange runs on the [Watcher.Run] goroutine
// for every reload that changes something applicable at runtime; it may be
// nil.
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	cfg, raw, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.raw, w.stamp = cfg, raw, stamp
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload asks [Watcher.Run] to re-read the file now, even if its stamp is
// unchanged. It never blocks.
func (w *Watcher) Reload() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done or [Watcher.Stop] is called. It returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	changed, unwatch := w.notify()
	defer unwatch()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.poll(false)
		case <-w.trigger:
			w.poll(true)
		case <-changed:
			w.poll(true)
		}
	}
}

// notify watches the directory of the config file, since editors often
// replace the file instead of writing it. The returned channel is nil when
// notifications are unavailable.
func (w *Watcher) notify() (<-chan struct{}, func()) {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fw.Add(filepath.Dir(w.path))
		if err != nil {
			fw.Close()
		}
	}
	if err != nil {
		slog.Debug("config: file notifications unavailable, polling only", "path", w.path, "err", err)
		return nil, func() {}
	}

	target := filepath.Clean(w.path)
	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config: file watch error", "path", w.path, "err", err)
			}
		}
	}()
	return out, func() { fw.Close() }
}

// Stop ends [Watcher.Run]. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) poll(force bool) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config: watcher cannot stat file", "path", w.path, "err", err)
			return
		}
		w.mu.Lock()
		same := w.stamp == fileStamp{mod: info.ModTime(), size: info.Size()}
		w.mu.Unlock()
		if same {
			return
		}
	}

	cfg, raw, stamp, err := w.read()
	if err != nil {
		slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	if bytes.Equal(raw, w.raw) {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.raw = cfg, raw
	w.mu.Unlock()

	d := Diff(old, cfg)
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes need a restart to take effect", "sections", d.RestartRequired)
	}
	if !d.HotReloadable() {
		return
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(Change{Old: old, New: cfg, Diff: d})
	}
}

func (w *Watcher) read() (*Config, []byte, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, nil, fileStamp{}, err
	}
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return nil, nil, fileStamp{}, err
	}
	cfg, err := parse(raw)
	if err != nil {
		return nil, nil, fileStamp{}, err
	}
	return cfg, raw, fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}
