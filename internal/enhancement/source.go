package enhancement

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source hands out the snapshot a request should use from start to finish.
type Source interface {
	Current() *Snapshot
}

// StaticSource always returns the same snapshot.
type StaticSource struct {
	snap *Snapshot
}

func NewStaticSource(snap *Snapshot) *StaticSource {
	if snap == nil {
		snap = NewSnapshot(nil, "")
	}
	return &StaticSource{snap: snap}
}

func (s *StaticSource) Current() *Snapshot { return s.snap }

// LoadSource loads path once into a StaticSource, falling back to the
// built-in configuration when the file is unusable.
func LoadSource(path string, logger *zap.Logger) *StaticSource {
	return NewStaticSource(loadSnapshot(path, logger))
}

func loadSnapshot(path string, logger *zap.Logger) *Snapshot {
	cfg, err := LoadFile(path)
	if err != nil {
		logger.Warn("enhancement config unavailable, using built-in fallback", zap.String("path", path), zap.Error(err))
		return NewSnapshot(Fallback(), "fallback")
	}
	for _, problem := range cfg.Validate() {
		logger.Warn("enhancement config problem", zap.String("path", path), zap.String("problem", problem))
	}
	return NewSnapshot(cfg, path)
}

// Watcher reloads the configuration file when it changes on disk. A reload
// that fails to parse keeps the previous snapshot.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	onReload func(*Snapshot)

	current atomic.Pointer[Snapshot]
	watcher *fsnotify.Watcher

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithReloadHook is called after every successful reload.
func WithReloadHook(fn func(*Snapshot)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher loads path and starts watching its directory.
func NewWatcher(path string, debounce time.Duration, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	clean := filepath.Clean(path)
	if err := fw.Add(filepath.Dir(clean)); err != nil {
		fw.Close()
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	w := &Watcher{
		path:     clean,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(loadSnapshot(clean, logger))

	go w.run()
	return w, nil
}

func (w *Watcher) Current() *Snapshot { return w.current.Load() }

// Reload re-reads the file now.
func (w *Watcher) Reload() error {
	cfg, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	for _, problem := range cfg.Validate() {
		w.logger.Warn("enhancement config problem", zap.String("path", w.path), zap.String("problem", problem))
	}
	snap := NewSnapshot(cfg, w.path)
	w.current.Store(snap)
	w.logger.Info("enhancement config reloaded",
		zap.String("path", w.path),
		zap.String("version", snap.Version()),
		zap.String("fingerprint", snap.Fingerprint()))
	if w.onReload != nil {
		w.onReload(snap)
	}
	return nil
}

// Close stops the watch loop and waits for it to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.doneCh
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("enhancement config watch error", zap.Error(err))
		case <-timerC:
			timerC = nil
			if err := w.Reload(); err != nil {
				w.logger.Warn("enhancement config reload failed, keeping previous",
					zap.String("path", w.path), zap.Error(err))
			}
		}
	}
}
