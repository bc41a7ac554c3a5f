// Package watcher imports files dropped into watched folders, each folder
// feeding one knowledge base.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/config"
)

// debounce absorbs the write bursts editors and download managers produce;
// a file is imported only after it has been quiet for this long.
const debounce = 400 * time.Millisecond

// Watcher maps directories to knowledge bases with fsnotify. A file created
// or modified under a watched folder is imported into that folder's knowledge
// base; a removed file triggers the remove callback.
type Watcher struct {
	folders  []config.WatchFolder
	onImport func(kbID, path string)
	onRemove func(kbID, path string)
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher over the configured folders. onImport and onRemove
// receive the folder's knowledge base ID and the file path.
func New(folders []config.WatchFolder, onImport, onRemove func(kbID, path string), opts ...Option) *Watcher {
	w := &Watcher{
		folders:  folders,
		onImport: onImport,
		onRemove: onRemove,
		logger:   zap.NewNop(),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing folders are created. Runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, f := range w.folders {
		if err := os.MkdirAll(f.Directory, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		if err := watcher.Add(f.Directory); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		w.logger.Info("watching folder",
			zap.String("directory", f.Directory),
			zap.String("kb_id", f.KBID))
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	go w.run(ctx, watcher)
	return nil
}

// SyncExisting imports every matching file already present in the watched
// folders. Call after Start to pick up files that arrived while the engine
// was down; duplicate-hash detection makes re-imports cheap.
func (w *Watcher) SyncExisting() {
	for _, f := range w.folders {
		folder := f
		filepath.WalkDir(folder.Directory, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if matchExtension(path, folder.Extensions) {
				w.onImport(folder.KBID, path)
			}
			return nil
		})
	}
}

// run consumes events from the captured watcher handle; Stop nils the struct
// field, so the loop must not re-read it.
func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	folder, ok := w.folderFor(ev.Name)
	if !ok || !matchExtension(ev.Name, folder.Extensions) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		w.scheduleImport(folder.KBID, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelImport(ev.Name)
		if w.onRemove != nil {
			w.onRemove(folder.KBID, ev.Name)
		}
	}
}

// folderFor returns the watch folder containing path.
func (w *Watcher) folderFor(path string) (config.WatchFolder, bool) {
	dir := filepath.Clean(filepath.Dir(path))
	for _, f := range w.folders {
		if filepath.Clean(f.Directory) == dir {
			return f, true
		}
	}
	return config.WatchFolder{}, false
}

func (w *Watcher) scheduleImport(kbID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.logger.Debug("importing watched file", zap.String("path", path), zap.String("kb_id", kbID))
		w.onImport(kbID, path)
	})
}

func (w *Watcher) cancelImport(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
