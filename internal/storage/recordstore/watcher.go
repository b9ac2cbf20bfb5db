package recordstore

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports replacements of a single file.
//
// It watches the parent directory so that rename-into-place writes, as
// done by Store itself, are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	name     string
	onChange func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewWatcher creates a watcher for path. onChange is called from the
// watcher goroutine for every create, write or rename touching path.
func NewWatcher(path string, onChange func(), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		logger.Error("failed to watch directory", "path", dir, "error", err)
		return nil, err
	}

	return &Watcher{
		watcher:  fw,
		name:     filepath.Clean(path),
		onChange: onChange,
		done:     make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start processes events until Stop is called.
func (w *Watcher) Start() {
	w.logger.Debug("vault watcher started", "file", w.name)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("vault file changed", "op", event.Op.String())
				w.onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("vault watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync starts watching in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// Watch starts reloading the store whenever another process replaces the
// vault file. Changes made through this store are ignored.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.watcher != nil {
		return nil
	}

	w, err := NewWatcher(s.path, func() {
		if err := s.Refresh(); err != nil {
			s.logger.Warn("vault reload failed", "error", err)
		}
	}, s.logger)
	if err != nil {
		return err
	}
	s.watcher = w
	w.StartAsync()
	return nil
}
