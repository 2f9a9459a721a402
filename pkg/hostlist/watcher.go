package hostlist

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jaennil/tileproxy/pkg/logger"
)

// Watcher keeps a List in sync with a YAML file.
type Watcher struct {
	path    string
	list    *List
	watcher *fsnotify.Watcher
	logger  logger.Logger
}

// NewWatcher loads path into list once and prepares a watcher for later changes.
func NewWatcher(path string, list *List, l logger.Logger) (*Watcher, error) {
	hosts, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	list.Replace(hosts)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Editors and config management replace files by rename, so the directory is watched.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:    filepath.Clean(path),
		list:    list,
		watcher: fw,
		logger:  l,
	}, nil
}

// Run blocks until ctx is done, reloading the list on every change of the file.
// A file that fails to parse leaves the previous list in place.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("trusted hosts watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("trusted hosts watcher stopped", "path", w.path)
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("trusted hosts watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	hosts, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("trusted hosts reload failed, keeping previous list", "path", w.path, "error", err)
		return
	}
	w.list.Replace(hosts)
	w.logger.Info("trusted hosts reloaded", "path", w.path, "count", len(w.list.Hosts()))
}
