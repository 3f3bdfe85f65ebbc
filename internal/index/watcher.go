package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Reloader is the catalog side of the watcher.
type Reloader interface {
	Source
	Reload(ctx context.Context) (bool, error)
}

// EventCallback is called after a watcher-driven reload changed the catalog.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the directory holding the catalog
// document and reloads the catalog when another process rewrites it, until
// ctx is cancelled. Bursts of events are debounced. Writes made by the
// catalog itself leave the checksum unchanged and are ignored by Reload.
//
// The directory is watched rather than the file because atomic writers
// replace the file, which would drop a watch on the old inode.
func Watch(ctx context.Context, docPath string, cat Reloader, db *DB, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	docPath = filepath.Clean(docPath)
	dir := filepath.Dir(docPath)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("path", docPath))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			reload(ctx, docPath, cat, db, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != docPath {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("watcher: document event", slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(ctx context.Context, docPath string, cat Reloader, db *DB, logger *slog.Logger, cb EventCallback) {
	changed, err := cat.Reload(ctx)
	if err != nil {
		logger.Warn("watcher: reload failed", slog.String("path", docPath), slog.String("error", err.Error()))
		return
	}
	if !changed {
		return
	}
	if db != nil {
		if err := Sync(db, cat, logger); err != nil {
			logger.Warn("watcher: index sync failed", slog.String("error", err.Error()))
		}
	}
	if cb != nil {
		cb("reloaded", docPath)
	}
}
