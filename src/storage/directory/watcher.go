package directory

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-faster/errors"
)

// Watcher keeps cached pages in step with files that another process
// rewrites inside the directory.
type Watcher struct {
	dir       *Directory
	w         *fsnotify.Watcher
	onRefresh func(name string)

	closeOnce sync.Once
	closeErr  error
}

// Watch starts watching the directory. Events are handled by Run, which
// calls onRefresh, when set, with the name of every refreshed file.
func (d *Directory) Watch(onRefresh func(name string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}

	if err := w.Add(d.path); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watch %s", d.path)
	}

	return &Watcher{dir: d, w: w, onRefresh: onRefresh}, nil
}

// Run refreshes mapped files on every write or create event until ctx is done
// or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			if err := w.dir.cache.RefreshPath(ev.Name); err != nil {
				w.dir.log.Warnw("refresh after external change failed",
					"path", ev.Name,
					"error", err,
				)
				continue
			}
			w.dir.log.Debugw("refreshed", "path", ev.Name, "op", ev.Op.String())

			if w.onRefresh != nil {
				w.onRefresh(filepath.Base(ev.Name))
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			return errors.Wrapf(err, "watch %s", w.dir.path)
		}
	}
}

func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.w.Close()
	})
	return w.closeErr
}
