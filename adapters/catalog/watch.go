package catalog

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/artpar/flowgate/ports"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher reports changes to a catalog file and SIGHUP.
type FileWatcher struct {
	path    string
	signals bool
	logger  zerolog.Logger
}

// NewFileWatcher creates a watcher for path. When signals is set, SIGHUP
// also counts as a change.
func NewFileWatcher(path string, signals bool, logger zerolog.Logger) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return &FileWatcher{
		path:    absPath,
		signals: signals,
		logger:  logger.With().Str("component", "catalog_watcher").Logger(),
	}, nil
}

// Watch starts watching and returns; fn is called after every change
// until ctx is done.
func (w *FileWatcher) Watch(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory (more reliable for editors that do atomic saves)
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	var sigCh chan os.Signal
	if w.signals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP)
	}

	go w.loop(ctx, watcher, sigCh, fn)

	w.logger.Info().
		Str("path", w.path).
		Bool("sighup", w.signals).
		Msg("watching catalog for changes")
	return nil
}

func (w *FileWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, sigCh chan os.Signal, fn func()) {
	defer func() {
		watcher.Close()
		if sigCh != nil {
			signal.Stop(sigCh)
		}
	}()

	filename := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Only react to our catalog file
			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("catalog file changed")
				fn()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-sigCh:
			w.logger.Info().Msg("received SIGHUP, reloading catalog")
			fn()

		case <-ctx.Done():
			return
		}
	}
}

var _ ports.CatalogWatcher = (*FileWatcher)(nil)
