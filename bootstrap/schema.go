package bootstrap

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// schemaWatcher re-wires the service when the schema file changes. A schema
// that fails to parse or reference-check keeps the previous wiring active.
type schemaWatcher struct {
	path    string
	logger  zerolog.Logger
	app     *App
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

func newSchemaWatcher(path string, logger zerolog.Logger, a *App) (*schemaWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory (more reliable for editors that do atomic saves)
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	w := &schemaWatcher{
		path:    absPath,
		logger:  logger,
		app:     a,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}
	go w.loop()

	logger.Info().Str("path", absPath).Msg("watching schema file for changes")
	return w, nil
}

func (w *schemaWatcher) loop() {
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("schema file changed")
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("schema watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *schemaWatcher) reload() {
	if err := w.app.loadSchemaAndWire(); err != nil {
		w.logger.Error().Err(err).Msg("schema reload failed, keeping old schema")
		if w.app.Metrics != nil {
			w.app.Metrics.SchemaReloadErrors.Inc()
		}
		return
	}
	if w.app.Metrics != nil {
		w.app.Metrics.SchemaReloads.Inc()
		w.app.Metrics.SchemaLastReload.SetToCurrentTime()
	}
	w.logger.Info().Msg("schema reloaded")
}

func (w *schemaWatcher) stop() {
	close(w.stopCh)
	w.watcher.Close()
}
