// Package bootstrap wires all dependencies and starts the application:
// config, logger, graph store, schema, trigger and validation registries,
// collaborator clients, and the HTTP server. There is no package-level
// mutable state; everything hangs off the App.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sennetconsortium/entity-api/adapters/clock"
	"github.com/sennetconsortium/entity-api/adapters/memory"
	"github.com/sennetconsortium/entity-api/adapters/metrics"
	storeneo4j "github.com/sennetconsortium/entity-api/adapters/neo4j"
	"github.com/sennetconsortium/entity-api/adapters/remote"
	"github.com/sennetconsortium/entity-api/app"
	"github.com/sennetconsortium/entity-api/config"
	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/ports"
	"github.com/sennetconsortium/entity-api/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	store    *storeneo4j.Store
	cache    *memory.Cache
	docCache ports.Cache
	ids      *remote.IDService
	authn    *remote.AuthProvider
	clk      clock.Real
	version  string

	// handler is swapped atomically when the schema hot-reloads.
	handler atomic.Value // http.Handler

	schemaWatcher *schemaWatcher
	configHolder  *config.Holder
}

// New creates and initializes the application from the given config path
// (empty path falls back to environment configuration).
func New(configPath, version string) (*App, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", version).Msg("initializing entity-api")

	a := &App{
		Logger:  logger,
		Config:  cfg,
		version: version,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	store, err := storeneo4j.New(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, logger, storeneo4j.Options{
		Database: cfg.Neo4j.Database,
		Observer: queryObserver(a.Metrics),
	})
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}
	a.store = store

	a.cache = memory.NewCache(cfg.Cache.TTL, a.clk)
	a.docCache = ports.Cache(a.cache)
	if a.Metrics != nil {
		a.docCache = a.Metrics.WrapCache(a.cache)
	}

	a.ids = remote.NewIDService(remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.UUID.URL,
		Token:   cfg.UUID.Token,
		Timeout: cfg.UUID.Timeout,
	}))
	a.authn = remote.NewAuthProvider(remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.Globus.Remote.URL,
		Token:   cfg.Globus.Remote.Token,
		Timeout: cfg.Globus.Remote.Timeout,
	}), cfg.Globus.AdminGroupUUID, cfg.Globus.TokenTTL, a.clk)

	// With a config file present, SIGHUP re-reads it; only the reloadable
	// fields (see config.ReloadableFields) take effect without restart.
	if configPath != "" {
		if holder, err := config.NewHolder(configPath, logger); err == nil {
			holder.OnChange(func(next *config.Config) {
				if level, err := zerolog.ParseLevel(next.Logging.Level); err == nil {
					zerolog.SetGlobalLevel(level)
				}
				a.cache.SetTTL(next.Cache.TTL)
				a.authn.SetTokenTTL(next.Globus.TokenTTL)
			})
			holder.WatchSignals()
			a.configHolder = holder
		}
	}

	if err := a.loadSchemaAndWire(); err != nil {
		return nil, err
	}

	if cfg.Schema.HotReload {
		watcher, err := newSchemaWatcher(cfg.Schema.Path, logger, a)
		if err != nil {
			logger.Warn().Err(err).Msg("schema hot reload unavailable")
		} else {
			a.schemaWatcher = watcher
		}
	}

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      http.HandlerFunc(a.serve),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// loadSchemaAndWire parses the schema, builds the service over it, and
// installs a fresh handler. Called at startup and on every schema reload;
// a failure here leaves the previous handler serving.
func (a *App) loadSchemaAndWire() error {
	s, err := schema.ParseFile(a.Config.Schema.Path)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	service, err := app.NewService(app.Deps{
		Schema: s,
		Store:  a.store,
		IDs:    a.ids,
		Cache:  a.docCache,
		Clock:  a.clk,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	handler := web.NewHandler(web.Deps{
		Service: service,
		Auth:    a.authn,
		Store:   a.store,
		Metrics: a.Metrics,
		Logger:  a.Logger,
		Version: a.version,
	})
	a.handler.Store(handler.Router(web.RouterOptions{
		MetricsEnabled: a.Config.Metrics.Enabled,
		MetricsPath:    a.Config.Metrics.Path,
	}))

	// A new schema invalidates every completed document.
	a.cache.Flush()

	a.Logger.Info().
		Str("path", a.Config.Schema.Path).
		Strs("entity_types", s.EntityTypes()).
		Msg("schema loaded")
	return nil
}

func (a *App) serve(w http.ResponseWriter, r *http.Request) {
	a.handler.Load().(http.Handler).ServeHTTP(w, r)
}

// Run starts the server and blocks until interrupt or server error.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.schemaWatcher != nil {
		a.schemaWatcher.stop()
	}
	if a.configHolder != nil {
		a.configHolder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("graph store close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// queryObserver avoids a typed-nil interface when metrics are disabled.
func queryObserver(c *metrics.Collector) storeneo4j.Observer {
	if c == nil {
		return nil
	}
	return c
}
