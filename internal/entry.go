// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shelf/internal/api"
	"github.com/starford/shelf/internal/backup"
	"github.com/starford/shelf/internal/catalog"
	"github.com/starford/shelf/internal/index"
	"github.com/starford/shelf/internal/mcpserver"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/sse"
	"github.com/starford/shelf/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// App is an opened catalog together with its SQLite mirror.
type App struct {
	Config *Config
	Logger *slog.Logger
	Doc    *storage.Document
	Store  *catalog.Store
	DB     *index.DB

	version string
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Open loads the catalog and its index for one-shot commands.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return open(ctx, app)
}

// open builds the logger, loads the document, opens the index and the store.
// Every persisted catalog change is mirrored into the index and then passed
// to extra listeners.
func open(ctx context.Context, app *application, extra ...catalog.Listener) (*App, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	doc, err := storage.OpenDocument(cfg.Library.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	var store *catalog.Store
	listener := func(ev catalog.Event) {
		if err := index.Apply(db, store, ev, logger); err != nil {
			logger.Warn("index update failed",
				slog.String("event", string(ev.Kind)),
				slog.String("error", err.Error()))
		}
		for _, l := range extra {
			l(ev)
		}
	}

	store, err = catalog.Open(ctx, doc,
		catalog.WithLogger(logger),
		catalog.WithGenres(models.NewGenres(cfg.Library.Genres...)),
		catalog.WithListener(listener),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Doc:     doc,
		Store:   store,
		DB:      db,
		version: app.version,
	}, nil
}

// Close releases the index.
func (a *App) Close() error {
	return a.DB.Close()
}

// WriteContext bounds a catalog mutation by library.write_timeout.
func (a *App) WriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.Config.Library.WriteTimeout)
}

// Snapshotter returns a backup writer for the catalog document.
func (a *App) Snapshotter() (*backup.Snapshotter, error) {
	return backup.New(a.Doc, a.Config.Backup.Dir, a.Config.Backup.Keep, a.Logger)
}

// Handler builds the full HTTP handler: health checks plus the API under /api.
func (a *App) Handler(broker *sse.Broker) http.Handler {
	cfg := a.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	api.MountHealth(r, a.Store)

	var sseHandler http.Handler
	if broker != nil {
		sseHandler = broker
	}
	r.Mount("/api", api.NewRouter(a.Store, a.DB, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sseHandler, cfg.Library.WriteTimeout))
	return r
}

// Run starts the HTTP server, the file watcher and the backup scheduler, and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	a, err := open(ctx, app, func(ev catalog.Event) {
		broker.PublishBookEvent(string(ev.Kind), ev.Book)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	httpServer := &http.Server{
		Addr:         cfg.App.HTTP.Address(),
		Handler:      a.Handler(broker),
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", a.Doc.Path()),
		slog.Int("books", a.Store.Len()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher.
	if cfg.Library.Watch {
		g.Go(func() error {
			if err := index.Watch(gCtx, a.Doc.Path(), a.Store, a.DB, logger, nil); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start backup scheduler.
	if cfg.Backup.Enabled() {
		snap, err := a.Snapshotter()
		if err != nil {
			return fmt.Errorf("init backup: %w", err)
		}
		sched, err := backup.NewScheduler(snap, cfg.Backup.Schedule, logger)
		if err != nil {
			return fmt.Errorf("init backup: %w", err)
		}
		g.Go(func() error {
			return sched.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if a.Store.Dirty() {
			if err := a.Store.Flush(shutdownCtx); err != nil {
				logger.Error("final catalog flush failed", slog.String("error", err.Error()))
			}
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the shutdown goroutine has finished,
// so the watcher and scheduler stop after a signal.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	a, err := open(ctx, app)
	if err != nil {
		return err
	}
	defer a.Close()

	wctx, stop := context.WithCancel(ctx)
	watching := make(chan struct{})
	if a.Config.Library.Watch {
		go func() {
			defer close(watching)
			if err := index.Watch(wctx, a.Doc.Path(), a.Store, a.DB, a.Logger, nil); err != nil {
				a.Logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(watching)
	}
	defer func() {
		stop()
		<-watching
	}()

	a.Logger.Info("MCP server starting on stdio", slog.Int("books", a.Store.Len()))
	srv := mcpserver.New(a.Store, a.DB, a.version)
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
