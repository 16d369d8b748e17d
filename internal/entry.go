// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nexus/internal/api"
	"github.com/starford/nexus/internal/classify"
	"github.com/starford/nexus/internal/graph"
	"github.com/starford/nexus/internal/inbox"
	"github.com/starford/nexus/internal/intake"
	"github.com/starford/nexus/internal/intelservice"
	"github.com/starford/nexus/internal/mcpserver"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/pipeline"
	"github.com/starford/nexus/internal/sse"
	"github.com/starford/nexus/internal/storage"
	"github.com/starford/nexus/internal/store"
)

// runtime holds the wired core shared by every command.
type runtime struct {
	logger   *slog.Logger
	store    *store.SQLite
	pipeline *pipeline.Pipeline
	service  *intelservice.Service
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

// events receives graph and pipeline notifications. A nil broker drops them.
type events struct {
	broker *sse.Broker
}

func (e events) link(l models.Link) {
	if e.broker != nil {
		e.broker.PublishLinkEvent(l)
	}
}

func (e events) document(d models.Document) {
	if e.broker != nil {
		e.broker.PublishDocumentEvent(d)
	}
}

func (e events) deleted(id uuid.UUID) {
	if e.broker != nil {
		e.broker.PublishDocumentDeleted(id)
	}
}

func newLogger(app *application) *slog.Logger {
	return slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
}

// build opens the store and wires graph, intake, pipeline and service.
func build(app *application, logger *slog.Logger, ev events) (*runtime, error) {
	cfg := app.config

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	var vault storage.Provider
	if cfg.Vault.Archive {
		if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
		vfs, err := storage.NewFS(cfg.Vault.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init vault: %w", err)
		}
		vault = vfs
	}

	g := graph.New(db,
		graph.WithLogger(logger),
		graph.WithSelfLoops(cfg.Graph.AllowSelfLoops),
		graph.WithEventCallback(ev.link))

	intakeOpts := []intake.Option{intake.WithLogger(logger)}
	if vault != nil {
		intakeOpts = append(intakeOpts, intake.WithVault(vault))
	}
	if cfg.Intake.PDFToText {
		intakeOpts = append(intakeOpts, intake.WithExtractor("pdf", intake.PDFToText{
			Binary:  cfg.Intake.PDFToTextBinary,
			Timeout: cfg.Intake.ExtractorTimeout,
		}))
	}
	if cfg.Intake.Markdown {
		intakeOpts = append(intakeOpts, intake.WithExtractor("md", intake.Markdown{}))
	}

	classifier := classify.NewRuleClassifier(nil)
	p := pipeline.New(db, intake.New(db, intakeOpts...), g,
		pipeline.WithClassifier(classifier),
		pipeline.WithLogger(logger),
		pipeline.WithEventCallback(ev.document))

	svcOpts := []intelservice.Option{
		intelservice.WithClassifier(classifier),
		intelservice.WithLogger(logger),
		intelservice.WithDeleteCallback(ev.deleted),
		intelservice.WithPathRoots(cfg.Intake.AllowedRoots...),
	}
	if vault != nil {
		svcOpts = append(svcOpts, intelservice.WithVault(vault))
	}

	return &runtime{
		logger:   logger,
		store:    db,
		pipeline: p,
		service:  intelservice.NewService(db, g, p, svcOpts...),
	}, nil
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Run starts the HTTP server, SSE broker and optional inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("vault_path", cfg.Vault.Path),
		slog.Bool("vault_archive", cfg.Vault.Archive),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2*time.Second, sse.WithKeepAlive(30*time.Second))
	defer broker.Close()

	rt, err := build(app, logger, events{broker: broker})
	if err != nil {
		return err
	}
	defer rt.Close()

	apiRouter := api.NewRouter(rt.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthHandler(nil))
	r.Get("/health/ready", healthHandler(rt.service.Ready))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		w := inbox.New(cfg.Inbox.Path, rt.pipeline,
			inbox.WithSettle(cfg.Inbox.Settle),
			inbox.WithLogger(logger))
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

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

		// SSE streams only end when clients go away or the broker closes.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
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

// errShutdown cancels the group so background workers stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tool set over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app)
	slog.SetDefault(logger)

	rt, err := build(app, logger, events{})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("MCP server starting", slog.String("version", app.version))
	errCh := make(chan error, 1)
	go func() { errCh <- mcpserver.New(rt.service, app.version).ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// IngestReport is written once per processed file by Ingest.
type IngestReport struct {
	Path       string            `json:"path"`
	ID         string            `json:"id,omitempty"`
	Department models.Department `json:"department,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Ingest runs the pipeline over paths, linking each document to related.
// One JSON report line per path is written to the output. Every path is
// attempted; the returned error joins the individual failures.
func Ingest(ctx context.Context, paths []string, related []intelservice.Relation, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app)
	rt, err := build(app, logger, events{})
	if err != nil {
		return err
	}
	defer rt.Close()

	enc := json.NewEncoder(app.out)
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep := IngestReport{Path: p}
		detail, err := rt.service.ProcessDocument(ctx, p, related)
		if err != nil {
			rep.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		} else {
			rep.ID = detail.ID.String()
			rep.Department = detail.Department
		}
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return errors.Join(errs...)
}
