package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	rfhttp "github.com/Strob0t/ReviewFlow/internal/adapter/http"
	"github.com/Strob0t/ReviewFlow/internal/adapter/llm"
	_ "github.com/Strob0t/ReviewFlow/internal/adapter/lognotify" // register "log" notifier
	rfnats "github.com/Strob0t/ReviewFlow/internal/adapter/nats"
	rfotel "github.com/Strob0t/ReviewFlow/internal/adapter/otel"
	"github.com/Strob0t/ReviewFlow/internal/adapter/postgres"
	"github.com/Strob0t/ReviewFlow/internal/adapter/ristretto"
	_ "github.com/Strob0t/ReviewFlow/internal/adapter/webhook" // register "webhook" notifier
	"github.com/Strob0t/ReviewFlow/internal/config"
	"github.com/Strob0t/ReviewFlow/internal/logger"
	"github.com/Strob0t/ReviewFlow/internal/pool"
	"github.com/Strob0t/ReviewFlow/internal/port/notifier"
	"github.com/Strob0t/ReviewFlow/internal/resilience"
	"github.com/Strob0t/ReviewFlow/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"gate_threshold", cfg.Gate.Threshold,
		"analysis_timeout", cfg.Analysis.Timeout,
	)

	ctx := context.Background()

	// --- Observability ---
	otelShutdown, err := rfotel.InitProviders(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := rfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pgPool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pgPool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS audit stream
	queue, err := rfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Recipient cache
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// Notification providers
	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}

	// --- Services ---
	store := postgres.NewStore(pgPool)

	notifyPool := pool.New("notify", cfg.Notify.Workers, cfg.Notify.QueueSize)
	dispatcher := service.NewDispatcherService(store, cache, cfg.Cache.TTL, notifiers, queue, notifyPool, metrics)

	workflow := service.NewWorkflowService(store, dispatcher, metrics)

	provider := llm.NewClient(cfg.LLM)
	provider.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	analysisPool := pool.New("analysis", cfg.Analysis.Workers, cfg.Analysis.QueueSize)
	orch := service.NewOrchestratorService(store, provider, workflow, analysisPool,
		cfg.Analysis.Timeout, cfg.Gate.Threshold, metrics)
	workflow.SetEvaluator(orch)

	// --- HTTP ---
	handlers := rfhttp.NewHandlers(workflow, orch, pgPool, queue)

	r := chi.NewRouter()
	r.Use(rfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rfhttp.SecurityHeaders)
	r.Use(rfhttp.RequestID)
	r.Use(rfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(rfotel.HTTPMiddleware(cfg.Logging.Service))
	}

	rfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}

		// Let running evaluations finish and queued notifications drain
		// before the connections go away.
		orch.Close()
		dispatcher.Close(10 * time.Second)
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// buildNotifiers instantiates the configured notification providers from the
// registry.
func buildNotifiers(cfg config.Notify) ([]notifier.Notifier, error) {
	providerCfg := map[string]string{"url": cfg.Webhook}

	var out []notifier.Notifier
	for _, name := range cfg.Providers {
		n, err := notifier.New(name, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		out = append(out, n)
	}
	return out, nil
}
