package main

import (
	"context"
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

	cphttp "github.com/claimpilot/claimpilot/internal/adapter/http"
	"github.com/claimpilot/claimpilot/internal/adapter/llm"
	cpnats "github.com/claimpilot/claimpilot/internal/adapter/nats"
	cpotel "github.com/claimpilot/claimpilot/internal/adapter/otel"
	"github.com/claimpilot/claimpilot/internal/adapter/postgres"
	"github.com/claimpilot/claimpilot/internal/adapter/ristretto"
	"github.com/claimpilot/claimpilot/internal/adapter/ws"
	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
	"github.com/claimpilot/claimpilot/internal/logger"
	"github.com/claimpilot/claimpilot/internal/port/messagequeue"
	"github.com/claimpilot/claimpilot/internal/resilience"
	"github.com/claimpilot/claimpilot/internal/service"

	cpmcp "github.com/claimpilot/claimpilot/internal/adapter/mcp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	log.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"model", cfg.Model.Name,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownOtel, err := cpotel.Init(ctx, cfg.Logging.Service)
	if err != nil {
		log.Warn("telemetry disabled", "error", err)
	} else {
		defer func() { _ = shutdownOtel(context.Background()) }()
	}
	metrics, err := cpotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := cpnats.Connect(ctx, cfg.NATS.URL, log)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Agent engine ---
	registry, err := tool.NewRegistry(agent.Catalog(cfg.Tools))
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	model := llm.NewClient(cfg.Model)
	model.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	executor := agent.NewExecutor(registry, log, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		agent.WithCache(cache, cfg.Cache.TTL))
	engine := agent.NewEngine(model, executor, registry, log, cfg.Orchestrator, cfg.Model)

	// --- Services ---
	store := postgres.NewStore(pool)
	hub := ws.NewHub(log)

	claimSvc := service.NewClaimService(store, engine, queue, hub, metrics, log,
		cfg.Orchestrator, registry.Names())
	reviewSvc := service.NewReviewService(store, hub, queue, model, log)
	engine.OnStep(claimSvc.RecordStep)

	cancelProcess, err := queue.Subscribe(ctx, messagequeue.SubjectProcessRequested, claimSvc.HandleProcessRequested)
	if err != nil {
		return fmt.Errorf("process subscriber: %w", err)
	}
	defer cancelProcess()

	// --- Ops MCP server ---
	mcpServer := cpmcp.NewServer(cpmcp.ServerConfig{
		Addr:    cfg.MCP.Addr,
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
		APIKey:  cfg.MCP.APIKey,
	}, cpmcp.ServerDeps{
		Claims:    store,
		Decisions: store,
		Reviews:   reviewSvc,
	})
	if err := mcpServer.Start(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	// --- HTTP ---
	wsHandler := ws.NewHandler(hub, log, reviewSvc.HandleAction)
	handlers := cphttp.NewHandlers(claimSvc, reviewSvc, wsHandler, log)

	r := chi.NewRouter()
	r.Use(cphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cphttp.RequestID)
	r.Use(cphttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	cphttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           cpotel.HTTPMiddleware(cfg.Logging.Service)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Claim runs triggered synchronously can hold a request up to
		// the run budget.
		WriteTimeout: cfg.Orchestrator.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := mcpServer.Stop(shutdownCtx); err != nil {
			log.Error("mcp shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
