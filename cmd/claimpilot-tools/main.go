// claimpilot-tools serves the claim tool catalog over the session RPC
// protocol, for model runtimes that call tools remotely instead of through
// the in-process engine.
package main

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

	"github.com/google/uuid"

	"github.com/claimpilot/claimpilot/internal/adapter/ristretto"
	"github.com/claimpilot/claimpilot/internal/adapter/toolserver"
	"github.com/claimpilot/claimpilot/internal/agent"
	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/orchestration"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
	"github.com/claimpilot/claimpilot/internal/logger"
)

const (
	serverName    = "claimpilot-tools"
	serverVersion = "0.1.0"
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

	logCfg := cfg.Logging
	logCfg.Service = serverName
	log, logCloser := logger.New(logCfg)
	slog.SetDefault(log)
	defer logCloser.Close()

	log.Info("config loaded", "path", cfgPath, "port", cfg.ToolServer.Port)

	registry, err := tool.NewRegistry(agent.Catalog(cfg.Tools))
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	executor := agent.NewExecutor(registry, log, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		agent.WithCache(cache, cfg.Cache.TTL))

	invoke := func(ctx context.Context, name string, args json.RawMessage) (string, error) {
		res := executor.Execute(ctx, orchestration.ToolCall{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: args,
		})
		if !res.OK() {
			return "", errors.New(res.Err)
		}
		return string(res.Output), nil
	}

	server := toolserver.NewServer(registry, invoke, log, cfg.ToolServer, serverName, serverVersion)

	addr := ":" + cfg.ToolServer.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// The event stream stays open for the life of the session.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting tool server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("tool server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down tool server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
