// Kestrel - Decision intelligence for compliance cases.
// Copyright (c) 2025 opensource.compliance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-compliance/kestrel/internal/activity"
	"github.com/opensource-compliance/kestrel/internal/api"
	"github.com/opensource-compliance/kestrel/internal/bus"
	"github.com/opensource-compliance/kestrel/internal/cache"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/intelligence"
	"github.com/opensource-compliance/kestrel/internal/repository"
	"github.com/opensource-compliance/kestrel/internal/signals"
	"github.com/opensource-compliance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Activity Service
	activitySvc := activity.NewService(repo)
	slog.Info("activity service initialized")

	// Initialize extension signal evaluator and compile built-in extensions
	evaluator, err := signals.NewEvaluator()
	if err != nil {
		slog.Error("failed to initialize extension evaluator", "error", err)
		os.Exit(1)
	}
	extensions := intelligence.AllExtensions()
	for _, spec := range extensions {
		if err := evaluator.Compile(spec); err != nil {
			slog.Error("failed to compile extension signal",
				"signal_type", spec.SignalType,
				"error", err,
			)
			os.Exit(1)
		}
	}
	slog.Info("extension signals compiled", "count", len(extensions))

	// Initialize Signal Generator
	generator := signals.NewGenerator(evaluator)

	// Initialize Intelligence Service
	svc := intelligence.NewService(repo, cacheImpl, busImpl, generator, activitySvc.GetCounter(), cfg.Intelligence)
	slog.Info("intelligence service initialized",
		"recompute_cooldown", cfg.Intelligence.RecomputeCooldown,
		"history_limit", cfg.Intelligence.HistoryLimit,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, svc)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, svc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Decision Intelligence Engine")
	fmt.Println("  Confidence you can audit.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /cases                                - Create a case")
	fmt.Println("    GET  /cases/{id}                           - Get case by ID")
	fmt.Println("    POST /cases/{id}/submission                - Save submission")
	fmt.Println("    POST /cases/{id}/attachments               - Upload attachment")
	fmt.Println("    POST /cases/{id}/events                    - Append case event")
	fmt.Println("    GET  /cases/{id}/intelligence              - Get decision intelligence")
	fmt.Println("    POST /cases/{id}/intelligence/recompute    - Trigger recompute")
	fmt.Println("    GET  /cases/{id}/intelligence/history      - Recompute history")
	fmt.Println("    GET  /health                               - Health check")
	fmt.Println()
}
