// Kestrel - Staged AML transaction screening.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/kestrel/internal/adjudicator"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/gates"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/knowledge"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/reasoner"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/sar"
	"github.com/opensource-finance/kestrel/internal/typology"
	"github.com/opensource-finance/kestrel/internal/worker"
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

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"gates", cfg.Gates.Mode,
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

	// Initialize History Service
	historySvc := history.NewService(repo, cacheImpl, cfg.Cache.LocalTTL, logger)
	slog.Info("history service initialized")

	// Initialize Gates
	statisticalGate, narrativeGate := buildGates(cfg)
	slog.Info("gates initialized", "mode", cfg.Gates.Mode)

	// Initialize Typology Detector
	detector, err := typology.NewDetector()
	if err != nil {
		slog.Error("failed to initialize typology detector", "error", err)
		os.Exit(1)
	}
	slog.Info("typology detector initialized", "typologies", len(detector.Names()))

	// Initialize Knowledge Base
	var kb domain.KnowledgeBase = knowledge.Noop{}
	if cfg.Knowledge.URL != "" {
		kb = knowledge.NewClient(cfg.Knowledge.URL, 5*time.Second)
		slog.Info("knowledge base client initialized", "url", cfg.Knowledge.URL)
	} else {
		slog.Info("no knowledge base configured - adjudication runs without regulatory retrieval")
	}
	contextBuilder := knowledge.NewContextBuilder(kb, cfg.Knowledge.MaxCharsPerResult)

	// Initialize Reasoner
	if cfg.Reasoner.APIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required for the adjudication layer")
		os.Exit(1)
	}
	reasonerClient, err := reasoner.NewAnthropicClient(cfg.Reasoner.APIKey)
	if err != nil {
		slog.Error("failed to initialize reasoner", "error", err)
		os.Exit(1)
	}
	slog.Info("reasoner initialized", "model", cfg.Reasoner.Model)

	// Initialize Adjudicator
	adj := adjudicator.New(
		detector,
		contextBuilder,
		reasonerClient,
		sar.NewDrafter(cfg.FilingInstitution),
		cfg.Thresholds,
		cfg.Reasoner,
		logger,
	)

	// Initialize Pipeline
	pl := pipeline.New(statisticalGate, narrativeGate, adj, cfg.Budgets, logger)
	slog.Info("pipeline initialized",
		"statistical_gate", cfg.Thresholds.StatisticalGate,
		"narrative_gate", cfg.Thresholds.NarrativeGate,
	)

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, repo, historySvc, pl, logger)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	slog.Info("worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, asyncWorker, detector, cfg.Thresholds, Version)

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

	// Stop the worker first so in-flight screenings drain
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers environment settings over the tier preset.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Reasoner.APIKey = v
	}
	if v := os.Getenv("KESTREL_MODEL"); v != "" {
		cfg.Reasoner.Model = v
	}
	if v := os.Getenv("KESTREL_KNOWLEDGE_URL"); v != "" {
		cfg.Knowledge.URL = v
	}
	if v := os.Getenv("KESTREL_STATISTICAL_URL"); v != "" {
		cfg.Gates.Mode = "remote"
		cfg.Gates.StatisticalURL = v
	}
	if v := os.Getenv("KESTREL_NARRATIVE_URL"); v != "" {
		cfg.Gates.Mode = "remote"
		cfg.Gates.NarrativeURL = v
	}
	if v := os.Getenv("KESTREL_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
}

// buildGates returns the configured gate pair. Remote mode requires both
// URLs; anything else falls back to the built-in local scorers.
func buildGates(cfg *domain.Config) (domain.StatisticalGate, domain.NarrativeGate) {
	if cfg.Gates.Mode == "remote" && cfg.Gates.StatisticalURL != "" && cfg.Gates.NarrativeURL != "" {
		return gates.NewRemoteStatisticalGate(cfg.Gates.StatisticalURL, cfg.Budgets.Statistical),
			gates.NewRemoteNarrativeGate(cfg.Gates.NarrativeURL, cfg.Budgets.Narrative)
	}
	return gates.NewLocalStatisticalGate(cfg.Thresholds.StatisticalGate),
		gates.NewLocalNarrativeGate(cfg.Thresholds.NarrativeGate)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  KESTREL")
	fmt.Println("      Staged AML Transaction Screening")
	fmt.Println("      Cheap gates first, judgment last.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /screen            - Screen a transaction synchronously")
	fmt.Println("    POST /transactions      - Queue a transaction for screening")
	fmt.Println("    GET  /screenings        - List recent screenings")
	fmt.Println("    GET  /screenings/{id}   - Get screening by ID")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /thresholds        - Escalation thresholds")
	fmt.Println("    GET  /typologies        - Typologies screened for")
	fmt.Println("    GET  /metrics           - Screening quality metrics")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
