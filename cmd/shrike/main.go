// Shrike - Payment fraud scoring that deploys in 60 seconds.
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
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/shrike/internal/api"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/customer"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/repository"
	"github.com/opensource-finance/shrike/internal/risk"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/scoring"
	"github.com/opensource-finance/shrike/internal/velocity"
	"github.com/opensource-finance/shrike/internal/worker"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// GlobalTenantID scopes rules that apply to all tenants.
const GlobalTenantID = "*"

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("SHRIKE_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("starting shrike", "version", Version, "commit", Commit, "build_date", BuildDate)

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		fatal("repository init failed", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		fatal("cache init failed", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		fatal("event bus init failed", err)
	}
	defer busImpl.Close()

	slog.Info("infrastructure ready",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	customerSvc := customer.NewService(repo, cacheImpl)
	velocitySvc := velocity.NewService(repo, cacheImpl)
	extractor := features.NewExtractor(cfg.Lists)

	scorer := scoring.NewScorer(scoring.NewDefaultSnapshot(cfg.Scoring.ModelWeights, cfg.Scoring.TierThresholds))
	if err := scorer.LoadOrBootstrap(ctx, cfg.Scoring.SnapshotPath); err != nil {
		fatal("model snapshot init failed", err)
	}
	info := scorer.Snapshot().Info()
	slog.Info("scorer ready",
		"snapshot_version", info.Version,
		"feature_count", info.FeatureCount,
		"active_models", info.ActiveModels,
	)

	engine, err := rules.NewEngine(100)
	if err != nil {
		fatal("rule engine init failed", err)
	}
	defer engine.Close()
	loadStoredRules(ctx, repo, engine)
	slog.Info("rule engine ready", "rules_count", engine.RulesCount())

	assessor := risk.NewAssessor(cfg.Scoring, extractor, scorer, engine, customerSvc, velocitySvc)

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("SHRIKE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, assessor)
		var tenantIDs []string
		if envTenants := os.Getenv("SHRIKE_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("async worker start failed", "error", err)
		}
	}

	handler := api.NewHandler(repo, cacheImpl, busImpl, assessor, engine, scorer,
		customerSvc, velocitySvc, cfg.Scoring.SnapshotPath, Version)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fatal("server failed", err)
		}
	}()

	slog.Info("shrike is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("async worker stop failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shrike shutdown complete")
}

// loadConfig resolves configuration: tier defaults, then optional YAML
// overrides from SHRIKE_CONFIG.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("SHRIKE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if path := os.Getenv("SHRIKE_CONFIG"); path != "" {
		loaded, err := domain.LoadConfig(path, cfg)
		if err != nil {
			fatal("config file load failed", err)
		}
		cfg = loaded
		slog.Info("config file loaded", "path", path)
	}
	return cfg
}

// loadStoredRules seeds the engine from the database. An empty or
// unreachable rule table is not fatal; rules arrive via POST /rules.
func loadStoredRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) {
	dbRules, err := repo.ListRiskRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("rule list query failed, starting without rules", "error", err)
		return
	}
	if len(dbRules) == 0 {
		slog.Info("no stored rules, configure via POST /rules")
		return
	}
	if err := engine.LoadRules(dbRules); err != nil {
		fatal("stored rules failed to load", err)
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🗡  SHRIKE                  ║")
	fmt.Println("  ║       Payment Fraud Scoring Engine        ║")
	fmt.Println("  ║      A verdict for every payment.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess                       - Score a payment event")
	fmt.Println("    GET  /assessments/{id}             - Get assessment by ID")
	fmt.Println("    GET  /customers/{id}/risk-profile  - Customer risk profile")
	fmt.Println("    GET  /analytics/summary            - Decision analytics")
	fmt.Println("    GET  /rules                        - List all risk rules")
	fmt.Println("    POST /rules                        - Create a risk rule")
	fmt.Println("    POST /rules/reload                 - Hot-reload rules")
	fmt.Println("    GET  /models                       - Active model snapshot")
	fmt.Println("    POST /models/train                 - Train and swap models")
	fmt.Println("    POST /models/reload                - Reload snapshot from disk")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println()
}
