// Mlinzi - Mobile-money fraud monitoring for Tanzania.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/api"
	"github.com/mlinzi-tz/mlinzi/internal/bus"
	"github.com/mlinzi-tz/mlinzi/internal/cache"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
	"github.com/mlinzi-tz/mlinzi/internal/engine"
	"github.com/mlinzi-tz/mlinzi/internal/notify"
	"github.com/mlinzi-tz/mlinzi/internal/repository"
	"github.com/mlinzi-tz/mlinzi/internal/screening"
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
	if os.Getenv("MLINZI_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mlinzi",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("MLINZI_MODE") == string(domain.ModeServer) {
		cfg = domain.ServerModeConfig()
		slog.Info("running in server mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"mode", cfg.Mode,
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

	// Initialize screening engine
	screener, err := screening.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	defer screener.Close()

	// Initialize the risk engine; it loads the profile, history, recent
	// alerts and screening rules from the repository.
	svc := engine.NewService(cfg.Detection, repo, cacheImpl, busImpl, screener, logger)
	if err := svc.Initialize(ctx); err != nil {
		// Scoring degrades to defaults and the load is retried on the
		// first transaction.
		slog.Warn("risk engine state load failed", "error", err)
	} else {
		slog.Info("risk engine initialized", "rules_count", screener.RulesCount())
	}

	// Start the alert notifier on the broadcast feed
	notifier := notify.NewNotifier(busImpl, logger)
	if err := notifier.Start(); err != nil {
		slog.Error("failed to start notifier", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, screener, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("mlinzi is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := notifier.Stop(); err != nil {
		slog.Error("failed to stop notifier", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("mlinzi shutdown complete")
}

// applyEnvOverrides applies MLINZI_* environment overrides on top of the
// mode defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("MLINZI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MLINZI_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("MLINZI_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("MLINZI_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("MLINZI_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("MLINZI_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("MLINZI_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  MLINZI - Mobile-Money Fraud Monitoring")
	fmt.Println("  Walinzi wa miamala yako.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Mode:     %s\n", cfg.Mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /transactions        - Score a transaction")
	fmt.Println("    GET    /transactions/{id}   - Get transaction by ID")
	fmt.Println("    GET    /assessments/{id}    - Get risk assessment by ID")
	fmt.Println("    GET    /alerts              - Recent fraud alerts")
	fmt.Println("    POST   /alerts/{id}/read    - Mark alert as read")
	fmt.Println("    POST   /alerts/{id}/resolve - Resolve an alert")
	fmt.Println("    GET    /stats               - Fraud statistics")
	fmt.Println("    GET    /rules               - List screening rules")
	fmt.Println("    POST   /rules               - Create a screening rule")
	fmt.Println("    DELETE /rules/{id}          - Delete a screening rule")
	fmt.Println("    POST   /rules/reload        - Hot-reload screening rules")
	fmt.Println("    GET    /health              - Health check")
	fmt.Println()
}
