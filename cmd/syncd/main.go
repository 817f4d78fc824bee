// Package main provides the integration sync daemon entry point. The
// daemon runs the sync scheduler, the log retention worker, and the HTTP
// API for on-demand syncs and control health.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/evidentry/evidentry/pkg/health"
	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/provider/aws"
	"github.com/evidentry/evidentry/pkg/provider/github"
	"github.com/evidentry/evidentry/pkg/provider/okta"
	"github.com/evidentry/evidentry/pkg/store"
	"github.com/evidentry/evidentry/pkg/syncer"
	"github.com/evidentry/evidentry/pkg/vault"
	"github.com/evidentry/evidentry/pkg/verify"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "postgres", "Database type (postgres or sqlite)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	integrations := store.NewIntegrationStore(gormDB)
	evidence := store.NewEvidenceStore(gormDB)
	controls := store.NewControlStore(gormDB)
	for _, m := range []interface{ AutoMigrate() error }{integrations, evidence, controls} {
		if err := m.AutoMigrate(); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	credentialVault, err := vault.NewVaultFromEnv(logger)
	if err != nil {
		logger.Error("failed to initialize credential vault", "error", err)
		os.Exit(1)
	}

	registry := provider.NewRegistry()
	registry.Register(github.IntegrationType, github.New)
	registry.Register(aws.IntegrationType, aws.New)
	registry.Register(okta.IntegrationType, okta.New)

	matcher := verify.NewMatcher(controls, logger)
	runner := syncer.NewRunner(integrations, evidence, registry, matcher, credentialVault, logger)

	cfg := syncer.ConfigFromEnv()
	scheduler := syncer.NewScheduler(cfg, integrations, runner, logger)
	retention := syncer.NewLogRetentionWorker(integrations, cfg.LogRetentionDays, logger)

	go scheduler.Run(ctx)
	go retention.Run(ctx)

	scorer := health.NewScorer(controls, evidence, logger)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	mux.Mount("/api/sync/v1alpha1", syncer.Router(scheduler, runner, integrations))
	mux.Mount("/api/health/v1alpha1", health.Router(scorer))

	mux.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := gormDB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err == nil {
			err = credentialVault.SelfTest()
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("sync daemon ready",
		"listen", listenAddr,
		"providers", registry.Types(),
		"maxConcurrentSyncs", cfg.MaxConcurrentSyncs,
		"tickInterval", cfg.TickInterval)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("sync daemon stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
	}

	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected postgres or sqlite)", dbType)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return gormDB, nil
}
