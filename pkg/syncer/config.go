// Package syncer orchestrates integration syncs: the runner executes one
// end-to-end sync pipeline, and the scheduler discovers due integrations
// and launches runs under a concurrency cap.
package syncer

import (
	"os"
	"strconv"
	"time"
)

// Config controls scheduler and runner behavior.
type Config struct {
	MaxConcurrentSyncs int           // Max simultaneously running syncs. Default 3.
	TickInterval       time.Duration // Scheduler cadence. Default 60s.
	SyncTimeout        time.Duration // Per-sync deadline; a deployment parameter, not a contract. Default 30m.
	LogRetentionDays   int           // How long to keep terminal sync logs. Default 90.
	Enabled            bool          // Whether the scheduler runs. Default true.
}

// DefaultConfig returns the default sync configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentSyncs: 3,
		TickInterval:       60 * time.Second,
		SyncTimeout:        30 * time.Minute,
		LogRetentionDays:   90,
		Enabled:            true,
	}
}

// ConfigFromEnv loads config from environment variables.
// EVIDENTRY_MAX_CONCURRENT_SYNCS, EVIDENTRY_SYNC_TICK_SECONDS,
// EVIDENTRY_SYNC_TIMEOUT_MINUTES, EVIDENTRY_LOG_RETENTION_DAYS,
// EVIDENTRY_SYNC_ENABLED
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("EVIDENTRY_MAX_CONCURRENT_SYNCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentSyncs = n
		}
	}

	if v := os.Getenv("EVIDENTRY_SYNC_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TickInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("EVIDENTRY_SYNC_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SyncTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("EVIDENTRY_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LogRetentionDays = n
		}
	}

	if v := os.Getenv("EVIDENTRY_SYNC_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
