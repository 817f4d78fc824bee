package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/evidentry/evidentry/pkg/store"
)

// LogRetentionWorker periodically deletes old terminal sync logs.
type LogRetentionWorker struct {
	store     *store.IntegrationStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewLogRetentionWorker creates a new LogRetentionWorker.
// retentionDays controls how many days of terminal sync logs to keep.
// The worker runs daily.
func NewLogRetentionWorker(s *store.IntegrationStore, retentionDays int, logger *slog.Logger) *LogRetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRetentionWorker{
		store:     s,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		logger:    logger,
	}
}

// Run starts the retention worker. It runs until the context is cancelled.
func (w *LogRetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("sync log retention worker disabled",
			"hasStore", w.store != nil,
			"retentionDays", int(w.retention.Hours()/24))
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sync log retention worker started",
		"retentionDays", int(w.retention.Hours()/24),
		"interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync log retention worker stopped")
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

// cleanup performs a single retention pass.
func (w *LogRetentionWorker) cleanup() {
	cutoff := time.Now().Add(-w.retention)
	deleted, err := w.store.DeleteLogsOlderThan(cutoff)
	if err != nil {
		w.logger.Error("sync log retention cleanup failed", "error", err)
	} else if deleted > 0 {
		w.logger.Info("sync log retention cleanup completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
}
