package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/evidentry/evidentry/pkg/store"
)

// SyncRunner executes one sync. Satisfied by *Runner; tests substitute
// fakes.
type SyncRunner interface {
	RunSync(ctx context.Context, integrationID string, collectorIDs []string) (*SyncResult, error)
}

// TriggerResult reports whether an on-demand sync was accepted.
type TriggerResult struct {
	Queued bool   `json:"queued"`
	Reason string `json:"reason,omitempty"`
}

// SchedulerStatus is a point-in-time snapshot of the scheduler.
type SchedulerStatus struct {
	Running       bool       `json:"running"`
	ActiveIDs     []string   `json:"activeIds"`
	MaxConcurrent int        `json:"maxConcurrent"`
	DueCount      int64      `json:"dueCount"`
	NextSyncAt    *time.Time `json:"nextSyncAt,omitempty"`
}

// Scheduler discovers due integrations on a fixed cadence and launches
// syncs under a concurrency cap. An integration never has two concurrent
// syncs; the active set is the single source of truth for what is running.
type Scheduler struct {
	cfg          *Config
	integrations *store.IntegrationStore
	runner       SyncRunner
	logger       *slog.Logger

	mu      sync.Mutex
	active  mapset.Set[string]
	running bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg *Config, integrations *store.IntegrationStore, runner SyncRunner, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:          cfg,
		integrations: integrations,
		runner:       runner,
		logger:       logger,
		active:       mapset.NewSet[string](),
	}
}

// Run ticks immediately, then on the configured interval, until the
// context is canceled. Tick errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("sync scheduler disabled")
		return
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("sync scheduler started",
		"tickInterval", s.cfg.TickInterval,
		"maxConcurrentSyncs", s.cfg.MaxConcurrentSyncs)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick launches syncs for due integrations up to the remaining capacity.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	capacity := s.cfg.MaxConcurrentSyncs - s.active.Cardinality()
	exclude := s.active.ToSlice()
	s.mu.Unlock()

	if capacity <= 0 {
		s.logger.Debug("sync scheduler at capacity", "active", len(exclude))
		return
	}

	due, err := s.integrations.ListDue(time.Now(), exclude, capacity)
	if err != nil {
		s.logger.Error("failed to list due integrations", "error", err)
		return
	}

	for _, integration := range due {
		s.mu.Lock()
		if s.active.Contains(integration.ID) || s.active.Cardinality() >= s.cfg.MaxConcurrentSyncs {
			s.mu.Unlock()
			continue
		}
		s.active.Add(integration.ID)
		s.mu.Unlock()

		s.launch(ctx, integration.ID)
	}
}

// TriggerSync launches an on-demand sync for one integration immediately,
// bypassing the due query. The concurrency cap and the one-sync-per-
// integration rule still hold.
func (s *Scheduler) TriggerSync(ctx context.Context, integrationID string) (TriggerResult, error) {
	integration, err := s.integrations.Get(integrationID)
	if err != nil {
		return TriggerResult{}, err
	}
	if integration == nil {
		return TriggerResult{Queued: false, Reason: "not found"}, nil
	}

	s.mu.Lock()
	if s.active.Contains(integrationID) {
		s.mu.Unlock()
		return TriggerResult{Queued: false, Reason: "already in progress"}, nil
	}
	if s.active.Cardinality() >= s.cfg.MaxConcurrentSyncs {
		s.mu.Unlock()
		return TriggerResult{Queued: false, Reason: "at capacity"}, nil
	}
	s.active.Add(integrationID)
	s.mu.Unlock()

	s.launch(ctx, integrationID)
	return TriggerResult{Queued: true}, nil
}

// launch runs one sync in its own goroutine under the per-sync timeout.
// The caller must have already reserved the integration in the active set.
// The sync context is detached from the caller's cancellation: once
// launched, a sync runs to completion, failure, or timeout even if the
// triggering request has already returned.
func (s *Scheduler) launch(ctx context.Context, integrationID string) {
	go func() {
		defer func() {
			s.mu.Lock()
			s.active.Remove(integrationID)
			s.mu.Unlock()
		}()

		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SyncTimeout)
		defer cancel()

		if _, err := s.runner.RunSync(syncCtx, integrationID, nil); err != nil {
			s.logger.Error("scheduled sync failed", "integrationID", integrationID, "error", err)
		}
	}()
}

// Status reports the scheduler's current state, the backlog of due
// integrations, and the next scheduled sync time.
func (s *Scheduler) Status() (SchedulerStatus, error) {
	s.mu.Lock()
	status := SchedulerStatus{
		Running:       s.running,
		ActiveIDs:     s.active.ToSlice(),
		MaxConcurrent: s.cfg.MaxConcurrentSyncs,
	}
	s.mu.Unlock()

	dueCount, err := s.integrations.CountDue(time.Now(), status.ActiveIDs)
	if err != nil {
		return status, err
	}
	status.DueCount = dueCount

	nextAt, err := s.integrations.NextDueAt()
	if err != nil {
		return status, err
	}
	status.NextSyncAt = nextAt
	return status, nil
}

// ActiveCount returns the number of currently running syncs.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Cardinality()
}
