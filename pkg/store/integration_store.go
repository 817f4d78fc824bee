package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IntegrationStore provides database operations for integrations and their
// sync logs.
type IntegrationStore struct {
	db *gorm.DB
}

// NewIntegrationStore creates a new IntegrationStore.
func NewIntegrationStore(db *gorm.DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

// AutoMigrate creates or updates the integrations and integration_logs tables.
func (s *IntegrationStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Integration{}); err != nil {
		return fmt.Errorf("auto-migrate integrations: %w", err)
	}
	if err := s.db.AutoMigrate(&IntegrationLog{}); err != nil {
		return fmt.Errorf("auto-migrate integration_logs: %w", err)
	}
	return nil
}

// Create inserts a new integration. Missing IDs and timestamps are filled in.
func (s *IntegrationStore) Create(integration *Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	if integration.Status == "" {
		integration.Status = IntegrationStatusPending
	}
	if integration.SyncFrequencyMinutes <= 0 {
		integration.SyncFrequencyMinutes = 1440
	}
	if err := s.db.Create(integration).Error; err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	return nil
}

// Get retrieves an integration by ID. Returns nil, nil if no row exists.
func (s *IntegrationStore) Get(id string) (*Integration, error) {
	var integration Integration
	if err := s.db.First(&integration, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return &integration, nil
}

// ListDue returns active integrations whose next_sync_at is at or before
// now, excluding the given IDs, ordered by next_sync_at ascending and
// limited to limit rows. The exclusion list carries the scheduler's
// currently-active set so a running sync is never picked up twice.
func (s *IntegrationStore) ListDue(now time.Time, excludeIDs []string, limit int) ([]Integration, error) {
	q := s.db.Where("status = ? AND next_sync_at IS NOT NULL AND next_sync_at <= ?",
		IntegrationStatusActive, now)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}

	var due []Integration
	if err := q.Order("next_sync_at ASC").Limit(limit).Find(&due).Error; err != nil {
		return nil, fmt.Errorf("list due integrations: %w", err)
	}
	return due, nil
}

// CountDue returns the number of active integrations due for a sync,
// excluding the given IDs.
func (s *IntegrationStore) CountDue(now time.Time, excludeIDs []string) (int64, error) {
	q := s.db.Model(&Integration{}).
		Where("status = ? AND next_sync_at IS NOT NULL AND next_sync_at <= ?",
			IntegrationStatusActive, now)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count due integrations: %w", err)
	}
	return count, nil
}

// NextDueAt returns the earliest next_sync_at among active-status
// integrations, or nil when none is scheduled.
func (s *IntegrationStore) NextDueAt() (*time.Time, error) {
	var integration Integration
	err := s.db.Where("status = ? AND next_sync_at IS NOT NULL", IntegrationStatusActive).
		Order("next_sync_at ASC").
		First(&integration).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("next due at: %w", err)
	}
	return integration.NextSyncAt, nil
}

// StartSyncLog creates a running log row for a new sync attempt.
func (s *IntegrationStore) StartSyncLog(integrationID, operation string) (*IntegrationLog, error) {
	log := &IntegrationLog{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		Operation:     operation,
		Status:        SyncLogStatusRunning,
		StartedAt:     time.Now(),
	}
	if err := s.db.Create(log).Error; err != nil {
		return nil, fmt.Errorf("start sync log: %w", err)
	}
	return log, nil
}

// CompleteSync finalizes a successful sync in a single transaction: the
// integration becomes active with cleared error state and fresh sync
// timestamps, and the log row is closed as completed. The two writes are
// atomic so no observable state has one updated and not the other.
func (s *IntegrationStore) CompleteSync(integrationID, logID string, itemsProcessed, itemsFailed int, details JSONAny) error {
	now := time.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var integration Integration
		if err := tx.First(&integration, "id = ?", integrationID).Error; err != nil {
			return fmt.Errorf("load integration for completion: %w", err)
		}

		frequency := integration.SyncFrequencyMinutes
		if frequency <= 0 {
			frequency = 1440
		}
		nextSync := now.Add(time.Duration(frequency) * time.Minute)

		if err := tx.Model(&Integration{}).Where("id = ?", integrationID).
			Updates(map[string]any{
				"status":        IntegrationStatusActive,
				"error_message": "",
				"last_sync_at":  now,
				"next_sync_at":  nextSync,
			}).Error; err != nil {
			return fmt.Errorf("update integration: %w", err)
		}

		return finalizeLog(tx, logID, SyncLogStatusCompleted, now, itemsProcessed, itemsFailed, details)
	})
}

// FailSync finalizes a failed sync in a single transaction: the integration
// moves to error status with the failure message, and the log row is closed
// as failed with a non-null duration.
func (s *IntegrationStore) FailSync(integrationID, logID, errorMessage string, details JSONAny) error {
	now := time.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Integration{}).Where("id = ?", integrationID).
			Updates(map[string]any{
				"status":        IntegrationStatusError,
				"error_message": errorMessage,
			}).Error; err != nil {
			return fmt.Errorf("update integration: %w", err)
		}

		return finalizeLog(tx, logID, SyncLogStatusFailed, now, 0, 0, details)
	})
}

// finalizeLog performs the single completing write on a log row.
func finalizeLog(tx *gorm.DB, logID string, status SyncLogStatus, completedAt time.Time, itemsProcessed, itemsFailed int, details JSONAny) error {
	var log IntegrationLog
	if err := tx.First(&log, "id = ?", logID).Error; err != nil {
		return fmt.Errorf("load sync log: %w", err)
	}

	updates := map[string]any{
		"status":          status,
		"completed_at":    completedAt,
		"duration_ms":     completedAt.Sub(log.StartedAt).Milliseconds(),
		"items_processed": itemsProcessed,
		"items_failed":    itemsFailed,
	}
	if details != nil {
		updates["details"] = details
	}

	if err := tx.Model(&IntegrationLog{}).Where("id = ?", logID).Updates(updates).Error; err != nil {
		return fmt.Errorf("finalize sync log: %w", err)
	}
	return nil
}

// UpdateStatus sets the integration status and error message outside a sync
// (connection tests, admin actions).
func (s *IntegrationStore) UpdateStatus(id string, status IntegrationStatus, errorMessage string) error {
	result := s.db.Model(&Integration{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("update integration status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("integration not found: %s", id)
	}
	return nil
}

// Disconnect soft-deletes an integration and discards its credential blob
// in one transaction. The encrypted credentials are unrecoverable afterward.
func (s *IntegrationStore) Disconnect(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Integration{}).Where("id = ?", id).
			Updates(map[string]any{
				"status":                IntegrationStatusDisconnected,
				"encrypted_credentials": nil,
				"next_sync_at":          nil,
			})
		if result.Error != nil {
			return fmt.Errorf("disconnect integration: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("integration not found: %s", id)
		}

		if err := tx.Delete(&Integration{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("soft-delete integration: %w", err)
		}
		return nil
	})
}

// GetLog retrieves a sync log row by ID. Returns nil, nil if no row exists.
func (s *IntegrationStore) GetLog(logID string) (*IntegrationLog, error) {
	var log IntegrationLog
	if err := s.db.First(&log, "id = ?", logID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get sync log: %w", err)
	}
	return &log, nil
}

// ListLogs returns paginated sync logs for an integration, newest first.
// The page token is the started_at timestamp of the last row on the
// previous page, RFC3339Nano encoded.
func (s *IntegrationStore) ListLogs(integrationID string, pageSize int, pageToken string) ([]IntegrationLog, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Where("integration_id = ?", integrationID).
		Order("started_at DESC").
		Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("started_at < ?", t)
	}

	var records []IntegrationLog
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list sync logs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].StartedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, nil
}

// DeleteLogsOlderThan removes terminal sync logs older than the cutoff.
func (s *IntegrationStore) DeleteLogsOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("status IN ? AND completed_at < ?",
		[]SyncLogStatus{SyncLogStatusCompleted, SyncLogStatusFailed}, cutoff).
		Delete(&IntegrationLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old sync logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
