package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EvidenceStore provides database operations for evidence rows.
type EvidenceStore struct {
	db *gorm.DB
}

// NewEvidenceStore creates a new EvidenceStore.
func NewEvidenceStore(db *gorm.DB) *EvidenceStore {
	return &EvidenceStore{db: db}
}

// AutoMigrate creates or updates the evidence table.
func (s *EvidenceStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Evidence{})
}

// Create inserts a new evidence row, filling in the ID when missing.
func (s *EvidenceStore) Create(evidence *Evidence) error {
	if evidence.ID == "" {
		evidence.ID = uuid.New().String()
	}
	if evidence.ReviewStatus == "" {
		evidence.ReviewStatus = ReviewStatusPending
	}
	if err := s.db.Create(evidence).Error; err != nil {
		return fmt.Errorf("create evidence: %w", err)
	}
	return nil
}

// Get retrieves an evidence row by ID. Returns nil, nil if no row exists
// or the row is soft-deleted.
func (s *EvidenceStore) Get(id string) (*Evidence, error) {
	var evidence Evidence
	if err := s.db.First(&evidence, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	return &evidence, nil
}

// ListForControl returns all non-deleted evidence linked to a control,
// newest first. Used by the health scorer for freshness and coverage.
func (s *EvidenceStore) ListForControl(controlID string) ([]Evidence, error) {
	var records []Evidence
	err := s.db.
		Joins("JOIN evidence_control_links ON evidence_control_links.evidence_id = evidence.id").
		Where("evidence_control_links.control_id = ?", controlID).
		Order("evidence.created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list evidence for control: %w", err)
	}
	return records, nil
}

// ListForIntegration returns non-deleted evidence produced by an
// integration, newest first, limited to limit rows.
func (s *EvidenceStore) ListForIntegration(integrationID string, limit int) ([]Evidence, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Evidence
	err := s.db.Where("integration_id = ?", integrationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list evidence for integration: %w", err)
	}
	return records, nil
}

// UpdateReviewStatus records a human review decision on an evidence row.
func (s *EvidenceStore) UpdateReviewStatus(id string, status ReviewStatus) error {
	result := s.db.Model(&Evidence{}).Where("id = ?", id).
		Updates(map[string]any{
			"review_status": status,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update evidence review status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("evidence not found: %s", id)
	}
	return nil
}
