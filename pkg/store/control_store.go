package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ControlStore provides database operations for controls, their framework
// mappings, evidence links, and effectiveness history.
type ControlStore struct {
	db *gorm.DB
}

// NewControlStore creates a new ControlStore.
func NewControlStore(db *gorm.DB) *ControlStore {
	return &ControlStore{db: db}
}

// AutoMigrate creates or updates the control-related tables.
func (s *ControlStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Control{}); err != nil {
		return fmt.Errorf("auto-migrate controls: %w", err)
	}
	if err := s.db.AutoMigrate(&ControlFrameworkMapping{}); err != nil {
		return fmt.Errorf("auto-migrate control_framework_mappings: %w", err)
	}
	if err := s.db.AutoMigrate(&EvidenceControlLink{}); err != nil {
		return fmt.Errorf("auto-migrate evidence_control_links: %w", err)
	}
	if err := s.db.AutoMigrate(&ControlEffectivenessLog{}); err != nil {
		return fmt.Errorf("auto-migrate control_effectiveness_logs: %w", err)
	}
	return nil
}

// Create inserts a new control, filling in the ID when missing.
func (s *ControlStore) Create(control *Control) error {
	if control.ID == "" {
		control.ID = uuid.New().String()
	}
	if control.ImplementationStatus == "" {
		control.ImplementationStatus = ImplementationNotStarted
	}
	if control.VerificationStatus == "" {
		control.VerificationStatus = VerificationStatusUnverified
	}
	if err := s.db.Create(control).Error; err != nil {
		return fmt.Errorf("create control: %w", err)
	}
	return nil
}

// AddFrameworkMapping links a control to a framework requirement code.
func (s *ControlStore) AddFrameworkMapping(mapping *ControlFrameworkMapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}
	if err := s.db.Create(mapping).Error; err != nil {
		return fmt.Errorf("add framework mapping: %w", err)
	}
	return nil
}

// Get retrieves a control with its framework mappings preloaded.
// Returns nil, nil if no row exists or the row is soft-deleted.
func (s *ControlStore) Get(id string) (*Control, error) {
	var control Control
	err := s.db.Preload("FrameworkMappings").First(&control, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get control: %w", err)
	}
	return &control, nil
}

// ListForOrganization returns all non-deleted controls for an organization
// with their framework mappings preloaded.
func (s *ControlStore) ListForOrganization(organizationID string) ([]Control, error) {
	var controls []Control
	err := s.db.Preload("FrameworkMappings").
		Where("organization_id = ?", organizationID).
		Order("code ASC").
		Find(&controls).Error
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	return controls, nil
}

// ApplyMatch records one evidence-to-control match atomically: the
// evidence link is upserted (idempotent on the evidence/control pair) and
// the control row receives the given field updates in the same
// transaction. An empty update map upserts the link only.
func (s *ControlStore) ApplyMatch(link *EvidenceControlLink, controlUpdates map[string]any) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.Relevance == "" {
		link.Relevance = "primary"
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "evidence_id"}, {Name: "control_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"relevance", "notes", "updated_at"}),
		}).Create(link).Error
		if err != nil {
			return fmt.Errorf("upsert evidence control link: %w", err)
		}

		if len(controlUpdates) == 0 {
			return nil
		}
		if err := tx.Model(&Control{}).Where("id = ?", link.ControlID).
			Updates(controlUpdates).Error; err != nil {
			return fmt.Errorf("update control verification: %w", err)
		}
		return nil
	})
}

// CountLinks returns the number of evidence links for a control.
func (s *ControlStore) CountLinks(controlID string) (int64, error) {
	var count int64
	err := s.db.Model(&EvidenceControlLink{}).
		Where("control_id = ?", controlID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count evidence links: %w", err)
	}
	return count, nil
}

// MarkReviewed stamps the control's last_reviewed_at.
func (s *ControlStore) MarkReviewed(controlID string, reviewedAt time.Time) error {
	result := s.db.Model(&Control{}).Where("id = ?", controlID).
		Updates(map[string]any{"last_reviewed_at": reviewedAt})
	if result.Error != nil {
		return fmt.Errorf("mark control reviewed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("control not found: %s", controlID)
	}
	return nil
}

// AppendEffectiveness appends one row to the control effectiveness history.
func (s *ControlStore) AppendEffectiveness(entry *ControlEffectivenessLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("append effectiveness log: %w", err)
	}
	return nil
}

// ListEffectiveness returns the effectiveness history for a control,
// newest first, limited to limit rows.
func (s *ControlStore) ListEffectiveness(controlID string, limit int) ([]ControlEffectivenessLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []ControlEffectivenessLog
	err := s.db.Where("control_id = ?", controlID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list effectiveness logs: %w", err)
	}
	return records, nil
}
