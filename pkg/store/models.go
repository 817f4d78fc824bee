// Package store provides the GORM persistence layer for integrations,
// sync logs, evidence, controls, and their links. All stores share a
// single *gorm.DB; writes that must be observed together are grouped
// into transactions by the owning store method.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringSlice: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONAny: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// IntegrationStatus is the lifecycle state of an integration.
type IntegrationStatus string

const (
	IntegrationStatusPending      IntegrationStatus = "pending"
	IntegrationStatusActive       IntegrationStatus = "active"
	IntegrationStatusError        IntegrationStatus = "error"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
)

// Integration is an organization's configured connection to one external
// vendor system. The credential blob is encrypted at rest by pkg/vault;
// a sync may only run while the blob is non-null.
type Integration struct {
	ID                   string            `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrganizationID       string            `gorm:"column:organization_id;index:idx_integration_org;not null"`
	Type                 string            `gorm:"column:type;not null"`
	Name                 string            `gorm:"column:name;not null"`
	Status               IntegrationStatus `gorm:"column:status;index:idx_integration_status;not null;default:pending"`
	EncryptedCredentials *string           `gorm:"column:encrypted_credentials"`
	Config               JSONAny           `gorm:"column:config;type:text"`
	LastSyncAt           *time.Time        `gorm:"column:last_sync_at"`
	NextSyncAt           *time.Time        `gorm:"column:next_sync_at;index:idx_integration_next_sync"`
	SyncFrequencyMinutes int               `gorm:"column:sync_frequency_minutes;default:1440"`
	ErrorMessage         string            `gorm:"column:error_message"`
	CreatedAt            time.Time         `gorm:"column:created_at"`
	UpdatedAt            time.Time         `gorm:"column:updated_at"`
	DeletedAt            gorm.DeletedAt    `gorm:"column:deleted_at;index"`
}

// TableName returns the GORM table name.
func (Integration) TableName() string { return "integrations" }

// SyncLogStatus is the lifecycle state of a single sync attempt.
type SyncLogStatus string

const (
	SyncLogStatusRunning   SyncLogStatus = "running"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

// IntegrationLog records one sync attempt. A row is created when the sync
// starts and finalized exactly once when it ends; it is never mutated
// afterward.
type IntegrationLog struct {
	ID             string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	IntegrationID  string        `gorm:"column:integration_id;index:idx_log_integration;not null"`
	Operation      string        `gorm:"column:operation;not null"`
	Status         SyncLogStatus `gorm:"column:status;index:idx_log_status;not null;default:running"`
	ItemsProcessed int           `gorm:"column:items_processed"`
	ItemsFailed    int           `gorm:"column:items_failed"`
	Details        JSONAny       `gorm:"column:details;type:text"`
	StartedAt      time.Time     `gorm:"column:started_at;not null"`
	CompletedAt    *time.Time    `gorm:"column:completed_at"`
	DurationMs     int64         `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (IntegrationLog) TableName() string { return "integration_logs" }

// ReviewStatus is the human-review state of an evidence item.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Evidence is a durable, timestamped artifact asserting a fact about the
// organization's security posture. Integration-sourced evidence is
// non-provisional: it is treated as pre-verified and skips human review.
type Evidence struct {
	ID              string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrganizationID  string          `gorm:"column:organization_id;index:idx_evidence_org;not null"`
	IntegrationID   *string         `gorm:"column:integration_id;index:idx_evidence_integration"`
	CollectorID     string          `gorm:"column:collector_id"`
	Title           string          `gorm:"column:title;not null"`
	Description     string          `gorm:"column:description"`
	EvidenceType    string          `gorm:"column:evidence_type;not null"`
	Source          string          `gorm:"column:source;not null"`
	Metadata        JSONAny         `gorm:"column:metadata;type:text"`
	ControlPatterns JSONStringSlice `gorm:"column:control_patterns;type:text"`
	ValidFrom       *time.Time      `gorm:"column:valid_from"`
	ValidUntil      *time.Time      `gorm:"column:valid_until"`
	ReviewStatus    ReviewStatus    `gorm:"column:review_status;not null;default:pending"`
	Provisional     bool            `gorm:"column:provisional;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

// TableName returns the GORM table name.
func (Evidence) TableName() string { return "evidence" }

// VerificationStatus tracks whether automated evidence currently backs a
// control's claimed state. It is distinct from ImplementationStatus and is
// only ever written by the matcher or an explicit human review action.
type VerificationStatus string

const (
	VerificationStatusUnverified VerificationStatus = "unverified"
	VerificationStatusVerified   VerificationStatus = "verified"
	VerificationStatusFailed     VerificationStatus = "failed"
	VerificationStatusStale      VerificationStatus = "stale"
)

// ImplementationStatus is the claimed implementation state of a control.
type ImplementationStatus string

const (
	ImplementationNotStarted  ImplementationStatus = "not_started"
	ImplementationInProgress  ImplementationStatus = "in_progress"
	ImplementationImplemented ImplementationStatus = "implemented"
)

// Control is an internal compliance requirement whose implementation and
// verification status evidence can satisfy or fail.
type Control struct {
	ID                   string               `gorm:"primaryKey;column:id;type:varchar(36)"`
	OrganizationID       string               `gorm:"column:organization_id;index:idx_control_org;not null"`
	Code                 string               `gorm:"column:code;index:idx_control_code;not null"`
	Name                 string               `gorm:"column:name;not null"`
	Description          string               `gorm:"column:description"`
	Category             string               `gorm:"column:category"`
	ImplementationStatus ImplementationStatus `gorm:"column:implementation_status;not null;default:not_started"`
	VerificationStatus   VerificationStatus   `gorm:"column:verification_status;not null;default:unverified"`
	IsAutomated          bool                 `gorm:"column:is_automated;not null;default:false"`
	AutomationSource     string               `gorm:"column:automation_source"`
	VerificationDetails  JSONAny              `gorm:"column:verification_details;type:text"`
	VerifiedAt           *time.Time           `gorm:"column:verified_at"`
	LastReviewedAt       *time.Time           `gorm:"column:last_reviewed_at"`
	CreatedAt            time.Time            `gorm:"column:created_at"`
	UpdatedAt            time.Time            `gorm:"column:updated_at"`
	DeletedAt            gorm.DeletedAt       `gorm:"column:deleted_at;index"`

	FrameworkMappings []ControlFrameworkMapping `gorm:"foreignKey:ControlID"`
}

// TableName returns the GORM table name.
func (Control) TableName() string { return "controls" }

// ControlFrameworkMapping links a control to a framework requirement code
// (e.g. an ISO clause or SOC criterion) with a coverage level.
type ControlFrameworkMapping struct {
	ID              string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ControlID       string    `gorm:"column:control_id;index:idx_cfm_control;not null"`
	Framework       string    `gorm:"column:framework;not null"`
	RequirementCode string    `gorm:"column:requirement_code;not null"`
	CoverageLevel   string    `gorm:"column:coverage_level;default:full"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (ControlFrameworkMapping) TableName() string { return "control_framework_mappings" }

// EvidenceControlLink ties a persisted evidence item to a control. Upserts
// are idempotent on the (evidence_id, control_id) pair.
type EvidenceControlLink struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	EvidenceID string    `gorm:"column:evidence_id;uniqueIndex:idx_link_evidence_control,priority:1;not null"`
	ControlID  string    `gorm:"column:control_id;uniqueIndex:idx_link_evidence_control,priority:2;index:idx_link_control;not null"`
	Relevance  string    `gorm:"column:relevance;default:primary"`
	Notes      string    `gorm:"column:notes"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (EvidenceControlLink) TableName() string { return "evidence_control_links" }

// ControlEffectivenessLog is an append-only history of computed control
// health scores with the factor breakdown and the triggering actor.
type ControlEffectivenessLog struct {
	ID              string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	ControlID       string          `gorm:"column:control_id;index:idx_eff_control;not null"`
	OverallScore    int             `gorm:"column:overall_score;not null"`
	Factors         JSONAny         `gorm:"column:factors;type:text"`
	Recommendations JSONStringSlice `gorm:"column:recommendations;type:text"`
	TriggeredBy     string          `gorm:"column:triggered_by"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (ControlEffectivenessLog) TableName() string { return "control_effectiveness_logs" }
