package verify

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/store"
)

func setupMatcher(t *testing.T) (*Matcher, *store.ControlStore, *store.EvidenceStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	controls := store.NewControlStore(db)
	evidence := store.NewEvidenceStore(db)
	require.NoError(t, controls.AutoMigrate())
	require.NoError(t, evidence.AutoMigrate())

	return NewMatcher(controls, nil), controls, evidence
}

func createControl(t *testing.T, controls *store.ControlStore, orgID, code, name string) *store.Control {
	t.Helper()
	control := &store.Control{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Code:           code,
		Name:           name,
	}
	require.NoError(t, controls.Create(control))
	return control
}

func createEvidence(t *testing.T, evidenceStore *store.EvidenceStore, orgID string, ev provider.GeneratedEvidence) EvidenceItem {
	t.Helper()
	row := &store.Evidence{
		OrganizationID: orgID,
		Title:          ev.Title,
		EvidenceType:   ev.EvidenceType,
		Source:         ev.Source,
	}
	require.NoError(t, evidenceStore.Create(row))
	return EvidenceItem{EvidenceID: row.ID, Evidence: ev}
}

func mfaEvidence(implemented bool) provider.GeneratedEvidence {
	return provider.GeneratedEvidence{
		Title:           "Multi-factor authentication enrollment",
		EvidenceType:    "mfa_enforcement",
		Source:          "okta",
		ControlPatterns: []string{"mfa", "multi-factor", "CC6.1"},
		Verification: &provider.VerificationResult{
			IsImplemented: implemented,
			Confidence:    provider.ConfidenceHigh,
			Reason:        "test",
		},
	}
}

func oktaMappings() []provider.ControlMapping {
	return []provider.ControlMapping{
		{EvidenceSource: "okta", NamePattern: "multi-factor", CodePattern: "CC6.1"},
		{EvidenceSource: "okta", NamePattern: "access"},
	}
}

func TestMatchByNamePatternVerifiesControl(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, oktaMappings())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 0, result.Failed)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VerificationStatusVerified, got.VerificationStatus)
	assert.Equal(t, store.ImplementationImplemented, got.ImplementationStatus)
	assert.True(t, got.IsAutomated)
	assert.Equal(t, "okta", got.AutomationSource)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, "name_pattern", got.VerificationDetails["matchedRule"])
}

func TestMatchFailedVerificationMarksControlFailed(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(false))

	result, err := matcher.Match("org1", []EvidenceItem{item}, oktaMappings())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Verified)
	assert.Equal(t, 1, result.Failed)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VerificationStatusFailed, got.VerificationStatus)
	assert.Equal(t, store.ImplementationNotStarted, got.ImplementationStatus)
}

func TestMatchByCodePattern(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "CC6.1", "Logical Access Security")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "okta", CodePattern: "CC6.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, "code_pattern", got.VerificationDetails["matchedRule"])
}

func TestMatchByEvidencePatternAgainstControlName(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	// No mapping pattern matches, but the evidence's own pattern hits the
	// control name.
	control := createControl(t, controls, "org1", "X-01", "MFA for Workforce")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "okta"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, "evidence_pattern_name", got.VerificationDetails["matchedRule"])
}

func TestMatchByEvidencePatternAgainstFrameworkCode(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "X-02", "Workforce Authentication")
	require.NoError(t, controls.AddFrameworkMapping(&store.ControlFrameworkMapping{
		ControlID: control.ID, Framework: "soc2", RequirementCode: "cc6.1",
	}))

	ev := provider.GeneratedEvidence{
		Title:           "MFA report",
		EvidenceType:    "mfa_enforcement",
		Source:          "okta",
		ControlPatterns: []string{"CC6.1"},
		Verification:    &provider.VerificationResult{IsImplemented: true, Confidence: provider.ConfidenceHigh},
	}
	item := createEvidence(t, evidenceStore, "org1", ev)

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "okta"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, "evidence_pattern_code", got.VerificationDetails["matchedRule"])
}

func TestMatchSourceFilterSkipsOtherProviders(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	createControl(t, controls, "org1", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "github", NamePattern: "multi-factor"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Verified)
	assert.Equal(t, 0, result.Failed)
}

func TestMatchWildcardSource(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	createControl(t, controls, "org1", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "*", NamePattern: "multi-factor"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
}

func TestMatchFirstMappingWinsPerControl(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "CC6.1", "Multi-Factor Access Control")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	// Both mappings match the control; only the first is applied.
	result, err := matcher.Match("org1", []EvidenceItem{item}, oktaMappings())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)

	count, err := controls.CountLinks(control.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	assert.Equal(t, "name_pattern", got.VerificationDetails["matchedRule"])
}

func TestMatchIsIdempotentAcrossSyncs(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	for i := 0; i < 3; i++ {
		_, err := matcher.Match("org1", []EvidenceItem{item}, oktaMappings())
		require.NoError(t, err)
	}

	count, err := controls.CountLinks(control.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMatchScopedToOrganization(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	other := createControl(t, controls, "org2", "AC-17", "Enforce Multi-Factor Authentication")
	item := createEvidence(t, evidenceStore, "org1", mfaEvidence(true))

	result, err := matcher.Match("org1", []EvidenceItem{item}, oktaMappings())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Verified)

	got, err := controls.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VerificationStatusUnverified, got.VerificationStatus)
}

func TestMatchWithoutVerificationLinksOnly(t *testing.T) {
	matcher, controls, evidenceStore := setupMatcher(t)

	control := createControl(t, controls, "org1", "AM-01", "Asset Inventory Maintained")
	ev := provider.GeneratedEvidence{
		Title:           "Repository inventory",
		EvidenceType:    "asset_inventory",
		Source:          "github",
		ControlPatterns: []string{"asset inventory"},
	}
	item := createEvidence(t, evidenceStore, "org1", ev)

	result, err := matcher.Match("org1", []EvidenceItem{item}, []provider.ControlMapping{
		{EvidenceSource: "github", NamePattern: "asset"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Verified)
	assert.Equal(t, 0, result.Failed)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	// Linked and marked automated, but verification state untouched.
	assert.True(t, got.IsAutomated)
	assert.Equal(t, store.VerificationStatusUnverified, got.VerificationStatus)
	assert.Nil(t, got.VerifiedAt)

	count, err := controls.CountLinks(control.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
