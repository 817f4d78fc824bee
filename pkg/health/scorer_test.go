package health

import (
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evidentry/evidentry/pkg/store"
)

func setupScorer(t *testing.T) (*Scorer, *store.ControlStore, *store.EvidenceStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	controls := store.NewControlStore(db)
	evidence := store.NewEvidenceStore(db)
	require.NoError(t, controls.AutoMigrate())
	require.NoError(t, evidence.AutoMigrate())

	return NewScorer(controls, evidence, nil), controls, evidence
}

func seedControl(t *testing.T, controls *store.ControlStore, status store.VerificationStatus, lastReviewed *time.Time) *store.Control {
	t.Helper()
	control := &store.Control{
		ID:                 uuid.New().String(),
		OrganizationID:     "org1",
		Code:               "AC-01",
		Name:               "Access Control",
		VerificationStatus: status,
		LastReviewedAt:     lastReviewed,
	}
	require.NoError(t, controls.Create(control))
	return control
}

func linkEvidence(t *testing.T, controls *store.ControlStore, evidenceStore *store.EvidenceStore, controlID string, provisional bool, createdAt time.Time) {
	t.Helper()
	row := &store.Evidence{
		ID:             uuid.New().String(),
		OrganizationID: "org1",
		Title:          "evidence " + uuid.New().String()[:8],
		EvidenceType:   "report",
		Source:         "okta",
		Provisional:    provisional,
		CreatedAt:      createdAt,
	}
	require.NoError(t, evidenceStore.Create(row))
	require.NoError(t, controls.ApplyMatch(&store.EvidenceControlLink{
		EvidenceID: row.ID, ControlID: controlID,
	}, nil))
}

func TestVerificationScoreBands(t *testing.T) {
	cases := []struct {
		status store.VerificationStatus
		want   float64
	}{
		{store.VerificationStatusVerified, 40},
		{store.VerificationStatusUnverified, 20},
		{store.VerificationStatusStale, 10},
		{store.VerificationStatusFailed, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, verificationScore(tc.status), string(tc.status))
	}
}

func TestFreshnessScoreBands(t *testing.T) {
	now := time.Now()
	cases := []struct {
		ageDays int
		want    float64
	}{
		{0, 25},
		{7, 25},
		{8, 18.75},
		{30, 18.75},
		{31, 12.5},
		{90, 12.5},
		{91, 6.25},
		{180, 6.25},
		{181, 0},
	}
	for _, tc := range cases {
		evidence := []store.Evidence{{CreatedAt: now.Add(-time.Duration(tc.ageDays) * 24 * time.Hour)}}
		assert.Equal(t, tc.want, freshnessScore(evidence, now), "age %d days", tc.ageDays)
	}

	assert.Equal(t, 0.0, freshnessScore(nil, now))
}

func TestCoverageScoreBonuses(t *testing.T) {
	assert.Equal(t, 0.0, coverageScore(nil))

	// One provisional item: any-evidence bonus only.
	assert.Equal(t, 5.0, coverageScore([]store.Evidence{{Provisional: true}}))

	// One integration-sourced item: +10 and +5.
	assert.Equal(t, 15.0, coverageScore([]store.Evidence{{Provisional: false}}))

	// Three integration-sourced items: full 20.
	full := []store.Evidence{{}, {}, {}}
	assert.Equal(t, 20.0, coverageScore(full))

	// Three provisional items: count bonuses without the integration bonus.
	provisional := []store.Evidence{{Provisional: true}, {Provisional: true}, {Provisional: true}}
	assert.Equal(t, 10.0, coverageScore(provisional))
}

func TestReviewScoreBands(t *testing.T) {
	now := time.Now()
	cases := []struct {
		ageDays int
		want    float64
	}{
		{0, 15},
		{30, 15},
		{31, 11.25},
		{60, 11.25},
		{61, 7.5},
		{90, 7.5},
		{91, 0},
	}
	for _, tc := range cases {
		reviewed := now.Add(-time.Duration(tc.ageDays) * 24 * time.Hour)
		assert.Equal(t, tc.want, reviewScore(&reviewed, now), "age %d days", tc.ageDays)
	}

	assert.Equal(t, 0.0, reviewScore(nil, now))
}

func TestScoreControlPerfect(t *testing.T) {
	now := time.Now()
	reviewed := now.Add(-24 * time.Hour)
	control := &store.Control{
		ID:                 "c1",
		VerificationStatus: store.VerificationStatusVerified,
		LastReviewedAt:     &reviewed,
	}
	evidence := []store.Evidence{
		{CreatedAt: now.Add(-24 * time.Hour)},
		{CreatedAt: now.Add(-48 * time.Hour)},
		{CreatedAt: now.Add(-72 * time.Hour)},
	}

	result := scoreControl(control, evidence, now)
	assert.Equal(t, 100, result.OverallScore)
	assert.Empty(t, result.Recommendations)
}

func TestScoreControlWorst(t *testing.T) {
	control := &store.Control{
		ID:                 "c1",
		VerificationStatus: store.VerificationStatusFailed,
	}

	result := scoreControl(control, nil, time.Now())
	assert.Equal(t, 0, result.OverallScore)
	assert.NotEmpty(t, result.Recommendations)
}

func TestRecommendationsCoverUnmetThresholds(t *testing.T) {
	now := time.Now()
	control := &store.Control{
		ID:                 "c1",
		VerificationStatus: store.VerificationStatusStale,
	}
	evidence := []store.Evidence{{Provisional: true, CreatedAt: now.Add(-100 * 24 * time.Hour)}}

	result := scoreControl(control, evidence, now)

	var hasStale, hasFreshness, hasIntegration, hasMore, hasReview bool
	for _, rec := range result.Recommendations {
		switch {
		case strings.Contains(rec, "stale"):
			hasStale = true
		case strings.Contains(rec, "days old"):
			hasFreshness = true
		case strings.Contains(rec, "integration-sourced"):
			hasIntegration = true
		case strings.Contains(rec, "three or more"):
			hasMore = true
		case strings.Contains(rec, "never been reviewed"):
			hasReview = true
		}
	}
	assert.True(t, hasStale)
	assert.True(t, hasFreshness)
	assert.True(t, hasIntegration)
	assert.True(t, hasMore)
	assert.True(t, hasReview)
}

func TestCalculateUsesLinkedEvidence(t *testing.T) {
	scorer, controls, evidenceStore := setupScorer(t)

	reviewed := time.Now().Add(-24 * time.Hour)
	control := seedControl(t, controls, store.VerificationStatusVerified, &reviewed)
	for i := 0; i < 3; i++ {
		linkEvidence(t, controls, evidenceStore, control.ID, false, time.Now().Add(-time.Duration(i+1)*24*time.Hour))
	}

	result, err := scorer.Calculate(control.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, result.OverallScore)
	assert.Equal(t, 40.0, result.Factors.Verification)
	assert.Equal(t, 25.0, result.Factors.Freshness)
	assert.Equal(t, 20.0, result.Factors.Coverage)
	assert.Equal(t, 15.0, result.Factors.Review)
}

func TestCalculateMissingControl(t *testing.T) {
	scorer, _, _ := setupScorer(t)

	_, err := scorer.Calculate("does-not-exist")
	require.Error(t, err)
}

func TestRefreshAppendsHistory(t *testing.T) {
	scorer, controls, _ := setupScorer(t)

	control := seedControl(t, controls, store.VerificationStatusUnverified, nil)

	_, err := scorer.Refresh(control.ID, "api")
	require.NoError(t, err)
	_, err = scorer.Refresh(control.ID, "scheduler")
	require.NoError(t, err)

	history, err := scorer.History(control.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].Factors)
}

func TestMarkReviewedStampsAndLogs(t *testing.T) {
	scorer, controls, _ := setupScorer(t)

	control := seedControl(t, controls, store.VerificationStatusVerified, nil)

	result, err := scorer.MarkReviewed(control.ID, "alice")
	require.NoError(t, err)
	// The review happened just now, so the review factor is at its cap.
	assert.Equal(t, 15.0, result.Factors.Review)

	got, err := controls.Get(control.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastReviewedAt)

	history, err := scorer.History(control.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].TriggeredBy)
}
