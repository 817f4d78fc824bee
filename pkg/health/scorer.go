// Package health computes composite health scores for compliance controls
// from verification state, evidence freshness, coverage, and review
// recency, with a persisted effectiveness history.
package health

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/evidentry/evidentry/pkg/store"
)

// Factor caps. The four components are independently capped and summed
// into the 0-100 overall score.
const (
	verificationMax = 40.0
	freshnessMax    = 25.0
	coverageMax     = 20.0
	reviewMax       = 15.0
)

// Factors is the per-component breakdown of a health score.
type Factors struct {
	Verification float64 `json:"verification"`
	Freshness    float64 `json:"freshness"`
	Coverage     float64 `json:"coverage"`
	Review       float64 `json:"review"`
}

// Result is one computed health score.
type Result struct {
	ControlID       string   `json:"controlId"`
	OverallScore    int      `json:"overallScore"`
	Factors         Factors  `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

// Scorer computes control health scores. It reads the same store the
// matcher writes but never mutates verification state.
type Scorer struct {
	controls *store.ControlStore
	evidence *store.EvidenceStore
	logger   *slog.Logger
}

// NewScorer creates a Scorer over the given stores.
func NewScorer(controls *store.ControlStore, evidence *store.EvidenceStore, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{controls: controls, evidence: evidence, logger: logger}
}

// Calculate computes the health score for a control without persisting
// anything.
func (s *Scorer) Calculate(controlID string) (*Result, error) {
	control, err := s.controls.Get(controlID)
	if err != nil {
		return nil, err
	}
	if control == nil {
		return nil, fmt.Errorf("control not found: %s", controlID)
	}

	evidence, err := s.evidence.ListForControl(controlID)
	if err != nil {
		return nil, err
	}

	return scoreControl(control, evidence, time.Now()), nil
}

// CalculateAndLog computes the health score and appends it to the
// control's effectiveness history with the triggering actor.
func (s *Scorer) CalculateAndLog(controlID, triggeredBy string) (*Result, error) {
	result, err := s.Calculate(controlID)
	if err != nil {
		return nil, err
	}

	entry := &store.ControlEffectivenessLog{
		ControlID:    controlID,
		OverallScore: result.OverallScore,
		Factors: store.JSONAny{
			"verification": result.Factors.Verification,
			"freshness":    result.Factors.Freshness,
			"coverage":     result.Factors.Coverage,
			"review":       result.Factors.Review,
		},
		Recommendations: result.Recommendations,
		TriggeredBy:     triggeredBy,
	}
	if err := s.controls.AppendEffectiveness(entry); err != nil {
		return nil, err
	}

	s.logger.Debug("control health logged",
		"controlID", controlID,
		"score", result.OverallScore,
		"triggeredBy", triggeredBy)
	return result, nil
}

// MarkReviewed stamps the control's last-reviewed time before recomputing
// and logging the score.
func (s *Scorer) MarkReviewed(controlID, reviewer string) (*Result, error) {
	if err := s.controls.MarkReviewed(controlID, time.Now()); err != nil {
		return nil, err
	}
	return s.CalculateAndLog(controlID, reviewer)
}

// Refresh recomputes and logs the score without mutating the review
// timestamp.
func (s *Scorer) Refresh(controlID, triggeredBy string) (*Result, error) {
	return s.CalculateAndLog(controlID, triggeredBy)
}

// History returns the control's effectiveness history, newest first.
func (s *Scorer) History(controlID string, limit int) ([]store.ControlEffectivenessLog, error) {
	return s.controls.ListEffectiveness(controlID, limit)
}

// scoreControl is the pure scoring function.
func scoreControl(control *store.Control, evidence []store.Evidence, now time.Time) *Result {
	factors := Factors{
		Verification: verificationScore(control.VerificationStatus),
		Freshness:    freshnessScore(evidence, now),
		Coverage:     coverageScore(evidence),
		Review:       reviewScore(control.LastReviewedAt, now),
	}

	total := factors.Verification + factors.Freshness + factors.Coverage + factors.Review
	overall := int(math.Round(total))
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	return &Result{
		ControlID:       control.ID,
		OverallScore:    overall,
		Factors:         factors,
		Recommendations: recommendations(control, factors, evidence, now),
	}
}

// verificationScore maps verification status onto the 0-40 band.
func verificationScore(status store.VerificationStatus) float64 {
	switch status {
	case store.VerificationStatusVerified:
		return verificationMax
	case store.VerificationStatusUnverified:
		return 20
	case store.VerificationStatusStale:
		return 10
	default: // failed
		return 0
	}
}

// freshnessScore keys on days since the most recent linked evidence:
// <=7 -> 25, <=30 -> 18.75, <=90 -> 12.5, <=180 -> 6.25, else 0.
func freshnessScore(evidence []store.Evidence, now time.Time) float64 {
	newest := newestEvidenceAt(evidence)
	if newest == nil {
		return 0
	}

	days := daysSince(*newest, now)
	switch {
	case days <= 7:
		return freshnessMax
	case days <= 30:
		return 18.75
	case days <= 90:
		return 12.5
	case days <= 180:
		return 6.25
	default:
		return 0
	}
}

// coverageScore grants three independent, additive bonuses: +10 for any
// integration-sourced (non-provisional) evidence, +5 for any evidence at
// all, +5 for three or more items.
func coverageScore(evidence []store.Evidence) float64 {
	score := 0.0
	for _, e := range evidence {
		if !e.Provisional {
			score += 10
			break
		}
	}
	if len(evidence) > 0 {
		score += 5
	}
	if len(evidence) >= 3 {
		score += 5
	}
	return score
}

// reviewScore keys on days since the last human review:
// <=30 -> 15, <=60 -> 11.25, <=90 -> 7.5, else 0.
func reviewScore(lastReviewedAt *time.Time, now time.Time) float64 {
	if lastReviewedAt == nil {
		return 0
	}

	days := daysSince(*lastReviewedAt, now)
	switch {
	case days <= 30:
		return reviewMax
	case days <= 60:
		return 11.25
	case days <= 90:
		return 7.5
	default:
		return 0
	}
}

// recommendations covers every threshold the control did not meet.
func recommendations(control *store.Control, factors Factors, evidence []store.Evidence, now time.Time) []string {
	var recs []string

	switch control.VerificationStatus {
	case store.VerificationStatusFailed:
		recs = append(recs, "Automated verification failed; remediate the control and re-run the integration sync")
	case store.VerificationStatusStale:
		recs = append(recs, "Verification is stale; trigger a fresh integration sync to re-verify")
	case store.VerificationStatusUnverified:
		recs = append(recs, "Connect an integration that can verify this control automatically")
	}

	if factors.Freshness < freshnessMax {
		if newest := newestEvidenceAt(evidence); newest == nil {
			recs = append(recs, "No evidence is linked to this control; attach supporting evidence")
		} else {
			recs = append(recs, fmt.Sprintf("Most recent evidence is %d days old; collect fresher evidence", daysSince(*newest, now)))
		}
	}

	if factors.Coverage < coverageMax {
		hasIntegration := false
		for _, e := range evidence {
			if !e.Provisional {
				hasIntegration = true
				break
			}
		}
		if !hasIntegration {
			recs = append(recs, "Link integration-sourced evidence so collection happens automatically")
		}
		if len(evidence) < 3 {
			recs = append(recs, "Add more supporting evidence; three or more items strengthen coverage")
		}
	}

	if factors.Review < reviewMax {
		if control.LastReviewedAt == nil {
			recs = append(recs, "This control has never been reviewed; schedule a review")
		} else {
			recs = append(recs, fmt.Sprintf("Last review was %d days ago; review is overdue", daysSince(*control.LastReviewedAt, now)))
		}
	}

	return recs
}

func newestEvidenceAt(evidence []store.Evidence) *time.Time {
	var newest *time.Time
	for i := range evidence {
		t := evidence[i].CreatedAt
		if newest == nil || t.After(*newest) {
			newest = &t
		}
	}
	return newest
}

func daysSince(t, now time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}
