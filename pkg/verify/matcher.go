// Package verify maps generated evidence to compliance controls and
// updates their verification state. Matching is driven entirely by the
// provider's control mappings and the evidence's control patterns.
package verify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/store"
)

// EvidenceItem pairs a generated evidence item with its persisted row ID.
type EvidenceItem struct {
	EvidenceID string
	Evidence   provider.GeneratedEvidence
}

// Result reports how many controls were verified and failed in one
// matcher invocation.
type Result struct {
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
}

// Matcher applies provider control mappings to an organization's controls.
type Matcher struct {
	controls *store.ControlStore
	logger   *slog.Logger
}

// NewMatcher creates a Matcher over the given control store.
func NewMatcher(controls *store.ControlStore, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{controls: controls, logger: logger}
}

// Match runs the verification pass for one sync. Each control is updated
// at most once per invocation: the first satisfying mapping wins. This is
// a deliberate dedup, not a quality ranking; a control matched by several
// signals keeps the first match only.
func (m *Matcher) Match(organizationID string, items []EvidenceItem, mappings []provider.ControlMapping) (Result, error) {
	var result Result

	controls, err := m.controls.ListForOrganization(organizationID)
	if err != nil {
		return result, fmt.Errorf("load controls: %w", err)
	}
	if len(controls) == 0 || len(items) == 0 {
		return result, nil
	}

	processed := make(map[string]bool)

	for _, item := range items {
		for _, mapping := range mappings {
			if !sourceMatches(mapping.EvidenceSource, item.Evidence.Source) {
				continue
			}

			for i := range controls {
				control := &controls[i]
				if processed[control.ID] {
					continue
				}

				rule, ok := matchRule(control, mapping, item.Evidence.ControlPatterns)
				if !ok {
					continue
				}
				processed[control.ID] = true

				if err := m.applyMatch(control, item, rule, &result); err != nil {
					return result, err
				}
			}
		}
	}

	return result, nil
}

// applyMatch writes the link and, when the evidence carries a verification
// result, the control's verification state, in one transaction.
func (m *Matcher) applyMatch(control *store.Control, item EvidenceItem, rule string, result *Result) error {
	link := &store.EvidenceControlLink{
		EvidenceID: item.EvidenceID,
		ControlID:  control.ID,
		Relevance:  "primary",
		Notes:      fmt.Sprintf("matched via %s by %s evidence %q", rule, item.Evidence.Source, item.Evidence.Title),
	}

	updates := map[string]any{
		"is_automated":      true,
		"automation_source": item.Evidence.Source,
	}

	verification := item.Evidence.Verification
	if verification != nil {
		now := time.Now()
		if verification.IsImplemented {
			updates["implementation_status"] = store.ImplementationImplemented
			updates["verification_status"] = store.VerificationStatusVerified
		} else {
			updates["implementation_status"] = store.ImplementationNotStarted
			updates["verification_status"] = store.VerificationStatusFailed
		}
		updates["verified_at"] = now
		updates["verification_details"] = store.JSONAny{
			"evidenceTitle": item.Evidence.Title,
			"evidenceId":    item.EvidenceID,
			"confidence":    string(verification.Confidence),
			"reason":        verification.Reason,
			"metrics":       verification.Metrics,
			"matchedRule":   rule,
		}
	}

	if err := m.controls.ApplyMatch(link, updates); err != nil {
		return fmt.Errorf("apply match for control %s: %w", control.ID, err)
	}

	if verification != nil {
		if verification.IsImplemented {
			result.Verified++
		} else {
			result.Failed++
		}
		m.logger.Debug("control verification updated",
			"controlID", control.ID,
			"code", control.Code,
			"implemented", verification.IsImplemented,
			"rule", rule)
	}
	return nil
}

// sourceMatches reports whether a mapping applies to an evidence source.
func sourceMatches(mappingSource, evidenceSource string) bool {
	return mappingSource == "*" || strings.EqualFold(mappingSource, evidenceSource)
}

// matchRule tests the four independent match rules in fixed order and
// returns the name of the first that holds.
func matchRule(control *store.Control, mapping provider.ControlMapping, patterns []string) (string, bool) {
	if mapping.NamePattern != "" && containsFold(control.Name, mapping.NamePattern) {
		return "name_pattern", true
	}
	if mapping.CodePattern != "" && containsFold(control.Code, mapping.CodePattern) {
		return "code_pattern", true
	}
	for _, p := range patterns {
		if p != "" && containsFold(control.Name, p) {
			return "evidence_pattern_name", true
		}
	}
	for _, p := range patterns {
		for _, fm := range control.FrameworkMappings {
			if strings.EqualFold(p, fm.RequirementCode) {
				return "evidence_pattern_code", true
			}
		}
	}
	return "", false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
