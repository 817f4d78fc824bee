package github

import (
	"fmt"

	"github.com/evidentry/evidentry/pkg/provider"
)

// Verification thresholds for GitHub-sourced evidence. These are policy
// constants: they are user-visible compliance judgments and must not drift.
const (
	protectionImplementedRate = 80.0
	protectionHighRate        = 90.0
	protectionMediumRate      = 50.0

	evidenceValidityDays = 90
)

// GenerateEvidence turns successful collection results into evidence.
// Failed results are skipped; partial collections still yield evidence
// from whatever succeeded.
func (p *Provider) GenerateEvidence(results []provider.CollectionResult) []provider.GeneratedEvidence {
	var out []provider.GeneratedEvidence
	for _, result := range results {
		if !result.Success {
			continue
		}
		var ev provider.GeneratedEvidence
		switch data := result.Data.(type) {
		case RepositoryInventory:
			ev = p.repositoryEvidence(data)
		case BranchProtectionReport:
			ev = p.branchProtectionEvidence(data)
		case SecurityAlertReport:
			ev = p.securityAlertEvidence(data)
		default:
			continue
		}
		ev.CollectorID = result.CollectorID
		out = append(out, ev)
	}
	return out
}

// repositoryEvidence is linkable inventory evidence; it carries no
// verification result because a repository list is not a pass/fail signal.
func (p *Provider) repositoryEvidence(inventory RepositoryInventory) provider.GeneratedEvidence {
	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        fmt.Sprintf("Repository inventory for %s", inventory.Organization),
		Description:  fmt.Sprintf("%d repositories (%d private) in the %s organization", len(inventory.Repositories), inventory.PrivateCount, inventory.Organization),
		EvidenceType: "asset_inventory",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"organization": inventory.Organization,
			"totalRepos":   len(inventory.Repositories),
			"privateRepos": inventory.PrivateCount,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"asset inventory", "asset management", "repository", "CC6.1", "8.9"},
	}
}

// branchProtectionEvidence judges change-control protection coverage:
// implemented at >=80% of repositories, confidence high at >=90%, medium
// at >=50%, low below.
func (p *Provider) branchProtectionEvidence(report BranchProtectionReport) provider.GeneratedEvidence {
	rate := report.ProtectionRate()

	confidence := provider.ConfidenceLow
	switch {
	case rate >= protectionHighRate:
		confidence = provider.ConfidenceHigh
	case rate >= protectionMediumRate:
		confidence = provider.ConfidenceMedium
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "Default-branch protection coverage",
		Description:  fmt.Sprintf("%d of %d repositories enforce default-branch protection (%.1f%%)", report.ProtectedRepos, report.TotalRepos, rate),
		EvidenceType: "change_control",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"totalRepos":     report.TotalRepos,
			"protectedRepos": report.ProtectedRepos,
			"protectionRate": rate,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"branch protection", "change management", "code review", "CC8.1", "8.32"},
		Verification: &provider.VerificationResult{
			IsImplemented: rate >= protectionImplementedRate,
			Confidence:    confidence,
			Reason:        fmt.Sprintf("%.1f%% of repositories enforce branch protection (threshold %.0f%%)", rate, protectionImplementedRate),
			Metrics: map[string]any{
				"protectionRate": rate,
				"totalRepos":     report.TotalRepos,
			},
		},
	}
}

// securityAlertEvidence judges vulnerability scanning. Implemented means
// scanning is active at all; outstanding findings downgrade confidence but
// never flip the implementation status, because a scanning-disabled
// organization is a different failure than a noisy scanning-enabled one.
func (p *Provider) securityAlertEvidence(report SecurityAlertReport) provider.GeneratedEvidence {
	confidence := provider.ConfidenceHigh
	reason := fmt.Sprintf("dependabot scanning active on %d repositories with %d open alerts", report.ReposScanned, report.OpenAlerts)
	switch {
	case !report.ScanningEnabled:
		confidence = provider.ConfidenceLow
		reason = "dependabot scanning is not enabled on any repository"
	case report.CriticalCount > 0:
		confidence = provider.ConfidenceLow
		reason = fmt.Sprintf("scanning active but %d critical alerts are outstanding", report.CriticalCount)
	case report.HighCount > 0:
		confidence = provider.ConfidenceMedium
		reason = fmt.Sprintf("scanning active but %d high-severity alerts are outstanding", report.HighCount)
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "Dependency vulnerability scanning",
		Description:  fmt.Sprintf("Scanning enabled on %d repositories, disabled on %d; %d alerts open (%d critical, %d high)", report.ReposScanned, report.ReposDisabled, report.OpenAlerts, report.CriticalCount, report.HighCount),
		EvidenceType: "vulnerability_management",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"reposScanned":  report.ReposScanned,
			"reposDisabled": report.ReposDisabled,
			"openAlerts":    report.OpenAlerts,
			"criticalCount": report.CriticalCount,
			"highCount":     report.HighCount,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"vulnerability", "security scanning", "dependency", "CC7.1", "8.8"},
		Verification: &provider.VerificationResult{
			IsImplemented: report.ScanningEnabled,
			Confidence:    confidence,
			Reason:        reason,
			Metrics: map[string]any{
				"reposScanned":  report.ReposScanned,
				"openAlerts":    report.OpenAlerts,
				"criticalCount": report.CriticalCount,
			},
		},
	}
}

// ControlMappings declares how GitHub evidence reaches candidate controls.
func (p *Provider) ControlMappings() []provider.ControlMapping {
	return []provider.ControlMapping{
		{EvidenceSource: IntegrationType, NamePattern: "change management", CodePattern: "CC8", Tags: []string{"change-control"}},
		{EvidenceSource: IntegrationType, NamePattern: "vulnerability", CodePattern: "CC7", Tags: []string{"vulnerability-management"}},
		{EvidenceSource: IntegrationType, NamePattern: "asset", Tags: []string{"asset-management"}},
	}
}
