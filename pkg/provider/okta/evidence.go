package okta

import (
	"fmt"

	"github.com/evidentry/evidentry/pkg/provider"
)

// Verification thresholds for Okta-sourced evidence. MFA enforcement is
// implemented at >=95% enrollment; confidence is high only at full
// enrollment, medium at >=80%, low below.
const (
	mfaImplementedRate = 95.0
	mfaHighRate        = 100.0
	mfaMediumRate      = 80.0

	evidenceValidityDays = 90
)

// GenerateEvidence turns successful collection results into evidence.
func (p *Provider) GenerateEvidence(results []provider.CollectionResult) []provider.GeneratedEvidence {
	var out []provider.GeneratedEvidence
	for _, result := range results {
		if !result.Success {
			continue
		}
		var ev provider.GeneratedEvidence
		switch data := result.Data.(type) {
		case UserInventory:
			ev = p.userInventoryEvidence(data)
		case MFAEnrollmentReport:
			ev = p.mfaEvidence(data)
		case AdminRoleReport:
			ev = p.adminRoleEvidence(data)
		default:
			continue
		}
		ev.CollectorID = result.CollectorID
		out = append(out, ev)
	}
	return out
}

// userInventoryEvidence is linkable directory-inventory evidence without a
// pass/fail judgment.
func (p *Provider) userInventoryEvidence(inventory UserInventory) provider.GeneratedEvidence {
	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "Directory user inventory",
		Description:  fmt.Sprintf("%d users: %d active, %d suspended, %d deprovisioned", inventory.TotalUsers, inventory.ActiveUsers, inventory.SuspendedUsers, inventory.DeprovisionedUsers),
		EvidenceType: "access_inventory",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"totalUsers":         inventory.TotalUsers,
			"activeUsers":        inventory.ActiveUsers,
			"suspendedUsers":     inventory.SuspendedUsers,
			"deprovisionedUsers": inventory.DeprovisionedUsers,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"user access", "identity management", "provisioning", "CC6.2", "5.16"},
	}
}

// mfaEvidence judges multi-factor enforcement over active users.
func (p *Provider) mfaEvidence(report MFAEnrollmentReport) provider.GeneratedEvidence {
	rate := report.EnrollmentRate()

	confidence := provider.ConfidenceLow
	switch {
	case rate >= mfaHighRate:
		confidence = provider.ConfidenceHigh
	case rate >= mfaMediumRate:
		confidence = provider.ConfidenceMedium
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "Multi-factor authentication enrollment",
		Description:  fmt.Sprintf("%d of %d active users enrolled in MFA (%.1f%%)", report.EnrolledUsers, report.TotalUsers, rate),
		EvidenceType: "mfa_enforcement",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"totalUsers":     report.TotalUsers,
			"enrolledUsers":  report.EnrolledUsers,
			"enrollmentRate": rate,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"mfa", "multi-factor", "authentication", "CC6.1", "5.17"},
		Verification: &provider.VerificationResult{
			IsImplemented: rate >= mfaImplementedRate,
			Confidence:    confidence,
			Reason:        fmt.Sprintf("%.1f%% of active users enrolled in MFA (threshold %.0f%%)", rate, mfaImplementedRate),
			Metrics: map[string]any{
				"enrollmentRate": rate,
				"totalUsers":     report.TotalUsers,
			},
		},
	}
}

// adminRoleEvidence is linkable privileged-access evidence without a
// pass/fail judgment.
func (p *Provider) adminRoleEvidence(report AdminRoleReport) provider.GeneratedEvidence {
	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "Administrative role assignments",
		Description:  fmt.Sprintf("%d users hold %d administrative role assignments", report.AdminUsers, len(report.Assignments)),
		EvidenceType: "privileged_access",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"adminUsers":  report.AdminUsers,
			"assignments": len(report.Assignments),
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"privileged access", "admin", "least privilege", "CC6.3", "5.18"},
	}
}

// ControlMappings declares how Okta evidence reaches candidate controls.
func (p *Provider) ControlMappings() []provider.ControlMapping {
	return []provider.ControlMapping{
		{EvidenceSource: IntegrationType, NamePattern: "multi-factor", CodePattern: "CC6.1", Tags: []string{"authentication"}},
		{EvidenceSource: IntegrationType, NamePattern: "access", CodePattern: "CC6", Tags: []string{"access-control"}},
		{EvidenceSource: "*", NamePattern: "identity", Tags: []string{"identity"}},
	}
}
