package aws

import (
	"fmt"

	"github.com/evidentry/evidentry/pkg/provider"
)

// Verification thresholds for AWS-sourced evidence. Storage encryption is
// only implemented at full coverage; the confidence scale matches the
// repository-protection scale.
const (
	encryptionImplementedRate = 100.0
	encryptionHighRate        = 90.0
	encryptionMediumRate      = 50.0

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
		case StorageEncryptionReport:
			ev = p.encryptionEvidence(data)
		case AuditTrailReport:
			ev = p.auditTrailEvidence(data)
		case IAMUserReport:
			ev = p.iamUserEvidence(data)
		default:
			continue
		}
		ev.CollectorID = result.CollectorID
		out = append(out, ev)
	}
	return out
}

// encryptionEvidence judges storage encryption coverage: implemented only
// at 100%, confidence high at >=90%, medium at >=50%, low below.
func (p *Provider) encryptionEvidence(report StorageEncryptionReport) provider.GeneratedEvidence {
	rate := report.EncryptionRate()

	confidence := provider.ConfidenceLow
	switch {
	case rate >= encryptionHighRate:
		confidence = provider.ConfidenceHigh
	case rate >= encryptionMediumRate:
		confidence = provider.ConfidenceMedium
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "S3 storage encryption coverage",
		Description:  fmt.Sprintf("%d of %d buckets enforce default encryption (%.1f%%)", report.EncryptedBuckets, report.TotalBuckets, rate),
		EvidenceType: "storage_encryption",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"totalBuckets":     report.TotalBuckets,
			"encryptedBuckets": report.EncryptedBuckets,
			"encryptionRate":   rate,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"encryption", "encryption at rest", "data protection", "CC6.7", "8.24"},
		Verification: &provider.VerificationResult{
			IsImplemented: rate >= encryptionImplementedRate,
			Confidence:    confidence,
			Reason:        fmt.Sprintf("%.1f%% of buckets encrypted at rest (full coverage required)", rate),
			Metrics: map[string]any{
				"encryptionRate": rate,
				"totalBuckets":   report.TotalBuckets,
			},
		},
	}
}

// auditTrailEvidence judges audit logging: implemented when at least one
// actively-logging multi-region trail exists, independent of count.
func (p *Provider) auditTrailEvidence(report AuditTrailReport) provider.GeneratedEvidence {
	implemented := report.HasActiveMultiRegionTrail()

	confidence := provider.ConfidenceHigh
	reason := "an actively-logging multi-region CloudTrail trail exists"
	if !implemented {
		confidence = provider.ConfidenceLow
		reason = "no actively-logging multi-region CloudTrail trail found"
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "CloudTrail audit logging",
		Description:  fmt.Sprintf("%d trails configured; active multi-region trail: %t", len(report.Trails), implemented),
		EvidenceType: "audit_logging",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"trailCount":        len(report.Trails),
			"activeMultiRegion": implemented,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"audit log", "logging", "monitoring", "CC7.2", "8.15"},
		Verification: &provider.VerificationResult{
			IsImplemented: implemented,
			Confidence:    confidence,
			Reason:        reason,
			Metrics: map[string]any{
				"trailCount": len(report.Trails),
			},
		},
	}
}

// iamUserEvidence is linkable account-inventory evidence without a
// pass/fail judgment; MFA enforcement is judged by the directory provider,
// not from IAM device counts.
func (p *Provider) iamUserEvidence(report IAMUserReport) provider.GeneratedEvidence {
	mfaCount := 0
	for _, u := range report.Users {
		if u.MFAEnabled {
			mfaCount++
		}
	}

	validFrom, validUntil := provider.ValidityWindow(evidenceValidityDays)
	return provider.GeneratedEvidence{
		Title:        "IAM user account inventory",
		Description:  fmt.Sprintf("%d IAM users (%d with MFA devices)", report.TotalUsers, mfaCount),
		EvidenceType: "access_inventory",
		Source:       IntegrationType,
		Metadata: map[string]any{
			"totalUsers": report.TotalUsers,
			"mfaUsers":   mfaCount,
		},
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		ControlPatterns: []string{"access control", "least privilege", "iam", "CC6.3", "5.18"},
	}
}

// ControlMappings declares how AWS evidence reaches candidate controls.
func (p *Provider) ControlMappings() []provider.ControlMapping {
	return []provider.ControlMapping{
		{EvidenceSource: IntegrationType, NamePattern: "encryption", CodePattern: "CC6.7", Tags: []string{"data-protection"}},
		{EvidenceSource: IntegrationType, NamePattern: "audit log", CodePattern: "CC7.2", Tags: []string{"logging"}},
		{EvidenceSource: IntegrationType, NamePattern: "access", Tags: []string{"access-control"}},
	}
}
