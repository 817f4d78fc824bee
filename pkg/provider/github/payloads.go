package github

// Typed payloads produced by the GitHub collectors. One struct per
// collector so downstream evidence generation never inspects untyped maps.

// Repository is one repository in the organization.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	Archived      bool   `json:"archived"`
	DefaultBranch string `json:"default_branch"`
}

// RepositoryInventory is the payload of the repositories collector.
type RepositoryInventory struct {
	Organization string
	Repositories []Repository
	PrivateCount int
}

// RepoProtection is the protection state of one repository's default branch.
type RepoProtection struct {
	Repository      string
	Protected       bool
	RequiredReviews int
	EnforceAdmins   bool
}

// BranchProtectionReport is the payload of the branch_protection collector.
type BranchProtectionReport struct {
	TotalRepos     int
	ProtectedRepos int
	Repos          []RepoProtection
}

// ProtectionRate returns the percentage of repositories whose default
// branch is protected. A zero-repo organization counts as 0%.
func (r BranchProtectionReport) ProtectionRate() float64 {
	if r.TotalRepos == 0 {
		return 0
	}
	return float64(r.ProtectedRepos) / float64(r.TotalRepos) * 100
}

// SecurityAlertReport is the payload of the security_alerts collector.
// ScanningEnabled is true when at least one repository returned alert data
// at all; a scanning-disabled organization is a different state than a
// scanning-enabled one with outstanding findings.
type SecurityAlertReport struct {
	ScanningEnabled bool
	ReposScanned    int
	ReposDisabled   int
	OpenAlerts      int
	CriticalCount   int
	HighCount       int
}
