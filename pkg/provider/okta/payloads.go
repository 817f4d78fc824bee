package okta

// Typed payloads produced by the Okta collectors.

// DirectoryUser is one user account in the directory.
type DirectoryUser struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Email  string `json:"email"`
}

// UserInventory is the payload of the users collector.
type UserInventory struct {
	TotalUsers         int
	ActiveUsers        int
	SuspendedUsers     int
	DeprovisionedUsers int
}

// MFAEnrollmentReport is the payload of the mfa_enrollment collector.
// Enrollment is measured over active users only.
type MFAEnrollmentReport struct {
	TotalUsers    int
	EnrolledUsers int
}

// EnrollmentRate returns the percentage of active users with at least one
// active MFA factor. A directory with no active users counts as 0%.
func (r MFAEnrollmentReport) EnrollmentRate() float64 {
	if r.TotalUsers == 0 {
		return 0
	}
	return float64(r.EnrolledUsers) / float64(r.TotalUsers) * 100
}

// AdminAssignment is one administrative role held by a user.
type AdminAssignment struct {
	UserID string
	Email  string
	Role   string
}

// AdminRoleReport is the payload of the admin_roles collector.
type AdminRoleReport struct {
	Assignments []AdminAssignment
	AdminUsers  int
}
