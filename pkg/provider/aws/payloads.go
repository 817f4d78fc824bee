package aws

// Typed payloads produced by the AWS collectors.

// BucketEncryption is the encryption state of one S3 bucket.
type BucketEncryption struct {
	Name      string
	Encrypted bool
	Algorithm string
}

// StorageEncryptionReport is the payload of the s3_buckets collector.
type StorageEncryptionReport struct {
	TotalBuckets     int
	EncryptedBuckets int
	Buckets          []BucketEncryption
}

// EncryptionRate returns the percentage of buckets with default encryption
// enabled. An account with no buckets counts as 0%.
func (r StorageEncryptionReport) EncryptionRate() float64 {
	if r.TotalBuckets == 0 {
		return 0
	}
	return float64(r.EncryptedBuckets) / float64(r.TotalBuckets) * 100
}

// Trail is the state of one CloudTrail trail.
type Trail struct {
	Name          string
	IsMultiRegion bool
	IsLogging     bool
}

// AuditTrailReport is the payload of the cloudtrail_trails collector.
type AuditTrailReport struct {
	Trails []Trail
}

// HasActiveMultiRegionTrail reports whether at least one trail is both
// actively logging and multi-region, independent of trail count.
func (r AuditTrailReport) HasActiveMultiRegionTrail() bool {
	for _, t := range r.Trails {
		if t.IsLogging && t.IsMultiRegion {
			return true
		}
	}
	return false
}

// IAMUser is one IAM user account.
type IAMUser struct {
	UserName   string
	MFAEnabled bool
}

// IAMUserReport is the payload of the iam_users collector.
type IAMUserReport struct {
	TotalUsers int
	Users      []IAMUser
}
