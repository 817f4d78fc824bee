// Package aws implements the cloud-infrastructure provider variant over
// the AWS SDK: S3 default-encryption coverage, CloudTrail audit logging,
// and IAM user inventory.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/evidentry/evidentry/pkg/provider"
)

// IntegrationType is the registry key for this provider.
const IntegrationType = "aws"

// The SDK client surface used by the collectors, narrowed to interfaces so
// tests can substitute fakes without network access.
type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
}

type cloudtrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	GetTrailStatus(ctx context.Context, params *cloudtrail.GetTrailStatusInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.GetTrailStatusOutput, error)
}

type iamAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	ListMFADevices(ctx context.Context, params *iam.ListMFADevicesInput, optFns ...func(*iam.Options)) (*iam.ListMFADevicesOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Provider collects compliance evidence from an AWS account.
type Provider struct {
	provider.ConnState

	s3Client         s3API
	cloudtrailClient cloudtrailAPI
	iamClient        iamAPI
	stsClient        stsAPI
	region           string
	logger           *slog.Logger
}

// New constructs an AWS provider from integration settings. Credentials
// require "accessKeyId" and "secretAccessKey"; config accepts "region"
// (default us-east-1).
func New(settings provider.Settings) (provider.Provider, error) {
	if err := provider.RequireCredentials(settings.Credentials, "accessKeyId", "secretAccessKey"); err != nil {
		return nil, err
	}

	region := "us-east-1"
	if r, ok := settings.Config["region"].(string); ok && r != "" {
		region = r
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			settings.Credentials["accessKeyId"],
			settings.Credentials["secretAccessKey"],
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		s3Client:         s3.NewFromConfig(cfg),
		cloudtrailClient: cloudtrail.NewFromConfig(cfg),
		iamClient:        iam.NewFromConfig(cfg),
		stsClient:        sts.NewFromConfig(cfg),
		region:           region,
		logger:           logger,
	}, nil
}

// Type returns the integration type.
func (p *Provider) Type() string { return IntegrationType }

// Connect verifies the credentials resolve to a caller identity.
func (p *Provider) Connect(ctx context.Context) error {
	p.SetConnecting()

	identity, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		p.SetError()
		return &provider.ConnectionError{
			Provider: IntegrationType,
			Message:  "credentials rejected by STS",
			Err:      err,
		}
	}

	p.SetConnected()
	if identity.Account != nil {
		p.logger.Debug("aws provider connected", "account", *identity.Account, "region", p.region)
	}
	return nil
}

// Disconnect returns the provider to the disconnected state.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.SetDisconnected()
	return nil
}

// TestConnection probes STS and reports latency.
func (p *Provider) TestConnection(ctx context.Context) provider.TestResult {
	start := time.Now()
	_, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.TestResult{Success: false, LatencyMs: latency, Error: err.Error()}
	}
	return provider.TestResult{Success: true, LatencyMs: latency}
}

var collectors = []provider.CollectorInfo{
	{ID: "s3_buckets", Name: "S3 Buckets", Description: "Default-encryption coverage across S3 buckets"},
	{ID: "cloudtrail_trails", Name: "CloudTrail Trails", Description: "Audit trail logging configuration"},
	{ID: "iam_users", Name: "IAM Users", Description: "IAM user account inventory"},
}

// AvailableCollectors lists the AWS collectors in registration order.
func (p *Provider) AvailableCollectors() []provider.CollectorInfo { return collectors }

// Collect runs the requested collectors. Requires the connected state.
func (p *Provider) Collect(ctx context.Context, collectorIDs []string) ([]provider.CollectionResult, error) {
	if err := p.EnsureConnected(IntegrationType); err != nil {
		return nil, err
	}

	funcs := map[string]provider.CollectorFunc{
		"s3_buckets":        p.collectBuckets,
		"cloudtrail_trails": p.collectTrails,
		"iam_users":         p.collectIAMUsers,
	}
	return provider.RunCollectors(ctx, collectors, funcs, collectorIDs), nil
}

func (p *Provider) collectBuckets(ctx context.Context) (int, any, error) {
	listed, err := p.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return 0, nil, err
	}

	report := StorageEncryptionReport{}
	for _, bucket := range listed.Buckets {
		if bucket.Name == nil {
			continue
		}
		name := *bucket.Name
		report.TotalBuckets++

		enc, err := p.s3Client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket.Name})
		if err != nil {
			// S3 reports "no default encryption" as an error response; an
			// unencrypted bucket is valid data, not a collection failure.
			report.Buckets = append(report.Buckets, BucketEncryption{Name: name})
			continue
		}

		algorithm := ""
		if enc.ServerSideEncryptionConfiguration != nil {
			for _, rule := range enc.ServerSideEncryptionConfiguration.Rules {
				if rule.ApplyServerSideEncryptionByDefault != nil {
					algorithm = string(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm)
					break
				}
			}
		}
		encrypted := algorithm != ""
		if encrypted {
			report.EncryptedBuckets++
		}
		report.Buckets = append(report.Buckets, BucketEncryption{
			Name:      name,
			Encrypted: encrypted,
			Algorithm: algorithm,
		})
	}
	return report.TotalBuckets, report, nil
}

func (p *Provider) collectTrails(ctx context.Context) (int, any, error) {
	described, err := p.cloudtrailClient.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	if err != nil {
		return 0, nil, err
	}

	report := AuditTrailReport{}
	for _, trail := range described.TrailList {
		if trail.Name == nil {
			continue
		}
		entry := Trail{Name: *trail.Name}
		if trail.IsMultiRegionTrail != nil {
			entry.IsMultiRegion = *trail.IsMultiRegionTrail
		}

		status, err := p.cloudtrailClient.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{Name: trail.TrailARN})
		if err == nil && status.IsLogging != nil {
			entry.IsLogging = *status.IsLogging
		}
		report.Trails = append(report.Trails, entry)
	}
	return len(report.Trails), report, nil
}

func (p *Provider) collectIAMUsers(ctx context.Context) (int, any, error) {
	listed, err := p.iamClient.ListUsers(ctx, &iam.ListUsersInput{})
	if err != nil {
		return 0, nil, err
	}

	report := IAMUserReport{}
	for _, user := range listed.Users {
		if user.UserName == nil {
			continue
		}
		entry := IAMUser{UserName: *user.UserName}

		devices, err := p.iamClient.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: user.UserName})
		if err == nil && len(devices.MFADevices) > 0 {
			entry.MFAEnabled = true
		}
		report.Users = append(report.Users, entry)
		report.TotalUsers++
	}
	return report.TotalUsers, report, nil
}
