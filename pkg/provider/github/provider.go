// Package github implements the repository-hosting provider variant over
// the GitHub REST API: repository inventory, default-branch protection
// coverage, and dependabot security alert scanning.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentry/evidentry/pkg/provider"
)

const (
	// IntegrationType is the registry key for this provider.
	IntegrationType = "github"

	defaultBaseURL = "https://api.github.com"
)

// Provider collects compliance evidence from a GitHub organization.
type Provider struct {
	provider.ConnState

	client       *provider.APIClient
	organization string
	logger       *slog.Logger
}

// New constructs a GitHub provider from integration settings. Credentials
// require "token"; config requires "organization" and accepts "baseUrl"
// for API endpoint override.
func New(settings provider.Settings) (provider.Provider, error) {
	if err := provider.RequireCredentials(settings.Credentials, "token"); err != nil {
		return nil, err
	}
	organization, _ := settings.Config["organization"].(string)
	if organization == "" {
		return nil, fmt.Errorf("github integration config is missing %q", "organization")
	}

	baseURL := defaultBaseURL
	if u, ok := settings.Config["baseUrl"].(string); ok && u != "" {
		baseURL = u
	}

	client := provider.NewAPIClient(baseURL, 30*time.Second)
	client.SetBearerToken(settings.Credentials["token"])
	client.SetHeader("X-GitHub-Api-Version", "2022-11-28")

	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		client:       client,
		organization: organization,
		logger:       logger,
	}, nil
}

// Type returns the integration type.
func (p *Provider) Type() string { return IntegrationType }

// Connect verifies the token can read the organization.
func (p *Provider) Connect(ctx context.Context) error {
	p.SetConnecting()

	var org struct {
		Login string `json:"login"`
	}
	if err := p.client.GetJSON(ctx, "/orgs/"+p.organization, &org); err != nil {
		p.SetError()
		return &provider.ConnectionError{
			Provider: IntegrationType,
			Message:  fmt.Sprintf("cannot access organization %q", p.organization),
			Err:      err,
		}
	}

	p.SetConnected()
	p.logger.Debug("github provider connected", "organization", org.Login)
	return nil
}

// Disconnect returns the provider to the disconnected state.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.SetDisconnected()
	return nil
}

// TestConnection probes the organization endpoint and reports latency.
func (p *Provider) TestConnection(ctx context.Context) provider.TestResult {
	start := time.Now()
	err := p.client.GetJSON(ctx, "/orgs/"+p.organization, nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.TestResult{Success: false, LatencyMs: latency, Error: err.Error()}
	}
	return provider.TestResult{Success: true, LatencyMs: latency}
}

var collectors = []provider.CollectorInfo{
	{ID: "repositories", Name: "Repositories", Description: "Inventory of organization repositories"},
	{ID: "branch_protection", Name: "Branch Protection", Description: "Default-branch protection coverage"},
	{ID: "security_alerts", Name: "Security Alerts", Description: "Dependabot vulnerability alert scanning"},
}

// AvailableCollectors lists the GitHub collectors in registration order.
func (p *Provider) AvailableCollectors() []provider.CollectorInfo { return collectors }

// Collect runs the requested collectors. Requires the connected state.
func (p *Provider) Collect(ctx context.Context, collectorIDs []string) ([]provider.CollectionResult, error) {
	if err := p.EnsureConnected(IntegrationType); err != nil {
		return nil, err
	}

	funcs := map[string]provider.CollectorFunc{
		"repositories":      p.collectRepositories,
		"branch_protection": p.collectBranchProtection,
		"security_alerts":   p.collectSecurityAlerts,
	}
	return provider.RunCollectors(ctx, collectors, funcs, collectorIDs), nil
}

func (p *Provider) listRepositories(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	if err := p.client.GetJSON(ctx, "/orgs/"+p.organization+"/repos?per_page=100", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (p *Provider) collectRepositories(ctx context.Context) (int, any, error) {
	repos, err := p.listRepositories(ctx)
	if err != nil {
		return 0, nil, err
	}

	inventory := RepositoryInventory{
		Organization: p.organization,
		Repositories: repos,
	}
	for _, r := range repos {
		if r.Private {
			inventory.PrivateCount++
		}
	}
	return len(repos), inventory, nil
}

func (p *Provider) collectBranchProtection(ctx context.Context) (int, any, error) {
	repos, err := p.listRepositories(ctx)
	if err != nil {
		return 0, nil, err
	}

	report := BranchProtectionReport{}
	for _, repo := range repos {
		if repo.Archived {
			continue
		}
		report.TotalRepos++

		var protection struct {
			RequiredPullRequestReviews struct {
				RequiredApprovingReviewCount int `json:"required_approving_review_count"`
			} `json:"required_pull_request_reviews"`
			EnforceAdmins struct {
				Enabled bool `json:"enabled"`
			} `json:"enforce_admins"`
		}
		path := fmt.Sprintf("/repos/%s/%s/branches/%s/protection", p.organization, repo.Name, repo.DefaultBranch)
		err := p.client.GetJSON(ctx, path, &protection)
		if err != nil {
			// 404 means the branch simply has no protection rule; that is
			// valid data, not a collection failure.
			if provider.IsNotConfigured(err) {
				report.Repos = append(report.Repos, RepoProtection{Repository: repo.Name})
				continue
			}
			return 0, nil, err
		}

		report.ProtectedRepos++
		report.Repos = append(report.Repos, RepoProtection{
			Repository:      repo.Name,
			Protected:       true,
			RequiredReviews: protection.RequiredPullRequestReviews.RequiredApprovingReviewCount,
			EnforceAdmins:   protection.EnforceAdmins.Enabled,
		})
	}
	return report.TotalRepos, report, nil
}

func (p *Provider) collectSecurityAlerts(ctx context.Context) (int, any, error) {
	repos, err := p.listRepositories(ctx)
	if err != nil {
		return 0, nil, err
	}

	report := SecurityAlertReport{}
	for _, repo := range repos {
		if repo.Archived {
			continue
		}

		var alerts []struct {
			State            string `json:"state"`
			SecurityAdvisory struct {
				Severity string `json:"severity"`
			} `json:"security_advisory"`
		}
		path := fmt.Sprintf("/repos/%s/%s/dependabot/alerts?state=open&per_page=100", p.organization, repo.Name)
		err := p.client.GetJSON(ctx, path, &alerts)
		if err != nil {
			// Dependabot disabled for this repository.
			if provider.IsNotConfigured(err) {
				report.ReposDisabled++
				continue
			}
			return 0, nil, err
		}

		report.ScanningEnabled = true
		report.ReposScanned++
		for _, alert := range alerts {
			report.OpenAlerts++
			switch alert.SecurityAdvisory.Severity {
			case "critical":
				report.CriticalCount++
			case "high":
				report.HighCount++
			}
		}
	}
	return report.ReposScanned, report, nil
}
