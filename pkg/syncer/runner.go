package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/store"
	"github.com/evidentry/evidentry/pkg/vault"
	"github.com/evidentry/evidentry/pkg/verify"
)

// ConfigurationError marks a sync that cannot run at all: the integration
// is missing, holds no credentials, or names an unsupported type. It is
// fatal and never retried within the run.
type ConfigurationError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync configuration error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("sync configuration error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// SyncResult summarizes one completed sync.
type SyncResult struct {
	EvidenceGenerated int      `json:"evidenceGenerated"`
	ControlsVerified  int      `json:"controlsVerified"`
	ControlsFailed    int      `json:"controlsFailed"`
	Errors            []string `json:"errors,omitempty"`
	DurationMs        int64    `json:"durationMs"`
}

// Runner executes one end-to-end sync: load, decrypt, connect, collect,
// generate evidence, persist, match, finalize.
type Runner struct {
	integrations *store.IntegrationStore
	evidence     *store.EvidenceStore
	registry     *provider.Registry
	matcher      *verify.Matcher
	vault        *vault.Vault
	logger       *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(integrations *store.IntegrationStore, evidence *store.EvidenceStore, registry *provider.Registry, matcher *verify.Matcher, v *vault.Vault, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		integrations: integrations,
		evidence:     evidence,
		registry:     registry,
		matcher:      matcher,
		vault:        v,
		logger:       logger,
	}
}

// RunSync executes one sync for an integration. Fatal failures move the
// integration to error status and finalize the log row as failed in a
// single transaction before the error is returned; partial collector
// failures are aggregated into the result, never fatal.
func (r *Runner) RunSync(ctx context.Context, integrationID string, collectorIDs []string) (*SyncResult, error) {
	integration, err := r.integrations.Get(integrationID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("integration not found: %s", integrationID)}
	}

	log, err := r.integrations.StartSyncLog(integrationID, "sync")
	if err != nil {
		return nil, err
	}
	started := log.StartedAt

	r.logger.Info("sync started",
		"integrationID", integrationID,
		"type", integration.Type,
		"logID", log.ID)

	if integration.EncryptedCredentials == nil || *integration.EncryptedCredentials == "" {
		return nil, r.failSync(integrationID, log.ID,
			&ConfigurationError{Message: "integration has no stored credentials"})
	}

	credentials, err := r.vault.Decrypt(*integration.EncryptedCredentials)
	if err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}

	prov, err := r.registry.New(integration.Type, provider.Settings{
		Config:      integration.Config,
		Credentials: credentials,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, r.failSync(integrationID, log.ID,
			&ConfigurationError{Message: "cannot instantiate provider", Err: err})
	}

	if err := prov.Connect(ctx); err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}
	defer func() { _ = prov.Disconnect(ctx) }()

	results, err := prov.Collect(ctx, collectorIDs)
	if err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}

	itemsProcessed := 0
	itemsFailed := 0
	var syncErrors []string
	var successes []provider.CollectionResult
	for _, result := range results {
		if result.Success {
			itemsProcessed += result.ItemCount
			successes = append(successes, result)
			continue
		}
		itemsFailed++
		for _, ce := range result.Errors {
			syncErrors = append(syncErrors, fmt.Sprintf("%s: %s", result.CollectorID, ce.Message))
		}
	}

	generated := prov.GenerateEvidence(successes)

	items, err := r.persistEvidence(integration, generated)
	if err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}

	matched, err := r.matcher.Match(integration.OrganizationID, items, prov.ControlMappings())
	if err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}

	result := &SyncResult{
		EvidenceGenerated: len(generated),
		ControlsVerified:  matched.Verified,
		ControlsFailed:    matched.Failed,
		Errors:            syncErrors,
		DurationMs:        time.Since(started).Milliseconds(),
	}

	details := store.JSONAny{
		"evidenceGenerated": result.EvidenceGenerated,
		"controlsVerified":  result.ControlsVerified,
		"controlsFailed":    result.ControlsFailed,
		"collectorErrors":   syncErrors,
	}
	if err := r.integrations.CompleteSync(integrationID, log.ID, itemsProcessed, itemsFailed, details); err != nil {
		return nil, r.failSync(integrationID, log.ID, err)
	}

	r.logger.Info("sync completed",
		"integrationID", integrationID,
		"evidenceGenerated", result.EvidenceGenerated,
		"controlsVerified", result.ControlsVerified,
		"controlsFailed", result.ControlsFailed,
		"collectorFailures", itemsFailed,
		"durationMs", result.DurationMs)
	return result, nil
}

// persistEvidence stores generated evidence as non-provisional rows and
// pairs each with its persisted ID for the matcher.
func (r *Runner) persistEvidence(integration *store.Integration, generated []provider.GeneratedEvidence) ([]verify.EvidenceItem, error) {
	items := make([]verify.EvidenceItem, 0, len(generated))
	for _, ev := range generated {
		validFrom := ev.ValidFrom
		validUntil := ev.ValidUntil

		row := &store.Evidence{
			OrganizationID:  integration.OrganizationID,
			IntegrationID:   &integration.ID,
			CollectorID:     ev.CollectorID,
			Title:           ev.Title,
			Description:     ev.Description,
			EvidenceType:    ev.EvidenceType,
			Source:          ev.Source,
			Metadata:        store.JSONAny(ev.Metadata),
			ControlPatterns: store.JSONStringSlice(ev.ControlPatterns),
			ValidFrom:       &validFrom,
			ValidUntil:      &validUntil,
			ReviewStatus:    store.ReviewStatusApproved,
			Provisional:     false,
		}
		if err := r.evidence.Create(row); err != nil {
			return nil, fmt.Errorf("persist evidence %q: %w", ev.Title, err)
		}
		items = append(items, verify.EvidenceItem{EvidenceID: row.ID, Evidence: ev})
	}
	return items, nil
}

// failSync records the terminal failure state (integration error status
// plus failed log row, atomically) and returns the original error.
func (r *Runner) failSync(integrationID, logID string, cause error) error {
	details := store.JSONAny{"error": cause.Error()}
	if err := r.integrations.FailSync(integrationID, logID, cause.Error(), details); err != nil {
		r.logger.Error("failed to record sync failure",
			"integrationID", integrationID,
			"logID", logID,
			"error", err,
			"cause", cause)
	}
	r.logger.Error("sync failed", "integrationID", integrationID, "error", cause)
	return cause
}

// TestConnection loads and decrypts the integration's credentials,
// instantiates the provider, and probes the vendor API. The integration
// status is updated to reflect the outcome; evidence and controls are
// never touched.
func (r *Runner) TestConnection(ctx context.Context, integrationID string) (provider.TestResult, error) {
	var zero provider.TestResult

	integration, err := r.integrations.Get(integrationID)
	if err != nil {
		return zero, err
	}
	if integration == nil {
		return zero, &ConfigurationError{Message: fmt.Sprintf("integration not found: %s", integrationID)}
	}
	if integration.EncryptedCredentials == nil || *integration.EncryptedCredentials == "" {
		return zero, &ConfigurationError{Message: "integration has no stored credentials"}
	}

	credentials, err := r.vault.Decrypt(*integration.EncryptedCredentials)
	if err != nil {
		return zero, err
	}

	prov, err := r.registry.New(integration.Type, provider.Settings{
		Config:      integration.Config,
		Credentials: credentials,
		Logger:      r.logger,
	})
	if err != nil {
		return zero, &ConfigurationError{Message: "cannot instantiate provider", Err: err}
	}

	result := prov.TestConnection(ctx)
	if result.Success {
		err = r.integrations.UpdateStatus(integrationID, store.IntegrationStatusActive, "")
	} else {
		err = r.integrations.UpdateStatus(integrationID, store.IntegrationStatusError, result.Error)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
