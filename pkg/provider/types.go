// Package provider defines the capability contract implemented once per
// external vendor system, plus the shared connection state machine,
// collector execution harness, and type registry the sync runner uses to
// instantiate providers.
package provider

import (
	"fmt"
	"time"
)

// Confidence grades a verification judgment.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// VerificationResult is an automated pass/fail judgment attached to a
// generated evidence item.
type VerificationResult struct {
	IsImplemented bool           `json:"isImplemented"`
	Confidence    Confidence     `json:"confidence"`
	Reason        string         `json:"reason"`
	Metrics       map[string]any `json:"metrics,omitempty"`
}

// GeneratedEvidence is the transient output of evidence generation, before
// persistence. ControlPatterns is the only channel the matcher uses to
// find candidate controls, so it is populated even when Verification is
// nil: evidence can be linkable without being a pass/fail signal.
type GeneratedEvidence struct {
	Title           string
	Description     string
	EvidenceType    string
	Source          string
	CollectorID     string
	Metadata        map[string]any
	ValidFrom       time.Time
	ValidUntil      time.Time
	ControlPatterns []string
	Verification    *VerificationResult
}

// CollectionError describes a failure local to one collector. It never
// aborts sibling collectors or the sync as a whole.
type CollectionError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CollectionResult is the transient per-collector outcome of a Collect
// call. Data holds the typed vendor payload for the collector that
// produced it (one concrete struct per vendor and collector).
type CollectionResult struct {
	CollectorID string
	Success     bool
	ItemCount   int
	Errors      []CollectionError
	Data        any
	CollectedAt time.Time
}

// CollectorInfo describes one named unit of data collection within a
// provider.
type CollectorInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ControlMapping is a provider-declared rule tying an evidence source to
// candidate controls. EvidenceSource matches the evidence's source tag
// exactly or via the "*" wildcard; NamePattern and CodePattern are
// case-insensitive substrings tested against the control name and code.
type ControlMapping struct {
	EvidenceSource string   `json:"evidenceSource"`
	NamePattern    string   `json:"namePattern,omitempty"`
	CodePattern    string   `json:"codePattern,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// ConnectionError reports a vendor authentication or connectivity failure.
// It is fatal to the sync; the integration moves to error status with the
// message surfaced verbatim.
type ConnectionError struct {
	Provider string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s connection failed: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s connection failed: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Err }
