package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider is the capability set implemented once per external system.
// All collection and evidence methods require the connected state; calling
// them otherwise is a programming error reported by the connected guard,
// not a retryable condition.
type Provider interface {
	// Type returns the integration type this provider serves.
	Type() string

	// Connect authenticates against the vendor API and moves the provider
	// to the connected state. A failure is a *ConnectionError.
	Connect(ctx context.Context) error

	// Disconnect releases the connection and returns to disconnected.
	Disconnect(ctx context.Context) error

	// TestConnection probes the vendor API without touching evidence or
	// controls, reporting success and round-trip latency.
	TestConnection(ctx context.Context) TestResult

	// AvailableCollectors lists the provider's collectors in registration
	// order.
	AvailableCollectors() []CollectorInfo

	// Collect runs the named collectors, or all of them when collectorIDs
	// is empty, returning one result per collector in the caller-requested
	// order. A failure in one collector never aborts its siblings.
	Collect(ctx context.Context, collectorIDs []string) ([]CollectionResult, error)

	// GenerateEvidence turns successful collection results into structured
	// evidence with fixed verification thresholds.
	GenerateEvidence(results []CollectionResult) []GeneratedEvidence

	// ControlMappings returns the provider's evidence-to-control matching
	// rules.
	ControlMappings() []ControlMapping
}

// State is the provider connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ConnState is the shared connection state machine embedded by provider
// implementations: disconnected -> connecting -> {connected, error};
// connected -> disconnected on Disconnect.
type ConnState struct {
	mu    sync.Mutex
	state State
}

// Current returns the current state.
func (c *ConnState) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return StateDisconnected
	}
	return c.state
}

// SetConnecting moves to the connecting state.
func (c *ConnState) SetConnecting() { c.set(StateConnecting) }

// SetConnected moves to the connected state.
func (c *ConnState) SetConnected() { c.set(StateConnected) }

// SetError moves to the error state.
func (c *ConnState) SetError() { c.set(StateError) }

// SetDisconnected moves to the disconnected state.
func (c *ConnState) SetDisconnected() { c.set(StateDisconnected) }

func (c *ConnState) set(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// EnsureConnected returns an error unless the provider is connected. The
// error marks caller misuse and must not be retried.
func (c *ConnState) EnsureConnected(providerType string) error {
	if s := c.Current(); s != StateConnected {
		return fmt.Errorf("%s provider is %s, not connected; call Connect first", providerType, s)
	}
	return nil
}

// CollectorFunc executes one collector and returns the item count and the
// typed vendor payload.
type CollectorFunc func(ctx context.Context) (itemCount int, data any, err error)

// RunCollectors executes the requested collectors independently and returns
// one CollectionResult per requested ID, preserving the caller-requested
// order (registration order when the request is empty). Unknown collector
// IDs yield a failed result with an unknown_collector error rather than
// being dropped. Errors from one collector never abort the others.
func RunCollectors(ctx context.Context, registered []CollectorInfo, funcs map[string]CollectorFunc, requested []string) []CollectionResult {
	ids := requested
	if len(ids) == 0 {
		ids = make([]string, 0, len(registered))
		for _, info := range registered {
			ids = append(ids, info.ID)
		}
	}

	results := make([]CollectionResult, 0, len(ids))
	for _, id := range ids {
		fn, ok := funcs[id]
		if !ok {
			results = append(results, CollectionResult{
				CollectorID: id,
				Success:     false,
				CollectedAt: time.Now(),
				Errors: []CollectionError{{
					Code:      "unknown_collector",
					Message:   fmt.Sprintf("collector %q is not provided by this integration", id),
					Retryable: false,
				}},
			})
			continue
		}

		count, data, err := fn(ctx)
		result := CollectionResult{
			CollectorID: id,
			ItemCount:   count,
			Data:        data,
			CollectedAt: time.Now(),
		}
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, toCollectionError(id, err))
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}

// toCollectionError normalizes a collector failure into a CollectionError.
func toCollectionError(collectorID string, err error) CollectionError {
	if ce, ok := err.(*CollectionError); ok {
		return *ce
	}
	return CollectionError{
		Code:      "collection_failed",
		Message:   err.Error(),
		Retryable: isRetryableError(err),
		Context:   map[string]any{"collector": collectorID},
	}
}

// ValidityWindow returns the [from, until] validity window for evidence
// generated now, valid for the given number of days.
func ValidityWindow(days int) (time.Time, time.Time) {
	now := time.Now()
	return now, now.AddDate(0, 0, days)
}

// RequireCredentials checks that every named key is present and non-empty
// in the decrypted credential map.
func RequireCredentials(credentials map[string]string, keys ...string) error {
	for _, key := range keys {
		if credentials[key] == "" {
			return fmt.Errorf("missing required credential %q", key)
		}
	}
	return nil
}
