package okta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentry/evidentry/pkg/provider"
)

// fakeOkta serves the subset of the Okta management API the provider uses.
type fakeOkta struct {
	users          []map[string]any
	factors        map[string][]map[string]any // user ID -> factors
	roles          map[string][]map[string]any // user ID -> roles
	factorsBlocked bool                        // 403 from the factors endpoint
}

func (f *fakeOkta) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/org", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "SSWS valid-token" {
			http.Error(w, `{"errorSummary":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "org123"})
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.users)
	})
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/users/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		userID := parts[0]
		switch parts[1] {
		case "factors":
			if f.factorsBlocked {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			out := f.factors[userID]
			if out == nil {
				out = []map[string]any{}
			}
			_ = json.NewEncoder(w).Encode(out)
		case "roles":
			out := f.roles[userID]
			if out == nil {
				out = []map[string]any{}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func newTestProvider(t *testing.T, server *httptest.Server, token string) provider.Provider {
	t.Helper()
	p, err := New(provider.Settings{
		Config:      map[string]any{"orgUrl": server.URL},
		Credentials: map[string]string{"apiToken": token},
	})
	require.NoError(t, err)
	return p
}

func activeUser(id string) map[string]any {
	return map[string]any{
		"id": id, "status": "ACTIVE",
		"profile": map[string]any{"email": id + "@example.com"},
	}
}

func TestNewRequiresTokenAndOrgURL(t *testing.T) {
	_, err := New(provider.Settings{
		Config:      map[string]any{"orgUrl": "https://example.okta.com"},
		Credentials: map[string]string{},
	})
	require.Error(t, err)

	_, err = New(provider.Settings{
		Config:      map[string]any{},
		Credentials: map[string]string{"apiToken": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orgUrl")
}

func TestConnectRejectsBadToken(t *testing.T) {
	fake := &fakeOkta{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	p := newTestProvider(t, server, "wrong-token")
	err := p.Connect(context.Background())
	require.Error(t, err)
	var connErr *provider.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, connErr.Message, "token")
}

func TestCollectUsersCountsStatuses(t *testing.T) {
	fake := &fakeOkta{
		users: []map[string]any{
			activeUser("u1"),
			activeUser("u2"),
			{"id": "u3", "status": "SUSPENDED"},
			{"id": "u4", "status": "DEPROVISIONED"},
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	p := newTestProvider(t, server, "valid-token")
	require.NoError(t, p.Connect(context.Background()))

	results, err := p.Collect(context.Background(), []string{"users"})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	inventory, ok := results[0].Data.(UserInventory)
	require.True(t, ok)
	assert.Equal(t, 4, inventory.TotalUsers)
	assert.Equal(t, 2, inventory.ActiveUsers)
	assert.Equal(t, 1, inventory.SuspendedUsers)
	assert.Equal(t, 1, inventory.DeprovisionedUsers)
}

func TestCollectMFAEnrollmentOverActiveUsersOnly(t *testing.T) {
	fake := &fakeOkta{
		users: []map[string]any{
			activeUser("u1"),
			activeUser("u2"),
			{"id": "u3", "status": "DEPROVISIONED"},
		},
		factors: map[string][]map[string]any{
			"u1": {{"status": "ACTIVE"}},
			"u2": {{"status": "PENDING_ACTIVATION"}},
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	p := newTestProvider(t, server, "valid-token")
	require.NoError(t, p.Connect(context.Background()))

	results, err := p.Collect(context.Background(), []string{"mfa_enrollment"})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	report, ok := results[0].Data.(MFAEnrollmentReport)
	require.True(t, ok)
	assert.Equal(t, 2, report.TotalUsers)
	assert.Equal(t, 1, report.EnrolledUsers)
	assert.InDelta(t, 50.0, report.EnrollmentRate(), 0.01)
}

func TestCollectMFAEnrollmentTreatsForbiddenAsNotEnrolled(t *testing.T) {
	fake := &fakeOkta{
		users:          []map[string]any{activeUser("u1")},
		factorsBlocked: true,
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	p := newTestProvider(t, server, "valid-token")
	require.NoError(t, p.Connect(context.Background()))

	results, err := p.Collect(context.Background(), []string{"mfa_enrollment"})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	report := results[0].Data.(MFAEnrollmentReport)
	assert.Equal(t, 1, report.TotalUsers)
	assert.Equal(t, 0, report.EnrolledUsers)
}

func TestCollectAdminRoles(t *testing.T) {
	fake := &fakeOkta{
		users: []map[string]any{activeUser("u1"), activeUser("u2")},
		roles: map[string][]map[string]any{
			"u1": {{"type": "SUPER_ADMIN"}, {"type": "ORG_ADMIN"}},
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	p := newTestProvider(t, server, "valid-token")
	require.NoError(t, p.Connect(context.Background()))

	results, err := p.Collect(context.Background(), []string{"admin_roles"})
	require.NoError(t, err)
	require.True(t, results[0].Success)

	report := results[0].Data.(AdminRoleReport)
	assert.Equal(t, 1, report.AdminUsers)
	require.Len(t, report.Assignments, 2)
	assert.Equal(t, "u1@example.com", report.Assignments[0].Email)
}

func TestMFAEvidenceThresholds(t *testing.T) {
	p := &Provider{}

	cases := []struct {
		name        string
		enrolled    int
		total       int
		implemented bool
		confidence  provider.Confidence
	}{
		{"full enrollment", 100, 100, true, provider.ConfidenceHigh},
		{"at implemented threshold", 95, 100, true, provider.ConfidenceMedium},
		{"just below implemented", 94, 100, false, provider.ConfidenceMedium},
		{"at medium threshold", 80, 100, false, provider.ConfidenceMedium},
		{"below medium", 79, 100, false, provider.ConfidenceLow},
		{"no active users", 0, 0, false, provider.ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := p.mfaEvidence(MFAEnrollmentReport{
				TotalUsers:    tc.total,
				EnrolledUsers: tc.enrolled,
			})
			require.NotNil(t, ev.Verification)
			assert.Equal(t, tc.implemented, ev.Verification.IsImplemented)
			assert.Equal(t, tc.confidence, ev.Verification.Confidence)
		})
	}
}

func TestGenerateEvidenceShapes(t *testing.T) {
	p := &Provider{}

	results := []provider.CollectionResult{
		{Success: true, Data: UserInventory{TotalUsers: 5, ActiveUsers: 4}},
		{Success: true, Data: MFAEnrollmentReport{TotalUsers: 4, EnrolledUsers: 4}},
		{Success: true, Data: AdminRoleReport{AdminUsers: 1}},
	}
	evidence := p.GenerateEvidence(results)
	require.Len(t, evidence, 3)

	assert.Nil(t, evidence[0].Verification)
	require.NotNil(t, evidence[1].Verification)
	assert.True(t, evidence[1].Verification.IsImplemented)
	assert.Nil(t, evidence[2].Verification)

	for _, ev := range evidence {
		assert.Equal(t, IntegrationType, ev.Source)
		assert.NotEmpty(t, ev.ControlPatterns)
		assert.True(t, ev.ValidUntil.After(ev.ValidFrom))
	}
}
