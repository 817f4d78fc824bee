package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/store"
)

type fakeTester struct {
	result provider.TestResult
	err    error
}

func (f *fakeTester) TestConnection(ctx context.Context, integrationID string) (provider.TestResult, error) {
	return f.result, f.err
}

func newTestServer(t *testing.T, runner SyncRunner, tester ConnectionTester) (*httptest.Server, *store.IntegrationStore) {
	t.Helper()
	cfg := &Config{MaxConcurrentSyncs: 3, TickInterval: time.Minute, SyncTimeout: time.Minute, Enabled: true}
	scheduler, integrations := setupScheduler(t, cfg, runner)

	server := httptest.NewServer(Router(scheduler, tester, integrations))
	t.Cleanup(server.Close)
	return server, integrations
}

func postStatus(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestTriggerSyncHandlerAccepted(t *testing.T) {
	runner := &recordingRunner{}
	server, integrations := newTestServer(t, runner, &fakeTester{})

	integration := createDueIntegration(t, integrations, "api-triggered")

	code, body := postStatus(t, server.URL+"/integrations/"+integration.ID+":trigger")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, true, body["queued"])

	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerSyncHandlerNotFound(t *testing.T) {
	server, _ := newTestServer(t, &recordingRunner{}, &fakeTester{})

	code, body := postStatus(t, server.URL+"/integrations/missing:trigger")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "not found")
}

func TestTriggerSyncHandlerConflict(t *testing.T) {
	runner := &recordingRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	server, integrations := newTestServer(t, runner, &fakeTester{})

	integration := createDueIntegration(t, integrations, "held")

	code, _ := postStatus(t, server.URL+"/integrations/"+integration.ID+":trigger")
	require.Equal(t, http.StatusAccepted, code)
	<-runner.started

	code, body := postStatus(t, server.URL+"/integrations/"+integration.ID+":trigger")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["queued"])
	assert.Equal(t, "already in progress", body["reason"])

	close(runner.release)
}

func TestTestConnectionHandler(t *testing.T) {
	tester := &fakeTester{result: provider.TestResult{Success: true, LatencyMs: 42}}
	server, _ := newTestServer(t, &recordingRunner{}, tester)

	code, body := postStatus(t, server.URL+"/integrations/any:test")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(42), body["latencyMs"])
}

func TestTestConnectionHandlerConfigurationError(t *testing.T) {
	tester := &fakeTester{err: &ConfigurationError{Message: "integration has no stored credentials"}}
	server, _ := newTestServer(t, &recordingRunner{}, tester)

	code, body := postStatus(t, server.URL+"/integrations/any:test")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "no stored credentials")
}

func TestDisconnectHandler(t *testing.T) {
	server, integrations := newTestServer(t, &recordingRunner{}, &fakeTester{})

	integration := createDueIntegration(t, integrations, "leaving")

	code, body := postStatus(t, server.URL+"/integrations/"+integration.ID+":disconnect")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disconnected", body["status"])

	got, err := integrations.Get(integration.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListLogsHandler(t *testing.T) {
	server, integrations := newTestServer(t, &recordingRunner{}, &fakeTester{})

	integration := createDueIntegration(t, integrations, "logged")
	log, err := integrations.StartSyncLog(integration.ID, "sync")
	require.NoError(t, err)
	require.NoError(t, integrations.CompleteSync(integration.ID, log.ID, 7, 0, store.JSONAny{"evidenceGenerated": 2}))

	resp, err := http.Get(server.URL + "/integrations/" + integration.ID + "/logs?pageSize=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Logs          []logEntry `json:"logs"`
		NextPageToken string     `json:"nextPageToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "completed", body.Logs[0].Status)
	assert.Equal(t, 7, body.Logs[0].ItemsProcessed)
	assert.NotEmpty(t, body.Logs[0].CompletedAt)
	assert.Empty(t, body.NextPageToken)
}

func TestGetStatusHandler(t *testing.T) {
	server, integrations := newTestServer(t, &recordingRunner{}, &fakeTester{})

	createDueIntegration(t, integrations, "pending-sync")

	resp, err := http.Get(server.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status SchedulerStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 3, status.MaxConcurrent)
	assert.Equal(t, int64(1), status.DueCount)
}
