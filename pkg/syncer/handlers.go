package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evidentry/evidentry/pkg/provider"
	"github.com/evidentry/evidentry/pkg/store"
)

// ConnectionTester probes an integration's vendor connection. Satisfied
// by *Runner.
type ConnectionTester interface {
	TestConnection(ctx context.Context, integrationID string) (provider.TestResult, error)
}

// TriggerSyncHandler handles POST /api/sync/v1alpha1/integrations/{integrationId}:trigger
func TriggerSyncHandler(scheduler *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integrationId")
		if integrationID == "" {
			writeError(w, http.StatusBadRequest, "missing integration ID")
			return
		}

		result, err := scheduler.TriggerSync(r.Context(), integrationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to trigger sync: %v", err))
			return
		}

		switch {
		case result.Queued:
			writeJSON(w, http.StatusAccepted, result)
		case result.Reason == "not found":
			writeError(w, http.StatusNotFound, fmt.Sprintf("integration not found: %s", integrationID))
		default:
			writeJSON(w, http.StatusConflict, result)
		}
	}
}

// TestConnectionHandler handles POST /api/sync/v1alpha1/integrations/{integrationId}:test
func TestConnectionHandler(tester ConnectionTester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integrationId")
		if integrationID == "" {
			writeError(w, http.StatusBadRequest, "missing integration ID")
			return
		}

		result, err := tester.TestConnection(r.Context(), integrationID)
		if err != nil {
			if _, ok := err.(*ConfigurationError); ok {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("connection test failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// DisconnectHandler handles POST /api/sync/v1alpha1/integrations/{integrationId}:disconnect
// Disconnecting discards the stored credentials permanently.
func DisconnectHandler(integrations *store.IntegrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integrationId")
		if integrationID == "" {
			writeError(w, http.StatusBadRequest, "missing integration ID")
			return
		}

		if err := integrations.Disconnect(integrationID); err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("failed to disconnect: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(store.IntegrationStatusDisconnected)})
	}
}

// ListLogsHandler handles GET /api/sync/v1alpha1/integrations/{integrationId}/logs
// Query params: pageSize, pageToken
func ListLogsHandler(integrations *store.IntegrationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integrationId")
		if integrationID == "" {
			writeError(w, http.StatusBadRequest, "missing integration ID")
			return
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		logs, nextToken, err := integrations.ListLogs(integrationID, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to list sync logs: %v", err))
			return
		}

		entries := make([]logEntry, len(logs))
		for i, l := range logs {
			entries[i] = logEntry{
				ID:             l.ID,
				Operation:      l.Operation,
				Status:         string(l.Status),
				ItemsProcessed: l.ItemsProcessed,
				ItemsFailed:    l.ItemsFailed,
				Details:        l.Details,
				StartedAt:      l.StartedAt.Format(time.RFC3339),
				DurationMs:     l.DurationMs,
			}
			if l.CompletedAt != nil {
				entries[i].CompletedAt = l.CompletedAt.Format(time.RFC3339)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"logs":          entries,
			"nextPageToken": nextToken,
		})
	}
}

type logEntry struct {
	ID             string `json:"id"`
	Operation      string `json:"operation"`
	Status         string `json:"status"`
	ItemsProcessed int    `json:"itemsProcessed"`
	ItemsFailed    int    `json:"itemsFailed"`
	Details        any    `json:"details,omitempty"`
	StartedAt      string `json:"startedAt"`
	CompletedAt    string `json:"completedAt,omitempty"`
	DurationMs     int64  `json:"durationMs,omitempty"`
}

// GetStatusHandler handles GET /api/sync/v1alpha1/status
func GetStatusHandler(scheduler *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := scheduler.Status()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read scheduler status: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// Router creates a chi.Router for the sync API.
func Router(scheduler *Scheduler, tester ConnectionTester, integrations *store.IntegrationStore) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", GetStatusHandler(scheduler))
	r.Post("/integrations/{integrationId}:trigger", TriggerSyncHandler(scheduler))
	r.Post("/integrations/{integrationId}:test", TestConnectionHandler(tester))
	r.Post("/integrations/{integrationId}:disconnect", DisconnectHandler(integrations))
	r.Get("/integrations/{integrationId}/logs", ListLogsHandler(integrations))
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
