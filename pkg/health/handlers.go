package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetControlHealthHandler handles GET /api/health/v1alpha1/controls/{controlId}
func GetControlHealthHandler(scorer *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controlID := chi.URLParam(r, "controlId")
		if controlID == "" {
			writeError(w, http.StatusBadRequest, "missing control ID")
			return
		}

		result, err := scorer.Calculate(controlID)
		if err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("failed to calculate health: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ReviewControlHandler handles POST /api/health/v1alpha1/controls/{controlId}:review
// Body: {"reviewer": "..."}
func ReviewControlHandler(scorer *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controlID := chi.URLParam(r, "controlId")
		if controlID == "" {
			writeError(w, http.StatusBadRequest, "missing control ID")
			return
		}

		var body struct {
			Reviewer string `json:"reviewer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reviewer == "" {
			writeError(w, http.StatusBadRequest, "request body must include a reviewer")
			return
		}

		result, err := scorer.MarkReviewed(controlID, body.Reviewer)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to mark reviewed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// RefreshControlHealthHandler handles POST /api/health/v1alpha1/controls/{controlId}:refresh
func RefreshControlHealthHandler(scorer *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controlID := chi.URLParam(r, "controlId")
		if controlID == "" {
			writeError(w, http.StatusBadRequest, "missing control ID")
			return
		}

		result, err := scorer.Refresh(controlID, "api")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to refresh health: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// GetHistoryHandler handles GET /api/health/v1alpha1/controls/{controlId}/history
// Query params: limit
func GetHistoryHandler(scorer *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controlID := chi.URLParam(r, "controlId")
		if controlID == "" {
			writeError(w, http.StatusBadRequest, "missing control ID")
			return
		}

		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				limit = v
			}
		}

		entries, err := scorer.History(controlID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list history: %v", err))
			return
		}

		history := make([]historyEntry, len(entries))
		for i, e := range entries {
			history[i] = historyEntry{
				ID:              e.ID,
				OverallScore:    e.OverallScore,
				Factors:         e.Factors,
				Recommendations: e.Recommendations,
				TriggeredBy:     e.TriggeredBy,
				CreatedAt:       e.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
	}
}

type historyEntry struct {
	ID              string   `json:"id"`
	OverallScore    int      `json:"overallScore"`
	Factors         any      `json:"factors"`
	Recommendations []string `json:"recommendations,omitempty"`
	TriggeredBy     string   `json:"triggeredBy,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

// Router creates a chi.Router for the control health API.
func Router(scorer *Scorer) chi.Router {
	r := chi.NewRouter()
	r.Get("/controls/{controlId}", GetControlHealthHandler(scorer))
	r.Post("/controls/{controlId}:review", ReviewControlHandler(scorer))
	r.Post("/controls/{controlId}:refresh", RefreshControlHealthHandler(scorer))
	r.Get("/controls/{controlId}/history", GetHistoryHandler(scorer))
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
