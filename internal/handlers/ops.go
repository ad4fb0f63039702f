package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"stridelog-strava-sync/internal/config"
	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/sync"
)

// OpsHandler serves the internal operations endpoints
type OpsHandler struct {
	db           *database.DB
	orchestrator *sync.Orchestrator
	config       *config.Config
	logger       *slog.Logger
}

// NewOpsHandler creates a new ops handler
func NewOpsHandler(db *database.DB, orchestrator *sync.Orchestrator, cfg *config.Config) *OpsHandler {
	return &OpsHandler{
		db:           db,
		orchestrator: orchestrator,
		config:       cfg,
		logger:       slog.Default(),
	}
}

// authorized verifies the Authorization header against the internal API key
func (h *OpsHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.InternalAPIKey {
		h.logger.Warn("Unauthorized internal request", "path", r.URL.Path, "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// HandleHealth handles GET /health
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.db.Health(); err != nil {
		h.logger.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleConnectionStatus handles GET /internal/connection-status?user_id=...
func (h *OpsHandler) HandleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "Missing user_id parameter", http.StatusBadRequest)
		return
	}

	status, err := h.orchestrator.GetConnectionStatus(userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	logs := make([]map[string]interface{}, 0, len(status.RecentSyncLogs))
	for _, l := range status.RecentSyncLogs {
		entry := map[string]interface{}{
			"id":                     l.ID,
			"status":                 l.Status,
			"started_at":             time.Unix(l.StartedAt, 0).UTC().Format(time.RFC3339),
			"fetched_activity_count": l.FetchedActivityCount,
		}
		if l.CompletedAt != nil {
			entry["completed_at"] = time.Unix(*l.CompletedAt, 0).UTC().Format(time.RFC3339)
		}
		if l.Error != nil {
			entry["error"] = *l.Error
		}
		logs = append(logs, entry)
	}

	response := map[string]interface{}{
		"connected":    status.Connected,
		"recent_syncs": logs,
	}
	if status.Connected {
		response["athlete_id"] = status.AthleteID
	}
	if status.LastSuccessfulSyncAt != nil {
		response["last_successful_sync_at"] = status.LastSuccessfulSyncAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, response)
}

// connectRequest is the body for POST /internal/connect
type connectRequest struct {
	UserID    string `json:"user_id"`
	AthleteID int64  `json:"athlete_id"`
}

// HandleConnect handles POST /internal/connect
func (h *OpsHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AthleteID == 0 {
		http.Error(w, "Missing user_id or athlete_id", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.ConnectAthleteAndBootstrapActivities(r.Context(), req.UserID, req.AthleteID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"athlete_id":           result.Athlete.ID,
		"window":               result.Window.String(),
		"event_count":          result.EventCount,
		"saved_activity_count": result.SavedActivityCount,
	})
}

// syncRequest is the body for POST /internal/sync
type syncRequest struct {
	UserID string `json:"user_id"`
	Oldest string `json:"oldest"`
	Newest string `json:"newest"`
}

// HandleSync handles POST /internal/sync
func (h *OpsHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "Missing user_id", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.SyncActivitiesIncremental(r.Context(), req.UserID, req.Oldest, req.Newest)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":               result.Window.String(),
		"event_count":          result.EventCount,
		"saved_activity_count": result.SavedActivityCount,
	})
}

// HandleBackfillRollups handles POST /internal/backfill-rollups
func (h *OpsHandler) HandleBackfillRollups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(w, r) {
		return
	}

	count, err := h.orchestrator.BackfillDashboardRollups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users_recomputed": count,
	})
}

// writeError maps a sync error to its HTTP status code
func (h *OpsHandler) writeError(w http.ResponseWriter, err error) {
	status := sync.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Internal request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
