// Package handlers provides REST API handlers for the StayOps backend.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/sync"
)

// SyncHandler handles connectivity and reconciliation endpoints.
type SyncHandler struct {
	repo    *db.Repository
	engine  *sync.Engine
	monitor *connectivity.Monitor
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(repo *db.Repository, engine *sync.Engine, monitor *connectivity.Monitor) *SyncHandler {
	return &SyncHandler{
		repo:    repo,
		engine:  engine,
		monitor: monitor,
	}
}

// =====================================================
// Health and Status Endpoints
// =====================================================

// Health handles GET /api/health
// Reports process liveness and the current connectivity snapshot.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.monitor.State()
	mode := "offline"
	if state.Online() {
		mode = "online"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":            "ok",
		"mode":              mode,
		"network_reachable": state.NetworkReachable,
		"remote_reachable":  state.RemoteReachable,
		"last_checked":      state.LastChecked,
	})
}

// GetStatus handles GET /api/sync/status
// Returns the engine state, pending change count and queue statistics.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.repo.CountPendingChanges()
	if err != nil {
		http.Error(w, "Failed to count pending changes", http.StatusInternalServerError)
		return
	}

	stats, err := h.repo.ChangeStats()
	if err != nil {
		http.Error(w, "Failed to read queue statistics", http.StatusInternalServerError)
		return
	}

	state := h.monitor.State()
	mode := "offline"
	if state.Online() {
		mode = "online"
	}

	response := map[string]interface{}{
		"mode":          mode,
		"is_syncing":    h.engine.IsSyncing(),
		"pending_count": pending,
		"queue_stats":   stats,
	}
	if last := h.engine.LastSync(); last != nil {
		response["last_sync"] = last.Unix()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// =====================================================
// Reconciliation Endpoints
// =====================================================

// SyncNow handles POST /api/sync/now
// Runs a full reconciliation pass and returns its result. A pass already in
// progress is reported as a conflict, never queued.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.engine.SyncAll(r.Context())

	status := http.StatusOK
	if !result.Success && result.Message == "sync already in progress" {
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// GetPending handles GET /api/sync/pending
// Lists outstanding change records oldest first. Accepts an optional limit
// query parameter, default 100.
func (h *SyncHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	changes, err := h.repo.ListChangesByStatus(models.ChangeStatusPending, limit)
	if err != nil {
		http.Error(w, "Failed to list pending changes", http.StatusInternalServerError)
		return
	}
	if changes == nil {
		changes = []models.ChangeRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

// RetryFailed handles POST /api/sync/retry
// Resets failed change records back to pending and, while online, triggers a
// background reconciliation pass.
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := h.engine.RetryFailed(r.Context())
	if err != nil {
		http.Error(w, "Failed to reset failed changes", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reset_count": count,
	})
}
