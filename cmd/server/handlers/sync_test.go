package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/sync"
)

type offlineProber struct{}

func (offlineProber) Reachable() bool { return false }

// setupHandlerTest wires handlers over a migrated local store with no remote
// configured.
func setupHandlerTest(t *testing.T) (*SyncHandler, *db.Repository) {
	t.Helper()

	local, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	m := db.NewMigrator(local.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := m.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repo := db.NewRepository(local.DB)
	t.Cleanup(func() { repo.Close() })

	reg := sync.NewRegistry()
	if err := sync.RegisterDefaults(reg, repo); err != nil {
		t.Fatalf("Failed to register replayers: %v", err)
	}
	if err := repo.ResolveSyncCapabilities(reg.Collections()); err != nil {
		t.Fatalf("Failed to resolve sync capabilities: %v", err)
	}

	monitor := connectivity.NewMonitor(nil, offlineProber{}, connectivity.Config{
		CheckTimeout: time.Second,
		CacheWindow:  0,
		PollInterval: time.Hour,
	}, nil)
	engine := sync.NewEngine(repo, nil, monitor, reg, nil, 5)

	return NewSyncHandler(repo, engine, monitor), repo
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if body["mode"] != "offline" {
		t.Errorf("Expected offline mode with no remote, got %v", body["mode"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, repo := setupHandlerTest(t)

	change := &models.ChangeRecord{
		EntityType: models.EntityTypeGuest,
		EntityID:   "g1",
		Operation:  models.OperationInsert,
		Collection: "guests",
	}
	if err := repo.EnqueueChange(change); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["pending_count"] != float64(1) {
		t.Errorf("Expected 1 pending, got %v", body["pending_count"])
	}
	if body["is_syncing"] != false {
		t.Errorf("Expected not syncing, got %v", body["is_syncing"])
	}
}

func TestSyncNowUnreachable(t *testing.T) {
	h, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/now", nil)
	rec := httptest.NewRecorder()
	h.SyncNow(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var result sync.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Success {
		t.Error("Expected failure with no remote configured")
	}
	if result.Message != "remote store not reachable" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
}

func TestSyncNowRejectsGet(t *testing.T) {
	h, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/now", nil)
	rec := httptest.NewRecorder()
	h.SyncNow(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestGetPendingEndpoint(t *testing.T) {
	h, repo := setupHandlerTest(t)

	for _, id := range []string{"g1", "g2"} {
		change := &models.ChangeRecord{
			EntityType: models.EntityTypeGuest,
			EntityID:   id,
			Operation:  models.OperationInsert,
			Collection: "guests",
		}
		if err := repo.EnqueueChange(change); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sync/pending?limit=1", nil)
	rec := httptest.NewRecorder()
	h.GetPending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Changes []models.ChangeRecord `json:"changes"`
		Count   int                   `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Count != 1 || len(body.Changes) != 1 {
		t.Errorf("Expected limit applied, got %d changes", body.Count)
	}
	if body.Changes[0].EntityID != "g1" {
		t.Errorf("Expected oldest change first, got %s", body.Changes[0].EntityID)
	}
}

func TestGetPendingRejectsBadLimit(t *testing.T) {
	h, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/pending?limit=zero", nil)
	rec := httptest.NewRecorder()
	h.GetPending(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestRetryFailedEndpoint(t *testing.T) {
	h, repo := setupHandlerTest(t)

	change := &models.ChangeRecord{
		EntityType: models.EntityTypeGuest,
		EntityID:   "g1",
		Operation:  models.OperationInsert,
		Collection: "guests",
	}
	if err := repo.EnqueueChange(change); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := repo.MarkChangeFailed(change.ID, "retry limit reached"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sync/retry", nil)
	rec := httptest.NewRecorder()
	h.RetryFailed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["reset_count"] != float64(1) {
		t.Errorf("Expected 1 reset, got %v", body["reset_count"])
	}
}
