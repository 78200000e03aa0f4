// Package db provides unit tests for the durable change queue.
package db

import (
	"testing"
	"time"

	"github.com/atriumlabs/stayops/backend/internal/models"
)

func enqueueTestChange(t *testing.T, repo *Repository, entityID string, op models.Operation) *models.ChangeRecord {
	t.Helper()
	c := &models.ChangeRecord{
		EntityType: models.EntityTypeGuest,
		EntityID:   entityID,
		Operation:  op,
		Collection: "guests",
	}
	if err := repo.EnqueueChange(c); err != nil {
		t.Fatalf("Failed to enqueue change: %v", err)
	}
	return c
}

func TestEnqueueAssignsIDAndPending(t *testing.T) {
	repo := setupTestRepo(t)

	c := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	if c.ID == 0 {
		t.Error("Expected queue id to be assigned")
	}
	if c.Status != models.ChangeStatusPending {
		t.Errorf("Expected pending, got %s", c.Status)
	}
	if c.CreatedAt == 0 {
		t.Error("Expected created_at to be stamped")
	}
}

func TestListPendingChangesFIFO(t *testing.T) {
	repo := setupTestRepo(t)

	first := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	second := enqueueTestChange(t, repo, "g1", models.OperationUpdate)
	third := enqueueTestChange(t, repo, "g2", models.OperationInsert)

	changes, err := repo.ListPendingChanges()
	if err != nil {
		t.Fatalf("Failed to list pending changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 pending changes, got %d", len(changes))
	}
	if changes[0].ID != first.ID || changes[1].ID != second.ID || changes[2].ID != third.ID {
		t.Errorf("Expected FIFO order %d,%d,%d, got %d,%d,%d",
			first.ID, second.ID, third.ID, changes[0].ID, changes[1].ID, changes[2].ID)
	}
}

func TestMarkChangeCompletedKeepsRecord(t *testing.T) {
	repo := setupTestRepo(t)

	c := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	if err := repo.MarkChangeCompleted(c.ID); err != nil {
		t.Fatalf("Failed to mark completed: %v", err)
	}

	pending, err := repo.ListPendingChanges()
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending changes, got %d", len(pending))
	}

	// Completed records are kept for audit
	completed, err := repo.ListChangesByStatus(models.ChangeStatusCompleted, 10)
	if err != nil {
		t.Fatalf("Failed to list completed: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("Expected 1 completed record retained, got %d", len(completed))
	}
}

func TestIncrementChangeRetry(t *testing.T) {
	repo := setupTestRepo(t)

	c := enqueueTestChange(t, repo, "g1", models.OperationInsert)

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementChangeRetry(c.ID, "connection refused")
		if err != nil {
			t.Fatalf("Failed to increment retry: %v", err)
		}
		if got != want {
			t.Errorf("Expected retry count %d, got %d", want, got)
		}
	}

	changes, err := repo.ListPendingChanges()
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("Expected record still pending, got %d records", len(changes))
	}
	if changes[0].LastError != "connection refused" {
		t.Errorf("Expected last error recorded, got %q", changes[0].LastError)
	}
	if changes[0].LastRetryAt == 0 {
		t.Error("Expected last_retry_at to be stamped")
	}
}

func TestMarkChangeFailed(t *testing.T) {
	repo := setupTestRepo(t)

	c := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	if err := repo.MarkChangeFailed(c.ID, "no replayer registered"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	failed, err := repo.ListChangesByStatus(models.ChangeStatusFailed, 10)
	if err != nil {
		t.Fatalf("Failed to list failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed record, got %d", len(failed))
	}
	if failed[0].LastError != "no replayer registered" {
		t.Errorf("Expected failure reason recorded, got %q", failed[0].LastError)
	}
}

func TestRetryFailedChangesResets(t *testing.T) {
	repo := setupTestRepo(t)

	c1 := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	c2 := enqueueTestChange(t, repo, "g2", models.OperationInsert)
	enqueueTestChange(t, repo, "g3", models.OperationInsert)

	for i := 0; i < 3; i++ {
		if _, err := repo.IncrementChangeRetry(c1.ID, "timeout"); err != nil {
			t.Fatalf("Failed to increment retry: %v", err)
		}
	}
	if err := repo.MarkChangeFailed(c1.ID, "retry limit reached"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}
	if err := repo.MarkChangeFailed(c2.ID, "retry limit reached"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	count, err := repo.RetryFailedChanges()
	if err != nil {
		t.Fatalf("Failed to retry failed changes: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 records reset, got %d", count)
	}

	pending, err := repo.ListPendingChanges()
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("Expected 3 pending after reset, got %d", len(pending))
	}
	for _, c := range pending {
		if c.ID == c1.ID && c.RetryCount != 0 {
			t.Errorf("Expected retry count reset to 0, got %d", c.RetryCount)
		}
	}
}

func TestCountPendingAndStats(t *testing.T) {
	repo := setupTestRepo(t)

	c1 := enqueueTestChange(t, repo, "g1", models.OperationInsert)
	enqueueTestChange(t, repo, "g2", models.OperationUpdate)
	c3 := enqueueTestChange(t, repo, "g3", models.OperationDelete)

	if err := repo.MarkChangeCompleted(c1.ID); err != nil {
		t.Fatalf("Failed to mark completed: %v", err)
	}
	if err := repo.MarkChangeFailed(c3.ID, "boom"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	count, err := repo.CountPendingChanges()
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending, got %d", count)
	}

	stats, err := repo.ChangeStats()
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats["pending"] != 1 || stats["completed"] != 1 || stats["failed"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}

func TestChangeRecordCreatedTime(t *testing.T) {
	c := models.ChangeRecord{CreatedAt: time.Now().Unix()}
	if c.CreatedTime().IsZero() {
		t.Error("Expected non-zero created time")
	}
}
