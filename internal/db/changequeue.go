// Package db provides durable change queue operations.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/atriumlabs/stayops/backend/internal/models"
)

const changeColumns = "id, entity_type, entity_id, operation, collection, payload, retry_count, status, created_at, last_retry_at, last_error"

// EnqueueChangeTx appends a change record inside an existing transaction and
// fills in its assigned queue id.
func (r *Repository) EnqueueChangeTx(tx *sql.Tx, c *models.ChangeRecord) error {
	c.Status = models.ChangeStatusPending
	c.CreatedAt = time.Now().Unix()

	res, err := tx.Exec(`
	INSERT INTO change_queue (entity_type, entity_id, operation, collection, payload, retry_count, status, created_at)
	VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		c.EntityType, c.EntityID, c.Operation, c.Collection, nullablePayload(c),
		c.Status, c.CreatedAt)
	if err != nil {
		return err
	}

	c.ID, err = res.LastInsertId()
	return err
}

// EnqueueChange appends a change record outside a transaction.
func (r *Repository) EnqueueChange(c *models.ChangeRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := r.EnqueueChangeTx(tx, c); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListPendingChanges returns pending change records in FIFO order, preserving
// the causal order of mutations to the same entity.
func (r *Repository) ListPendingChanges() ([]models.ChangeRecord, error) {
	query := fmt.Sprintf(`
	SELECT %s FROM change_queue WHERE status = ? ORDER BY created_at ASC, id ASC`, changeColumns)
	rows, err := r.db.Query(query, models.ChangeStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChanges(rows)
}

// ListChangesByStatus returns up to limit change records with the given
// status, newest first. Used by the admin surface.
func (r *Repository) ListChangesByStatus(status models.ChangeStatus, limit int) ([]models.ChangeRecord, error) {
	query := fmt.Sprintf(`
	SELECT %s FROM change_queue WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`, changeColumns)
	rows, err := r.db.Query(query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChanges(rows)
}

// CountPendingChanges returns the number of pending change records.
func (r *Repository) CountPendingChanges() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM change_queue WHERE status = ?",
		models.ChangeStatusPending).Scan(&count)
	return count, err
}

// MarkChangeCompleted marks a change record completed. The record is kept
// for audit.
func (r *Repository) MarkChangeCompleted(id int64) error {
	_, err := r.db.Exec("UPDATE change_queue SET status = ? WHERE id = ?",
		models.ChangeStatusCompleted, id)
	return err
}

// MarkChangeFailed marks a change record permanently failed with the final
// error text. A failed record is never retried automatically.
func (r *Repository) MarkChangeFailed(id int64, errText string) error {
	_, err := r.db.Exec(`
	UPDATE change_queue SET status = ?, last_error = ?, last_retry_at = ? WHERE id = ?`,
		models.ChangeStatusFailed, errText, time.Now().Unix(), id)
	return err
}

// IncrementChangeRetry bumps a change record's retry count after a retryable
// failure and returns the new count.
func (r *Repository) IncrementChangeRetry(id int64, errText string) (int, error) {
	_, err := r.db.Exec(`
	UPDATE change_queue SET retry_count = retry_count + 1, last_error = ?, last_retry_at = ?
	WHERE id = ?`,
		errText, time.Now().Unix(), id)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRow("SELECT retry_count FROM change_queue WHERE id = ?", id).Scan(&count)
	return count, err
}

// RetryFailedChanges resets all failed change records to pending with a fresh
// retry budget. Operator intervention surface; the engine never does this on
// its own.
func (r *Repository) RetryFailedChanges() (int, error) {
	res, err := r.db.Exec(`
	UPDATE change_queue SET status = ?, retry_count = 0, last_error = ''
	WHERE status = ?`,
		models.ChangeStatusPending, models.ChangeStatusFailed)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ChangeStats returns change record counts by status.
func (r *Repository) ChangeStats() (map[string]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM change_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"pending":   0,
		"completed": 0,
		"failed":    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanChanges(rows *sql.Rows) ([]models.ChangeRecord, error) {
	var changes []models.ChangeRecord
	for rows.Next() {
		var c models.ChangeRecord
		var payload sql.NullString
		err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.Operation, &c.Collection,
			&payload, &c.RetryCount, &c.Status, &c.CreatedAt, &c.LastRetryAt, &c.LastError)
		if err != nil {
			return nil, err
		}
		if payload.Valid {
			c.Payload = []byte(payload.String)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func nullablePayload(c *models.ChangeRecord) interface{} {
	if len(c.Payload) == 0 {
		return nil
	}
	return string(c.Payload)
}
