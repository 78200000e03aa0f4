// Package models provides data model definitions for StayOps Core.
package models

import (
	"encoding/json"
	"time"
)

// SyncStatus tracks whether a local record has been replayed to the remote store.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Operation is the kind of mutation a change record represents.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ChangeStatus is the lifecycle state of a change record.
type ChangeStatus string

const (
	ChangeStatusPending   ChangeStatus = "pending"
	ChangeStatusCompleted ChangeStatus = "completed"
	ChangeStatusFailed    ChangeStatus = "failed"
)

// ChangeRecord represents one outstanding mutation awaiting remote replay.
// Completed and failed records are kept for audit, never deleted.
type ChangeRecord struct {
	ID          int64           `db:"id" json:"id"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    string          `db:"entity_id" json:"entity_id"`
	Operation   Operation       `db:"operation" json:"operation"`
	Collection  string          `db:"collection" json:"collection"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	Status      ChangeStatus    `db:"status" json:"status"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
	LastRetryAt int64           `db:"last_retry_at" json:"last_retry_at,omitempty"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for ChangeRecord.
func (ChangeRecord) TableName() string {
	return "change_queue"
}

// CreatedTime returns CreatedAt as time.Time.
func (c *ChangeRecord) CreatedTime() time.Time {
	return time.Unix(c.CreatedAt, 0)
}

// ConnectivityState is the process-wide reachability snapshot owned by the
// connectivity monitor.
type ConnectivityState struct {
	NetworkReachable bool  `json:"network_reachable"`
	RemoteReachable  bool  `json:"remote_reachable"`
	LastChecked      int64 `json:"last_checked"`
}

// Online reports the effective mode: the remote store is what matters, a
// reachable network with an unreachable endpoint is still offline.
func (s ConnectivityState) Online() bool {
	return s.RemoteReachable
}
