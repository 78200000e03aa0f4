// Package models provides data model definitions for StayOps Core.
package models

// EntityTypeGuest is the replay dispatch tag for guests.
const EntityTypeGuest = "guest"

// Guest represents a hotel guest profile.
type Guest struct {
	ID           UUID       `db:"id" json:"id"`
	FullName     string     `db:"full_name" json:"full_name"`
	Email        string     `db:"email" json:"email,omitempty"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Guest.
func (Guest) TableName() string {
	return "guests"
}
