// Package models provides data model definitions for StayOps Core.
package models

// EntityTypeRoom is the replay dispatch tag for rooms.
const EntityTypeRoom = "room"

// Room represents a physical room in the property.
type Room struct {
	ID           UUID       `db:"id" json:"id"`
	Number       string     `db:"number" json:"number"`
	Floor        int        `db:"floor" json:"floor"`
	Type         string     `db:"type" json:"type"`     // single, double, suite
	Status       string     `db:"status" json:"status"` // available, occupied, maintenance
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Room.
func (Room) TableName() string {
	return "rooms"
}
