// Package models provides data model definitions for StayOps Core.
package models

// EntityTypeMessage is the replay dispatch tag for guest messages.
const EntityTypeMessage = "message"

// Message represents a message exchanged with a guest.
type Message struct {
	ID           UUID       `db:"id" json:"id"`
	GuestID      UUID       `db:"guest_id" json:"guest_id"`
	Channel      string     `db:"channel" json:"channel"`     // sms, email, in_app
	Direction    string     `db:"direction" json:"direction"` // inbound, outbound
	Body         string     `db:"body" json:"body"`
	SentAt       int64      `db:"sent_at" json:"sent_at"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}
