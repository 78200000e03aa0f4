// Package models provides data model definitions for StayOps Core.
package models

// EntityTypePayment is the replay dispatch tag for payments.
const EntityTypePayment = "payment"

// Payment represents a settled or attempted charge against a booking.
// Gateway interaction happens elsewhere; the engine only moves the row.
type Payment struct {
	ID           UUID       `db:"id" json:"id"`
	BookingID    UUID       `db:"booking_id" json:"booking_id"`
	Currency     string     `db:"currency" json:"currency"`
	Amount       int64      `db:"amount" json:"amount"` // minor currency units
	Method       string     `db:"method" json:"method"` // card, cash, transfer
	Status       string     `db:"status" json:"status"` // authorized, captured, refunded, voided
	Reference    string     `db:"reference" json:"reference,omitempty"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Payment.
func (Payment) TableName() string {
	return "payments"
}
