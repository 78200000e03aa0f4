// Package models provides data model definitions for StayOps Core.
package models

import "time"

// EntityTypeBooking is the replay dispatch tag for bookings.
const EntityTypeBooking = "booking"

// Booking represents a guest reservation. Room assignments live in
// booking_rooms child rows keyed by BookingID.
type Booking struct {
	ID           UUID       `db:"id" json:"id"`
	GuestID      UUID       `db:"guest_id" json:"guest_id"`
	CheckIn      int64      `db:"check_in" json:"check_in"`
	CheckOut     int64      `db:"check_out" json:"check_out"`
	Status       string     `db:"status" json:"status"`             // reserved, checked_in, checked_out, cancelled
	TotalAmount  int64      `db:"total_amount" json:"total_amount"` // minor currency units
	Notes        string     `db:"notes" json:"notes,omitempty"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Booking.
func (Booking) TableName() string {
	return "bookings"
}

// CheckInTime returns CheckIn as time.Time.
func (b *Booking) CheckInTime() time.Time {
	return time.Unix(b.CheckIn, 0)
}

// CheckOutTime returns CheckOut as time.Time.
func (b *Booking) CheckOutTime() time.Time {
	return time.Unix(b.CheckOut, 0)
}

// BookingRoom associates a booking with a room at an agreed nightly rate.
type BookingRoom struct {
	ID          UUID  `db:"id" json:"id"`
	BookingID   UUID  `db:"booking_id" json:"booking_id"`
	RoomID      UUID  `db:"room_id" json:"room_id"`
	NightlyRate int64 `db:"nightly_rate" json:"nightly_rate"`
}

// TableName returns the table name for BookingRoom.
func (BookingRoom) TableName() string {
	return "booking_rooms"
}
