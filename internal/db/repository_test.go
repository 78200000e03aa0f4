// Package db provides unit tests for repository CRUD and sync bookkeeping.
package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/atriumlabs/stayops/backend/internal/models"
)

func insertTestGuest(t *testing.T, repo *Repository, id string) *models.Guest {
	t.Helper()
	g := &models.Guest{
		ID:       models.UUID(id),
		FullName: "Ada Lindgren",
		Email:    "ada@example.com",
	}
	tx, err := repo.db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if err := repo.InsertGuestTx(tx, g); err != nil {
		tx.Rollback()
		t.Fatalf("Failed to insert guest: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return g
}

func TestGuestInsertAndGet(t *testing.T) {
	repo := setupTestRepo(t)

	g := insertTestGuest(t, repo, "11111111-1111-4111-8111-111111111111")

	got, err := repo.GetGuest(string(g.ID))
	if err != nil {
		t.Fatalf("Failed to get guest: %v", err)
	}
	if got.FullName != "Ada Lindgren" {
		t.Errorf("Expected full name 'Ada Lindgren', got %q", got.FullName)
	}
	if got.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected new guest pending, got %s", got.SyncStatus)
	}
	if got.LastModified == 0 {
		t.Error("Expected last_modified to be stamped")
	}
}

func TestGetGuestNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetGuest("22222222-2222-4222-8222-222222222222")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestResolveSyncCapabilities(t *testing.T) {
	repo := setupTestRepo(t)

	for _, collection := range []string{"guests", "bookings", "payments"} {
		if !repo.HasSyncColumns(collection) {
			t.Errorf("Expected %s to have sync columns", collection)
		}
	}
	if repo.HasSyncColumns("booking_rooms") {
		t.Error("booking_rooms carries no sync columns, parent bookings own them")
	}
}

func TestMarkSyncStatus(t *testing.T) {
	repo := setupTestRepo(t)
	g := insertTestGuest(t, repo, "33333333-3333-4333-8333-333333333333")

	before, err := repo.GetGuest(string(g.ID))
	if err != nil {
		t.Fatalf("Failed to get guest: %v", err)
	}

	if err := repo.MarkSyncStatus("guests", string(g.ID), models.SyncStatusSynced); err != nil {
		t.Fatalf("Failed to mark synced: %v", err)
	}

	status, err := repo.GetSyncStatus("guests", string(g.ID))
	if err != nil {
		t.Fatalf("Failed to read sync status: %v", err)
	}
	if status != models.SyncStatusSynced {
		t.Errorf("Expected synced, got %s", status)
	}

	after, err := repo.GetGuest(string(g.ID))
	if err != nil {
		t.Fatalf("Failed to get guest: %v", err)
	}
	if after.LastModified < before.LastModified {
		t.Error("Expected last_modified to move forward on status change")
	}
}

func TestListPendingIDs(t *testing.T) {
	repo := setupTestRepo(t)

	g1 := insertTestGuest(t, repo, "44444444-4444-4444-8444-444444444444")
	g2 := insertTestGuest(t, repo, "55555555-5555-4555-8555-555555555555")

	if err := repo.MarkSyncStatus("guests", string(g1.ID), models.SyncStatusSynced); err != nil {
		t.Fatalf("Failed to mark synced: %v", err)
	}

	ids, err := repo.ListPendingIDs("guests")
	if err != nil {
		t.Fatalf("Failed to list pending IDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != string(g2.ID) {
		t.Errorf("Expected only %s pending, got %v", g2.ID, ids)
	}
}

func TestBookingWithRooms(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	g := insertTestGuest(t, repo, "66666666-6666-4666-8666-666666666666")

	room := &models.Room{
		ID:     "77777777-7777-4777-8777-777777777777",
		Number: "204",
		Floor:  2,
		Type:   "double",
		Status: "available",
	}
	booking := &models.Booking{
		ID:          "88888888-8888-4888-8888-888888888888",
		GuestID:     g.ID,
		CheckIn:     1760000000,
		CheckOut:    1760172800,
		TotalAmount: 25800,
	}
	assoc := models.BookingRoom{
		ID:          "99999999-9999-4999-8999-999999999999",
		BookingID:   booking.ID,
		RoomID:      room.ID,
		NightlyRate: 12900,
	}

	db := &DB{repo.db}
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := repo.InsertRoomTx(tx, room); err != nil {
			return err
		}
		if err := repo.InsertBookingTx(tx, booking); err != nil {
			return err
		}
		return repo.ReplaceBookingRoomsTx(tx, string(booking.ID), []models.BookingRoom{assoc})
	})
	if err != nil {
		t.Fatalf("Failed to create booking: %v", err)
	}

	rooms, err := repo.ListBookingRooms(string(booking.ID))
	if err != nil {
		t.Fatalf("Failed to list booking rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].NightlyRate != 12900 {
		t.Errorf("Unexpected booking rooms: %+v", rooms)
	}

	// Deleting the booking cascades to booking_rooms
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return repo.DeleteBookingTx(tx, string(booking.ID))
	})
	if err != nil {
		t.Fatalf("Failed to delete booking: %v", err)
	}

	rooms, err = repo.ListBookingRooms(string(booking.ID))
	if err != nil {
		t.Fatalf("Failed to list booking rooms after delete: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("Expected cascade delete of booking rooms, got %+v", rooms)
	}
}

func TestReplaceBookingRoomsRewritesSet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	g := insertTestGuest(t, repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	db := &DB{repo.db}

	roomA := &models.Room{ID: "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", Number: "101"}
	roomB := &models.Room{ID: "cccccccc-cccc-4ccc-8ccc-cccccccccccc", Number: "102"}
	booking := &models.Booking{
		ID:       "dddddddd-dddd-4ddd-8ddd-dddddddddddd",
		GuestID:  g.ID,
		CheckIn:  1760000000,
		CheckOut: 1760086400,
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := repo.InsertRoomTx(tx, roomA); err != nil {
			return err
		}
		if err := repo.InsertRoomTx(tx, roomB); err != nil {
			return err
		}
		if err := repo.InsertBookingTx(tx, booking); err != nil {
			return err
		}
		return repo.ReplaceBookingRoomsTx(tx, string(booking.ID), []models.BookingRoom{
			{ID: "eeeeeeee-eeee-4eee-8eee-eeeeeeeeeeee", BookingID: booking.ID, RoomID: roomA.ID, NightlyRate: 100},
		})
	})
	if err != nil {
		t.Fatalf("Failed to create booking: %v", err)
	}

	// Rewrite to room B only
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return repo.ReplaceBookingRoomsTx(tx, string(booking.ID), []models.BookingRoom{
			{ID: "ffffffff-ffff-4fff-8fff-ffffffffffff", BookingID: booking.ID, RoomID: roomB.ID, NightlyRate: 200},
		})
	})
	if err != nil {
		t.Fatalf("Failed to replace booking rooms: %v", err)
	}

	rooms, err := repo.ListBookingRooms(string(booking.ID))
	if err != nil {
		t.Fatalf("Failed to list booking rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].RoomID != roomB.ID {
		t.Errorf("Expected only room B assigned, got %+v", rooms)
	}
}
