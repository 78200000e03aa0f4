// Package db provides CRUD repository operations for StayOps data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/atriumlabs/stayops/backend/internal/models"
)

// Repository provides CRUD operations for all models.
// Statements are prepared on first use and cached for reuse.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt

	mu       sync.RWMutex
	syncCaps map[string]bool // collection -> has sync_status/last_modified columns
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, syncCaps: make(map[string]bool)}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Sync capability resolution
// =====================================================

// ResolveSyncCapabilities probes each collection once at startup for the
// sync_status column. Per-call re-probing is deliberately avoided; the
// schema does not change at runtime.
func (r *Repository) ResolveSyncCapabilities(collections []string) error {
	caps := make(map[string]bool, len(collections))

	for _, collection := range collections {
		rows, err := r.db.Query("SELECT name FROM pragma_table_info(?)", collection)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", collection, err)
		}

		hasSync := false
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			if name == "sync_status" {
				hasSync = true
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		caps[collection] = hasSync
	}

	r.mu.Lock()
	r.syncCaps = caps
	r.mu.Unlock()
	return nil
}

// HasSyncColumns reports whether a collection carries sync columns.
func (r *Repository) HasSyncColumns(collection string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.syncCaps[collection]
}

// MarkSyncStatusTx stamps a record's sync_status and last_modified inside an
// existing transaction. No-op for collections without sync columns.
func (r *Repository) MarkSyncStatusTx(tx *sql.Tx, collection, id string, status models.SyncStatus) error {
	if !r.HasSyncColumns(collection) {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ?, last_modified = ? WHERE id = ?", collection)
	_, err := tx.Exec(query, status, time.Now().Unix(), id)
	return err
}

// MarkSyncStatus stamps a record's sync_status outside a transaction.
func (r *Repository) MarkSyncStatus(collection, id string, status models.SyncStatus) error {
	if !r.HasSyncColumns(collection) {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ?, last_modified = ? WHERE id = ?", collection)
	_, err := r.db.Exec(query, status, time.Now().Unix(), id)
	return err
}

// ListPendingIDs returns the ids of rows in a collection whose sync_status is
// pending, oldest modification first.
func (r *Repository) ListPendingIDs(collection string) ([]string, error) {
	if !r.HasSyncColumns(collection) {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE sync_status = ? ORDER BY last_modified ASC", collection)
	rows, err := r.db.Query(query, models.SyncStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSyncStatus reads a record's sync_status.
func (r *Repository) GetSyncStatus(collection, id string) (models.SyncStatus, error) {
	if !r.HasSyncColumns(collection) {
		return "", fmt.Errorf("collection %s has no sync columns", collection)
	}
	query := fmt.Sprintf("SELECT sync_status FROM %s WHERE id = ?", collection)
	var status models.SyncStatus
	err := r.db.QueryRow(query, id).Scan(&status)
	return status, err
}

// =====================================================
// Guest Operations
// =====================================================

// InsertGuestTx inserts a guest inside an existing transaction.
func (r *Repository) InsertGuestTx(tx *sql.Tx, g *models.Guest) error {
	now := time.Now().Unix()
	g.CreatedAt = now
	g.LastModified = now
	g.SyncStatus = models.SyncStatusPending

	_, err := tx.Exec(`
	INSERT INTO guests (id, full_name, email, phone, sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.FullName, g.Email, g.Phone, g.SyncStatus, g.LastModified, g.CreatedAt)
	return err
}

// UpdateGuestTx updates a guest's mutable fields inside an existing transaction.
func (r *Repository) UpdateGuestTx(tx *sql.Tx, g *models.Guest) error {
	g.LastModified = time.Now().Unix()
	_, err := tx.Exec(`
	UPDATE guests SET full_name = ?, email = ?, phone = ?, last_modified = ?
	WHERE id = ?`,
		g.FullName, g.Email, g.Phone, g.LastModified, g.ID)
	return err
}

// GetGuest retrieves a guest by ID.
func (r *Repository) GetGuest(id string) (*models.Guest, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, full_name, email, phone, sync_status, last_modified, created_at
	FROM guests WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var g models.Guest
	err = stmt.QueryRow(id).Scan(&g.ID, &g.FullName, &g.Email, &g.Phone,
		&g.SyncStatus, &g.LastModified, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// =====================================================
// Room Operations
// =====================================================

// InsertRoomTx inserts a room inside an existing transaction.
func (r *Repository) InsertRoomTx(tx *sql.Tx, room *models.Room) error {
	now := time.Now().Unix()
	room.CreatedAt = now
	room.LastModified = now
	room.SyncStatus = models.SyncStatusPending

	_, err := tx.Exec(`
	INSERT INTO rooms (id, number, floor, type, status, sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.Number, room.Floor, room.Type, room.Status,
		room.SyncStatus, room.LastModified, room.CreatedAt)
	return err
}

// UpdateRoomTx updates a room's mutable fields inside an existing transaction.
func (r *Repository) UpdateRoomTx(tx *sql.Tx, room *models.Room) error {
	room.LastModified = time.Now().Unix()
	_, err := tx.Exec(`
	UPDATE rooms SET number = ?, floor = ?, type = ?, status = ?, last_modified = ?
	WHERE id = ?`,
		room.Number, room.Floor, room.Type, room.Status, room.LastModified, room.ID)
	return err
}

// GetRoom retrieves a room by ID.
func (r *Repository) GetRoom(id string) (*models.Room, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, number, floor, type, status, sync_status, last_modified, created_at
	FROM rooms WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var room models.Room
	err = stmt.QueryRow(id).Scan(&room.ID, &room.Number, &room.Floor, &room.Type,
		&room.Status, &room.SyncStatus, &room.LastModified, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// =====================================================
// Booking Operations
// =====================================================

// InsertBookingTx inserts a booking inside an existing transaction.
func (r *Repository) InsertBookingTx(tx *sql.Tx, b *models.Booking) error {
	now := time.Now().Unix()
	b.CreatedAt = now
	b.LastModified = now
	b.SyncStatus = models.SyncStatusPending
	if b.Status == "" {
		b.Status = "reserved"
	}

	_, err := tx.Exec(`
	INSERT INTO bookings (id, guest_id, check_in, check_out, status, total_amount, notes,
		sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.GuestID, b.CheckIn, b.CheckOut, b.Status, b.TotalAmount, b.Notes,
		b.SyncStatus, b.LastModified, b.CreatedAt)
	return err
}

// UpdateBookingTx updates a booking's mutable fields inside an existing transaction.
func (r *Repository) UpdateBookingTx(tx *sql.Tx, b *models.Booking) error {
	b.LastModified = time.Now().Unix()
	_, err := tx.Exec(`
	UPDATE bookings SET guest_id = ?, check_in = ?, check_out = ?, status = ?,
		total_amount = ?, notes = ?, last_modified = ?
	WHERE id = ?`,
		b.GuestID, b.CheckIn, b.CheckOut, b.Status, b.TotalAmount, b.Notes,
		b.LastModified, b.ID)
	return err
}

// DeleteBookingTx removes a booking and, via cascade, its room associations.
func (r *Repository) DeleteBookingTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec("DELETE FROM bookings WHERE id = ?", id)
	return err
}

// GetBooking retrieves a booking by ID.
func (r *Repository) GetBooking(id string) (*models.Booking, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, guest_id, check_in, check_out, status, total_amount, notes,
		sync_status, last_modified, created_at
	FROM bookings WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var b models.Booking
	err = stmt.QueryRow(id).Scan(&b.ID, &b.GuestID, &b.CheckIn, &b.CheckOut,
		&b.Status, &b.TotalAmount, &b.Notes, &b.SyncStatus, &b.LastModified, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ReplaceBookingRoomsTx rewrites the room associations for a booking inside
// an existing transaction.
func (r *Repository) ReplaceBookingRoomsTx(tx *sql.Tx, bookingID string, assocs []models.BookingRoom) error {
	if _, err := tx.Exec("DELETE FROM booking_rooms WHERE booking_id = ?", bookingID); err != nil {
		return err
	}
	for i := range assocs {
		a := &assocs[i]
		_, err := tx.Exec(`
		INSERT INTO booking_rooms (id, booking_id, room_id, nightly_rate)
		VALUES (?, ?, ?, ?)`,
			a.ID, bookingID, a.RoomID, a.NightlyRate)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListBookingRooms returns a booking's room associations.
func (r *Repository) ListBookingRooms(bookingID string) ([]models.BookingRoom, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, booking_id, room_id, nightly_rate
	FROM booking_rooms WHERE booking_id = ? ORDER BY id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assocs []models.BookingRoom
	for rows.Next() {
		var a models.BookingRoom
		if err := rows.Scan(&a.ID, &a.BookingID, &a.RoomID, &a.NightlyRate); err != nil {
			return nil, err
		}
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

// =====================================================
// Payment Operations
// =====================================================

// InsertPaymentTx inserts a payment inside an existing transaction.
func (r *Repository) InsertPaymentTx(tx *sql.Tx, p *models.Payment) error {
	now := time.Now().Unix()
	p.CreatedAt = now
	p.LastModified = now
	p.SyncStatus = models.SyncStatusPending

	_, err := tx.Exec(`
	INSERT INTO payments (id, booking_id, amount, currency, method, status, reference,
		sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BookingID, p.Amount, p.Currency, p.Method, p.Status, p.Reference,
		p.SyncStatus, p.LastModified, p.CreatedAt)
	return err
}

// UpdatePaymentTx updates a payment's mutable fields inside an existing transaction.
func (r *Repository) UpdatePaymentTx(tx *sql.Tx, p *models.Payment) error {
	p.LastModified = time.Now().Unix()
	_, err := tx.Exec(`
	UPDATE payments SET amount = ?, currency = ?, method = ?, status = ?, reference = ?,
		last_modified = ?
	WHERE id = ?`,
		p.Amount, p.Currency, p.Method, p.Status, p.Reference, p.LastModified, p.ID)
	return err
}

// GetPayment retrieves a payment by ID.
func (r *Repository) GetPayment(id string) (*models.Payment, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, booking_id, amount, currency, method, status, reference,
		sync_status, last_modified, created_at
	FROM payments WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var p models.Payment
	err = stmt.QueryRow(id).Scan(&p.ID, &p.BookingID, &p.Amount, &p.Currency,
		&p.Method, &p.Status, &p.Reference, &p.SyncStatus, &p.LastModified, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =====================================================
// Message Operations
// =====================================================

// InsertMessageTx inserts a message inside an existing transaction.
func (r *Repository) InsertMessageTx(tx *sql.Tx, m *models.Message) error {
	now := time.Now().Unix()
	m.CreatedAt = now
	m.LastModified = now
	m.SyncStatus = models.SyncStatusPending
	if m.SentAt == 0 {
		m.SentAt = now
	}

	_, err := tx.Exec(`
	INSERT INTO messages (id, guest_id, channel, direction, body, sent_at,
		sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GuestID, m.Channel, m.Direction, m.Body, m.SentAt,
		m.SyncStatus, m.LastModified, m.CreatedAt)
	return err
}

// GetMessage retrieves a message by ID.
func (r *Repository) GetMessage(id string) (*models.Message, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, guest_id, channel, direction, body, sent_at,
		sync_status, last_modified, created_at
	FROM messages WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var m models.Message
	err = stmt.QueryRow(id).Scan(&m.ID, &m.GuestID, &m.Channel, &m.Direction,
		&m.Body, &m.SentAt, &m.SyncStatus, &m.LastModified, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// =====================================================
// Loyalty Account Operations
// =====================================================

// InsertLoyaltyAccountTx inserts a loyalty account inside an existing transaction.
func (r *Repository) InsertLoyaltyAccountTx(tx *sql.Tx, a *models.LoyaltyAccount) error {
	now := time.Now().Unix()
	a.CreatedAt = now
	a.LastModified = now
	a.SyncStatus = models.SyncStatusPending
	if a.Tier == "" {
		a.Tier = "standard"
	}

	_, err := tx.Exec(`
	INSERT INTO loyalty_accounts (id, guest_id, tier, points, sync_status, last_modified, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GuestID, a.Tier, a.Points, a.SyncStatus, a.LastModified, a.CreatedAt)
	return err
}

// UpdateLoyaltyAccountTx updates a loyalty account inside an existing transaction.
func (r *Repository) UpdateLoyaltyAccountTx(tx *sql.Tx, a *models.LoyaltyAccount) error {
	a.LastModified = time.Now().Unix()
	_, err := tx.Exec(`
	UPDATE loyalty_accounts SET tier = ?, points = ?, last_modified = ?
	WHERE id = ?`,
		a.Tier, a.Points, a.LastModified, a.ID)
	return err
}

// GetLoyaltyAccount retrieves a loyalty account by ID.
func (r *Repository) GetLoyaltyAccount(id string) (*models.LoyaltyAccount, error) {
	stmt, err := r.PrepareStmt(`
	SELECT id, guest_id, tier, points, sync_status, last_modified, created_at
	FROM loyalty_accounts WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var a models.LoyaltyAccount
	err = stmt.QueryRow(id).Scan(&a.ID, &a.GuestID, &a.Tier, &a.Points,
		&a.SyncStatus, &a.LastModified, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
