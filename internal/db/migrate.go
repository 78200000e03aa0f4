// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// AppliedMigration records a migration already applied to the store.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrations is the ordered list of schema migrations. Append only; never
// edit an applied migration, the checksum check will refuse it.
var migrations = []Migration{
	{
		Version:     1,
		Description: "domain collections with sync columns",
		SQL: `
		CREATE TABLE IF NOT EXISTS guests (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			floor INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL DEFAULT 'single',
			status TEXT NOT NULL DEFAULT 'available',
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL REFERENCES guests(id),
			check_in INTEGER NOT NULL,
			check_out INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'reserved',
			total_amount INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS booking_rooms (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			nightly_rate INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_booking_rooms_booking ON booking_rooms(booking_id);
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id),
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			method TEXT NOT NULL DEFAULT 'card',
			status TEXT NOT NULL DEFAULT 'authorized',
			reference TEXT NOT NULL DEFAULT '',
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL REFERENCES guests(id),
			channel TEXT NOT NULL DEFAULT 'in_app',
			direction TEXT NOT NULL DEFAULT 'outbound',
			body TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS loyalty_accounts (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL REFERENCES guests(id),
			tier TEXT NOT NULL DEFAULT 'standard',
			points INTEGER NOT NULL DEFAULT 0,
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
			last_modified INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	},
	{
		Version:     2,
		Description: "durable change queue",
		SQL: `
		CREATE TABLE IF NOT EXISTS change_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('insert','update','delete')),
			collection TEXT NOT NULL,
			payload TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','completed','failed')),
			created_at INTEGER NOT NULL,
			last_retry_at INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_change_queue_status ON change_queue(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_change_queue_entity ON change_queue(entity_type, entity_id);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]AppliedMigration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&a.Version, &appliedAt, &a.Description, &a.Checksum); err != nil {
			return nil, err
		}
		a.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, a)
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations in order. Each migration runs in
// its own transaction together with its schema_migrations bookkeeping row.
func (m *Migrator) Migrate() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := m.verifyChecksums(current); err != nil {
		return err
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Description, err)
		}
	}
	return nil
}

func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		mig.Version, time.Now().Unix(), mig.Description, checksum(mig.SQL),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// verifyChecksums ensures no applied migration has been edited in place.
func (m *Migrator) verifyChecksums(current int) error {
	if current == 0 {
		return nil
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.Version] = mig
	}

	for _, a := range applied {
		mig, ok := byVersion[a.Version]
		if !ok {
			return fmt.Errorf("applied migration %d is unknown to this binary", a.Version)
		}
		if checksum(mig.SQL) != a.Checksum {
			return fmt.Errorf("migration %d checksum mismatch: schema drift", a.Version)
		}
	}
	return nil
}

func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
