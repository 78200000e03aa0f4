package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL-backed remote store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the remote PostgreSQL store and ensures the mirrored
// schema exists.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pooling configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Ping checks database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn inside a remote transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin remote transaction: %w", err)
	}

	if err := fn(&pgTxHandle{tx: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit remote transaction: %w", err)
	}
	return nil
}

// pgTxHandle adapts a pgx.Tx to the Tx interface.
type pgTxHandle struct {
	tx pgx.Tx
}

// Upsert writes a full row keyed by id via INSERT ... ON CONFLICT DO UPDATE.
// Column order is sorted so the generated SQL is deterministic and cacheable
// by the server.
func (h *pgTxHandle) Upsert(ctx context.Context, table, id string, columns map[string]interface{}) error {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, 0, len(names)+1)
	placeholders := make([]string, 0, len(names)+1)
	updates := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)+1)

	cols = append(cols, "id")
	placeholders = append(placeholders, "$1")
	args = append(args, id)

	for i, name := range names {
		cols = append(cols, name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
		args = append(args, columns[name])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	_, err := h.tx.Exec(ctx, query, args...)
	return err
}

// Delete removes a row by primary key.
func (h *pgTxHandle) Delete(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", table)
	_, err := h.tx.Exec(ctx, query, id)
	return err
}

// DeleteWhere removes all rows matching column = value.
func (h *pgTxHandle) DeleteWhere(ctx context.Context, table, column string, value interface{}) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, column)
	_, err := h.tx.Exec(ctx, query, value)
	return err
}

// migrate creates the mirrored domain tables if they don't exist. IDs are
// assigned by the local store and preserved here so foreign keys keep
// resolving after replay.
func (s *PGStore) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS guests (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL,
			floor INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL DEFAULT 'single',
			status TEXT NOT NULL DEFAULT 'available',
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL,
			check_in BIGINT NOT NULL,
			check_out BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'reserved',
			total_amount BIGINT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS booking_rooms (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			room_id TEXT NOT NULL,
			nightly_rate BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_rooms_booking ON booking_rooms(booking_id)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			method TEXT NOT NULL DEFAULT 'card',
			status TEXT NOT NULL DEFAULT 'authorized',
			reference TEXT NOT NULL DEFAULT '',
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT 'in_app',
			direction TEXT NOT NULL DEFAULT 'outbound',
			body TEXT NOT NULL,
			sent_at BIGINT NOT NULL,
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS loyalty_accounts (
			id TEXT PRIMARY KEY,
			guest_id TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'standard',
			points BIGINT NOT NULL DEFAULT 0,
			last_modified BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
