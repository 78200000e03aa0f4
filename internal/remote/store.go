// Package remote provides access to the remote system of record.
//
// The engine only ever talks to the remote store through the Store and Tx
// interfaces: transactional upsert and delete by primary key. Keeping the
// surface this narrow is what makes every replay idempotent and lets the
// reconciliation engine be tested against an in-memory double.
package remote

import "context"

// Store is the remote persistence target, written opportunistically by the
// dual-write coordinator and drained by the reconciliation engine.
type Store interface {
	// Ping verifies the store is reachable. Used by the connectivity monitor
	// with a bounded timeout.
	Ping(ctx context.Context) error

	// WithTx runs fn inside a remote transaction, committing on nil error and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying connections.
	Close() error
}

// Tx is a transactional handle over the remote store.
type Tx interface {
	// Upsert writes a full row keyed by id: update all columns if the key
	// exists, insert otherwise. Never a blind insert.
	Upsert(ctx context.Context, table, id string, columns map[string]interface{}) error

	// Delete removes a row by primary key. Deleting a missing row is not an
	// error.
	Delete(ctx context.Context, table, id string) error

	// DeleteWhere removes all rows matching column = value. Used to rewrite
	// dependent child sets under a parent key.
	DeleteWhere(ctx context.Context, table, column string, value interface{}) error
}
