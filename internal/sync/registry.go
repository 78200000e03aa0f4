package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/atriumlabs/stayops/backend/internal/remote"
)

// Replayer replays one entity type against the remote store. Implementations
// must be idempotent: Replay is an upsert by primary key and Delete is an
// unconditional delete by key, because the same entity may be dual-written
// and later replayed again by a reconciliation pass.
type Replayer interface {
	// EntityType is the dispatch tag carried by change records.
	EntityType() string

	// Collection is the local table scanned for pending rows.
	Collection() string

	// Replay reads the current local row and upserts it (with any dependent
	// child rows) inside the given remote transaction. A row that has
	// vanished locally converges as a remote delete.
	Replay(ctx context.Context, tx remote.Tx, entityID string) error

	// Delete removes the entity (and dependent child rows) remotely by key.
	Delete(ctx context.Context, tx remote.Tx, entityID string) error
}

// Registry maps entity-type tags to replayers. Registration happens once at
// startup, so an unknown type at dispatch is a configuration gap.
type Registry struct {
	mu           sync.RWMutex
	byType       map[string]Replayer
	byCollection map[string]Replayer
	order        []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:       make(map[string]Replayer),
		byCollection: make(map[string]Replayer),
	}
}

// Register adds a replayer. Registering the same entity type twice is a
// programming error.
func (r *Registry) Register(rep Replayer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[rep.EntityType()]; exists {
		return fmt.Errorf("replayer for entity type %q already registered", rep.EntityType())
	}
	r.byType[rep.EntityType()] = rep
	r.byCollection[rep.Collection()] = rep
	r.order = append(r.order, rep.EntityType())
	return nil
}

// Lookup returns the replayer for an entity type.
func (r *Registry) Lookup(entityType string) (Replayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.byType[entityType]
	return rep, ok
}

// Collections returns the registered local collections in registration order.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collections := make([]string, 0, len(r.order))
	for _, entityType := range r.order {
		collections = append(collections, r.byType[entityType].Collection())
	}
	return collections
}

// ByCollection returns the replayer owning a local collection.
func (r *Registry) ByCollection(collection string) (Replayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.byCollection[collection]
	return rep, ok
}
