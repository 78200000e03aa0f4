// Package sync provides test doubles shared by the engine and coordinator tests.
package sync

import (
	"context"
	"database/sql"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/remote"
)

// fakeRemote is an in-memory remote store keyed by (table, id).
type fakeRemote struct {
	mu   stdsync.Mutex
	rows map[string]map[string]map[string]interface{}

	pingErr  error
	failNext int // fail this many WithTx calls with a retryable error
	txCount  int
	blockCh  chan struct{} // when set, WithTx waits on it before running
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]map[string]map[string]interface{})}
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) WithTx(ctx context.Context, fn func(tx remote.Tx) error) error {
	f.mu.Lock()
	block := f.blockCh
	f.txCount++
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return fn(&fakeTx{store: f})
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) get(table, id string) (map[string]interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[table][id]
	return row, ok
}

func (f *fakeRemote) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[table])
}

func (f *fakeRemote) setOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if online {
		f.pingErr = nil
	} else {
		f.pingErr = errors.New("connection refused")
	}
}

type fakeTx struct {
	store *fakeRemote
}

func (t *fakeTx) Upsert(ctx context.Context, table, id string, columns map[string]interface{}) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.rows[table] == nil {
		t.store.rows[table] = make(map[string]map[string]interface{})
	}
	row := make(map[string]interface{}, len(columns))
	for k, v := range columns {
		row[k] = v
	}
	t.store.rows[table][id] = row
	return nil
}

func (t *fakeTx) Delete(ctx context.Context, table, id string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	delete(t.store.rows[table], id)
	return nil
}

func (t *fakeTx) DeleteWhere(ctx context.Context, table, column string, value interface{}) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, row := range t.store.rows[table] {
		if row[column] == value {
			delete(t.store.rows[table], id)
		}
	}
	return nil
}

type alwaysReachable struct{}

func (alwaysReachable) Reachable() bool { return true }

// harness wires a real local store to the fake remote.
type harness struct {
	local   *db.DB
	repo    *db.Repository
	remote  *fakeRemote
	monitor *connectivity.Monitor
	reg     *Registry
	engine  *Engine
	coord   *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	local, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	m := db.NewMigrator(local.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := m.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repo := db.NewRepository(local.DB)
	t.Cleanup(func() { repo.Close() })

	reg := NewRegistry()
	if err := RegisterDefaults(reg, repo); err != nil {
		t.Fatalf("Failed to register replayers: %v", err)
	}
	if err := repo.ResolveSyncCapabilities(reg.Collections()); err != nil {
		t.Fatalf("Failed to resolve sync capabilities: %v", err)
	}

	fake := newFakeRemote()
	monitor := connectivity.NewMonitor(fake, alwaysReachable{}, connectivity.Config{
		CheckTimeout: time.Second,
		CacheWindow:  0,
		PollInterval: time.Hour,
	}, nil)

	engine := NewEngine(repo, fake, monitor, reg, nil, 5)
	coord := NewCoordinator(local, repo, fake, monitor, reg, nil)
	coord.SetEngine(engine)

	return &harness{
		local:   local,
		repo:    repo,
		remote:  fake,
		monitor: monitor,
		reg:     reg,
		engine:  engine,
		coord:   coord,
	}
}

// createGuest runs a guest insert through the dual-write coordinator.
func (h *harness) createGuest(t *testing.T, id, name string) {
	t.Helper()
	g := &models.Guest{ID: models.UUID(id), FullName: name}
	_, err := h.coord.ExecuteWrite(context.Background(), models.EntityTypeGuest, "guests",
		models.OperationInsert,
		func(tx *sql.Tx) (string, error) {
			return id, h.repo.InsertGuestTx(tx, g)
		}, nil)
	if err != nil {
		t.Fatalf("Failed to create guest: %v", err)
	}
}

// recordingHandler captures emitted engine events.
type recordingHandler struct {
	mu     stdsync.Mutex
	events []Event
}

func (r *recordingHandler) OnSyncEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingHandler) byType(et EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}
