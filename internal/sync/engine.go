package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	apperrors "github.com/atriumlabs/stayops/backend/internal/errors"
	"github.com/atriumlabs/stayops/backend/internal/logging"
	"github.com/atriumlabs/stayops/backend/internal/metrics"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/remote"
)

// Trigger identifies what started a reconciliation pass.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerRestored Trigger = "restored"
	TriggerQueue    Trigger = "queue"
	TriggerPeriodic Trigger = "periodic"
)

// Status values reported through sync-status-changed notifications.
const (
	StatusIdle           = "idle"
	StatusSyncing        = "syncing"
	StatusIdleWithErrors = "idle_with_errors"
)

// asyncTimeout bounds a background reconciliation pass.
const asyncTimeout = 5 * time.Minute

// Result summarizes one reconciliation pass.
type Result struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	PushedCount int      `json:"pushed_count"`
	Errors      []string `json:"errors,omitempty"`
}

// Engine is the reconciliation processor. It drains the change queue and any
// record flagged pending directly in its table, replaying each as an
// idempotent upsert or delete against the remote store.
type Engine struct {
	repo       *db.Repository
	remote     remote.Store
	monitor    *connectivity.Monitor
	registry   *Registry
	metrics    *metrics.Registry
	log        zerolog.Logger
	retryLimit int

	notifier notifier

	// runMu is the single-flight guard shared by every entry point. A second
	// trigger while a pass is active is a no-op, never queued for later.
	runMu   sync.Mutex
	syncing bool
	stateMu sync.Mutex

	lastSyncMu sync.Mutex
	lastSync   *time.Time

	loopMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewEngine creates an Engine. store may be nil when no remote is configured;
// every pass then reports not-reachable.
func NewEngine(repo *db.Repository, store remote.Store, monitor *connectivity.Monitor,
	registry *Registry, reg *metrics.Registry, retryLimit int) *Engine {
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &Engine{
		repo:       repo,
		remote:     store,
		monitor:    monitor,
		registry:   registry,
		metrics:    reg,
		log:        logging.Component("sync-engine"),
		retryLimit: retryLimit,
	}
}

// AddEventHandler registers a handler for engine notifications.
func (e *Engine) AddEventHandler(h EventHandler) {
	e.notifier.add(h)
}

// OnConnectivityChanged forwards monitor transitions as engine events and
// starts a reconciliation pass once per offline-to-online restoration.
func (e *Engine) OnConnectivityChanged(remoteReachable bool) {
	e.notifier.emit(Event{Type: EventConnectivityChanged, RemoteReachable: remoteReachable})
	if remoteReachable {
		e.TriggerAsync(TriggerRestored)
	}
}

// IsSyncing reports whether a reconciliation pass is currently running.
func (e *Engine) IsSyncing() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.syncing
}

// LastSync returns the completion time of the last successful pass.
func (e *Engine) LastSync() *time.Time {
	e.lastSyncMu.Lock()
	defer e.lastSyncMu.Unlock()
	return e.lastSync
}

// GetPendingChangeCount returns the number of change records awaiting replay.
func (e *Engine) GetPendingChangeCount() (int, error) {
	return e.repo.CountPendingChanges()
}

// TriggerAsync starts a background pass bounded by asyncTimeout. If a pass is
// already running the new trigger is dropped. The pass is tracked so Stop
// waits for it before the stores are closed.
func (e *Engine) TriggerAsync(trigger Trigger) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		e.syncAll(ctx, trigger)
	}()
}

// SyncAll drains the change queue and every pending row against the remote
// store. Concurrent calls return immediately with a sync-already-in-progress
// result.
func (e *Engine) SyncAll(ctx context.Context) Result {
	return e.syncAll(ctx, TriggerManual)
}

func (e *Engine) syncAll(ctx context.Context, trigger Trigger) Result {
	if !e.runMu.TryLock() {
		return Result{Success: false, Message: "sync already in progress"}
	}
	defer e.runMu.Unlock()

	e.setSyncing(true)
	defer e.setSyncing(false)

	if e.remote == nil || !e.monitor.CheckRemoteReachable(ctx) {
		e.countRun(trigger, "not_reachable")
		return Result{Success: false, Message: "remote store not reachable"}
	}

	e.log.Info().Str("trigger", string(trigger)).Msg("reconciliation pass started")
	e.emitStatus(StatusSyncing)
	start := time.Now()

	result := Result{}

	e.drainQueue(ctx, &result)
	e.scanTables(ctx, &result)

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.SyncDuration.Observe(duration.Seconds())
		if count, err := e.repo.CountPendingChanges(); err == nil {
			e.metrics.PendingChanges.Set(float64(count))
		}
	}

	if len(result.Errors) == 0 {
		result.Success = true
		result.Message = fmt.Sprintf("pushed %d changes", result.PushedCount)
		now := time.Now()
		e.lastSyncMu.Lock()
		e.lastSync = &now
		e.lastSyncMu.Unlock()
		e.countRun(trigger, "success")
		e.emitStatus(StatusIdle)
	} else {
		result.Message = fmt.Sprintf("pushed %d changes, %d errors", result.PushedCount, len(result.Errors))
		e.countRun(trigger, "errors")
		e.emitStatus(StatusIdleWithErrors)
	}

	e.log.Info().
		Str("trigger", string(trigger)).
		Int("pushed", result.PushedCount).
		Int("errors", len(result.Errors)).
		Dur("duration", duration).
		Msg("reconciliation pass completed")

	e.notifier.emit(Event{Type: EventSyncCompleted, Result: &result})
	return result
}

// drainQueue is pass A: replay pending change records in FIFO order,
// preserving the causal order of mutations to the same entity.
func (e *Engine) drainQueue(ctx context.Context, result *Result) {
	changes, err := e.repo.ListPendingChanges()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list pending changes: %v", err))
		return
	}

	for i := range changes {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, "pass cancelled: "+ctx.Err().Error())
			return
		default:
		}
		e.processChange(ctx, &changes[i], result)
	}
}

// processChange replays one change record and applies its status transition.
func (e *Engine) processChange(ctx context.Context, change *models.ChangeRecord, result *Result) {
	rep, ok := e.registry.Lookup(change.EntityType)
	if !ok {
		// Configuration gap: the type was never registered. Non-retryable.
		errText := "no replayer registered for entity type " + change.EntityType
		e.log.Error().
			Int64("change_id", change.ID).
			Str("entity_type", change.EntityType).
			Msg("unknown entity type, change failed permanently")
		e.failChange(change, errText, result)
		e.countReplay(change.EntityType, "unknown_type")
		return
	}

	err := e.remote.WithTx(ctx, func(tx remote.Tx) error {
		if change.Operation == models.OperationDelete {
			return rep.Delete(ctx, tx, change.EntityID)
		}
		return rep.Replay(ctx, tx, change.EntityID)
	})

	if err == nil {
		if markErr := e.repo.MarkChangeCompleted(change.ID); markErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("change %d: %v", change.ID, markErr))
			return
		}
		if change.Operation != models.OperationDelete {
			if markErr := e.repo.MarkSyncStatus(change.Collection, change.EntityID, models.SyncStatusSynced); markErr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("change %d: %v", change.ID, markErr))
				return
			}
		}
		result.PushedCount++
		e.countReplay(change.EntityType, "success")
		return
	}

	if !apperrors.Retryable(err) {
		e.failChange(change, err.Error(), result)
		e.countReplay(change.EntityType, "failed")
		return
	}

	count, incErr := e.repo.IncrementChangeRetry(change.ID, err.Error())
	if incErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("change %d: %v", change.ID, incErr))
		return
	}
	if count >= e.retryLimit {
		e.log.Warn().
			Int64("change_id", change.ID).
			Str("entity_id", change.EntityID).
			Int("retries", count).
			Msg("retry ceiling reached, change failed permanently")
		e.failChange(change, err.Error(), result)
		e.countReplay(change.EntityType, "failed")
		return
	}

	result.Errors = append(result.Errors, fmt.Sprintf("change %d (%s %s): %v",
		change.ID, change.EntityType, change.EntityID, err))
	e.countReplay(change.EntityType, "retry")
}

// failChange marks a change record, and its source record, permanently
// failed. Recovery requires operator re-queuing; the engine never auto-retries.
func (e *Engine) failChange(change *models.ChangeRecord, errText string, result *Result) {
	if err := e.repo.MarkChangeFailed(change.ID, errText); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("change %d: %v", change.ID, err))
	}
	if change.Operation != models.OperationDelete {
		if err := e.repo.MarkSyncStatus(change.Collection, change.EntityID, models.SyncStatusFailed); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("change %d: %v", change.ID, err))
		}
	}
	result.Errors = append(result.Errors, fmt.Sprintf("change %d (%s %s) failed permanently: %s",
		change.ID, change.EntityType, change.EntityID, errText))
}

// scanTables is pass B: a defensive scan of every registered collection for
// rows left pending without a queue entry.
func (e *Engine) scanTables(ctx context.Context, result *Result) {
	for _, collection := range e.registry.Collections() {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, "pass cancelled: "+ctx.Err().Error())
			return
		default:
		}

		rep, _ := e.registry.ByCollection(collection)
		ids, err := e.repo.ListPendingIDs(collection)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scan %s: %v", collection, err))
			continue
		}

		for _, id := range ids {
			err := e.remote.WithTx(ctx, func(tx remote.Tx) error {
				return rep.Replay(ctx, tx, id)
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("scan %s %s: %v", collection, id, err))
				e.countReplay(rep.EntityType(), "retry")
				continue
			}
			if err := e.repo.MarkSyncStatus(collection, id, models.SyncStatusSynced); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("scan %s %s: %v", collection, id, err))
				continue
			}
			result.PushedCount++
			e.countReplay(rep.EntityType(), "success")
		}
	}
}

// RetryFailed resets all permanently failed change records to pending and,
// while online, starts a background pass. Operator intervention surface.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	failed, err := e.repo.ListChangesByStatus(models.ChangeStatusFailed, 1000)
	if err != nil {
		return 0, err
	}

	for i := range failed {
		change := &failed[i]
		if change.Operation == models.OperationDelete {
			continue
		}
		if err := e.repo.MarkSyncStatus(change.Collection, change.EntityID, models.SyncStatusPending); err != nil {
			return 0, err
		}
	}

	count, err := e.repo.RetryFailedChanges()
	if err != nil {
		return 0, err
	}

	if count > 0 && e.monitor.CheckRemoteReachable(ctx) {
		e.TriggerAsync(TriggerManual)
	}
	return count, nil
}

// Start launches the periodic reconciliation loop. interval <= 0 disables it.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	e.loopMu.Lock()
	if e.running {
		e.loopMu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.loopMu.Unlock()

	e.wg.Add(1)
	go e.periodicLoop(ctx, interval)

	e.log.Info().Dur("interval", interval).Msg("periodic reconciliation started")
}

// Stop stops the periodic loop and waits for it and any background pass to
// exit. An in-flight pass is allowed to finish.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	if e.running {
		e.running = false
		close(e.stopCh)
	}
	e.loopMu.Unlock()

	e.wg.Wait()
	e.log.Info().Msg("reconciliation engine stopped")
}

func (e *Engine) periodicLoop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.IsSyncing() {
				continue
			}
			e.TriggerAsync(TriggerPeriodic)
		}
	}
}

func (e *Engine) setSyncing(v bool) {
	e.stateMu.Lock()
	e.syncing = v
	e.stateMu.Unlock()
}

func (e *Engine) emitStatus(status string) {
	e.notifier.emit(Event{Type: EventSyncStatusChanged, Status: status})
}

func (e *Engine) countRun(trigger Trigger, outcome string) {
	if e.metrics != nil {
		e.metrics.SyncRunsTotal.WithLabelValues(string(trigger), outcome).Inc()
	}
}

func (e *Engine) countReplay(entityType, outcome string) {
	if e.metrics != nil {
		e.metrics.ReplaysTotal.WithLabelValues(entityType, outcome).Inc()
	}
}
