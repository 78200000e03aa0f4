package sync

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	apperrors "github.com/atriumlabs/stayops/backend/internal/errors"
	"github.com/atriumlabs/stayops/backend/internal/logging"
	"github.com/atriumlabs/stayops/backend/internal/metrics"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/remote"
)

// LocalMutation performs the actual insert/update/delete inside the local
// transaction and returns the affected entity id.
type LocalMutation func(tx *sql.Tx) (string, error)

// RemoteMutation mirrors a write inside a remote transaction. Must be
// expressed as an upsert-by-key or delete-by-key; a reconciliation pass may
// replay the same entity concurrently.
type RemoteMutation func(ctx context.Context, tx remote.Tx, entityID string) error

// Coordinator guarantees every mutation lands in the local store and
// opportunistically mirrors it to the remote store. Remote unavailability is
// never visible to callers.
type Coordinator struct {
	local    *db.DB
	repo     *db.Repository
	remote   remote.Store
	monitor  *connectivity.Monitor
	registry *Registry
	engine   *Engine
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewCoordinator creates a Coordinator. store may be nil when no remote is
// configured; every write then stays pending for later reconciliation.
func NewCoordinator(local *db.DB, repo *db.Repository, store remote.Store,
	monitor *connectivity.Monitor, registry *Registry, reg *metrics.Registry) *Coordinator {
	return &Coordinator{
		local:    local,
		repo:     repo,
		remote:   store,
		monitor:  monitor,
		registry: registry,
		metrics:  reg,
		log:      logging.Component("coordinator"),
	}
}

// SetEngine wires the reconciliation engine so queued changes can trigger a
// prompt sync while online.
func (c *Coordinator) SetEngine(e *Engine) {
	c.engine = e
}

// ExecuteWrite executes localFn against the local store unconditionally and,
// if the remote store is currently reachable, immediately attempts the
// mirrored remote write. The local write is the only failure mode visible to
// the caller.
func (c *Coordinator) ExecuteWrite(ctx context.Context, entityType, collection string,
	op models.Operation, localFn LocalMutation, remoteFn RemoteMutation) (string, error) {

	online := c.monitor.CheckRemoteReachable(ctx)

	var entityID string
	change := &models.ChangeRecord{
		EntityType: entityType,
		Operation:  op,
		Collection: collection,
	}

	err := c.local.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := localFn(tx)
		if err != nil {
			return err
		}
		entityID = id
		change.EntityID = id

		// A deleted row has no sync_status to stamp; the change record
		// carries the delete to the remote store.
		if op != models.OperationDelete {
			if err := c.repo.MarkSyncStatusTx(tx, collection, id, models.SyncStatusPending); err != nil {
				return err
			}
		}
		return c.repo.EnqueueChangeTx(tx, change)
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrLocalWriteFailed, "local write failed", err)
	}

	mode := "offline"
	if online {
		mode = "online"
	}
	if c.metrics != nil {
		c.metrics.DualWritesTotal.WithLabelValues(string(op), mode).Inc()
	}

	if online {
		c.mirror(ctx, change, remoteFn)
	}

	return entityID, nil
}

// QueueChange records a mutation performed by a collaborator that did its own
// local write. While online, a queued change triggers a prompt background
// reconciliation instead of waiting for the next restoration event.
func (c *Coordinator) QueueChange(ctx context.Context, entityType, entityID string,
	op models.Operation, collection string, payload json.RawMessage) error {

	change := &models.ChangeRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Collection: collection,
		Payload:    payload,
	}
	if err := c.repo.EnqueueChange(change); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalWriteFailed, "failed to queue change", err)
	}

	if c.monitor.CheckRemoteReachable(ctx) && c.engine != nil {
		c.engine.TriggerAsync(TriggerQueue)
	}
	return nil
}

// mirror attempts the immediate remote write. Every failure is absorbed: the
// record stays pending and the next reconciliation pass picks it up.
func (c *Coordinator) mirror(ctx context.Context, change *models.ChangeRecord, remoteFn RemoteMutation) {
	if c.remote == nil {
		return
	}

	err := c.remote.WithTx(ctx, func(tx remote.Tx) error {
		if remoteFn != nil {
			return remoteFn(ctx, tx, change.EntityID)
		}
		rep, ok := c.registry.Lookup(change.EntityType)
		if !ok {
			return apperrors.New(apperrors.ErrUnknownEntityType,
				"no replayer registered for entity type "+change.EntityType)
		}
		if change.Operation == models.OperationDelete {
			return rep.Delete(ctx, tx, change.EntityID)
		}
		return rep.Replay(ctx, tx, change.EntityID)
	})
	if err != nil {
		c.log.Warn().Err(err).
			Str("entity_type", change.EntityType).
			Str("entity_id", change.EntityID).
			Msg("immediate remote write failed, record left pending")
		return
	}

	if err := c.repo.MarkChangeCompleted(change.ID); err != nil {
		c.log.Error().Err(err).Int64("change_id", change.ID).Msg("failed to complete change record")
		return
	}
	if change.Operation != models.OperationDelete {
		if err := c.repo.MarkSyncStatus(change.Collection, change.EntityID, models.SyncStatusSynced); err != nil {
			c.log.Error().Err(err).Str("entity_id", change.EntityID).Msg("failed to mark record synced")
		}
	}
}
