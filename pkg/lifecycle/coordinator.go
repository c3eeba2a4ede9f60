// Package lifecycle drives worlds through their session state machine:
// booting a world onto a compute instance, stopping and flushing it back to
// durable storage, and recovering from partial failure. Per-world mutual
// exclusion comes from the store's optimistic version token, never from an
// in-process lock held across network calls.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldgate/worldgate/internal/logger"
	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

// Orchestrator is the outbound surface the coordinator provisions and tears
// down instances through. Satisfied by *orchestrator.Client.
type Orchestrator interface {
	Start(ctx context.Context, worldID, tenantKey string) (*world.InstanceRef, error)
	Stop(ctx context.Context, instanceID string) error
	GetInstance(ctx context.Context, instanceID string) (*world.InstanceRef, error)
}

// Reconciler flushes a live instance's content into the snapshot history.
// Satisfied by *reconciler.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, instanceID, worldID, accessURL string) (*world.Snapshot, error)
}

// Config tunes the coordinator and its background sweep.
type Config struct {
	// CASRetries bounds how often a transition re-reads and retries after a
	// version conflict before surfacing ErrContention. Default: 3.
	CASRetries int `mapstructure:"cas_retries" yaml:"cas_retries"`

	// TransitionTTL is how long an in-flight transition may run before the
	// sweep declares it abandoned. Default: 2m.
	TransitionTTL time.Duration `mapstructure:"transition_ttl" yaml:"transition_ttl"`

	// SweepInterval is the period of the background sweep. Default: 30s.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// HeartbeatTimeout is how stale an instance heartbeat may be before its
	// world is forced into error. 0 disables the heartbeat check.
	// Default: 90s.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	// ReconcileEscalationThreshold is the number of consecutive reconcile
	// failures after which a saving world escalates to error. A negative
	// value keeps the world in saving indefinitely (always retryable).
	// Default: 3.
	ReconcileEscalationThreshold int `mapstructure:"reconcile_escalation_threshold" yaml:"reconcile_escalation_threshold"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.CASRetries == 0 {
		c.CASRetries = 3
	}
	if c.TransitionTTL == 0 {
		c.TransitionTTL = 2 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 90 * time.Second
	}
	if c.ReconcileEscalationThreshold == 0 {
		c.ReconcileEscalationThreshold = 3
	}
}

// BootResult points the caller at the live session hosting the world.
type BootResult struct {
	InstanceID  string `json:"instance_id"`
	InstanceURL string `json:"instance_url"`
}

// Summary is the read-only view of a world returned by status queries.
type Summary struct {
	World          *world.World    `json:"world"`
	LatestSnapshot *world.Snapshot `json:"latest_snapshot,omitempty"`
}

// operation is one in-flight lifecycle transition. Callers retrying with the
// same request ID attach to it instead of starting a second transition.
type operation struct {
	requestID string
	done      chan struct{}
	boot      *BootResult
	err       error
}

// Coordinator is the lifecycle state machine over the world store.
type Coordinator struct {
	store   store.Store
	orch    Orchestrator
	rec     Reconciler
	metrics *Metrics
	cfg     Config

	mu       sync.Mutex
	inflight map[string]*operation
}

// NewCoordinator builds a Coordinator. metrics may be nil.
func NewCoordinator(st store.Store, orch Orchestrator, rec Reconciler, metrics *Metrics, cfg Config) *Coordinator {
	cfg.ApplyDefaults()
	return &Coordinator{
		store:    st,
		orch:     orch,
		rec:      rec,
		metrics:  metrics,
		cfg:      cfg,
		inflight: make(map[string]*operation),
	}
}

// errNoTransition signals that a guarded transition found nothing to do;
// the condition it would establish already holds.
var errNoTransition = errors.New("no transition needed")

// RequestBoot binds the world to a freshly provisioned (or already running)
// instance for the given tenant. Legal from never_loaded and stored.
//
// A retried call carrying the same requestID attaches to the in-flight
// operation's result instead of starting a second boot. Passing an empty
// requestID generates one.
func (c *Coordinator) RequestBoot(ctx context.Context, worldID, tenantKey, requestID string) (*BootResult, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	op, owner := c.registerOrAttach(requestID)
	if !owner {
		logger.DebugCtx(ctx, "attaching caller to in-flight boot",
			logger.KeyWorldID, worldID, logger.KeyRequestID, requestID)
		return c.await(ctx, op)
	}

	var from world.Status
	w, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status.InTransition() {
			return nil, world.ErrAlreadyInProgress
		}
		if cur.Status != world.StatusStored && cur.Status != world.StatusNeverLoaded {
			return nil, &world.IllegalTransitionError{WorldID: worldID, Event: "boot", From: cur.Status}
		}
		from = cur.Status
		return func(w *world.World) {
			w.Status = world.StatusLoading
			w.TenantKey = tenantKey
			w.LastError = nil
		}, nil
	})
	if err != nil {
		c.finish(op, nil, err)
		return nil, err
	}

	if err := c.bindRequest(ctx, requestID, worldID, from, world.StatusLoading); err != nil {
		c.rollbackToRest(ctx, worldID, "boot", err)
		c.finish(op, nil, err)
		return nil, err
	}

	logger.InfoCtx(ctx, "boot accepted",
		logger.WorldID(worldID),
		logger.TenantKey(tenantKey),
		logger.RequestID(requestID),
		logger.Version(w.Version),
	)

	// The remote work runs on a detached context: a caller abandoning the
	// request must not abort a half-started provisioning call.
	go c.finalizeBoot(context.WithoutCancel(ctx), op, worldID, tenantKey, requestID)
	return c.await(ctx, op)
}

func (c *Coordinator) finalizeBoot(ctx context.Context, op *operation, worldID, tenantKey, requestID string) {
	start := time.Now()

	inst, err := c.orch.Start(ctx, worldID, tenantKey)
	if err != nil {
		logger.ErrorCtx(ctx, "provisioning failed, rolling back",
			logger.WorldID(worldID), logger.RequestID(requestID), logger.Err(err))
		c.rollbackToRest(ctx, worldID, "boot", err)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("boot", "failure", time.Since(start))
		c.finish(op, nil, err)
		return
	}

	_, casErr := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusLoading {
			return nil, fmt.Errorf("world %s left loading mid-boot (now %s)", worldID, cur.Status)
		}
		return func(w *world.World) {
			w.Status = world.StatusActive
			w.BoundInstanceID = &inst.ID
			w.BoundAccessURL = &inst.AccessURL
			w.TenantKey = tenantKey
			w.LastError = nil
			w.SaveFailures = 0
		}, nil
	})
	if casErr != nil {
		// The world was taken from us (abandonment sweep, most likely).
		// Tear the instance back down rather than leak it.
		logger.WarnCtx(ctx, "boot finalization lost the world, stopping instance",
			logger.WorldID(worldID), logger.InstanceID(inst.ID), logger.Err(casErr))
		_ = c.orch.Stop(ctx, inst.ID)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("boot", "failure", time.Since(start))
		c.finish(op, nil, casErr)
		return
	}

	_ = c.store.DeleteTransitionRequest(ctx, requestID)
	c.metrics.ObserveTransition("boot", "success", time.Since(start))
	logger.InfoCtx(ctx, "world active",
		logger.WorldID(worldID),
		logger.InstanceID(inst.ID),
		logger.DurationMs(float64(time.Since(start).Milliseconds())),
	)
	c.finish(op, &BootResult{InstanceID: inst.ID, InstanceURL: inst.AccessURL}, nil)
}

// RequestStop detaches the world from its instance and flushes its content
// back to durable storage. Legal from active; resumable from saving, so a
// failed save can be retried. Stopping a world already at rest is a no-op.
func (c *Coordinator) RequestStop(ctx context.Context, worldID, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	op, owner := c.registerOrAttach(requestID)
	if !owner {
		logger.DebugCtx(ctx, "attaching caller to in-flight stop",
			logger.KeyWorldID, worldID, logger.KeyRequestID, requestID)
		_, err := c.await(ctx, op)
		return err
	}

	cur, err := c.beginStop(ctx, worldID)
	if err != nil {
		if errors.Is(err, errNoTransition) {
			// Already at rest: stopping a stopped world succeeds.
			c.finish(op, nil, nil)
			return nil
		}
		c.finish(op, nil, err)
		return err
	}

	if err := c.bindRequest(ctx, requestID, worldID, world.StatusActive, world.StatusSaving); err != nil && !errors.Is(err, world.ErrDuplicateRequest) {
		c.finish(op, nil, err)
		return err
	}

	logger.InfoCtx(ctx, "stop accepted",
		logger.WorldID(worldID),
		logger.RequestID(requestID),
		logger.Version(cur.Version),
	)

	go c.finalizeStop(context.WithoutCancel(ctx), op, cur, requestID)
	_, err = c.await(ctx, op)
	return err
}

// beginStop moves the world into saving, or reports why it cannot. A world
// already in saving is returned as-is so the save can be resumed; a world
// already at rest yields errNoTransition.
func (c *Coordinator) beginStop(ctx context.Context, worldID string) (*world.World, error) {
	var resumed *world.World
	w, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		switch cur.Status {
		case world.StatusStored, world.StatusNeverLoaded:
			return nil, errNoTransition
		case world.StatusSaving:
			resumed = cur
			return nil, errNoTransition
		case world.StatusLoading, world.StatusMigrating:
			return nil, world.ErrAlreadyInProgress
		case world.StatusActive:
			return func(w *world.World) {
				w.Status = world.StatusSaving
			}, nil
		default:
			return nil, &world.IllegalTransitionError{WorldID: worldID, Event: "stop", From: cur.Status}
		}
	})
	if err != nil {
		if errors.Is(err, errNoTransition) && resumed != nil {
			return resumed, nil
		}
		return nil, err
	}
	return w, nil
}

func (c *Coordinator) finalizeStop(ctx context.Context, op *operation, cur *world.World, requestID string) {
	start := time.Now()
	worldID := cur.ID

	if !cur.Bound() {
		// Nothing live to tear down; whatever is in the snapshot history
		// stands.
		err := c.finalizeToRest(ctx, worldID)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("stop", outcome(err), time.Since(start))
		c.finish(op, nil, err)
		return
	}

	instanceID := *cur.BoundInstanceID
	accessURL := ""
	if cur.BoundAccessURL != nil {
		accessURL = *cur.BoundAccessURL
	}

	if err := c.orch.Stop(ctx, instanceID); err != nil {
		logger.ErrorCtx(ctx, "instance stop failed, world stays in saving",
			logger.WorldID(worldID), logger.InstanceID(instanceID), logger.Err(err))
		c.recordSaveFailure(ctx, worldID, err, false)
		// The operation has concluded: a world parked in saving is retryable
		// state, not an abandoned transition. Leaving the request behind
		// would let the expiry sweep force-error it.
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("stop", "failure", time.Since(start))
		c.finish(op, nil, err)
		return
	}

	snap, err := c.rec.Reconcile(ctx, instanceID, worldID, accessURL)
	if err != nil {
		logger.ErrorCtx(ctx, "reconcile failed, world stays in saving",
			logger.WorldID(worldID), logger.InstanceID(instanceID), logger.Err(err))
		c.metrics.IncReconcileFailure()
		c.recordSaveFailure(ctx, worldID, err, true)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("stop", "failure", time.Since(start))
		c.finish(op, nil, err)
		return
	}

	finErr := c.finalizeToRest(ctx, worldID)
	_ = c.store.DeleteTransitionRequest(ctx, requestID)
	c.metrics.ObserveTransition("stop", outcome(finErr), time.Since(start))
	if finErr == nil {
		logger.InfoCtx(ctx, "world stored",
			logger.WorldID(worldID),
			logger.KeySnapshotVersion, snap.Version,
			logger.DurationMs(float64(time.Since(start).Milliseconds())),
		)
	}
	c.finish(op, nil, finErr)
}

// RequestMigrate rebinds a stored world to an instance owned by a different
// tenant: boot against the target first, then stop the previous source
// instance, so the world is never without a valid host mid-move. Legal from
// stored only.
func (c *Coordinator) RequestMigrate(ctx context.Context, worldID, targetTenantKey, requestID string) (*BootResult, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	op, owner := c.registerOrAttach(requestID)
	if !owner {
		return c.await(ctx, op)
	}

	w, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status.InTransition() {
			return nil, world.ErrAlreadyInProgress
		}
		if cur.Status != world.StatusStored {
			return nil, &world.IllegalTransitionError{WorldID: worldID, Event: "migrate", From: cur.Status}
		}
		return func(w *world.World) {
			w.Status = world.StatusMigrating
			w.LastError = nil
		}, nil
	})
	if err != nil {
		c.finish(op, nil, err)
		return nil, err
	}

	if err := c.bindRequest(ctx, requestID, worldID, world.StatusStored, world.StatusMigrating); err != nil {
		c.rollbackMigrate(ctx, worldID, err)
		c.finish(op, nil, err)
		return nil, err
	}

	logger.InfoCtx(ctx, "migration accepted",
		logger.WorldID(worldID),
		logger.TenantKey(targetTenantKey),
		logger.Version(w.Version),
	)

	go c.finalizeMigrate(context.WithoutCancel(ctx), op, worldID, targetTenantKey, requestID)
	return c.await(ctx, op)
}

func (c *Coordinator) finalizeMigrate(ctx context.Context, op *operation, worldID, targetTenantKey, requestID string) {
	start := time.Now()

	// The previous host, if any, is recorded on the latest snapshot.
	sourceInstanceID := ""
	if latest, err := c.store.LatestSnapshot(ctx, worldID); err == nil {
		sourceInstanceID = latest.SourceInstanceID
	}

	inst, err := c.orch.Start(ctx, worldID, targetTenantKey)
	if err != nil {
		c.rollbackMigrate(ctx, worldID, err)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("migrate", "failure", time.Since(start))
		c.finish(op, nil, err)
		return
	}

	if sourceInstanceID != "" && sourceInstanceID != inst.ID {
		if err := c.orch.Stop(ctx, sourceInstanceID); err != nil {
			// Tear the target back down: failing the migration must not
			// leave the world bound to two instances.
			_ = c.orch.Stop(ctx, inst.ID)
			c.rollbackMigrate(ctx, worldID, err)
			_ = c.store.DeleteTransitionRequest(ctx, requestID)
			c.metrics.ObserveTransition("migrate", "failure", time.Since(start))
			c.finish(op, nil, err)
			return
		}
	}

	_, casErr := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusMigrating {
			return nil, fmt.Errorf("world %s left migrating mid-move (now %s)", worldID, cur.Status)
		}
		return func(w *world.World) {
			w.Status = world.StatusActive
			w.BoundInstanceID = &inst.ID
			w.BoundAccessURL = &inst.AccessURL
			w.TenantKey = targetTenantKey
			w.LastError = nil
			w.SaveFailures = 0
		}, nil
	})
	if casErr != nil {
		_ = c.orch.Stop(ctx, inst.ID)
		_ = c.store.DeleteTransitionRequest(ctx, requestID)
		c.metrics.ObserveTransition("migrate", "failure", time.Since(start))
		c.finish(op, nil, casErr)
		return
	}

	_ = c.store.DeleteTransitionRequest(ctx, requestID)
	c.metrics.ObserveTransition("migrate", "success", time.Since(start))
	logger.InfoCtx(ctx, "migration complete",
		logger.WorldID(worldID),
		logger.InstanceID(inst.ID),
		logger.TenantKey(targetTenantKey),
	)
	c.finish(op, &BootResult{InstanceID: inst.ID, InstanceURL: inst.AccessURL}, nil)
}

// Recover performs a degenerate stop on a world stuck in error or saving:
// reconcile against the bound instance if one is still reachable, otherwise
// let the last snapshot stand, then settle the world at rest. Legal from
// error and saving.
func (c *Coordinator) Recover(ctx context.Context, worldID, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	op, owner := c.registerOrAttach(requestID)
	if !owner {
		_, err := c.await(ctx, op)
		return err
	}

	var bound *world.World
	_, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusError && cur.Status != world.StatusSaving {
			return nil, &world.IllegalTransitionError{WorldID: worldID, Event: "recover", From: cur.Status}
		}
		bound = cur
		return func(w *world.World) {
			w.Status = world.StatusSaving
		}, nil
	})
	if err != nil {
		c.finish(op, nil, err)
		return err
	}

	// A crashed recovery must stay visible: the bound request lets the
	// expiry sweep force the world to error instead of leaving it parked in
	// saving forever. An unbound saving world is invisible to the heartbeat
	// sweep.
	if err := c.bindRequest(ctx, requestID, worldID, bound.Status, world.StatusSaving); err != nil && !errors.Is(err, world.ErrDuplicateRequest) {
		c.finish(op, nil, err)
		return err
	}

	logger.InfoCtx(ctx, "recovery accepted", logger.WorldID(worldID), logger.RequestID(requestID))

	go c.finalizeRecover(context.WithoutCancel(ctx), op, worldID, bound, requestID)
	_, err = c.await(ctx, op)
	return err
}

func (c *Coordinator) finalizeRecover(ctx context.Context, op *operation, worldID string, bound *world.World, requestID string) {
	start := time.Now()

	if bound.Bound() {
		instanceID := *bound.BoundInstanceID
		accessURL := ""
		if bound.BoundAccessURL != nil {
			accessURL = *bound.BoundAccessURL
		}

		// Best effort only: recovery exists precisely because the instance
		// may be gone. A failed reconcile here means the last snapshot
		// stands.
		if _, err := c.orch.GetInstance(ctx, instanceID); err == nil {
			if _, err := c.rec.Reconcile(ctx, instanceID, worldID, accessURL); err != nil {
				logger.WarnCtx(ctx, "recovery reconcile failed, keeping last snapshot",
					logger.WorldID(worldID), logger.InstanceID(instanceID), logger.Err(err))
			}
		}
		_ = c.orch.Stop(ctx, instanceID)
	}

	err := c.finalizeToRest(ctx, worldID)
	_ = c.store.DeleteTransitionRequest(ctx, requestID)
	c.metrics.ObserveTransition("recover", outcome(err), time.Since(start))
	if err == nil {
		logger.InfoCtx(ctx, "world recovered", logger.WorldID(worldID))
	}
	c.finish(op, nil, err)
}

// Describe returns the world summary for status queries. The latest
// snapshot, when present, is included without its payload.
func (c *Coordinator) Describe(ctx context.Context, worldID string) (*Summary, error) {
	w, err := c.store.GetWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{World: w}
	latest, err := c.store.LatestSnapshot(ctx, worldID)
	switch {
	case err == nil:
		latest.Payload = nil
		summary.LatestSnapshot = latest
	case errors.Is(err, world.ErrSnapshotNotFound):
		// no history yet
	default:
		return nil, err
	}
	return summary, nil
}

// casRetry runs one guarded transition with a bounded retry budget. decide
// inspects the freshly read world and returns either the mutation to apply
// or an error that aborts the attempt. Version conflicts re-read and
// re-decide, so a concurrent transition is observed as its outcome (for
// example ErrAlreadyInProgress), not retried blindly.
func (c *Coordinator) casRetry(ctx context.Context, worldID string, decide func(*world.World) (store.Mutation, error)) (*world.World, error) {
	for attempt := 0; attempt < c.cfg.CASRetries; attempt++ {
		cur, err := c.store.GetWorld(ctx, worldID)
		if err != nil {
			return nil, err
		}

		mutate, err := decide(cur)
		if err != nil {
			return nil, err
		}

		updated, err := c.store.CompareAndSwap(ctx, worldID, cur.Version, mutate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, world.ErrVersionConflict) {
			return nil, err
		}
		c.metrics.IncCASConflict()
	}
	return nil, world.ErrContention
}

// bindRequest persists the transition request that deduplicates retries and
// lets the sweep detect abandonment. A stale leftover for the same world is
// replaced; the world's in-transition status is the actual lock.
func (c *Coordinator) bindRequest(ctx context.Context, requestID, worldID string, from, to world.Status) error {
	req := &world.TransitionRequest{
		RequestID:  requestID,
		WorldID:    worldID,
		FromStatus: from,
		ToStatus:   to,
		ExpiresAt:  time.Now().UTC().Add(c.cfg.TransitionTTL),
	}

	err := c.store.CreateTransitionRequest(ctx, req)
	if !errors.Is(err, world.ErrDuplicateRequest) {
		return err
	}

	old, gerr := c.store.ActiveTransitionRequest(ctx, worldID)
	if gerr != nil {
		return err
	}
	if old.RequestID == requestID {
		return world.ErrDuplicateRequest
	}
	if derr := c.store.DeleteTransitionRequest(ctx, old.RequestID); derr != nil {
		return derr
	}
	return c.store.CreateTransitionRequest(ctx, req)
}

// rollbackToRest returns a world from an in-transition state to its prior
// resting state after a failed remote step, recording the failure. The
// resting state is stored when a snapshot exists, never_loaded otherwise.
func (c *Coordinator) rollbackToRest(ctx context.Context, worldID, event string, cause error) {
	hasSnap, err := c.store.HasSnapshot(ctx, worldID)
	if err != nil {
		logger.ErrorCtx(ctx, "rollback could not check snapshot history",
			logger.WorldID(worldID), logger.Err(err))
		hasSnap = false
	}

	msg := cause.Error()
	_, err = c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if !cur.Status.InTransition() {
			return nil, errNoTransition
		}
		return func(w *world.World) {
			if hasSnap {
				w.Status = world.StatusStored
			} else {
				w.Status = world.StatusNeverLoaded
			}
			w.BoundInstanceID = nil
			w.BoundAccessURL = nil
			w.LastError = &msg
		}, nil
	})
	if err != nil && !errors.Is(err, errNoTransition) {
		logger.ErrorCtx(ctx, "rollback failed",
			logger.WorldID(worldID), logger.Event(event), logger.Err(err))
	}
}

// rollbackMigrate returns a migrating world to stored with the failure
// recorded. Migration only starts from stored, so stored is always the
// right rollback target.
func (c *Coordinator) rollbackMigrate(ctx context.Context, worldID string, cause error) {
	msg := cause.Error()
	_, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusMigrating {
			return nil, errNoTransition
		}
		return func(w *world.World) {
			w.Status = world.StatusStored
			w.BoundInstanceID = nil
			w.BoundAccessURL = nil
			w.LastError = &msg
		}, nil
	})
	if err != nil && !errors.Is(err, errNoTransition) {
		logger.ErrorCtx(ctx, "migration rollback failed",
			logger.WorldID(worldID), logger.Err(err))
	}
}

// finalizeToRest settles a saving world at rest: stored when a snapshot
// exists, never_loaded otherwise. Clears the binding and failure counters.
func (c *Coordinator) finalizeToRest(ctx context.Context, worldID string) error {
	hasSnap, err := c.store.HasSnapshot(ctx, worldID)
	if err != nil {
		return err
	}

	_, err = c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusSaving {
			return nil, fmt.Errorf("world %s left saving before finalization (now %s)", worldID, cur.Status)
		}
		return func(w *world.World) {
			if hasSnap {
				w.Status = world.StatusStored
			} else {
				w.Status = world.StatusNeverLoaded
			}
			w.BoundInstanceID = nil
			w.BoundAccessURL = nil
			w.LastError = nil
			w.SaveFailures = 0
		}, nil
	})
	return err
}

// recordSaveFailure keeps a saving world in saving with the failure recorded
// so the stop stays retryable. Reconcile failures additionally count toward
// the escalation threshold; crossing it forces the world into error with the
// binding cleared, since the instance is already stopped at that point.
func (c *Coordinator) recordSaveFailure(ctx context.Context, worldID string, cause error, countsTowardEscalation bool) {
	msg := cause.Error()
	threshold := c.cfg.ReconcileEscalationThreshold

	_, err := c.casRetry(ctx, worldID, func(cur *world.World) (store.Mutation, error) {
		if cur.Status != world.StatusSaving {
			return nil, errNoTransition
		}
		return func(w *world.World) {
			w.LastError = &msg
			if !countsTowardEscalation {
				return
			}
			w.SaveFailures++
			if threshold > 0 && w.SaveFailures >= threshold {
				w.Status = world.StatusError
				w.BoundInstanceID = nil
				w.BoundAccessURL = nil
			}
		}, nil
	})
	if err != nil && !errors.Is(err, errNoTransition) {
		logger.ErrorCtx(ctx, "failed to record save failure",
			logger.WorldID(worldID), logger.Err(err))
	}
}

func (c *Coordinator) registerOrAttach(requestID string) (*operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.inflight[requestID]; ok {
		return op, false
	}
	op := &operation{requestID: requestID, done: make(chan struct{})}
	c.inflight[requestID] = op
	return op, true
}

func (c *Coordinator) finish(op *operation, boot *BootResult, err error) {
	c.mu.Lock()
	op.boot = boot
	op.err = err
	delete(c.inflight, op.requestID)
	c.mu.Unlock()
	close(op.done)
}

// await blocks until the operation concludes or the caller's context ends.
// Abandonment does not cancel the operation itself; it finishes server-side.
func (c *Coordinator) await(ctx context.Context, op *operation) (*BootResult, error) {
	select {
	case <-op.done:
		return op.boot, op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
