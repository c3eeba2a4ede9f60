package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/worldgate/worldgate/internal/logger"
	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

// Sweeper is the background reconciliation loop. It forces worlds whose
// bound instance stopped heartbeating into error, expires abandoned
// transition requests, and refreshes the per-status gauges.
type Sweeper struct {
	store   store.Store
	orch    Orchestrator
	metrics *Metrics
	cfg     Config
}

// NewSweeper builds a Sweeper sharing the coordinator's configuration.
// metrics may be nil.
func NewSweeper(st store.Store, orch Orchestrator, metrics *Metrics, cfg Config) *Sweeper {
	cfg.ApplyDefaults()
	return &Sweeper{store: st, orch: orch, metrics: metrics, cfg: cfg}
}

// Run executes the sweep every SweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("lifecycle sweep started",
		"interval", s.cfg.SweepInterval.String(),
		"heartbeat_timeout", s.cfg.HeartbeatTimeout.String(),
	)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("lifecycle sweep stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass of all sweep duties.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.sweepHeartbeats(ctx, now)
	s.sweepExpiredRequests(ctx, now)
	s.publishGauges(ctx)
}

// sweepHeartbeats checks every world with a live or in-flight session
// against the remote instance registry. A vanished instance or a heartbeat
// older than HeartbeatTimeout forces the world into error with the binding
// cleared; recovery then proceeds as a degenerate stop.
func (s *Sweeper) sweepHeartbeats(ctx context.Context, now time.Time) {
	if s.cfg.HeartbeatTimeout <= 0 {
		return
	}

	worlds, err := s.store.ListWorldsByStatus(ctx,
		world.StatusActive, world.StatusLoading, world.StatusSaving)
	if err != nil {
		logger.Error("heartbeat sweep could not list worlds", logger.Err(err))
		return
	}

	for _, w := range worlds {
		if !w.Bound() {
			continue
		}
		instanceID := *w.BoundInstanceID

		inst, err := s.orch.GetInstance(ctx, instanceID)
		switch {
		case err == nil:
			if !inst.HeartbeatStale(now, s.cfg.HeartbeatTimeout) {
				continue
			}
			s.forceError(ctx, w.ID, fmt.Sprintf(
				"instance %s heartbeat stale since %s", instanceID,
				inst.LastHeartbeatAt.UTC().Format(time.RFC3339)))
		case errors.Is(err, world.ErrInstanceNotFound):
			s.forceError(ctx, w.ID, fmt.Sprintf("instance %s no longer exists", instanceID))
		default:
			// Registry unreachable is not evidence the instance is dead.
			logger.Warn("heartbeat sweep could not query instance",
				logger.WorldID(w.ID), logger.InstanceID(instanceID), logger.Err(err))
		}
	}
}

// sweepExpiredRequests forces worlds whose transition request passed its
// deadline into error, unblocking future transitions. The owning operation
// either crashed or is hung past any useful timescale.
func (s *Sweeper) sweepExpiredRequests(ctx context.Context, now time.Time) {
	expired, err := s.store.ExpiredTransitionRequests(ctx, now)
	if err != nil {
		logger.Error("expiry sweep could not list requests", logger.Err(err))
		return
	}

	for _, req := range expired {
		logger.Warn("transition request expired",
			logger.RequestID(req.RequestID),
			logger.WorldID(req.WorldID),
			logger.KeyToStatus, string(req.ToStatus),
		)
		if err := s.store.DeleteTransitionRequest(ctx, req.RequestID); err != nil {
			logger.Error("failed to delete expired request",
				logger.RequestID(req.RequestID), logger.Err(err))
			continue
		}
		s.forceError(ctx, req.WorldID, fmt.Sprintf(
			"transition %s → %s abandoned (request %s expired)",
			req.FromStatus, req.ToStatus, req.RequestID))
	}
}

// forceError moves an in-transition world to error and clears its binding.
// Worlds already back at rest are left alone.
func (s *Sweeper) forceError(ctx context.Context, worldID, reason string) {
	for attempt := 0; attempt < s.cfg.CASRetries; attempt++ {
		w, err := s.store.GetWorld(ctx, worldID)
		if err != nil {
			logger.Error("sweep could not read world", logger.WorldID(worldID), logger.Err(err))
			return
		}
		if !w.Status.InTransition() && w.Status != world.StatusActive {
			return
		}

		_, err = s.store.CompareAndSwap(ctx, worldID, w.Version, func(w *world.World) {
			w.Status = world.StatusError
			w.BoundInstanceID = nil
			w.BoundAccessURL = nil
			w.LastError = &reason
		})
		if err == nil {
			s.metrics.IncSweepForcedError()
			logger.Warn("world forced into error",
				logger.WorldID(worldID), logger.KeyError, reason)
			return
		}
		if !errors.Is(err, world.ErrVersionConflict) {
			logger.Error("sweep could not update world", logger.WorldID(worldID), logger.Err(err))
			return
		}
		s.metrics.IncCASConflict()
	}
}

// publishGauges refreshes the worlds-per-status metrics.
func (s *Sweeper) publishGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	counts, err := s.store.CountWorldsByStatus(ctx)
	if err != nil {
		logger.Error("sweep could not count worlds", logger.Err(err))
		return
	}
	s.metrics.SetWorldCounts(counts)
}
