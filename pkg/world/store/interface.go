package store

import (
	"context"
	"time"

	"github.com/worldgate/worldgate/pkg/world"
)

// WorldStore is the compare-and-swap surface over world lifecycle state.
type WorldStore interface {
	GetWorld(ctx context.Context, worldID string) (*world.World, error)
	CompareAndSwap(ctx context.Context, worldID string, expectedVersion int64, mutate Mutation) (*world.World, error)
	ListWorldsByStatus(ctx context.Context, statuses ...world.Status) ([]*world.World, error)
	CountWorldsByStatus(ctx context.Context) (map[world.Status]int64, error)
}

// SnapshotStore is the append-only snapshot history surface.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, worldID string) (*world.Snapshot, error)
	AppendSnapshot(ctx context.Context, snap *world.Snapshot) error
	HasSnapshot(ctx context.Context, worldID string) (bool, error)
	ListSnapshots(ctx context.Context, worldID string) ([]*world.Snapshot, error)
}

// TransitionStore tracks in-flight transition requests for idempotency and
// abandonment detection.
type TransitionStore interface {
	CreateTransitionRequest(ctx context.Context, req *world.TransitionRequest) error
	GetTransitionRequest(ctx context.Context, requestID string) (*world.TransitionRequest, error)
	ActiveTransitionRequest(ctx context.Context, worldID string) (*world.TransitionRequest, error)
	DeleteTransitionRequest(ctx context.Context, requestID string) error
	ExpiredTransitionRequests(ctx context.Context, now time.Time) ([]*world.TransitionRequest, error)
}

// Store is the full persistence surface consumed by the lifecycle
// coordinator.
type Store interface {
	WorldStore
	SnapshotStore
	TransitionStore
}
