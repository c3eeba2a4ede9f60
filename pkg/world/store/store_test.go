package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldgate/worldgate/pkg/world"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()

	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "worldgate.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetWorld_UnknownID_ReturnsSyntheticWorld(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.GetWorld(ctx, "w-unknown")
	require.NoError(t, err)
	assert.Equal(t, "w-unknown", w.ID)
	assert.Equal(t, world.StatusNeverLoaded, w.Status)
	assert.Equal(t, int64(0), w.Version)

	// The synthetic world must not be persisted.
	var n int64
	require.NoError(t, s.DB().Model(&world.World{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestCompareAndSwap_LazyCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.CompareAndSwap(ctx, "w-1", 0, func(w *world.World) {
		w.Status = world.StatusLoading
		w.TenantKey = "guild:1"
	})
	require.NoError(t, err)
	assert.Equal(t, world.StatusLoading, w.Status)
	assert.Equal(t, int64(1), w.Version)

	got, err := s.GetWorld(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, world.StatusLoading, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "guild:1", got.TenantKey)
}

func TestCompareAndSwap_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CompareAndSwap(ctx, "w-1", 0, func(w *world.World) {
		w.Status = world.StatusLoading
	})
	require.NoError(t, err)

	// Writing with a stale version must fail without touching the row.
	_, err = s.CompareAndSwap(ctx, "w-1", 0, func(w *world.World) {
		w.Status = world.StatusActive
	})
	assert.ErrorIs(t, err, world.ErrVersionConflict)

	_, err = s.CompareAndSwap(ctx, "w-1", 7, func(w *world.World) {
		w.Status = world.StatusActive
	})
	assert.ErrorIs(t, err, world.ErrVersionConflict)

	got, err := s.GetWorld(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, world.StatusLoading, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestCompareAndSwap_SequentialTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.CompareAndSwap(ctx, "w-1", 0, func(w *world.World) {
		w.Status = world.StatusLoading
	})
	require.NoError(t, err)

	instanceID := "i-1"
	accessURL := "https://i-1.example.test"
	w, err = s.CompareAndSwap(ctx, "w-1", w.Version, func(w *world.World) {
		w.Status = world.StatusActive
		w.BoundInstanceID = &instanceID
		w.BoundAccessURL = &accessURL
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Version)
	require.NotNil(t, w.BoundInstanceID)
	assert.Equal(t, "i-1", *w.BoundInstanceID)

	w, err = s.CompareAndSwap(ctx, "w-1", w.Version, func(w *world.World) {
		w.Status = world.StatusStored
		w.BoundInstanceID = nil
		w.BoundAccessURL = nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.Version)
	assert.False(t, w.Bound())

	got, err := s.GetWorld(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, got.BoundInstanceID)
	assert.Equal(t, world.StatusStored, got.Status)
}

func TestListWorldsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, st := range []world.Status{world.StatusActive, world.StatusActive, world.StatusStored} {
		_, err := s.CompareAndSwap(ctx, string(rune('a'+i)), 0, func(w *world.World) {
			w.Status = st
		})
		require.NoError(t, err)
	}

	active, err := s.ListWorldsByStatus(ctx, world.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	both, err := s.ListWorldsByStatus(ctx, world.StatusActive, world.StatusStored)
	require.NoError(t, err)
	assert.Len(t, both, 3)

	counts, err := s.CountWorldsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[world.StatusActive])
	assert.Equal(t, int64(1), counts[world.StatusStored])
}

func TestSnapshots_AppendAssignsVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestSnapshot(ctx, "w-1")
	assert.ErrorIs(t, err, world.ErrSnapshotNotFound)

	has, err := s.HasSnapshot(ctx, "w-1")
	require.NoError(t, err)
	assert.False(t, has)

	first := &world.Snapshot{
		WorldID:          "w-1",
		Checksum:         "aaa",
		Size:             10,
		Payload:          []byte("compressed-1"),
		SourceInstanceID: "i-1",
	}
	require.NoError(t, s.AppendSnapshot(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second := &world.Snapshot{
		WorldID:          "w-1",
		Checksum:         "bbb",
		Size:             12,
		Payload:          []byte("compressed-2"),
		SourceInstanceID: "i-2",
	}
	require.NoError(t, s.AppendSnapshot(ctx, second))
	assert.Equal(t, int64(2), second.Version)

	latest, err := s.LatestSnapshot(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "bbb", latest.Checksum)
	assert.Equal(t, int64(2), latest.Version)

	has, err = s.HasSnapshot(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestListSnapshots_OmitsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSnapshot(ctx, &world.Snapshot{
		WorldID:  "w-1",
		Checksum: "aaa",
		Size:     10,
		Payload:  []byte("compressed"),
	}))

	snaps, err := s.ListSnapshots(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "aaa", snaps[0].Checksum)
	assert.Empty(t, snaps[0].Payload)
}

func TestTransitionRequests_OneActivePerWorld(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req := &world.TransitionRequest{
		RequestID:  "req-1",
		WorldID:    "w-1",
		FromStatus: world.StatusStored,
		ToStatus:   world.StatusLoading,
		ExpiresAt:  now.Add(time.Minute),
	}
	require.NoError(t, s.CreateTransitionRequest(ctx, req))

	dup := &world.TransitionRequest{
		RequestID:  "req-2",
		WorldID:    "w-1",
		FromStatus: world.StatusStored,
		ToStatus:   world.StatusLoading,
		ExpiresAt:  now.Add(time.Minute),
	}
	assert.ErrorIs(t, s.CreateTransitionRequest(ctx, dup), world.ErrDuplicateRequest)

	got, err := s.GetTransitionRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", got.WorldID)

	active, err := s.ActiveTransitionRequest(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", active.RequestID)

	require.NoError(t, s.DeleteTransitionRequest(ctx, "req-1"))
	_, err = s.ActiveTransitionRequest(ctx, "w-1")
	assert.ErrorIs(t, err, world.ErrRequestNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteTransitionRequest(ctx, "req-1"))
}

func TestExpiredTransitionRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateTransitionRequest(ctx, &world.TransitionRequest{
		RequestID: "req-old",
		WorldID:   "w-1",
		ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, s.CreateTransitionRequest(ctx, &world.TransitionRequest{
		RequestID: "req-new",
		WorldID:   "w-2",
		ExpiresAt: now.Add(time.Minute),
	}))

	expired, err := s.ExpiredTransitionRequests(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "req-old", expired[0].RequestID)
}
