package reconciler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

const validExport = `{
	"format": "worldstate/v1",
	"world": {"id": "w-1", "tick": 42},
	"entities": [{"id": "e-1"}, {"id": "e-2"}]
}`

type stubFetcher struct {
	payload []byte
	err     error
}

func (f *stubFetcher) FetchWorldState(_ context.Context, _ string) ([]byte, error) {
	return f.payload, f.err
}

func newTestReconciler(t *testing.T, fetcher ContentFetcher) (*Reconciler, *store.GORMStore) {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "worldgate.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	r, err := New(s, fetcher)
	require.NoError(t, err)
	return r, s
}

func TestReconcile_WritesSnapshot(t *testing.T) {
	r, s := newTestReconciler(t, &stubFetcher{payload: []byte(validExport)})
	ctx := context.Background()

	snap, err := r.Reconcile(ctx, "i-1", "w-1", "https://i-1.example.test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, Checksum([]byte(validExport)), snap.Checksum)
	assert.Equal(t, int64(len(validExport)), snap.Size)
	assert.Equal(t, "i-1", snap.SourceInstanceID)

	stored, err := s.LatestSnapshot(ctx, "w-1")
	require.NoError(t, err)

	decoded, err := r.DecodePayload(stored)
	require.NoError(t, err)
	assert.JSONEq(t, validExport, string(decoded))
}

func TestReconcile_UnchangedContentIsNoOp(t *testing.T) {
	r, s := newTestReconciler(t, &stubFetcher{payload: []byte(validExport)})
	ctx := context.Background()

	first, err := r.Reconcile(ctx, "i-1", "w-1", "u")
	require.NoError(t, err)

	second, err := r.Reconcile(ctx, "i-2", "w-1", "u")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version, "identical content must not grow the history")

	snaps, err := s.ListSnapshots(ctx, "w-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestReconcile_ChangedContentAppendsVersion(t *testing.T) {
	fetcher := &stubFetcher{payload: []byte(validExport)}
	r, _ := newTestReconciler(t, fetcher)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "i-1", "w-1", "u")
	require.NoError(t, err)

	fetcher.payload = []byte(`{
		"format": "worldstate/v1",
		"world": {"id": "w-1", "tick": 43},
		"entities": [{"id": "e-1"}]
	}`)

	snap, err := r.Reconcile(ctx, "i-1", "w-1", "u")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
}

func TestReconcile_FetchFailureLeavesHistoryUntouched(t *testing.T) {
	fetcher := &stubFetcher{payload: []byte(validExport)}
	r, s := newTestReconciler(t, fetcher)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "i-1", "w-1", "u")
	require.NoError(t, err)

	fetcher.payload = nil
	fetcher.err = errors.New("connection refused")

	_, err = r.Reconcile(ctx, "i-1", "w-1", "u")
	var recErr *world.ReconcileError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "w-1", recErr.WorldID)

	latest, err := s.LatestSnapshot(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Version)
	assert.Equal(t, Checksum([]byte(validExport)), latest.Checksum)
}

func TestReconcile_InvalidContentIsRejected(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"not json", "not json at all"},
		{"wrong format tag", `{"format":"worldstate/v2","world":{"id":"w","tick":1},"entities":[]}`},
		{"missing world", `{"format":"worldstate/v1","entities":[]}`},
		{"negative tick", `{"format":"worldstate/v1","world":{"id":"w","tick":-1},"entities":[]}`},
		{"entity without id", `{"format":"worldstate/v1","world":{"id":"w","tick":1},"entities":[{}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &stubFetcher{payload: []byte(validExport)}
			r, s := newTestReconciler(t, fetcher)
			ctx := context.Background()

			_, err := r.Reconcile(ctx, "i-1", "w-1", "u")
			require.NoError(t, err)

			fetcher.payload = []byte(tc.payload)

			_, err = r.Reconcile(ctx, "i-1", "w-1", "u")
			var recErr *world.ReconcileError
			require.ErrorAs(t, err, &recErr)

			// The valid snapshot must survive the bad capture attempt.
			latest, err := s.LatestSnapshot(ctx, "w-1")
			require.NoError(t, err)
			assert.Equal(t, Checksum([]byte(validExport)), latest.Checksum)
		})
	}
}

func TestChecksum_IsStableHex(t *testing.T) {
	a := Checksum([]byte("payload"))
	b := Checksum([]byte("payload"))
	c := Checksum([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
