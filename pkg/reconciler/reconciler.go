// Package reconciler pulls live-instance state back into durable storage
// when a session ends. It validates what it fetched before anything is
// written: the system prefers stale-but-valid snapshots over
// corrupt-but-fresh ones.
package reconciler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"

	"github.com/worldgate/worldgate/internal/logger"
	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

// ContentFetcher pulls the exported state from a live instance. Satisfied by
// *orchestrator.Client.
type ContentFetcher interface {
	FetchWorldState(ctx context.Context, accessURL string) ([]byte, error)
}

// Reconciler validates and persists world snapshots.
type Reconciler struct {
	snapshots store.SnapshotStore
	fetcher   ContentFetcher
	schema    *jsonschema.Schema
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// New creates a Reconciler writing to the given snapshot store.
func New(snapshots store.SnapshotStore, fetcher ContentFetcher) (*Reconciler, error) {
	schema, err := jsonschema.CompileString("worldstate.schema.json", worldStateSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile world state schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Reconciler{
		snapshots: snapshots,
		fetcher:   fetcher,
		schema:    schema,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Reconcile fetches the instance's current content, validates it, and writes
// a new snapshot if the content changed since the latest stored one.
// Identical content is an idempotent no-op returning the existing snapshot.
//
// On fetch or validation failure the stored history is left untouched and a
// *world.ReconcileError is returned so the coordinator keeps the world in
// saving/error instead of declaring it safely stored.
func (r *Reconciler) Reconcile(ctx context.Context, instanceID, worldID, accessURL string) (*world.Snapshot, error) {
	payload, err := r.fetcher.FetchWorldState(ctx, accessURL)
	if err != nil {
		return nil, &world.ReconcileError{
			WorldID:    worldID,
			InstanceID: instanceID,
			Reason:     "failed to fetch instance content",
			Err:        err,
		}
	}

	if err := r.Validate(payload); err != nil {
		return nil, &world.ReconcileError{
			WorldID:    worldID,
			InstanceID: instanceID,
			Reason:     "content failed validation",
			Err:        err,
		}
	}

	checksum := Checksum(payload)

	latest, err := r.snapshots.LatestSnapshot(ctx, worldID)
	switch {
	case err == nil:
		if latest.Checksum == checksum {
			logger.DebugCtx(ctx, "snapshot content unchanged, skipping write",
				logger.KeyWorldID, worldID,
				logger.KeyChecksum, checksum,
			)
			return latest, nil
		}
	case !errors.Is(err, world.ErrSnapshotNotFound):
		return nil, err
	}

	snap := &world.Snapshot{
		WorldID:          worldID,
		Checksum:         checksum,
		Size:             int64(len(payload)),
		Payload:          r.encoder.EncodeAll(payload, nil),
		SourceInstanceID: instanceID,
	}
	if err := r.snapshots.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "snapshot captured",
		logger.KeyWorldID, worldID,
		logger.KeyInstanceID, instanceID,
		logger.KeySnapshotVersion, snap.Version,
		logger.KeyChecksum, checksum,
		logger.KeySize, snap.Size,
	)
	return snap, nil
}

// Validate checks that payload is a non-empty, structurally well-formed
// worldstate/v1 export.
func (r *Reconciler) Validate(payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("content is empty")
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("content is not valid JSON: %w", err)
	}

	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("content does not match worldstate/v1: %w", err)
	}
	return nil
}

// DecodePayload decompresses a snapshot's stored payload back into the
// original exported content.
func (r *Reconciler) DecodePayload(snap *world.Snapshot) ([]byte, error) {
	return r.decoder.DecodeAll(snap.Payload, nil)
}

// Checksum returns the blake3 hex digest of uncompressed content.
func Checksum(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
