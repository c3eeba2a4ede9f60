package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/worldgate/worldgate/pkg/world"
)

// LatestSnapshot returns the newest snapshot for a world, or
// world.ErrSnapshotNotFound if none has ever been captured.
func (s *GORMStore) LatestSnapshot(ctx context.Context, worldID string) (*world.Snapshot, error) {
	var snap world.Snapshot
	err := s.db.WithContext(ctx).
		Where("world_id = ?", worldID).
		Order("version DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, world.ErrSnapshotNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// AppendSnapshot stores a new snapshot as the next version in the world's
// history. History is append-only; existing rows are never modified.
func (s *GORMStore) AppendSnapshot(ctx context.Context, snap *world.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest world.Snapshot
		err := tx.Where("world_id = ?", snap.WorldID).
			Order("version DESC").
			First(&latest).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			snap.Version = 1
		case err != nil:
			return err
		default:
			snap.Version = latest.Version + 1
		}

		return tx.Create(snap).Error
	})
}

// HasSnapshot reports whether the world has at least one stored snapshot.
// Boot rollback uses this to decide between stored and never_loaded.
func (s *GORMStore) HasSnapshot(ctx context.Context, worldID string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&world.Snapshot{}).
		Where("world_id = ?", worldID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSnapshots returns a world's snapshot history, newest first, without
// payloads.
func (s *GORMStore) ListSnapshots(ctx context.Context, worldID string) ([]*world.Snapshot, error) {
	var snaps []*world.Snapshot
	if err := s.db.WithContext(ctx).
		Select("world_id", "version", "checksum", "size", "source_instance_id", "captured_at").
		Where("world_id = ?", worldID).
		Order("version DESC").
		Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}
