package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/worldgate/worldgate/pkg/world"
)

// Mutation applies changes to a world between a read and its conditional
// write. It receives a copy; the write either lands atomically at the
// expected version or fails with world.ErrVersionConflict.
type Mutation func(w *world.World)

// GetWorld returns the lifecycle record for a world. Unknown IDs yield a
// synthetic never_loaded world with version 0 without persisting anything;
// the row is created lazily by the first real transition.
func (s *GORMStore) GetWorld(ctx context.Context, worldID string) (*world.World, error) {
	var w world.World
	err := s.db.WithContext(ctx).Where("id = ?", worldID).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &world.World{
				ID:      worldID,
				Status:  world.StatusNeverLoaded,
				Version: 0,
			}, nil
		}
		return nil, err
	}
	return &w, nil
}

// CompareAndSwap applies mutate to the world identified by worldID and
// writes the result only if the stored version still equals
// expectedVersion. The new version is expectedVersion+1.
//
// expectedVersion 0 means the caller observed the synthetic never_loaded
// world; the swap then inserts the row. A concurrent first transition loses
// the insert race and observes world.ErrVersionConflict, exactly as with an
// existing row.
func (s *GORMStore) CompareAndSwap(ctx context.Context, worldID string, expectedVersion int64, mutate Mutation) (*world.World, error) {
	now := time.Now().UTC()

	if expectedVersion == 0 {
		w := &world.World{
			ID:      worldID,
			Status:  world.StatusNeverLoaded,
			Version: 1,
		}
		mutate(w)
		w.ID = worldID
		w.Version = 1
		w.UpdatedAt = now

		if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil, world.ErrVersionConflict
			}
			return nil, err
		}
		return w, nil
	}

	var current world.World
	if err := s.db.WithContext(ctx).Where("id = ?", worldID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Row vanished relative to what the caller read.
			return nil, world.ErrVersionConflict
		}
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, world.ErrVersionConflict
	}

	next := current
	mutate(&next)
	next.ID = worldID
	next.Version = expectedVersion + 1
	next.UpdatedAt = now

	// The version predicate in the WHERE clause is the linearization point:
	// losing the race means zero rows are affected, never a partial write.
	result := s.db.WithContext(ctx).
		Model(&world.World{}).
		Where("id = ? AND version = ?", worldID, expectedVersion).
		Updates(map[string]any{
			"status":            next.Status,
			"version":           next.Version,
			"bound_instance_id": next.BoundInstanceID,
			"bound_access_url":  next.BoundAccessURL,
			"tenant_key":        next.TenantKey,
			"last_error":        next.LastError,
			"save_failures":     next.SaveFailures,
			"updated_at":        next.UpdatedAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, world.ErrVersionConflict
	}

	return &next, nil
}

// ListWorldsByStatus returns all worlds currently in one of the given
// statuses. Used by the background sweeps.
func (s *GORMStore) ListWorldsByStatus(ctx context.Context, statuses ...world.Status) ([]*world.World, error) {
	var worlds []*world.World
	if err := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Find(&worlds).Error; err != nil {
		return nil, err
	}
	return worlds, nil
}

// CountWorldsByStatus returns how many worlds are in each status. Used for
// metrics.
func (s *GORMStore) CountWorldsByStatus(ctx context.Context) (map[world.Status]int64, error) {
	type row struct {
		Status world.Status
		N      int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&world.World{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[world.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
