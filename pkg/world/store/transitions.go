package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/worldgate/worldgate/pkg/world"
)

// CreateTransitionRequest records a new in-flight transition. The unique
// index on world_id enforces at most one active request per world; a
// violation surfaces as world.ErrDuplicateRequest.
func (s *GORMStore) CreateTransitionRequest(ctx context.Context, req *world.TransitionRequest) error {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		if isUniqueConstraintError(err) {
			return world.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// GetTransitionRequest looks up a request by its idempotency key.
func (s *GORMStore) GetTransitionRequest(ctx context.Context, requestID string) (*world.TransitionRequest, error) {
	var req world.TransitionRequest
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, world.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ActiveTransitionRequest returns the world's current in-flight request, if
// any.
func (s *GORMStore) ActiveTransitionRequest(ctx context.Context, worldID string) (*world.TransitionRequest, error) {
	var req world.TransitionRequest
	err := s.db.WithContext(ctx).Where("world_id = ?", worldID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, world.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// DeleteTransitionRequest removes a finished or abandoned request. Deleting
// an unknown ID is a no-op.
func (s *GORMStore) DeleteTransitionRequest(ctx context.Context, requestID string) error {
	return s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Delete(&world.TransitionRequest{}).Error
}

// ExpiredTransitionRequests returns requests whose deadline passed before
// now. The sweeper forces the owning worlds to error and deletes the rows.
func (s *GORMStore) ExpiredTransitionRequests(ctx context.Context, now time.Time) ([]*world.TransitionRequest, error) {
	var reqs []*world.TransitionRequest
	if err := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
