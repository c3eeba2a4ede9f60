package world

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle state management.
var (
	// ErrVersionConflict is returned by a compare-and-swap whose expected
	// version no longer matches the stored one. Transient: re-read and retry.
	ErrVersionConflict = errors.New("world version conflict")

	// ErrContention is returned when CAS retries are exhausted. Surfaced to
	// callers as a rate-limited condition.
	ErrContention = errors.New("world state contention: retries exhausted")

	// ErrAlreadyInProgress is returned when a transition is requested while
	// another transition holds the world. Callers should poll, not retry.
	ErrAlreadyInProgress = errors.New("a lifecycle transition is already in progress")

	// ErrSnapshotNotFound is returned when a world has no stored snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrRequestNotFound is returned when no transition request matches.
	ErrRequestNotFound = errors.New("transition request not found")

	// ErrDuplicateRequest is returned when inserting a transition request
	// for a world that already has an active one.
	ErrDuplicateRequest = errors.New("world already has an active transition request")

	// ErrInstanceNotFound is returned when the remote registry no longer
	// knows an instance.
	ErrInstanceNotFound = errors.New("instance not found")
)

// IllegalTransitionError rejects a lifecycle event that is not legal from
// the world's current status. Never retried automatically: retrying would
// not change legality.
type IllegalTransitionError struct {
	WorldID string
	Event   string
	From    Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s not permitted for world %s in status %s", e.Event, e.WorldID, e.From)
}

// NotEditableError rejects a durable edit because the world is not at rest.
// Carries the blocking status and a human-readable reason so the caller can
// explain why editing is blocked.
type NotEditableError struct {
	WorldID string
	Status  Status
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("world %s is not editable (status %s): %s", e.WorldID, e.Status, e.Status.BlockReason())
}

// ProvisionError wraps a failed instance start after retries were exhausted.
type ProvisionError struct {
	WorldID   string
	TenantKey string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision instance for world %s (tenant %s): %v", e.WorldID, e.TenantKey, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StopError wraps a failed instance stop after retries were exhausted.
type StopError struct {
	InstanceID string
	Err        error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop instance %s: %v", e.InstanceID, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// ReconcileError wraps a snapshot reconciliation failure: either the
// instance's content could not be fetched or it failed validation. The world
// stays non-editable until reconciliation succeeds.
type ReconcileError struct {
	WorldID    string
	InstanceID string
	Reason     string
	Err        error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconcile failed for world %s (instance %s): %s: %v", e.WorldID, e.InstanceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("reconcile failed for world %s (instance %s): %s", e.WorldID, e.InstanceID, e.Reason)
}

func (e *ReconcileError) Unwrap() error { return e.Err }
