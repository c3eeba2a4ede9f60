package world

import (
	"time"
)

// World is the authoritative lifecycle record for one world. Status and
// BoundInstanceID are always updated together through the store's
// compare-and-swap; Version is the optimistic concurrency token that
// serializes transitions per world.
type World struct {
	ID      string `gorm:"primaryKey;size:64" json:"id"`
	Status  Status `gorm:"not null;size:20;index" json:"status"`
	Version int64  `gorm:"not null" json:"version"`

	// BoundInstanceID references the live instance currently hosting this
	// world, if any. At most one binding exists at any time.
	BoundInstanceID *string `gorm:"size:36" json:"bound_instance_id,omitempty"`

	// BoundAccessURL caches the bound instance's access URL so callers can
	// be pointed at the live session without a remote lookup.
	BoundAccessURL *string `gorm:"size:512" json:"bound_access_url,omitempty"`

	// TenantKey is the tenant that last booted this world (e.g. a
	// guild/channel composite). Informational outside of migrations.
	TenantKey string `gorm:"size:255" json:"tenant_key,omitempty"`

	// LastError records why the most recent transition failed, if it did.
	LastError *string `gorm:"type:text" json:"last_error,omitempty"`

	// SaveFailures counts consecutive reconcile failures while in saving.
	// Reset on any successful transition; used for error escalation.
	SaveFailures int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for World.
func (World) TableName() string {
	return "worlds"
}

// Bound reports whether the world currently references a live instance.
func (w *World) Bound() bool {
	return w.BoundInstanceID != nil && *w.BoundInstanceID != ""
}

// Snapshot is a durable, validated capture of a world's content. The latest
// snapshot per world is authoritative; history is append-only and only the
// reconciler writes rows.
type Snapshot struct {
	WorldID string `gorm:"primaryKey;size:64" json:"world_id"`
	Version int64  `gorm:"primaryKey;autoIncrement:false" json:"version"`

	// Checksum is the blake3 hex digest of the uncompressed content.
	Checksum string `gorm:"not null;size:64" json:"checksum"`

	// Size is the uncompressed content size in bytes.
	Size int64 `gorm:"not null" json:"size"`

	// Payload is the zstd-compressed content.
	Payload []byte `gorm:"type:blob" json:"-"`

	// SourceInstanceID records which instance the content was pulled from.
	SourceInstanceID string `gorm:"size:36" json:"source_instance_id"`

	CapturedAt time.Time `gorm:"autoCreateTime" json:"captured_at"`
}

// TableName returns the table name for Snapshot.
func (Snapshot) TableName() string {
	return "snapshots"
}

// TransitionRequest deduplicates retried lifecycle calls and detects
// abandoned in-flight transitions. At most one unexpired request exists per
// world; that uniqueness is the mutual-exclusion invariant.
type TransitionRequest struct {
	RequestID   string    `gorm:"primaryKey;size:64" json:"request_id"`
	WorldID     string    `gorm:"not null;size:64;uniqueIndex" json:"world_id"`
	FromStatus  Status    `gorm:"not null;size:20" json:"from_status"`
	ToStatus    Status    `gorm:"not null;size:20" json:"to_status"`
	RequestedAt time.Time `gorm:"autoCreateTime" json:"requested_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName returns the table name for TransitionRequest.
func (TransitionRequest) TableName() string {
	return "transition_requests"
}

// Expired reports whether the request's deadline has passed.
func (r *TransitionRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// InstanceRef is the coordinator's view of a compute instance. The instance
// registry is owned by the remote orchestration system; this struct carries
// only the fields lifecycle decisions need and is never persisted here.
type InstanceRef struct {
	ID              string    `json:"id"`
	AccessURL       string    `json:"access_url"`
	TenantKey       string    `json:"tenant_key"`
	Status          string    `json:"status"` // provisioning, running, stopping, stopped, error
	BoundWorldID    string    `json:"bound_world_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// HeartbeatStale reports whether the instance's last heartbeat is older than
// the given threshold.
func (i *InstanceRef) HeartbeatStale(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return i.LastHeartbeatAt.IsZero() || now.Sub(i.LastHeartbeatAt) > threshold
}

// AllModels returns the models registered for schema auto-migration.
func AllModels() []any {
	return []any{
		&World{},
		&Snapshot{},
		&TransitionRequest{},
	}
}
