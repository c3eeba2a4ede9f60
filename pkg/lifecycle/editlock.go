package lifecycle

import (
	"context"

	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

// Editability answers whether durable-storage edits are currently permitted
// for a world, and if not, why.
type Editability struct {
	Editable bool         `json:"editable"`
	Status   world.Status `json:"status"`
	Reason   string       `json:"reason,omitempty"`
}

// EditLock is the read-only guard content editors consult before accepting a
// durable write. It never mutates lifecycle state.
//
// The answer is only valid at the instant it is given: callers must re-check
// immediately before commit and treat a negative answer there as a hard
// rejection, since the blocking condition (a live session) is not transient
// on the caller's timescale.
type EditLock struct {
	worlds store.WorldStore
}

// NewEditLock creates an EditLock over the given world store.
func NewEditLock(worlds store.WorldStore) *EditLock {
	return &EditLock{worlds: worlds}
}

// IsEditable reports whether the world may be edited in durable storage
// right now. Editable only while the world is at rest.
func (l *EditLock) IsEditable(ctx context.Context, worldID string) (*Editability, error) {
	w, err := l.worlds.GetWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	return &Editability{
		Editable: w.Status.Editable(),
		Status:   w.Status,
		Reason:   w.Status.BlockReason(),
	}, nil
}
