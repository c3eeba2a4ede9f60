package world

import "fmt"

// Status is the lifecycle state of a world. A world is durable data that can
// be bound, on demand, to a short-lived compute instance for live use; the
// status records where the world sits in that lifecycle.
type Status string

const (
	// StatusNeverLoaded means the world has never been booted and has no
	// snapshot. This is the implicit state of any world ID the store has
	// never seen.
	StatusNeverLoaded Status = "never_loaded"

	// StatusStored means the world is safely at rest in durable storage.
	StatusStored Status = "stored"

	// StatusLoading means a boot is in flight: an instance is being
	// provisioned for this world.
	StatusLoading Status = "loading"

	// StatusActive means the world is bound to a running instance.
	StatusActive Status = "active"

	// StatusSaving means a stop is in flight: the instance is being torn
	// down and its state flushed back to durable storage.
	StatusSaving Status = "saving"

	// StatusMigrating means the world is being moved to a different tenant's
	// instance (boot against target, then stop against source).
	StatusMigrating Status = "migrating"

	// StatusError means the last transition failed in a way that needs
	// recovery (for example a heartbeat timeout on the bound instance).
	StatusError Status = "error"
)

// AllStatuses lists every valid lifecycle status.
var AllStatuses = []Status{
	StatusNeverLoaded,
	StatusStored,
	StatusLoading,
	StatusActive,
	StatusSaving,
	StatusMigrating,
	StatusError,
}

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown world status %q", s)
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Editable reports whether durable-storage edits are permitted in this
// status. Only worlds at rest may be edited; every other status represents a
// live or in-flight session that owns the world's content.
func (s Status) Editable() bool {
	return s == StatusStored || s == StatusNeverLoaded
}

// InTransition reports whether the status is an advisory in-transition state
// written before a remote call. Observing one of these means another caller
// holds the cooperative lock on the world.
func (s Status) InTransition() bool {
	return s == StatusLoading || s == StatusSaving || s == StatusMigrating
}

// BlockReason returns a human-readable explanation of why editing is blocked
// in this status. Returns "" for editable statuses.
func (s Status) BlockReason() string {
	switch s {
	case StatusLoading:
		return "the world is starting up; wait for the session to come online"
	case StatusActive:
		return "the world is open in a live session; stop the session to edit"
	case StatusSaving:
		return "the world is being saved; wait for the save to finish"
	case StatusMigrating:
		return "the world is migrating to another host; wait for the migration to finish"
	case StatusError:
		return "the world's last session ended abnormally and needs recovery"
	default:
		return ""
	}
}

func (s Status) String() string {
	return string(s)
}
