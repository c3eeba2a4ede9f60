package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so lifecycle events can be aggregated and queried
// per world, tenant, and instance.
const (
	// Lifecycle identity
	KeyWorldID    = "world_id"    // World identifier
	KeyTenantKey  = "tenant_key"  // Tenant (e.g. guild/channel composite) owning the session
	KeyInstanceID = "instance_id" // Compute instance identifier
	KeyRequestID  = "request_id"  // Idempotency key / HTTP request ID

	// State machine
	KeyStatus     = "status"      // Current world status
	KeyFromStatus = "from_status" // Transition source status
	KeyToStatus   = "to_status"   // Transition target status
	KeyEvent      = "event"       // Lifecycle event: boot, stop, migrate, sweep
	KeyVersion    = "version"     // Optimistic concurrency version

	// Remote calls
	KeyEndpoint   = "endpoint"    // Orchestrator endpoint URL
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeyHTTPStatus = "http_status" // Remote HTTP status code

	// Snapshots
	KeySnapshotVersion = "snapshot_version" // Snapshot version number
	KeyChecksum        = "checksum"         // Snapshot content checksum
	KeySize            = "size"             // Payload size in bytes

	// Operation metadata
	KeyClientIP   = "client_ip"   // Caller IP address
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// Field constructors for type safety.

// WorldID returns a slog.Attr for a world identifier.
func WorldID(id string) slog.Attr {
	return slog.String(KeyWorldID, id)
}

// TenantKey returns a slog.Attr for a tenant key.
func TenantKey(key string) slog.Attr {
	return slog.String(KeyTenantKey, key)
}

// InstanceID returns a slog.Attr for an instance identifier.
func InstanceID(id string) slog.Attr {
	return slog.String(KeyInstanceID, id)
}

// RequestID returns a slog.Attr for a request identifier.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Event returns a slog.Attr for a lifecycle event name.
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// Status returns a slog.Attr for a world status.
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// Version returns a slog.Attr for an optimistic concurrency version.
func Version(v int64) slog.Attr {
	return slog.Int64(KeyVersion, v)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
