package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for lifecycle operations.
type LogContext struct {
	RequestID string    // Idempotency key or HTTP request ID
	WorldID   string    // World being operated on
	TenantKey string    // Tenant owning the session
	Event     string    // Lifecycle event: boot, stop, migrate, sweep
	ClientIP  string    // Caller IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a world operation.
func NewLogContext(worldID string) *LogContext {
	return &LogContext{
		WorldID:   worldID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithEvent returns a copy with the lifecycle event set
func (lc *LogContext) WithEvent(event string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Event = event
	}
	return clone
}

// WithRequestID returns a copy with the request ID set
func (lc *LogContext) WithRequestID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RequestID = id
	}
	return clone
}

// WithTenant returns a copy with the tenant key set
func (lc *LogContext) WithTenant(key string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TenantKey = key
	}
	return clone
}

// DurationMillis returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMillis() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
