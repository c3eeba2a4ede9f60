package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadyChecker reports whether the service's durable store is reachable.
// Satisfied by *store.GORMStore.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check API endpoints.
type HealthHandler struct {
	checker ReadyChecker
}

// NewHealthHandler creates a new HealthHandler. checker may be nil, in which
// case readiness degrades to liveness.
func NewHealthHandler(checker ReadyChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Liveness handles GET /health.
// Answers 200 whenever the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Readiness handles GET /health/ready.
// Answers 200 only when the world store is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		if err := h.checker.Ping(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:    "unhealthy",
				Timestamp: time.Now().UTC(),
				Error:     err.Error(),
			})
			return
		}
	}
	WriteJSONOK(w, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}
