package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worldgate/worldgate/pkg/lifecycle"
	"github.com/worldgate/worldgate/pkg/world"
)

// WorldHandler handles world lifecycle API endpoints.
type WorldHandler struct {
	coordinator *lifecycle.Coordinator
	lock        *lifecycle.EditLock
}

// NewWorldHandler creates a new WorldHandler.
func NewWorldHandler(coordinator *lifecycle.Coordinator, lock *lifecycle.EditLock) *WorldHandler {
	return &WorldHandler{coordinator: coordinator, lock: lock}
}

// BootRequest is the request body for POST /api/v1/worlds/{id}/boot.
type BootRequest struct {
	TenantKey string `json:"tenant_key"`
	RequestID string `json:"request_id,omitempty"`
}

// StopRequest is the request body for POST /api/v1/worlds/{id}/stop.
type StopRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

// MigrateRequest is the request body for POST /api/v1/worlds/{id}/migrate.
type MigrateRequest struct {
	TargetTenantKey string `json:"target_tenant_key"`
	RequestID       string `json:"request_id,omitempty"`
}

// Boot handles POST /api/v1/worlds/{id}/boot.
// Binds the world to a live instance for the given tenant.
func (h *WorldHandler) Boot(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	var req BootRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TenantKey == "" {
		BadRequest(w, "tenant_key is required")
		return
	}

	res, err := h.coordinator.RequestBoot(r.Context(), worldID, req.TenantKey, req.RequestID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	WriteJSONOK(w, map[string]string{
		"instance_id":  res.InstanceID,
		"instance_url": res.InstanceURL,
	})
}

// Stop handles POST /api/v1/worlds/{id}/stop.
// Detaches the world from its instance and flushes its content to storage.
func (h *WorldHandler) Stop(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	var req StopRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.coordinator.RequestStop(r.Context(), worldID, req.RequestID); err != nil {
		writeLifecycleError(w, err)
		return
	}

	WriteJSONOK(w, map[string]bool{"ok": true})
}

// Migrate handles POST /api/v1/worlds/{id}/migrate.
// Rebinds a stored world to an instance owned by a different tenant.
func (h *WorldHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	var req MigrateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TargetTenantKey == "" {
		BadRequest(w, "target_tenant_key is required")
		return
	}

	res, err := h.coordinator.RequestMigrate(r.Context(), worldID, req.TargetTenantKey, req.RequestID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	WriteJSONOK(w, map[string]string{
		"instance_id":  res.InstanceID,
		"instance_url": res.InstanceURL,
	})
}

// Recover handles POST /api/v1/worlds/{id}/recover.
// Settles a world stuck in error or saving back at rest.
func (h *WorldHandler) Recover(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	var req StopRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.coordinator.Recover(r.Context(), worldID, req.RequestID); err != nil {
		writeLifecycleError(w, err)
		return
	}

	WriteJSONOK(w, map[string]bool{"ok": true})
}

// Get handles GET /api/v1/worlds/{id}.
// Returns the world summary including the latest snapshot metadata.
func (h *WorldHandler) Get(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	sum, err := h.coordinator.Describe(r.Context(), worldID)
	if err != nil {
		InternalServerError(w, "Failed to load world")
		return
	}

	WriteJSONOK(w, sum)
}

// Editable handles GET /api/v1/worlds/{id}/editable.
// Answers whether durable-storage edits are currently permitted.
func (h *WorldHandler) Editable(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "id")
	if worldID == "" {
		BadRequest(w, "World ID is required")
		return
	}

	e, err := h.lock.IsEditable(r.Context(), worldID)
	if err != nil {
		InternalServerError(w, "Failed to check editability")
		return
	}

	WriteJSONOK(w, e)
}

// writeLifecycleError maps domain errors onto HTTP problem responses. The
// status codes distinguish "wait and poll" (409), "back off" (429), "hard
// rejection" (423) and "upstream trouble" (502) so callers can react
// appropriately.
func writeLifecycleError(w http.ResponseWriter, err error) {
	var (
		illErr  *world.IllegalTransitionError
		editErr *world.NotEditableError
		provErr *world.ProvisionError
		stopErr *world.StopError
		recErr  *world.ReconcileError
	)

	switch {
	case errors.Is(err, world.ErrAlreadyInProgress):
		Conflict(w, err.Error())
	case errors.Is(err, world.ErrContention):
		TooManyRequests(w, err.Error())
	case errors.As(err, &illErr):
		Conflict(w, illErr.Error())
	case errors.As(err, &editErr):
		Locked(w, editErr.Error())
	case errors.As(err, &provErr), errors.As(err, &stopErr), errors.As(err, &recErr):
		BadGateway(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
