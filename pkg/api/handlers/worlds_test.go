package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/worldgate/worldgate/pkg/lifecycle"
	"github.com/worldgate/worldgate/pkg/world"
	"github.com/worldgate/worldgate/pkg/world/store"
)

type fakeOrchestrator struct {
	startErr error
	starts   int
}

func (f *fakeOrchestrator) Start(_ context.Context, worldID, tenantKey string) (*world.InstanceRef, error) {
	f.starts++
	if f.startErr != nil {
		return nil, &world.ProvisionError{WorldID: worldID, TenantKey: tenantKey, Err: f.startErr}
	}
	id := fmt.Sprintf("i-%d", f.starts)
	return &world.InstanceRef{
		ID:              id,
		AccessURL:       "https://" + id + ".example.test",
		TenantKey:       tenantKey,
		Status:          "running",
		LastHeartbeatAt: time.Now().UTC(),
	}, nil
}

func (f *fakeOrchestrator) Stop(_ context.Context, _ string) error {
	return nil
}

func (f *fakeOrchestrator) GetInstance(_ context.Context, _ string) (*world.InstanceRef, error) {
	return nil, world.ErrInstanceNotFound
}

type fakeReconciler struct {
	store store.Store
	calls int
}

func (f *fakeReconciler) Reconcile(ctx context.Context, instanceID, worldID, _ string) (*world.Snapshot, error) {
	f.calls++
	snap := &world.Snapshot{
		WorldID:          worldID,
		Checksum:         fmt.Sprintf("sum-%d", f.calls),
		Size:             1,
		Payload:          []byte("z"),
		SourceInstanceID: instanceID,
	}
	if err := f.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func newTestHandler(t *testing.T) (*WorldHandler, *fakeOrchestrator) {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "worldgate.db")},
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	orch := &fakeOrchestrator{}
	coordinator := lifecycle.NewCoordinator(s, orch, &fakeReconciler{store: s}, nil, lifecycle.Config{})
	return NewWorldHandler(coordinator, lifecycle.NewEditLock(s)), orch
}

// serve routes the request through a chi router so URL parameters resolve.
func serve(h *WorldHandler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api/v1/worlds/{id}", func(r chi.Router) {
		r.Post("/boot", h.Boot)
		r.Post("/stop", h.Stop)
		r.Post("/migrate", h.Migrate)
		r.Post("/recover", h.Recover)
		r.Get("/", h.Get)
		r.Get("/editable", h.Editable)
	})

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBoot_ReturnsInstanceURL(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["instance_id"] != "i-1" {
		t.Errorf("Expected instance_id 'i-1', got '%s'", resp["instance_id"])
	}
	if resp["instance_url"] == "" {
		t.Error("Expected instance_url to be set")
	}
}

func TestBoot_MissingTenantKey_Returns400(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestBoot_ActiveWorld_Returns409(t *testing.T) {
	h, _ := newTestHandler(t)

	if w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`); w.Code != http.StatusOK {
		t.Fatalf("Boot failed: %d", w.Code)
	}

	w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
		t.Errorf("Expected problem+json content type, got '%s'", ct)
	}
}

func TestBoot_ProvisionFailure_Returns502(t *testing.T) {
	h, orch := newTestHandler(t)
	orch.startErr = errors.New("no capacity")

	w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
}

func TestStop_Lifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	if w := serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`); w.Code != http.StatusOK {
		t.Fatalf("Boot failed: %d", w.Code)
	}

	w := serve(h, "POST", "/api/v1/worlds/w-1/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// Stopping again is a no-op success.
	w = serve(h, "POST", "/api/v1/worlds/w-1/stop", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected repeat stop to succeed, got %d", w.Code)
	}
}

func TestMigrate_FromStored(t *testing.T) {
	h, _ := newTestHandler(t)

	serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`)
	serve(h, "POST", "/api/v1/worlds/w-1/stop", "")

	w := serve(h, "POST", "/api/v1/worlds/w-1/migrate", `{"target_tenant_key":"guild:2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["instance_id"] != "i-2" {
		t.Errorf("Expected instance_id 'i-2', got '%s'", resp["instance_id"])
	}
}

func TestMigrate_MissingTarget_Returns400(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "POST", "/api/v1/worlds/w-1/migrate", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGet_ReturnsSummary(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "GET", "/api/v1/worlds/w-1/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var sum lifecycle.Summary
	if err := json.NewDecoder(w.Body).Decode(&sum); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if sum.World.Status != world.StatusNeverLoaded {
		t.Errorf("Expected status never_loaded, got '%s'", sum.World.Status)
	}
}

func TestEditable_ReflectsLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "GET", "/api/v1/worlds/w-1/editable", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var e lifecycle.Editability
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !e.Editable {
		t.Error("Expected never_loaded world to be editable")
	}

	serve(h, "POST", "/api/v1/worlds/w-1/boot", `{"tenant_key":"guild:1"}`)

	w = serve(h, "GET", "/api/v1/worlds/w-1/editable", "")
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if e.Editable {
		t.Error("Expected active world to be locked")
	}
	if e.Reason == "" {
		t.Error("Expected a human-readable blocking reason")
	}
}

func TestRecover_OnHealthyWorld_Returns409(t *testing.T) {
	h, _ := newTestHandler(t)

	w := serve(h, "POST", "/api/v1/worlds/w-1/recover", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
}
