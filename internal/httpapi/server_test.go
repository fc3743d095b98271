package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/liminalcommons/chora-cvm/internal/engine"
	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/storage/sqlite"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

func echoHandler(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	return map[string]any{"value": args["value"]}, nil
}

func setupServer(t *testing.T) (*Server, *sqlite.Store, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "httpapi-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(tmpDir, "cvm.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open store: %v", err)
	}

	raw, _ := json.Marshal(types.PrimitiveData{HandlerRef: "test.echo"})
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEntity(ctx, "primitive-echo", types.TypePrimitive, data); err != nil {
		t.Fatalf("failed to seed primitive: %v", err)
	}

	eng, err := engine.NewWithStore(ctx, store, map[string]registry.Handler{"test.echo": echoHandler})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	return New(eng), store, func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s, store, cleanup := setupServer(t)
	defer cleanup()

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %v", body)
	}
	if body["db"] != store.Path() {
		t.Errorf("expected db path %q, got %v", store.Path(), body["db"])
	}
}

func TestInvokePrimitive(t *testing.T) {
	s, _, cleanup := setupServer(t)
	defer cleanup()

	rec := doRequest(t, s, http.MethodPost, "/invoke/primitive-echo", `{"value": "ping"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok result, got %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["value"] != "ping" {
		t.Errorf("expected echoed value, got %v", data)
	}
}

func TestInvokeUnknownIntentIs404(t *testing.T) {
	s, _, cleanup := setupServer(t)
	defer cleanup()

	rec := doRequest(t, s, http.MethodPost, "/invoke/nonexistent", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error_kind"] != types.ErrIntentNotFound {
		t.Errorf("expected intent_not_found, got %v", body)
	}
}

func TestCapabilitiesListsSeededPrimitive(t *testing.T) {
	s, _, cleanup := setupServer(t)
	defer cleanup()

	rec := doRequest(t, s, http.MethodGet, "/capabilities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	caps, _ := body["capabilities"].([]any)
	found := false
	for _, c := range caps {
		if m, ok := c.(map[string]any); ok && m["id"] == "primitive-echo" {
			found = true
		}
	}
	if !found {
		t.Errorf("primitive-echo not listed: %v", body)
	}
}

func TestEntityRoutes(t *testing.T) {
	s, store, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveEntity(ctx, "concept-1", "concept", map[string]any{"title": "Emergence"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, http.MethodGet, "/entities/concept-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["title"] != "Emergence" {
		t.Errorf("entity data wrong: %v", body)
	}

	rec = doRequest(t, s, http.MethodGet, "/entities/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing entity, got %d", rec.Code)
	}
}

func TestSearchRoute(t *testing.T) {
	s, store, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveEntity(ctx, "concept-2", "concept", map[string]any{"title": "Resonance patterns"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, http.MethodGet, "/search?q=resonance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if count, _ := body["count"].(float64); count < 1 {
		t.Errorf("expected at least one hit, got %v", body)
	}

	rec = doRequest(t, s, http.MethodGet, "/search", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing q, got %d", rec.Code)
	}
}

func TestStateRoute(t *testing.T) {
	s, store, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	state := &types.State{
		ID:     "state-http-test",
		Status: types.StatusFulfilled,
		Data: types.StateData{
			ProtocolID:      "protocol-demo",
			ProtocolVersion: 1,
			Memory:          map[string]any{"inputs": map[string]any{}},
		},
	}
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, http.MethodGet, "/states/state-http-test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != string(types.StatusFulfilled) {
		t.Errorf("state not returned: %v", body)
	}

	rec = doRequest(t, s, http.MethodGet, "/states/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing state, got %d", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	s, _, cleanup := setupServer(t)
	defer cleanup()

	// Dispatch once so the counter family exists.
	doRequest(t, s, http.MethodPost, "/invoke/primitive-echo", `{"value": 1}`)

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cvm_dispatch_total") {
		t.Error("expected cvm_dispatch_total in metrics output")
	}
}
