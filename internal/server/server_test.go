package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/auth"
	"vigil/internal/camera"
	"vigil/internal/event"
	"vigil/internal/store"
	"vigil/internal/vision"
)

func testServer(t *testing.T, authenticator *auth.Authenticator) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "vigil.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	events := event.NewEngine(event.DefaultConfig(), nil, nil, nil)
	manager := camera.NewManager(vision.DefaultConfig(), events, nil, nil)
	return New(st, manager, events, nil, authenticator), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, result) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res result
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, res
}

func TestHealthAndStatus(t *testing.T) {
	s, _ := testServer(t, nil)
	h := s.Router()

	rec, res := doJSON(t, h, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK || res.Status != "success" {
		t.Errorf("health: code=%d res=%+v", rec.Code, res)
	}

	rec, res = doJSON(t, h, http.MethodGet, "/status", nil, "")
	if rec.Code != http.StatusOK || res.Status != "success" {
		t.Errorf("status: code=%d res=%+v", rec.Code, res)
	}
	data, ok := res.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("status data = %T", res.Data)
	}
	if _, ok := data["recording_sessions"]; !ok {
		t.Error("status missing recording_sessions")
	}
}

func TestCameraAndROILifecycle(t *testing.T) {
	s, st := testServer(t, nil)
	h := s.Router()

	if _, err := st.AddCamera("front", "rtsp://cam/stream", ""); err != nil {
		t.Fatalf("AddCamera: %v", err)
	}

	rec, res := doJSON(t, h, http.MethodGet, "/cameras", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list cameras: %d", rec.Code)
	}
	cams, ok := res.Data.([]interface{})
	if !ok || len(cams) != 1 {
		t.Fatalf("cameras data = %v", res.Data)
	}

	// Add an ROI.
	rec, res = doJSON(t, h, http.MethodPost, "/cameras/front/rois/", roiPayload{
		Name:   "gate",
		Points: [][2]int{{0, 0}, {200, 0}, {200, 200}, {0, 200}},
	}, "")
	if rec.Code != http.StatusOK || res.Status != "success" {
		t.Fatalf("add roi: code=%d res=%+v", rec.Code, res)
	}
	created := res.Data.(map[string]interface{})
	roiID := created["id"].(string)

	// List it back.
	rec, res = doJSON(t, h, http.MethodGet, "/cameras/front/rois/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list rois: %d", rec.Code)
	}
	rois := res.Data.([]interface{})
	if len(rois) != 1 {
		t.Fatalf("got %d rois, want 1", len(rois))
	}

	// Update.
	rec, _ = doJSON(t, h, http.MethodPut, "/cameras/front/rois/"+roiID, roiPayload{
		Name:   "gate-wide",
		Points: [][2]int{{0, 0}, {300, 0}, {300, 300}},
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update roi: %d", rec.Code)
	}

	// Delete.
	rec, _ = doJSON(t, h, http.MethodDelete, "/cameras/front/rois/"+roiID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete roi: %d", rec.Code)
	}
	rec, res = doJSON(t, h, http.MethodGet, "/cameras/front/rois/", nil, "")
	if rois, _ := res.Data.([]interface{}); len(rois) != 0 {
		t.Errorf("rois remain after delete: %v", res.Data)
	}
}

func TestAddROIValidation(t *testing.T) {
	s, st := testServer(t, nil)
	h := s.Router()
	st.AddCamera("front", "rtsp://cam/stream", "")

	// Too few points.
	rec, res := doJSON(t, h, http.MethodPost, "/cameras/front/rois/", roiPayload{
		Name:   "line",
		Points: [][2]int{{0, 0}, {10, 10}},
	}, "")
	if rec.Code != http.StatusBadRequest || res.Status != "error" {
		t.Errorf("degenerate roi: code=%d res=%+v", rec.Code, res)
	}

	// Missing name.
	rec, _ = doJSON(t, h, http.MethodPost, "/cameras/front/rois/", roiPayload{
		Points: [][2]int{{0, 0}, {10, 0}, {10, 10}},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("nameless roi accepted: %d", rec.Code)
	}

	// Unknown camera.
	rec, _ = doJSON(t, h, http.MethodPost, "/cameras/nope/rois/", roiPayload{
		Name:   "gate",
		Points: [][2]int{{0, 0}, {10, 0}, {10, 10}},
	}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown camera: %d", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	s, _ := testServer(t, nil)
	h := s.Router()

	// No cameras running: broadcast settings still succeed.
	rec, res := doJSON(t, h, http.MethodPost, "/settings/detector",
		map[string]interface{}{"enabled": true, "conf_threshold": 0.7}, "")
	if rec.Code != http.StatusOK || res.Status != "success" {
		t.Errorf("detector settings: code=%d res=%+v", rec.Code, res)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/settings/notifications",
		map[string]interface{}{"enabled": false}, "")
	if rec.Code != http.StatusOK {
		t.Errorf("notification settings: %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/settings/view",
		map[string]interface{}{"overlay": false}, "")
	if rec.Code != http.StatusOK {
		t.Errorf("view settings: %d", rec.Code)
	}

	// Targeting a camera that is not running fails.
	rec, _ = doJSON(t, h, http.MethodPost, "/settings/detector",
		map[string]interface{}{"camera": "ghost", "enabled": true}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("settings for missing camera: %d", rec.Code)
	}
}

func TestResolutionSettings(t *testing.T) {
	s, _ := testServer(t, nil)
	h := s.Router()

	rec, _ := doJSON(t, h, http.MethodPost, "/settings/resolution",
		map[string]interface{}{"width": 0, "height": 720}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero width accepted: %d", rec.Code)
	}

	// No running cameras: a broadcast change is a successful no-op.
	rec, _ = doJSON(t, h, http.MethodPost, "/settings/resolution",
		map[string]interface{}{"width": 640, "height": 360}, "")
	if rec.Code != http.StatusOK {
		t.Errorf("broadcast resolution: %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/settings/resolution",
		map[string]interface{}{"camera": "ghost", "width": 640, "height": 360}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("resolution for missing camera: %d", rec.Code)
	}
}

func TestAuthProtectsMutatingRoutes(t *testing.T) {
	authenticator := auth.New(auth.Config{
		Enabled:   true,
		Username:  "admin",
		Password:  "hunter2",
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
	s, _ := testServer(t, authenticator)
	h := s.Router()

	// Unauthenticated write is rejected.
	rec, _ := doJSON(t, h, http.MethodPost, "/settings/view",
		map[string]interface{}{"overlay": true}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated write: %d, want 401", rec.Code)
	}

	// Health stays open.
	rec, _ = doJSON(t, h, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("health behind auth: %d", rec.Code)
	}

	// Bad credentials.
	rec, _ = doJSON(t, h, http.MethodPost, "/login",
		map[string]string{"username": "admin", "password": "wrong"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: %d", rec.Code)
	}

	// Login and retry.
	rec, res := doJSON(t, h, http.MethodPost, "/login",
		map[string]string{"username": "admin", "password": "hunter2"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	token := res.Data.(map[string]interface{})["token"].(string)

	rec, _ = doJSON(t, h, http.MethodPost, "/settings/view",
		map[string]interface{}{"overlay": true}, token)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated write: %d", rec.Code)
	}
}
