package camera

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"camera-control/internal/remote"
)

const testAPIKey = "test-secret"

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	runner := &fakeRunner{info: "imx708 [4608x2592]"}
	trans := &fakeTranscoder{}
	session := newTestSession(t, runner, trans)
	registry := newTestRegistry(t, runner, trans)
	capture := newTestCapture(t, runner, trans, session)
	return NewHandler(session, registry, capture, runner, NewSettings(0, 0, 0, 0), testLogger(), nil)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/stream.m3u8", h.Playlist)
	r.Route("/api", func(r chi.Router) {
		r.Use(APIKeyAuth(testAPIKey, testLogger()))
		r.Route("/stream", func(r chi.Router) {
			r.Post("/start", h.StartStream)
			r.Post("/stop", h.StopStream)
			r.Get("/status", h.StreamStatus)
		})
		r.Route("/record", func(r chi.Router) {
			r.Post("/start", h.StartRecording)
			r.Post("/stop", h.StopRecording)
			r.Get("/status", h.RecordingStatus)
		})
		r.Post("/capture", h.Capture)
		r.Post("/capture/stream", h.CaptureFromStream)
		r.Post("/camera/test", h.TestCamera)
		r.Post("/camera/settings", h.UpdateSettings)
		r.Post("/cleanup", h.Cleanup)
	})
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body string, auth bool) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set(APIKeyHeader, testAPIKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHandler_health(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, _ := doRequest(t, r, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestHandler_rejects_missing_api_key(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodGet, "/api/stream/status", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
}

func TestHandler_stream_lifecycle(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/stream/start",
		`{"width":640,"height":480,"framerate":15}`, true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("start: code=%d resp=%+v", rec.Code, resp)
	}

	rec, resp = doRequest(t, r, http.MethodGet, "/api/stream/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: code=%d", rec.Code)
	}
	data := resp.Data.(map[string]any)
	if data["streaming"] != true || data["http_server"] != true {
		t.Errorf("expected live status, got %v", data)
	}
	if data["stream_url"] == nil || data["stream_url"] == "" {
		t.Error("expected a stream_url")
	}

	rec, _ = doRequest(t, r, http.MethodPost, "/api/stream/stop", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: code=%d", rec.Code)
	}

	_, resp = doRequest(t, r, http.MethodGet, "/api/stream/status", "", true)
	if resp.Data.(map[string]any)["streaming"] != false {
		t.Error("expected streaming=false after stop")
	}
}

func TestHandler_stream_start_empty_body_uses_defaults(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/stream/start", "", true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("start with empty body: code=%d resp=%+v", rec.Code, resp)
	}
}

func TestHandler_stream_start_validation(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, _ := doRequest(t, r, http.MethodPost, "/api/stream/start", `{"width":99999}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range width, got %d", rec.Code)
	}
}

func TestHandler_record_lifecycle(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/record/start", `{"duration":60}`, true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("record start: code=%d resp=%+v", rec.Code, resp)
	}
	id := resp.Data.(map[string]any)["recording_id"].(string)
	if id == "" {
		t.Fatal("missing recording_id")
	}

	rec, resp = doRequest(t, r, http.MethodGet, "/api/record/status?recording_id="+id, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("record status: code=%d", rec.Code)
	}
	if resp.Data.(map[string]any)["is_active"] != true {
		t.Error("expected is_active=true")
	}

	rec, _ = doRequest(t, r, http.MethodPost, "/api/record/stop",
		`{"recording_id":"`+id+`"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("record stop: code=%d", rec.Code)
	}
}

func TestHandler_record_start_requires_duration(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, _ := doRequest(t, r, http.MethodPost, "/api/record/start", `{}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without duration, got %d", rec.Code)
	}
}

func TestHandler_record_stop_unknown_id(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/record/stop",
		`{"recording_id":"rec_missing"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
}

func TestHandler_record_status_all(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	doRequest(t, r, http.MethodPost, "/api/record/start", `{"duration":60}`, true)
	doRequest(t, r, http.MethodPost, "/api/record/start", `{"duration":60}`, true)

	_, resp := doRequest(t, r, http.MethodGet, "/api/record/status", "", true)
	data := resp.Data.(map[string]any)
	if data["active_recordings"] != float64(2) {
		t.Errorf("expected 2 active recordings, got %v", data["active_recordings"])
	}
}

func TestHandler_capture(t *testing.T) {
	h := newTestHandler(t)
	h.runner.(*fakeRunner).runResult.Stdout = []byte("jpeg")
	r := newTestRouter(h)

	rec, resp := doRequest(t, r, http.MethodPost, "/api/capture", `{"width":640,"height":480}`, true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("capture: code=%d resp=%+v", rec.Code, resp)
	}
	if resp.Data.(map[string]any)["frame_path"] == "" {
		t.Error("expected a frame_path")
	}
}

func TestHandler_capture_upstream_failure(t *testing.T) {
	h := newTestHandler(t)
	h.runner.(*fakeRunner).runResult = remote.Result{ExitCode: 1, Stderr: []byte("camera busy")}
	r := newTestRouter(h)

	rec, resp := doRequest(t, r, http.MethodPost, "/api/capture", `{}`, true)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for camera failure, got %d", rec.Code)
	}
	if !strings.Contains(resp.Message, "camera busy") {
		t.Errorf("diagnostic text dropped: %q", resp.Message)
	}
}

func TestHandler_capture_from_stream_without_stream(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	// Best-effort contract: no stream means an empty batch, not an error.
	rec, resp := doRequest(t, r, http.MethodPost, "/api/capture/stream",
		`{"count":3,"interval_seconds":0.01}`, true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("capture/stream: code=%d resp=%+v", rec.Code, resp)
	}
	if resp.Data.(map[string]any)["count"] != float64(0) {
		t.Errorf("expected 0 captured frames, got %v", resp.Data)
	}
}

func TestHandler_camera_test(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/camera/test", "", true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("camera test: code=%d resp=%+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["connection"] != true {
		t.Error("expected connection=true")
	}
	if !strings.Contains(data["camera_info"].(string), "imx708") {
		t.Errorf("expected camera inventory, got %v", data["camera_info"])
	}
}

func TestHandler_update_settings(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	rec, resp := doRequest(t, r, http.MethodPost, "/api/camera/settings",
		`{"width":1280,"height":720}`, true)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("settings: code=%d resp=%+v", rec.Code, resp)
	}

	w, hgt, _, _ := h.settings.Snapshot()
	if w != 1280 || hgt != 720 {
		t.Errorf("settings not applied: %dx%d", w, hgt)
	}
}

func TestHandler_update_settings_rejects_unknown_keys(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, _ := doRequest(t, r, http.MethodPost, "/api/camera/settings",
		`{"width":1280,"zoom":4}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown setting key, got %d", rec.Code)
	}
}

func TestHandler_cleanup(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, resp := doRequest(t, r, http.MethodPost, "/api/cleanup", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup: code=%d", rec.Code)
	}
	if resp.Data.(map[string]any)["cleaned_recordings"] != float64(0) {
		t.Errorf("expected 0 cleaned recordings, got %v", resp.Data)
	}
}

func TestHandler_playlist_not_found(t *testing.T) {
	r := newTestRouter(newTestHandler(t))

	rec, _ := doRequest(t, r, http.MethodGet, "/stream.m3u8", "", false)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a playlist, got %d", rec.Code)
	}
}
