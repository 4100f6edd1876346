package camera

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"camera-control/internal/platform/metrics"
	"camera-control/internal/remote"
)

// APIKeyHeader carries the facade credential.
const APIKeyHeader = "x-api-key"

// Handler exposes the camera control operations over HTTP using go-chi.
// It validates parameter ranges and translates core errors; the core trusts
// what it receives.
type Handler struct {
	session  *StreamSession
	registry *RecordingRegistry
	capture  *FrameCapture
	runner   Runner
	settings *Settings
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler over the core components. Metrics may be nil
// to disable metric recording (e.g. in tests).
func NewHandler(session *StreamSession, registry *RecordingRegistry, capture *FrameCapture, runner Runner, settings *Settings, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		session:  session,
		registry: registry,
		capture:  capture,
		runner:   runner,
		settings: settings,
		log:      log,
		metrics:  m,
	}
}

// APIKeyAuth returns middleware rejecting requests whose x-api-key header
// does not match key.
func APIKeyAuth(key string, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(APIKeyHeader) != key {
				log.Warn("rejected request with bad api key",
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr))
				writeJSON(w, http.StatusUnauthorized, Response{
					Success: false,
					Message: "invalid or missing API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"status":  "healthy",
		"service": "camera-control",
	})
}

// StartStream handles POST /api/stream/start. An empty body starts with the
// process-wide defaults; starting while already streaming succeeds.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req StreamStartRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}

	if err := h.session.Start(req.Options()); err != nil {
		h.log.Error("start stream failed", slog.String("error", err.Error()))
		h.upstreamError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.IncStreamsStarted()
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    h.session.Status(),
		Message: "stream started",
	})
}

// StopStream handles POST /api/stream/stop. Stopping with nothing running
// still succeeds.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Stop(); err != nil {
		h.log.Error("stop stream failed", slog.String("error", err.Error()))
		h.internalError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncStreamsStopped()
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "stream stopped"})
}

// StreamStatus handles GET /api/stream/status.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.session.Status()})
}

// Capture handles POST /api/capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}

	path, err := h.capture.CaptureFrame(r.Context(), req.Width, req.Height)
	if err != nil {
		h.log.Error("capture failed", slog.String("error", err.Error()))
		h.upstreamError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AddFramesCaptured(1)
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"frame_path": path,
			"width":      req.Width,
			"height":     req.Height,
		},
		Message: "frame captured",
	})
}

// CaptureFromStream handles POST /api/capture/stream. The batch is
// best-effort: the response always succeeds and reports the subset of
// samples that worked, which may be empty.
func (h *Handler) CaptureFromStream(w http.ResponseWriter, r *http.Request) {
	var req StreamCaptureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	interval := time.Duration(req.IntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}

	frames := h.capture.CaptureFromStream(r.Context(), req.Count, interval)
	if h.metrics != nil {
		h.metrics.AddFramesCaptured(len(frames))
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"frame_paths": frames,
			"count":       len(frames),
			"requested":   req.Count,
		},
	})
}

// CaptureForAnalysis handles POST /api/capture/analysis.
func (h *Handler) CaptureForAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}

	path, err := h.capture.CaptureForAnalysis(r.Context(), req.Width, req.Height)
	if err != nil {
		h.log.Error("analysis capture failed", slog.String("error", err.Error()))
		h.upstreamError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AddFramesCaptured(1)
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"frame_path": path},
	})
}

// ScanSurroundings handles POST /api/scan-surroundings: a best-effort batch
// of direct captures.
func (h *Handler) ScanSurroundings(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Count == 0 {
		req.Count = 5
	}

	paths := h.capture.CaptureBatch(r.Context(), req.Count)
	if h.metrics != nil {
		h.metrics.AddFramesCaptured(len(paths))
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"photo_paths": paths,
			"count":       len(paths),
		},
		Message: "scan complete",
	})
}

// StartRecording handles POST /api/record/start.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req RecordStartRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, err)
		return
	}

	id, err := h.registry.Start(req.Duration, req.Options())
	if err != nil {
		h.log.Error("start recording failed", slog.String("error", err.Error()))
		h.upstreamError(w, err)
		return
	}

	status, _ := h.registry.Status(id)
	if h.metrics != nil {
		h.metrics.IncRecordingsStarted()
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"recording_id": id,
			"status":       status,
		},
		Message: "recording started",
	})
}

// StopRecording handles POST /api/record/stop. Unknown ids are 404: the
// registry is the source of truth for what exists.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	var req RecordStopRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RecordingID == "" {
		h.badRequest(w, errors.New("recording_id is required"))
		return
	}

	if err := h.registry.Stop(req.RecordingID); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Response{
				Success: false,
				Message: err.Error(),
			})
			return
		}
		h.log.Error("stop recording failed", slog.String("error", err.Error()))
		h.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"recording_id": req.RecordingID},
		Message: "recording stopped",
	})
}

// RecordingStatus handles GET /api/record/status. With a recording_id query
// parameter it reports that recording; without, a snapshot of all of them.
func (h *Handler) RecordingStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("recording_id")
	if id == "" {
		writeJSON(w, http.StatusOK, Response{Success: true, Data: h.registry.StatusAll()})
		return
	}

	status, err := h.registry.Status(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: status})
}

// TestCamera handles POST /api/camera/test: connectivity check plus camera
// inventory.
func (h *Handler) TestCamera(w http.ResponseWriter, r *http.Request) {
	connected := true
	if err := h.runner.Ping(r.Context()); err != nil {
		h.log.Warn("camera connection test failed", slog.String("error", err.Error()))
		connected = false
	}

	info := ""
	if connected {
		var err error
		info, err = h.runner.CameraInfo(r.Context())
		if err != nil {
			h.log.Warn("camera info failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, Response{
		Success: connected,
		Data: map[string]any{
			"connection":  connected,
			"camera_info": info,
		},
		Message: "camera test completed",
	})
}

// UpdateSettings handles POST /api/camera/settings. Unknown fields are an
// explicit error, not silently accepted.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SettingsUpdate
	if err := dec.Decode(&req); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := ValidateSettings(req); err != nil {
		h.badRequest(w, err)
		return
	}

	h.settings.Apply(req)
	width, height, framerate, bitrate := h.settings.Snapshot()
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"width":     width,
			"height":    height,
			"framerate": framerate,
			"bitrate":   bitrate,
		},
		Message: "settings updated",
	})
}

// Cleanup handles POST /api/cleanup: reap recordings whose pipeline has
// exited.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n := h.registry.Reap()
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]any{"cleaned_recordings": n},
	})
}

// Playlist handles GET /stream.m3u8, serving the live playlist without auth
// so players can reach it directly.
func (h *Handler) Playlist(w http.ResponseWriter, r *http.Request) {
	path := h.session.dir.PlaylistPath()
	snap := h.session.dir.Snapshot()
	if !snap.PlaylistExists {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Message: "stream not found"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	http.ServeFile(w, r, path)
}

// decode reads a JSON body into v. An empty body is allowed and leaves v at
// its zero value, so every parameter falls back to defaults.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		h.badRequest(w, err)
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, Response{Success: false, Message: err.Error()})
}

// upstreamError maps camera and transport failures to 502 and everything
// else to 500, preserving the diagnostic text either way.
func (h *Handler) upstreamError(w http.ResponseWriter, err error) {
	var capErr *CaptureError
	var launchErr *LaunchError
	switch {
	case errors.Is(err, ErrStreamStartFailed),
		errors.Is(err, remote.ErrTimeout),
		errors.As(err, &capErr),
		errors.As(err, &launchErr):
		writeJSON(w, http.StatusBadGateway, Response{Success: false, Message: err.Error()})
	default:
		h.internalError(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
