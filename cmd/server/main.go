package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camera-control/internal/camera"
	"camera-control/internal/fileserver"
	"camera-control/internal/platform/config"
	"camera-control/internal/platform/logger"
	"camera-control/internal/platform/metrics"
	"camera-control/internal/remote"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "5055")
	hlsPort := config.GetEnv("HLS_PORT", "8000")
	apiKey := config.GetEnv("API_KEY", "dev-secret")
	remoteHost := config.GetEnv("REMOTE_HOST", "pi@camera.local")
	outputDir := config.GetEnv("HLS_OUTPUT_DIR", "./hls_out")
	captureDir := config.GetEnv("CAPTURE_DIR", "/tmp/frames")
	recordingDir := config.GetEnv("RECORDING_DIR", "/tmp/recordings")
	ffmpegPath := config.GetEnv("FFMPEG_PATH", "ffmpeg")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	settings := camera.NewSettings(
		config.GetEnvInt("CAMERA_WIDTH", camera.DefaultWidth),
		config.GetEnvInt("CAMERA_HEIGHT", camera.DefaultHeight),
		config.GetEnvInt("CAMERA_FRAMERATE", camera.DefaultFramerate),
		config.GetEnvInt("CAMERA_BITRATE", camera.DefaultBitrate),
	)
	timing := camera.Timing{
		SettleWindow: config.GetEnvDuration("SETTLE_WINDOW", camera.DefaultSettleWindow),
		GracePeriod:  config.GetEnvDuration("GRACE_PERIOD", camera.DefaultGracePeriod),
	}
	captureTimeout := config.GetEnvDuration("CAPTURE_TIMEOUT", camera.DefaultCaptureTimeout)

	runner := remote.NewSSH(remoteHost)
	transcoder := &camera.FFmpeg{Path: ffmpegPath}
	dir := camera.NewServingDir(outputDir)
	hls := fileserver.New(":"+hlsPort, outputDir, log)

	session := camera.NewStreamSession(runner, transcoder, dir, hls, settings, timing, log)
	registry := camera.NewRecordingRegistry(runner, transcoder, recordingDir, settings, timing, log)
	capture := camera.NewFrameCapture(runner, transcoder, session, captureDir, settings, captureTimeout, log)

	if err := os.MkdirAll(recordingDir, 0o755); err != nil {
		log.Error("recording directory", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	h := camera.NewHandler(session, registry, capture, runner, settings, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/health", h.Health)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetStreamActive(session.Streaming())
			met.SetActiveRecordings(registry.Count())
		}).ServeHTTP(w, req)
	})

	// Playlist and segments are served without auth so players can reach
	// them directly; the dedicated file server remains the primary path.
	r.Get("/stream.m3u8", h.Playlist)
	r.Handle("/hls/*", http.StripPrefix("/hls/", http.FileServer(http.Dir(outputDir))))

	r.Route("/api", func(r chi.Router) {
		r.Use(camera.APIKeyAuth(apiKey, log))
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
		r.Post("/capture/analysis", h.CaptureForAnalysis)
		r.Post("/scan-surroundings", h.ScanSurroundings)
		r.Post("/camera/test", h.TestCamera)
		r.Post("/camera/settings", h.UpdateSettings)
		r.Post("/cleanup", h.Cleanup)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"hls_port", hlsPort,
		"remote_host", remoteHost,
		"output_dir", outputDir,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping pipelines")

	if err := session.Stop(); err != nil {
		log.Warn("stream stop", "error", err)
	}
	registry.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
