package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"camera-control/internal/fileserver"
)

const (
	// DefaultSettleWindow is how long start waits before checking that a
	// freshly launched pipeline is still alive.
	DefaultSettleWindow = 2 * time.Second

	// DefaultGracePeriod is the bounded wait for graceful termination
	// before escalating to a forced kill.
	DefaultGracePeriod = 5 * time.Second

	serverStopTimeout = 5 * time.Second
)

// Timing bundles the settle and grace windows shared by stream and recording
// lifecycles. Zero fields fall back to the defaults.
type Timing struct {
	SettleWindow time.Duration
	GracePeriod  time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.SettleWindow <= 0 {
		t.SettleWindow = DefaultSettleWindow
	}
	if t.GracePeriod <= 0 {
		t.GracePeriod = DefaultGracePeriod
	}
	return t
}

// StreamOptions configures a live stream. Zero fields are resolved against
// the process-wide defaults.
type StreamOptions struct {
	Width           int
	Height          int
	Framerate       int
	Bitrate         int
	SegmentDuration float64
	PlaylistSize    int
}

// StreamStatus is a non-blocking view of the live stream: pipeline and file
// server liveness plus serving-directory freshness.
type StreamStatus struct {
	Streaming      bool   `json:"streaming"`
	HTTPServer     bool   `json:"http_server"`
	OutputDir      string `json:"output_dir"`
	StreamURL      string `json:"stream_url,omitempty"`
	PlaylistExists bool   `json:"playlist_exists"`
	SegmentCount   int    `json:"segment_count"`
	LatestSegment  string `json:"latest_segment,omitempty"`
}

// StreamSession owns the single live-stream pipeline and its companion file
// server. At most one pipeline is active at a time; starting while running
// is an idempotent success so a stateless facade can call it repeatedly.
type StreamSession struct {
	runner   Runner
	trans    Transcoder
	dir      *ServingDir
	server   *fileserver.Server
	settings *Settings
	timing   Timing
	log      *slog.Logger

	mu   sync.Mutex
	pipe *Pipe
}

// NewStreamSession returns a StreamSession over the given collaborators.
func NewStreamSession(runner Runner, trans Transcoder, dir *ServingDir, server *fileserver.Server, settings *Settings, timing Timing, log *slog.Logger) *StreamSession {
	return &StreamSession{
		runner:   runner,
		trans:    trans,
		dir:      dir,
		server:   server,
		settings: settings,
		timing:   timing.withDefaults(),
		log:      log,
	}
}

// Start launches the capture-and-package pipeline. If a stream is already
// running it returns nil without touching it. A pipeline that dies within
// the settle window is reported as ErrStreamStartFailed, with everything
// this call created torn back down, the remote capture process included.
func (s *StreamSession) Start(opts StreamOptions) error {
	s.mu.Lock()

	if s.pipe != nil && s.pipe.Alive() {
		s.mu.Unlock()
		s.log.Info("stream already running")
		return nil
	}
	s.pipe = nil

	opts = s.settings.ResolveStream(opts)

	if err := s.dir.Ensure(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("serving directory: %w", err)
	}

	startedServer := false
	if !s.server.Serving() {
		if err := s.server.Start(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("hls file server: %w", err)
		}
		startedServer = true
	}

	producer := s.runner.Command(StreamCaptureCommand(opts))
	consumer := s.trans.StreamCommand(s.dir, opts)

	pipe, err := StartPipe(producer, consumer)
	if err != nil {
		s.rollbackLocked(startedServer)
		s.mu.Unlock()
		return err
	}

	s.pipe = pipe
	s.mu.Unlock()

	// Settle outside the lock so status queries stay cheap while the
	// pipeline proves itself.
	select {
	case <-pipe.Done():
	case <-time.After(s.timing.SettleWindow):
	}

	if !pipe.Alive() {
		// The consumer is gone but the remote capture process may still be
		// running; terminate the whole pipeline before rolling back.
		pipe.Stop(s.timing.GracePeriod)

		s.mu.Lock()
		if s.pipe == pipe {
			s.pipe = nil
		}
		s.rollbackLocked(startedServer)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamStartFailed, pipe.Stderr())
	}

	if err := s.dir.Watch(); err != nil {
		s.log.Warn("segment watcher unavailable, status will scan",
			slog.String("error", err.Error()))
	}

	s.log.Info("stream started",
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
		slog.Int("framerate", opts.Framerate),
		slog.Int("bitrate", opts.Bitrate),
		slog.String("url", s.server.URL(s.dir.Playlist())),
	)
	return nil
}

// Stop terminates the active pipeline and the file server. Stopping with
// nothing running is a success.
func (s *StreamSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		forced := s.pipe.Stop(s.timing.GracePeriod)
		if forced {
			s.log.Warn("stream pipeline force killed")
		} else {
			s.log.Info("stream stopped")
		}
		s.pipe = nil
	}

	s.dir.Unwatch()

	ctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
	defer cancel()
	if err := s.server.Stop(ctx); err != nil {
		s.log.Warn("file server stop", slog.String("error", err.Error()))
	}
	return nil
}

// Status inspects process liveness and directory metadata. It never blocks
// on the pipeline.
func (s *StreamSession) Status() StreamStatus {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()

	snap := s.dir.Snapshot()
	status := StreamStatus{
		Streaming:      pipe != nil && pipe.Alive(),
		HTTPServer:     s.server.Serving(),
		OutputDir:      s.dir.Path,
		StreamURL:      s.server.URL(s.dir.Playlist()),
		PlaylistExists: snap.PlaylistExists,
		SegmentCount:   snap.SegmentCount,
		LatestSegment:  snap.LatestSegment,
	}
	return status
}

// Streaming reports whether the live pipeline is running.
func (s *StreamSession) Streaming() bool {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()
	return pipe != nil && pipe.Alive()
}

// PlaylistURL returns the served playlist URL, or empty when not serving.
func (s *StreamSession) PlaylistURL() string {
	return s.server.URL(s.dir.Playlist())
}

// rollbackLocked undoes a partial start. The file server is only stopped if
// this start call brought it up.
func (s *StreamSession) rollbackLocked(startedServer bool) {
	if !startedServer {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
	defer cancel()
	if err := s.server.Stop(ctx); err != nil {
		s.log.Warn("file server rollback", slog.String("error", err.Error()))
	}
}
