package camera

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"camera-control/internal/fileserver"
)

func TestStreamSession_start_and_status(t *testing.T) {
	session := newTestSession(t, &fakeRunner{}, &fakeTranscoder{})

	if err := session.Start(StreamOptions{Width: 640, Height: 480, Framerate: 15}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status := session.Status()
	if !status.Streaming {
		t.Error("expected streaming=true")
	}
	if !status.HTTPServer {
		t.Error("expected http_server=true")
	}
	if status.StreamURL == "" {
		t.Error("expected a stream URL")
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status = session.Status()
	if status.Streaming {
		t.Error("expected streaming=false after Stop")
	}
	if status.HTTPServer {
		t.Error("expected http_server=false after Stop")
	}
}

func TestStreamSession_start_is_idempotent(t *testing.T) {
	session := newTestSession(t, &fakeRunner{}, &fakeTranscoder{})

	if err := session.Start(StreamOptions{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	first := session.pipe

	// Repeated starts succeed and leave the active pipeline untouched.
	for i := 0; i < 3; i++ {
		if err := session.Start(StreamOptions{}); err != nil {
			t.Fatalf("Start %d while running: %v", i, err)
		}
	}
	if session.pipe != first {
		t.Error("active pipe identity changed by an idempotent start")
	}
}

func TestStreamSession_stop_with_nothing_running(t *testing.T) {
	session := newTestSession(t, &fakeRunner{}, &fakeTranscoder{})

	if err := session.Stop(); err != nil {
		t.Errorf("Stop with nothing running should succeed, got %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Errorf("repeated Stop should succeed, got %v", err)
	}
}

func TestStreamSession_start_failure_leaves_no_resources(t *testing.T) {
	trans := &fakeTranscoder{streamScript: "echo broken pipeline >&2; exit 1"}
	session := newTestSession(t, &fakeRunner{streamScript: "printf x"}, trans)

	err := session.Start(StreamOptions{})
	if !errors.Is(err, ErrStreamStartFailed) {
		t.Fatalf("expected ErrStreamStartFailed, got %v", err)
	}

	status := session.Status()
	if status.Streaming {
		t.Error("failed start left an active pipe")
	}
	if status.HTTPServer {
		t.Error("failed start left the file server running")
	}
}

func TestStreamSession_start_failure_stops_producer(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "producer.pid")
	runner := &fakeRunner{streamScript: fmt.Sprintf("echo $$ > %s; exec sleep 60", marker)}
	trans := &fakeTranscoder{streamScript: "exit 1"}
	session := newTestSession(t, runner, trans)

	if err := session.Start(StreamOptions{}); !errors.Is(err, ErrStreamStartFailed) {
		t.Fatalf("expected ErrStreamStartFailed, got %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("producer never recorded its pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("bad pid marker %q: %v", data, err)
	}

	// The consumer died on its own; the remote capture side must have been
	// terminated by the failed start, not left running.
	waitFor(t, 2*time.Second, func() bool {
		return syscall.Kill(pid, 0) != nil
	}, "producer process to be terminated after failed start")
}

func TestStreamSession_status_not_blocked_by_settling_start(t *testing.T) {
	runner := &fakeRunner{}
	trans := &fakeTranscoder{}
	log := testLogger()
	dir := NewServingDir(t.TempDir())
	server := fileserver.New("127.0.0.1:0", dir.Path, log)
	timing := Timing{SettleWindow: time.Second, GracePeriod: 2 * time.Second}
	session := NewStreamSession(runner, trans, dir, server, NewSettings(0, 0, 0, 0), timing, log)
	t.Cleanup(func() { _ = session.Stop() })

	started := make(chan error, 1)
	go func() { started <- session.Start(StreamOptions{}) }()

	waitFor(t, 2*time.Second, session.Streaming, "pipeline to launch")

	begin := time.Now()
	_ = session.Status()
	if elapsed := time.Since(begin); elapsed > 500*time.Millisecond {
		t.Errorf("Status blocked for %s while a start was settling", elapsed)
	}

	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestStreamSession_restart_after_failure(t *testing.T) {
	runner := &fakeRunner{}
	trans := &fakeTranscoder{streamScript: "exit 1"}
	session := newTestSession(t, runner, trans)

	if err := session.Start(StreamOptions{}); !errors.Is(err, ErrStreamStartFailed) {
		t.Fatalf("expected ErrStreamStartFailed, got %v", err)
	}

	trans.streamScript = "exec cat > /dev/null"
	runner.streamScript = "exec sleep 60"
	if err := session.Start(StreamOptions{}); err != nil {
		t.Fatalf("Start after earlier failure: %v", err)
	}
	if !session.Streaming() {
		t.Error("expected streaming after successful restart")
	}
}

func TestStreamSession_playlist_url(t *testing.T) {
	session := newTestSession(t, &fakeRunner{}, &fakeTranscoder{})

	if url := session.PlaylistURL(); url != "" {
		t.Errorf("expected empty URL before start, got %q", url)
	}

	if err := session.Start(StreamOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if url := session.PlaylistURL(); url == "" {
		t.Error("expected playlist URL while serving")
	}
}
