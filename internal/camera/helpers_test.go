package camera

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"camera-control/internal/fileserver"
	"camera-control/internal/remote"
)

// testTiming keeps start/stop fast in tests.
var testTiming = Timing{SettleWindow: 100 * time.Millisecond, GracePeriod: 2 * time.Second}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeRunner satisfies Runner with local shell commands instead of ssh.
type fakeRunner struct {
	// streamScript runs as the producer side of pipelines.
	streamScript string
	runResult    remote.Result
	runErr       error
	pingErr      error
	info         string
}

func (f *fakeRunner) Command(command string) *exec.Cmd {
	script := f.streamScript
	if script == "" {
		script = "exec sleep 60"
	}
	return exec.Command("sh", "-c", script)
}

func (f *fakeRunner) Run(ctx context.Context, command string, timeout time.Duration) (remote.Result, error) {
	return f.runResult, f.runErr
}

func (f *fakeRunner) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeRunner) CameraInfo(ctx context.Context) (string, error) { return f.info, nil }

// fakeTranscoder satisfies Transcoder with shell stubs. Scripts receive the
// relevant output path as "$1" (record) or "$2" (extract).
type fakeTranscoder struct {
	streamScript  string
	recordScript  string
	extractScript string
}

func (f *fakeTranscoder) StreamCommand(dir *ServingDir, opts StreamOptions) *exec.Cmd {
	script := f.streamScript
	if script == "" {
		script = "exec cat > /dev/null"
	}
	return exec.Command("sh", "-c", script)
}

func (f *fakeTranscoder) RecordCommand(outputPath string, opts RecordOptions) *exec.Cmd {
	script := f.recordScript
	if script == "" {
		script = "exec cat > /dev/null"
	}
	return exec.Command("sh", "-c", script, "sh", outputPath)
}

func (f *fakeTranscoder) ExtractCommand(ctx context.Context, playlistURL, outputPath string) *exec.Cmd {
	script := f.extractScript
	if script == "" {
		script = `: > "$2"`
	}
	return exec.CommandContext(ctx, "sh", "-c", script, "sh", playlistURL, outputPath)
}

func newTestSession(t *testing.T, runner Runner, trans Transcoder) *StreamSession {
	t.Helper()
	log := testLogger()
	dir := NewServingDir(t.TempDir())
	server := fileserver.New("127.0.0.1:0", dir.Path, log)
	settings := NewSettings(0, 0, 0, 0)
	session := NewStreamSession(runner, trans, dir, server, settings, testTiming, log)
	t.Cleanup(func() { _ = session.Stop() })
	return session
}

func newTestRegistry(t *testing.T, runner Runner, trans Transcoder) *RecordingRegistry {
	t.Helper()
	reg := NewRecordingRegistry(runner, trans, t.TempDir(), NewSettings(0, 0, 0, 0), testTiming, testLogger())
	t.Cleanup(reg.StopAll)
	return reg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
