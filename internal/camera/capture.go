package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCaptureTimeout bounds one-shot captures and per-sample playlist
// extractions.
const DefaultCaptureTimeout = 10 * time.Second

// FrameCapture takes still frames, either directly from the camera or by
// sampling the live playlist. It holds no persistent state.
type FrameCapture struct {
	runner   Runner
	trans    Transcoder
	session  *StreamSession
	dir      string
	settings *Settings
	timeout  time.Duration
	log      *slog.Logger
}

// NewFrameCapture returns a FrameCapture writing frames under dir. A zero
// timeout falls back to DefaultCaptureTimeout.
func NewFrameCapture(runner Runner, trans Transcoder, session *StreamSession, dir string, settings *Settings, timeout time.Duration, log *slog.Logger) *FrameCapture {
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	return &FrameCapture{
		runner:   runner,
		trans:    trans,
		session:  session,
		dir:      dir,
		settings: settings,
		timeout:  timeout,
		log:      log,
	}
}

// CaptureFrame runs a one-shot remote still capture and writes the received
// bytes to a generated path. A non-zero remote exit becomes a CaptureError
// carrying the tool's diagnostics.
func (f *FrameCapture) CaptureFrame(ctx context.Context, width, height int) (string, error) {
	width, height = f.settings.ResolveCapture(width, height)

	res, err := f.runner.Run(ctx, StillCaptureCommand(width, height), f.timeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &CaptureError{
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
		}
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", err
	}
	path := f.framePath("frame")
	if err := os.WriteFile(path, res.Stdout, 0o644); err != nil {
		return "", err
	}

	f.log.Info("frame captured",
		slog.String("path", path),
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Duration("elapsed", res.Elapsed),
	)
	return path, nil
}

// CaptureFromStream samples count frames from the live playlist at fixed
// intervals, one extraction per sample. A sample that times out or exits
// non-zero is logged and skipped, not fatal to the batch: the returned slice
// holds whatever subset succeeded and may be empty. With no stream being
// served it returns nothing.
func (f *FrameCapture) CaptureFromStream(ctx context.Context, count int, interval time.Duration) []string {
	playlistURL := f.session.PlaylistURL()
	if playlistURL == "" {
		f.log.Warn("capture from stream requested with no stream being served")
		return nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		f.log.Error("capture directory", slog.String("error", err.Error()))
		return nil
	}

	var captured []string
	for i := 0; i < count; i++ {
		path := f.framePath("frame")
		if err := f.extractOne(ctx, playlistURL, path); err != nil {
			f.log.Warn("frame sample failed",
				slog.Int("sample", i+1),
				slog.Int("count", count),
				slog.String("error", err.Error()))
		} else {
			captured = append(captured, path)
			f.log.Info("frame sampled from stream",
				slog.Int("sample", i+1),
				slog.Int("count", count),
				slog.String("path", path))
		}

		if i < count-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return captured
			}
		}
	}
	return captured
}

// CaptureForAnalysis prefers sampling the live stream, which yields an
// already-buffered frame at streaming quality, and falls back to a direct
// capture when no stream is running.
func (f *FrameCapture) CaptureForAnalysis(ctx context.Context, width, height int) (string, error) {
	if f.session.Streaming() {
		frames := f.CaptureFromStream(ctx, 1, 0)
		if len(frames) > 0 {
			return frames[0], nil
		}
		return "", errors.New("no frame could be sampled from the live stream")
	}
	return f.CaptureFrame(ctx, width, height)
}

// CaptureBatch takes count direct captures spaced a second apart, returning
// the paths that succeeded. One failed shot does not abort the batch.
func (f *FrameCapture) CaptureBatch(ctx context.Context, count int) []string {
	var captured []string
	for i := 0; i < count; i++ {
		path, err := f.CaptureFrame(ctx, 0, 0)
		if err != nil {
			f.log.Warn("batch capture failed",
				slog.Int("shot", i+1),
				slog.Int("count", count),
				slog.String("error", err.Error()))
		} else {
			captured = append(captured, path)
		}

		if i < count-1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return captured
			}
		}
	}
	return captured
}

// extractOne pulls a single frame out of the playlist with a bounded run of
// the extraction tool.
func (f *FrameCapture) extractOne(ctx context.Context, playlistURL, outputPath string) error {
	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := f.trans.ExtractCommand(cctx, playlistURL, outputPath)
	var stderr boundedBuffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("frame extraction timed out after %s", f.timeout)
		}
		return fmt.Errorf("frame extraction: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("frame extraction produced no file: %w", err)
	}
	return nil
}

// framePath generates a unique output path for one frame.
func (f *FrameCapture) framePath(prefix string) string {
	name := fmt.Sprintf("%s_%s_%s.jpg",
		prefix, time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	return filepath.Join(f.dir, name)
}
