package camera

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"camera-control/internal/remote"
)

// Runner starts commands on the camera host. Implemented by remote.SSH;
// tests substitute a fake that runs local shell commands.
type Runner interface {
	// Command returns an unstarted process whose stdout streams the remote
	// command's output.
	Command(command string) *exec.Cmd
	// Run executes a one-shot remote command, bounded by timeout.
	Run(ctx context.Context, command string, timeout time.Duration) (remote.Result, error)
	// Ping tests connectivity to the camera host.
	Ping(ctx context.Context) error
	// CameraInfo lists the cameras attached to the host.
	CameraInfo(ctx context.Context) (string, error)
}

// Transcoder builds the local packaging commands a pipeline's consumer side
// runs. The default implementation is FFmpeg; tests substitute shell stubs.
type Transcoder interface {
	// StreamCommand packages an H.264 byte stream on stdin into a rolling
	// playlist plus segments under dir.
	StreamCommand(dir *ServingDir, opts StreamOptions) *exec.Cmd
	// RecordCommand packages an H.264 byte stream on stdin into a single
	// seekable file at outputPath.
	RecordCommand(outputPath string, opts RecordOptions) *exec.Cmd
	// ExtractCommand grabs one frame from the playlist at playlistURL and
	// writes it to outputPath.
	ExtractCommand(ctx context.Context, playlistURL, outputPath string) *exec.Cmd
}

// FFmpeg is the Transcoder backed by the ffmpeg binary.
type FFmpeg struct {
	// Path is the ffmpeg executable; empty means "ffmpeg" from PATH.
	Path string
}

func (f *FFmpeg) bin() string {
	if f.Path != "" {
		return f.Path
	}
	return "ffmpeg"
}

// StreamCommand implements Transcoder.StreamCommand. Low-latency flags keep
// the playlist close to the camera; delete_segments keeps the directory to a
// rolling window.
func (f *FFmpeg) StreamCommand(dir *ServingDir, opts StreamOptions) *exec.Cmd {
	segDur := strconv.FormatFloat(opts.SegmentDuration, 'g', -1, 64)
	return exec.Command(f.bin(),
		"-hide_banner", "-loglevel", "warning",
		"-fflags", "+genpts+nobuffer",
		"-flags", "low_delay",
		"-probesize", "32", "-analyzeduration", "0",
		"-f", "h264", "-r", strconv.Itoa(opts.Framerate), "-i", "pipe:0",
		"-c:v", "copy",
		"-flush_packets", "1",
		"-muxdelay", "0", "-muxpreload", "0",
		"-f", "hls",
		"-hls_time", segDur,
		"-hls_list_size", strconv.Itoa(opts.PlaylistSize),
		"-hls_flags", "delete_segments+append_list+independent_segments+omit_endlist+discont_start",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(dir.Path, "stream_%03d.ts"),
		dir.PlaylistPath(),
	)
}

// RecordCommand implements Transcoder.RecordCommand.
func (f *FFmpeg) RecordCommand(outputPath string, opts RecordOptions) *exec.Cmd {
	return exec.Command(f.bin(),
		"-y", "-hide_banner", "-loglevel", "warning",
		"-f", "h264", "-i", "pipe:0",
		"-c:v", "copy",
		"-movflags", "+faststart",
		outputPath,
	)
}

// ExtractCommand implements Transcoder.ExtractCommand.
func (f *FFmpeg) ExtractCommand(ctx context.Context, playlistURL, outputPath string) *exec.Cmd {
	return exec.CommandContext(ctx, f.bin(),
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", playlistURL,
		"-vframes", "1",
		"-q:v", "2",
		outputPath,
	)
}

// StreamCaptureCommand is the remote side of a live stream: capture forever,
// emitting inline headers so the packager can join mid-stream. The intra
// interval is matched to the segment duration so every segment starts on a
// keyframe.
func StreamCaptureCommand(opts StreamOptions) string {
	intra := int(float64(opts.Framerate) * opts.SegmentDuration)
	if intra < 1 {
		intra = 1
	}
	return fmt.Sprintf(
		"libcamera-vid -t 0 --codec h264 --inline --framerate %d --intra %d --width %d --height %d --bitrate %d --nopreview -o -",
		opts.Framerate, intra, opts.Width, opts.Height, opts.Bitrate)
}

// RecordCaptureCommand is the remote side of a recording: capture for a
// bounded duration (libcamera takes milliseconds).
func RecordCaptureCommand(durationSeconds int, opts RecordOptions) string {
	return fmt.Sprintf(
		"libcamera-vid -t %d --codec h264 --framerate %d --width %d --height %d --bitrate %d --nopreview -o -",
		durationSeconds*1000, opts.Framerate, opts.Width, opts.Height, opts.Bitrate)
}

// StillCaptureCommand is the remote one-shot still capture, emitting JPEG
// bytes on stdout.
func StillCaptureCommand(width, height int) string {
	return fmt.Sprintf(
		"libcamera-jpeg --width %d --height %d --nopreview --immediate -o -",
		width, height)
}
