// Package remote executes commands on the camera host over an ssh transport.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a one-shot remote command exceeds its timeout.
var ErrTimeout = errors.New("remote command timed out")

const (
	defaultConnectTimeout = 5 * time.Second
	pingTimeout           = 10 * time.Second
	infoTimeout           = 10 * time.Second
)

// Result is the outcome of a one-shot remote command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Elapsed  time.Duration
}

// SSH runs commands on a remote host through the ssh client binary.
type SSH struct {
	Host string

	// bin is the ssh executable; tests substitute a local script.
	bin            string
	connectTimeout time.Duration
}

// NewSSH returns an SSH runner for host (user@address form).
func NewSSH(host string) *SSH {
	return &SSH{
		Host:           host,
		bin:            "ssh",
		connectTimeout: defaultConnectTimeout,
	}
}

// Command returns an unstarted command whose stdout streams the remote
// command's output. The caller owns starting and terminating it.
func (s *SSH) Command(command string) *exec.Cmd {
	return exec.Command(s.bin, s.Host, command)
}

// Run executes command on the remote host and waits for it to finish,
// collecting stdout and stderr. A non-zero remote exit status is reported in
// Result.ExitCode, not as an error; errors mean the command could not run or
// exceeded timeout (ErrTimeout).
func (s *SSH) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, s.bin, s.Host, command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Elapsed: time.Since(start),
	}

	if cctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, command)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %q on %s: %w", command, s.Host, err)
	}
	return res, nil
}

// Ping tests connectivity to the camera host with a bounded connect timeout.
func (s *SSH) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.bin,
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(s.connectTimeout.Seconds())),
		s.Host, "echo ok")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: connection test to %s", ErrTimeout, s.Host)
		}
		return fmt.Errorf("connection test to %s failed: %w (stderr: %s)",
			s.Host, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// CameraInfo lists the cameras attached to the remote host.
func (s *SSH) CameraInfo(ctx context.Context) (string, error) {
	res, err := s.Run(ctx, "libcamera-hello --list-cameras", infoTimeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("list cameras on %s: exit code %d: %s",
			s.Host, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return string(res.Stdout), nil
}
