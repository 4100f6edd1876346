package camera

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordOptions configures a timed recording. Zero fields are resolved
// against the process-wide defaults.
type RecordOptions struct {
	Width     int
	Height    int
	Framerate int
	Bitrate   int
}

// RecordingStatus reports the progress of one recording.
type RecordingStatus struct {
	ID               string  `json:"recording_id"`
	OutputPath       string  `json:"output_path"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	ProgressPercent  float64 `json:"progress_percent"`
	IsActive         bool    `json:"is_active"`
}

// RegistrySnapshot is a stable view over all tracked recordings.
type RegistrySnapshot struct {
	ActiveRecordings int                        `json:"active_recordings"`
	Recordings       map[string]RecordingStatus `json:"recordings"`
}

// recordingEntry is the registry's bookkeeping for one in-flight recording.
type recordingEntry struct {
	pipe       *Pipe
	outputPath string
	startedAt  time.Time
	duration   time.Duration
}

// RecordingRegistry owns all concurrent timed recordings, one pipeline per
// entry. Entries share no mutable state beyond the registry's own map, so
// recordings start, finish, and stop independently of each other.
type RecordingRegistry struct {
	runner    Runner
	trans     Transcoder
	outputDir string
	settings  *Settings
	timing    Timing
	log       *slog.Logger

	mu      sync.Mutex
	entries map[string]*recordingEntry
}

// NewRecordingRegistry returns an empty registry writing recordings under
// outputDir.
func NewRecordingRegistry(runner Runner, trans Transcoder, outputDir string, settings *Settings, timing Timing, log *slog.Logger) *RecordingRegistry {
	return &RecordingRegistry{
		runner:    runner,
		trans:     trans,
		outputDir: outputDir,
		settings:  settings,
		timing:    timing.withDefaults(),
		log:       log,
		entries:   make(map[string]*recordingEntry),
	}
}

// Start launches a duration-bounded capture pipeline and registers it under
// a fresh id. The remote side stops on its own after durationSeconds; the
// local side seals the output file when its input ends.
func (r *RecordingRegistry) Start(durationSeconds int, opts RecordOptions) (string, error) {
	opts = r.settings.ResolveRecord(opts)

	id := "rec_" + uuid.NewString()
	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("recording_%s.mp4", id))

	producer := r.runner.Command(RecordCaptureCommand(durationSeconds, opts))
	consumer := r.trans.RecordCommand(outputPath, opts)

	pipe, err := StartPipe(producer, consumer)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.entries[id] = &recordingEntry{
		pipe:       pipe,
		outputPath: outputPath,
		startedAt:  pipe.StartedAt(),
		duration:   time.Duration(durationSeconds) * time.Second,
	}
	r.mu.Unlock()

	r.log.Info("recording started",
		slog.String("recording_id", id),
		slog.Int("duration_s", durationSeconds),
		slog.String("output", outputPath),
	)
	return id, nil
}

// Stop terminates the recording with the given id and removes it. Unknown
// ids are ErrNotFound: the registry is the source of truth for what exists.
func (r *RecordingRegistry) Stop(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	forced := entry.pipe.Stop(r.timing.GracePeriod)
	if forced {
		r.log.Warn("recording force killed", slog.String("recording_id", id))
	} else {
		r.log.Info("recording stopped",
			slog.String("recording_id", id),
			slog.String("output", entry.outputPath))
	}
	return nil
}

// Status computes elapsed, remaining, and clamped progress for one
// recording. Unknown ids are ErrNotFound.
func (r *RecordingRegistry) Status(id string) (RecordingStatus, error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		return RecordingStatus{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry.status(id), nil
}

// StatusAll returns a stable snapshot over all current entries: the id set
// is copied under lock so concurrent starts and stops cannot corrupt
// iteration.
func (r *RecordingRegistry) StatusAll() RegistrySnapshot {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)

	snap := RegistrySnapshot{
		ActiveRecordings: len(ids),
		Recordings:       make(map[string]RecordingStatus, len(ids)),
	}
	for _, id := range ids {
		status, err := r.Status(id)
		if err != nil {
			// Removed between the key copy and now; skip.
			continue
		}
		snap.Recordings[id] = status
	}
	return snap
}

// Reap removes entries whose pipeline has exited and returns how many were
// removed. An exited pipeline is the sole trigger: running entries are never
// reaped regardless of elapsed time.
func (r *RecordingRegistry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, entry := range r.entries {
		if entry.pipe.Alive() {
			continue
		}
		delete(r.entries, id)
		n++
		r.log.Info("reaped finished recording",
			slog.String("recording_id", id),
			slog.String("output", entry.outputPath))
	}
	return n
}

// StopAll stops every tracked recording; used at shutdown.
func (r *RecordingRegistry) StopAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*recordingEntry)
	r.mu.Unlock()

	for id, entry := range entries {
		if entry.pipe.Stop(r.timing.GracePeriod) {
			r.log.Warn("recording force killed", slog.String("recording_id", id))
		}
	}
}

// Count returns the number of tracked entries.
func (r *RecordingRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (e *recordingEntry) status(id string) RecordingStatus {
	elapsed := time.Since(e.startedAt)
	remaining := e.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	progress := 100.0
	if e.duration > 0 {
		progress = elapsed.Seconds() / e.duration.Seconds() * 100
		if progress > 100 {
			progress = 100
		}
	}
	return RecordingStatus{
		ID:               id,
		OutputPath:       e.outputPath,
		ElapsedSeconds:   elapsed.Seconds(),
		RemainingSeconds: remaining.Seconds(),
		ProgressPercent:  progress,
		IsActive:         e.pipe.Alive(),
	}
}
