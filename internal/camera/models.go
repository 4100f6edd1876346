package camera

import (
	"errors"
	"fmt"
)

// Response is the uniform envelope every facade endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Request parameter bounds. Validation lives entirely at the facade; the
// core trusts what it is handed and applies defaults for omitted values.
const (
	minWidth, maxWidth         = 320, 1920
	minHeight, maxHeight       = 240, 1080
	minFramerate, maxFramerate = 5, 60
	minBitrate, maxBitrate     = 500000, 10000000
	minDuration, maxDuration   = 1, 3600
	minCount, maxCount         = 1, 20
	minSegDur, maxSegDur       = 0.1, 5.0
	minPlaylist, maxPlaylist   = 3, 20
)

// StreamStartRequest is the body for POST /api/stream/start. Zero fields use
// the process-wide defaults.
type StreamStartRequest struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Framerate       int     `json:"framerate"`
	Bitrate         int     `json:"bitrate"`
	SegmentDuration float64 `json:"segment_duration"`
	PlaylistSize    int     `json:"playlist_size"`
}

// Validate checks the provided (non-zero) fields against the allowed ranges.
func (r *StreamStartRequest) Validate() error {
	if err := validateVideoParams(r.Width, r.Height, r.Framerate, r.Bitrate); err != nil {
		return err
	}
	if r.SegmentDuration != 0 && (r.SegmentDuration < minSegDur || r.SegmentDuration > maxSegDur) {
		return fmt.Errorf("segment_duration must be between %v and %v", minSegDur, maxSegDur)
	}
	if r.PlaylistSize != 0 && (r.PlaylistSize < minPlaylist || r.PlaylistSize > maxPlaylist) {
		return fmt.Errorf("playlist_size must be between %d and %d", minPlaylist, maxPlaylist)
	}
	return nil
}

// Options converts the request into core stream options.
func (r *StreamStartRequest) Options() StreamOptions {
	return StreamOptions{
		Width:           r.Width,
		Height:          r.Height,
		Framerate:       r.Framerate,
		Bitrate:         r.Bitrate,
		SegmentDuration: r.SegmentDuration,
		PlaylistSize:    r.PlaylistSize,
	}
}

// RecordStartRequest is the body for POST /api/record/start.
type RecordStartRequest struct {
	Duration  int `json:"duration"`
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`
	Bitrate   int `json:"bitrate"`
}

// Validate requires a duration and checks provided fields against the
// allowed ranges.
func (r *RecordStartRequest) Validate() error {
	if r.Duration < minDuration || r.Duration > maxDuration {
		return fmt.Errorf("duration must be between %d and %d seconds", minDuration, maxDuration)
	}
	return validateVideoParams(r.Width, r.Height, r.Framerate, r.Bitrate)
}

// Options converts the request into core recording options.
func (r *RecordStartRequest) Options() RecordOptions {
	return RecordOptions{
		Width:     r.Width,
		Height:    r.Height,
		Framerate: r.Framerate,
		Bitrate:   r.Bitrate,
	}
}

// RecordStopRequest is the body for POST /api/record/stop.
type RecordStopRequest struct {
	RecordingID string `json:"recording_id"`
}

// CaptureRequest is the body for POST /api/capture and /api/capture/analysis.
type CaptureRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks provided fields against the allowed ranges.
func (r *CaptureRequest) Validate() error {
	return validateVideoParams(r.Width, r.Height, 0, 0)
}

// StreamCaptureRequest is the body for POST /api/capture/stream.
type StreamCaptureRequest struct {
	Count           int     `json:"count"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

// Validate checks the sample count and interval.
func (r *StreamCaptureRequest) Validate() error {
	if r.Count != 0 && (r.Count < minCount || r.Count > maxCount) {
		return fmt.Errorf("count must be between %d and %d", minCount, maxCount)
	}
	if r.IntervalSeconds < 0 {
		return errors.New("interval_seconds must not be negative")
	}
	return nil
}

// ScanRequest is the body for POST /api/scan-surroundings.
type ScanRequest struct {
	Count int `json:"count"`
}

// Validate checks the photo count.
func (r *ScanRequest) Validate() error {
	if r.Count != 0 && (r.Count < minCount || r.Count > maxCount) {
		return fmt.Errorf("count must be between %d and %d", minCount, maxCount)
	}
	return nil
}

// ValidateSettings checks a settings update against the allowed ranges.
func ValidateSettings(u SettingsUpdate) error {
	w, h, fr, br := 0, 0, 0, 0
	if u.Width != nil {
		w = *u.Width
	}
	if u.Height != nil {
		h = *u.Height
	}
	if u.Framerate != nil {
		fr = *u.Framerate
	}
	if u.Bitrate != nil {
		br = *u.Bitrate
	}
	return validateVideoParams(w, h, fr, br)
}

// validateVideoParams range-checks the common video parameters, skipping
// zero values (omitted fields).
func validateVideoParams(width, height, framerate, bitrate int) error {
	if width != 0 && (width < minWidth || width > maxWidth) {
		return fmt.Errorf("width must be between %d and %d", minWidth, maxWidth)
	}
	if height != 0 && (height < minHeight || height > maxHeight) {
		return fmt.Errorf("height must be between %d and %d", minHeight, maxHeight)
	}
	if framerate != 0 && (framerate < minFramerate || framerate > maxFramerate) {
		return fmt.Errorf("framerate must be between %d and %d", minFramerate, maxFramerate)
	}
	if bitrate != 0 && (bitrate < minBitrate || bitrate > maxBitrate) {
		return fmt.Errorf("bitrate must be between %d and %d", minBitrate, maxBitrate)
	}
	return nil
}
