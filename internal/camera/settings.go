package camera

import "sync"

// Process-wide camera defaults, applied when a request omits a parameter.
const (
	DefaultWidth           = 640
	DefaultHeight          = 480
	DefaultFramerate       = 15
	DefaultBitrate         = 2000000
	DefaultSegmentDuration = 0.5
	DefaultPlaylistSize    = 6
)

// Settings holds the mutable process-wide camera defaults. Callers resolve
// request options against it; updates take effect for subsequent operations.
type Settings struct {
	mu        sync.RWMutex
	width     int
	height    int
	framerate int
	bitrate   int
}

// SettingsUpdate is a partial settings change; nil fields are left unchanged.
type SettingsUpdate struct {
	Width     *int `json:"width"`
	Height    *int `json:"height"`
	Framerate *int `json:"framerate"`
	Bitrate   *int `json:"bitrate"`
}

// NewSettings returns Settings seeded with the given defaults. Zero or
// negative values fall back to the package defaults.
func NewSettings(width, height, framerate, bitrate int) *Settings {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if framerate <= 0 {
		framerate = DefaultFramerate
	}
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return &Settings{width: width, height: height, framerate: framerate, bitrate: bitrate}
}

// Apply sets the fields present in u.
func (s *Settings) Apply(u SettingsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Width != nil {
		s.width = *u.Width
	}
	if u.Height != nil {
		s.height = *u.Height
	}
	if u.Framerate != nil {
		s.framerate = *u.Framerate
	}
	if u.Bitrate != nil {
		s.bitrate = *u.Bitrate
	}
}

// Snapshot returns the current defaults.
func (s *Settings) Snapshot() (width, height, framerate, bitrate int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height, s.framerate, s.bitrate
}

// ResolveStream fills omitted stream options from the current defaults.
func (s *Settings) ResolveStream(opts StreamOptions) StreamOptions {
	w, h, fr, br := s.Snapshot()
	if opts.Width <= 0 {
		opts.Width = w
	}
	if opts.Height <= 0 {
		opts.Height = h
	}
	if opts.Framerate <= 0 {
		opts.Framerate = fr
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = br
	}
	if opts.SegmentDuration <= 0 {
		opts.SegmentDuration = DefaultSegmentDuration
	}
	if opts.PlaylistSize <= 0 {
		opts.PlaylistSize = DefaultPlaylistSize
	}
	return opts
}

// ResolveRecord fills omitted recording options from the current defaults.
func (s *Settings) ResolveRecord(opts RecordOptions) RecordOptions {
	w, h, fr, br := s.Snapshot()
	if opts.Width <= 0 {
		opts.Width = w
	}
	if opts.Height <= 0 {
		opts.Height = h
	}
	if opts.Framerate <= 0 {
		opts.Framerate = fr
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = br
	}
	return opts
}

// ResolveCapture fills omitted still-capture dimensions from the current
// defaults.
func (s *Settings) ResolveCapture(width, height int) (int, int) {
	w, h, _, _ := s.Snapshot()
	if width <= 0 {
		width = w
	}
	if height <= 0 {
		height = h
	}
	return width, height
}
