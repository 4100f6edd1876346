package camera

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	playlistName   = "stream.m3u8"
	segmentPattern = "stream_*.ts"
)

// DirSnapshot is a point-in-time view of the serving directory's freshness.
type DirSnapshot struct {
	PlaylistExists bool
	SegmentCount   int
	LatestSegment  string
}

// ServingDir is the on-disk directory holding the continuously overwritten
// playlist and rolling segment files. Only the packaging tool writes media
// files here; this side only inspects names and modification times.
type ServingDir struct {
	Path string

	mu      sync.Mutex
	watcher *dirWatcher
}

// NewServingDir returns a ServingDir rooted at path.
func NewServingDir(path string) *ServingDir {
	return &ServingDir{Path: path}
}

// Ensure creates the directory if it does not exist.
func (d *ServingDir) Ensure() error {
	return os.MkdirAll(d.Path, 0o755)
}

// Playlist returns the playlist file name.
func (d *ServingDir) Playlist() string {
	return playlistName
}

// PlaylistPath returns the absolute playlist path.
func (d *ServingDir) PlaylistPath() string {
	return filepath.Join(d.Path, playlistName)
}

// Snapshot reports the playlist's existence, the segment count, and the most
// recently modified segment. With a live watcher the cached view is used;
// otherwise the directory is scanned.
func (d *ServingDir) Snapshot() DirSnapshot {
	d.mu.Lock()
	w := d.watcher
	d.mu.Unlock()

	if w != nil {
		return w.snapshot()
	}
	return d.scan()
}

// scan builds a snapshot by reading the directory.
func (d *ServingDir) scan() DirSnapshot {
	var snap DirSnapshot

	if _, err := os.Stat(d.PlaylistPath()); err == nil {
		snap.PlaylistExists = true
	}

	matches, err := filepath.Glob(filepath.Join(d.Path, segmentPattern))
	if err != nil {
		return snap
	}
	var latest string
	var latestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		snap.SegmentCount++
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = filepath.Base(m)
		}
	}
	snap.LatestSegment = latest
	return snap
}
