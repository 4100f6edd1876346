package camera

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher tracks segment and playlist churn in the serving directory from
// filesystem events, so status queries need not rescan while a stream is
// writing several segments per second.
type dirWatcher struct {
	fsw *fsnotify.Watcher

	mu       sync.Mutex
	playlist bool
	segments map[string]time.Time
}

// Watch starts event-based freshness tracking. The cache is primed with a
// scan so segments written before the watch began are counted. Calling Watch
// on an already-watched directory is a no-op.
func (d *ServingDir) Watch() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(d.Path); err != nil {
		fsw.Close()
		return err
	}

	w := &dirWatcher{
		fsw:      fsw,
		segments: make(map[string]time.Time),
	}
	w.prime(d.Path)
	go w.run()

	d.watcher = w
	return nil
}

// Unwatch stops freshness tracking; Snapshot falls back to scanning.
func (d *ServingDir) Unwatch() {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	if w != nil {
		w.fsw.Close()
	}
}

// prime seeds the cache with files already present when the watch begins.
func (w *dirWatcher) prime(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := os.Stat(filepath.Join(dir, playlistName)); err == nil {
		w.playlist = true
	}
	matches, _ := filepath.Glob(filepath.Join(dir, segmentPattern))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		w.segments[filepath.Base(m)] = info.ModTime()
	}
}

func (w *dirWatcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.apply(ev)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *dirWatcher) apply(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	isPlaylist := name == playlistName
	isSegment, _ := filepath.Match(segmentPattern, name)
	if !isPlaylist && !isSegment {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if isPlaylist {
			w.playlist = true
		} else {
			w.segments[name] = time.Now()
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if isPlaylist {
			w.playlist = false
		} else {
			delete(w.segments, name)
		}
	}
}

func (w *dirWatcher) snapshot() DirSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := DirSnapshot{
		PlaylistExists: w.playlist,
		SegmentCount:   len(w.segments),
	}
	var latestMod time.Time
	for name, mod := range w.segments {
		if mod.After(latestMod) {
			latestMod = mod
			snap.LatestSegment = name
		}
	}
	return snap
}
