// Package watcher detects changes to generation inputs by polling.
// Watch mode feeds it the manifest file, every local schema document,
// and every Go source directory named by the manifest.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Op classifies what happened to a watched path between two polls.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Event is one observed change.
type Event struct {
	Path string
	Op   Op
}

// DefaultPollInterval is how often the watch set is re-stat'd.
const DefaultPollInterval = 500 * time.Millisecond

// Watcher polls a set of paths for changes. A path may be a single file,
// watched as-is, or a directory, walked recursively with only files
// matching one of the configured extensions considered. Changes are
// debounced so a burst of writes triggers one callback.
type Watcher struct {
	paths        []string
	extensions   []string
	debounce     time.Duration
	pollInterval time.Duration
	onChange     func(events []Event)

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer
	stopCh  chan struct{}
}

// New creates a watcher over the given paths. extensions applies only to
// directory walks; explicit files are watched whatever their name.
func New(paths []string, extensions []string, debounce time.Duration, onChange func(events []Event)) *Watcher {
	return &Watcher{
		paths:        paths,
		extensions:   extensions,
		debounce:     debounce,
		pollInterval: DefaultPollInterval,
		onChange:     onChange,
		stopCh:       make(chan struct{}),
	}
}

// SetPollInterval overrides the polling interval. Tests use this to poll
// faster than the default.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// Watch polls until Stop is called. Polling keeps the behavior identical
// across platforms and needs no OS facilities beyond stat.
func (w *Watcher) Watch() error {
	snapshot := w.buildSnapshot()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			next := w.buildSnapshot()
			events := diff(snapshot, next)
			if len(events) > 0 {
				w.mu.Lock()
				w.pending = append(w.pending, events...)
				if w.timer != nil {
					w.timer.Stop()
				}
				w.timer = time.AfterFunc(w.debounce, w.flush)
				w.mu.Unlock()
			}
			snapshot = next
		}
	}
}

// Stop ends the Watch loop. A debounce timer already armed may still fire.
func (w *Watcher) Stop() {
	close(w.stopCh)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(pending) > 0 {
		w.onChange(coalesce(pending))
	}
}

// coalesce keeps the last event per path, preserving first-seen order.
// Several polls can land in one debounce window and report the same file.
func coalesce(events []Event) []Event {
	idx := make(map[string]int, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if i, ok := idx[e.Path]; ok {
			out[i].Op = e.Op
			continue
		}
		idx[e.Path] = len(out)
		out = append(out, e)
	}
	return out
}

type stamp struct {
	modTime time.Time
	size    int64
}

func (w *Watcher) buildSnapshot() map[string]stamp {
	snap := make(map[string]stamp)
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			// Missing paths surface as removals against the prior snapshot.
			continue
		}
		if !info.IsDir() {
			snap[p] = stamp{modTime: info.ModTime(), size: info.Size()}
			continue
		}
		filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if w.matches(path) {
				snap[path] = stamp{modTime: info.ModTime(), size: info.Size()}
			}
			return nil
		})
	}
	return snap
}

func (w *Watcher) matches(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func diff(prev, next map[string]stamp) []Event {
	var events []Event

	for path, n := range next {
		if p, ok := prev[path]; ok {
			if n.modTime != p.modTime || n.size != p.size {
				events = append(events, Event{Path: path, Op: OpWrite})
			}
		} else {
			events = append(events, Event{Path: path, Op: OpCreate})
		}
	}

	for path := range prev {
		if _, ok := next[path]; !ok {
			events = append(events, Event{Path: path, Op: OpRemove})
		}
	}

	return events
}
