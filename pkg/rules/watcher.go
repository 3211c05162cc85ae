package rules

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback modification-time poll interval
// used when filesystem events are missed (editors that replace files,
// network mounts).
const DefaultPollInterval = 2 * time.Second

// Watcher reloads a configuration file when its modification time
// changes and hands each successfully parsed RuleSet to the callback.
// A failed reload keeps the previous rule set and logs the error.
type Watcher struct {
	path     string
	interval time.Duration
	onLoad   func(*RuleSet)
	log      *slog.Logger

	modTime time.Time
}

// NewWatcher creates a watcher for path. The onLoad callback runs for
// every successful reload; it must be safe to call from the watcher
// goroutine.
func NewWatcher(path string, interval time.Duration, onLoad func(*RuleSet), log *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{path: path, interval: interval, onLoad: onLoad, log: log}
}

// Run watches until ctx is cancelled. The file's current modification
// time is recorded first so only subsequent changes trigger reloads;
// callers load the initial rule set themselves.
func (w *Watcher) Run(ctx context.Context) error {
	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	// Watch the directory, not the file: most editors and config
	// management tools replace the file, which breaks a file watch.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == filepath.Clean(w.path) {
				w.checkReload()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("configuration watcher error", "error", err)
		case <-ticker.C:
			w.checkReload()
		}
	}
}

func (w *Watcher) checkReload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("configuration file unavailable", "path", w.path, "error", err)
		return
	}
	if info.ModTime().Equal(w.modTime) {
		return
	}
	w.modTime = info.ModTime()

	rs, err := Load(w.path)
	if err != nil {
		w.log.Error("configuration reload failed, keeping previous rules", "path", w.path, "error", err)
		return
	}
	for _, warning := range rs.Warnings {
		w.log.Warn("configuration warning", "path", w.path, "warning", warning)
	}

	w.log.Info("configuration reloaded", "path", w.path)
	w.onLoad(rs)
}
