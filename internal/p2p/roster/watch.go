package roster

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events most editors/`revoke`'s own
// Save() generate for a single logical write (write+rename, or several
// writes as an atomic-rename temp file lands).
const watchDebounce = 200 * time.Millisecond

// WatchFile reloads allow from path whenever the file changes, until ctx
// is cancelled. It watches the directory holding path; if that directory
// cannot be watched (e.g. it does not exist yet), WatchFile returns the
// error. A failed reload is logged and the previous contents stay in effect.
func WatchFile(ctx context.Context, path string, allow *Allowlist, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := func() {
			if err := allow.ReloadFrom(path); err != nil {
				log.Warn("roster: reload allowlist failed", "path", path, "error", err)
				return
			}
			log.Info("roster: allowlist reloaded", "path", path)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("roster: watch error", "error", err)
			}
		}
	}()

	return nil
}
