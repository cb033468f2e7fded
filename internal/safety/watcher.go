package safety

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// WatchRules reloads the gatekeeper's rule set whenever the rules file
// changes on disk. It blocks until ctx is cancelled; callers run it in its
// own goroutine. A malformed rewrite is logged and skipped, keeping the
// previous rules active.
func WatchRules(ctx context.Context, path string, gk *Gatekeeper) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch rules file %s: %w", path, err)
	}

	fs := afero.NewOsFs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			rules, err := LoadRules(fs, path)
			if err != nil {
				slog.Warn("rules reload skipped", "path", path, "error", err)
				continue
			}
			if err := gk.SetRules(rules); err != nil {
				slog.Warn("rules reload rejected", "path", path, "error", err)
				continue
			}
			slog.Info("safety rules reloaded", "path", path, "version", rules.Version)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rules watcher error", "error", err)
		}
	}
}
