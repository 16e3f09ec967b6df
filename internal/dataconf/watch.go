package dataconf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and its overlays and calls onChange with the newly
// loaded Config each time one of them is saved. It runs until ctx is
// cancelled.
//
// The parent directories are watched rather than the files, so a save that
// writes a temp file and renames it over the config is seen as well. A
// reload that fails is passed to onError and the previous config stays in
// effect; onError may be nil.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error), overlays ...string) error {
	targets := make(map[string]bool)
	var dirs []string
	for _, p := range append([]string{path}, overlays...) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return err
		}
		abs = filepath.Clean(abs)
		targets[abs] = true
		dirs = append(dirs, filepath.Dir(abs))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			return err
		}
	}

	slog.Debug("dataconf: watching for changes", "path", path, "overlays", len(overlays))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			// A rename over the file arrives as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path, overlays...)
			if err != nil {
				slog.Debug("dataconf: reload failed", "path", path, "err", err)
				if onError != nil {
					onError(err)
				}
				continue
			}

			slog.Debug("dataconf: reloaded", "path", path, "changed", event.Name)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("dataconf: watcher error", "err", err)
		}
	}
}
