package heuristics

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads p from path every time the file is written, until ctx is
// cancelled. A failed reload is logged and the previous table stays active.
// onReload, when set, runs after each successful swap.
func Watch(ctx context.Context, path string, p *Provider, logger *slog.Logger, onReload func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	logger.Info("heuristics: watching defaults", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves arrive as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.LoadFile(path); err != nil {
				logger.Error("heuristics: reload failed, keeping previous table", "path", path, "err", err)
				continue
			}
			logger.Info("heuristics: reloaded", "path", path)
			if onReload != nil {
				onReload()
			}
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("heuristics: watcher error", "err", err)
		}
	}
}
