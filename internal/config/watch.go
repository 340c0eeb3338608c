package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads baseDir/config.json whenever it is written, created or renamed into
// place and passes the result to onChange. The directory is watched rather than the
// file so editors that replace the file atomically are still seen.
// A config that fails to parse is logged and skipped; the previous one stays in effect.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, baseDir string, log zerolog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(baseDir); err != nil {
		return err
	}

	target := filepath.Clean(Path(baseDir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(baseDir)
			if err != nil {
				log.Warn().Err(err).Str("path", target).Msg("ignoring unreadable config")
				continue
			}
			log.Info().Str("path", target).Msg("config changed")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
