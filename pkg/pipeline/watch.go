package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	debounceTick   = 250 * time.Millisecond
	debounceStable = 300 * time.Millisecond
)

// WatchDirectory feeds newly created image files in dir into out, debounced
// so half-copied files are not picked up. Blocks until ctx ends.
func WatchDirectory(ctx context.Context, dir, title, description string, out chan<- Request, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("watching for new treadmill photos")

	// debounce map of pending files
	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				name := filepath.Base(ev.Name)
				if !isSupportedExt(name) {
					continue
				}
				pending[name] = time.Now()
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > debounceStable { // stable
					delete(pending, name)
					req := Request{ImagePath: filepath.Join(dir, name), Title: title, Description: description}
					select {
					case out <- req:
					case <-ctx.Done():
						return nil
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}

// isSupportedExt keeps the watcher to photo formats that can carry EXIF.
func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".tif", ".tiff":
		return true
	}
	return false
}
