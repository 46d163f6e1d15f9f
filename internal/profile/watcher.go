package profile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bnema/radialmx/internal/logger"
)

// Watcher reloads the profile file into a Resolver when it changes. The
// parent directory is watched so editors that replace the file by rename
// are seen too.
type Watcher struct {
	Path     string
	Resolver *Resolver
	Debounce time.Duration

	// OnReload is called after every reload attempt, if set.
	OnReload func(error)
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("profile watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("profile watcher: watch %s: %w", dir, err)
	}
	logger.Debugf("profiles: watching %s", w.Path)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case <-timer.C:
			err := w.Resolver.Reload(w.Path)
			if err == nil {
				logger.Info("profiles: reloaded")
			}
			if w.OnReload != nil {
				w.OnReload(err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("profiles: watcher: %v", err)
		}
	}
}
