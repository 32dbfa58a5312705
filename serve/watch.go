package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher calls onChange when the config file is written, created,
// replaced or removed. The parent directory is watched because editors
// usually save by renaming a temporary file over the original.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	debounce time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewConfigWatcher starts watching path. Bursts of events within debounce
// produce a single onChange call.
func NewConfigWatcher(path string, debounce time.Duration, onChange func()) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	cw := &ConfigWatcher{
		watcher:  w,
		path:     path,
		onChange: onChange,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go cw.run()

	slog.Debug("watching config", "path", path)
	return cw, nil
}

// Stop ends the watch loop and waits for it to exit.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		<-cw.doneCh
		if err := cw.watcher.Close(); err != nil {
			slog.Warn("error closing config watcher", "error", err)
		}
	})
}

func (cw *ConfigWatcher) run() {
	defer close(cw.doneCh)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("config file changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cw.onChange()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
