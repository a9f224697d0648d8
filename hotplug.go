package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	rescanDebounce = 500 * time.Millisecond
	rescanPoll     = 5 * time.Second
)

// Hotplug watches the device directory for hidraw nodes and calls rescan
// once the burst of udev changes has settled. A slow poll catches anything
// the watcher missed.
type Hotplug struct {
	Dir      string
	Debounce time.Duration
	Poll     time.Duration // 0 disables polling
	Rescan   func()
	Log      *zap.Logger
}

func isHidraw(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "hidraw")
}

// Run blocks until ctx is done.
func (h *Hotplug) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(h.Dir); err != nil {
		return err
	}
	h.Log.Debug("watching for controllers", zap.String("dir", h.Dir))

	debounce := time.NewTimer(h.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	var poll <-chan time.Time
	if h.Poll > 0 {
		ticker := time.NewTicker(h.Poll)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isHidraw(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Remove|fsnotify.Chmod) {
				continue
			}
			h.Log.Debug("hidraw changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			debounce.Reset(h.Debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.Log.Warn("device watcher error", zap.Error(err))
		case <-debounce.C:
			h.Rescan()
		case <-poll:
			h.Rescan()
		}
	}
}
