package device

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bnema/radialmx/internal/logger"
)

// ChangeType says whether a device node appeared or went away.
type ChangeType int

const (
	DeviceAdded ChangeType = iota
	DeviceRemoved
)

// Change is one hotplug observation.
type Change struct {
	Type   ChangeType
	Path   string
	Device string // node name, e.g. "event7" or "hidraw2"
}

// HotplugMonitor reports device nodes appearing and disappearing under the
// watched directories. It uses inotify when available and falls back to
// polling.
type HotplugMonitor struct {
	Dirs     []string
	Prefixes []string
	Poll     time.Duration
}

// NewHotplugMonitor watches evdev and hidraw nodes.
func NewHotplugMonitor() *HotplugMonitor {
	return &HotplugMonitor{
		Dirs:     []string{"/dev/input", "/dev"},
		Prefixes: []string{"event", "hidraw"},
		Poll:     2 * time.Second,
	}
}

// Run blocks until ctx is done, calling fn for every change.
func (m *HotplugMonitor) Run(ctx context.Context, fn func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("device: inotify unavailable, polling: %v", err)
		return m.poll(ctx, fn)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range m.Dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Debugf("device: cannot watch %s: %v", dir, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return m.poll(ctx, fn)
	}
	logger.Debug("device: hotplug monitor started with inotify")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !m.relevant(name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				fn(Change{Type: DeviceAdded, Path: ev.Name, Device: name})
			case ev.Has(fsnotify.Remove):
				fn(Change{Type: DeviceRemoved, Path: ev.Name, Device: name})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("device: hotplug watcher: %v", err)
		}
	}
}

func (m *HotplugMonitor) poll(ctx context.Context, fn func(Change)) error {
	interval := m.Poll
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := m.snapshot()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := m.snapshot()
			for path := range current {
				if !last[path] {
					fn(Change{Type: DeviceAdded, Path: path, Device: filepath.Base(path)})
				}
			}
			for path := range last {
				if !current[path] {
					fn(Change{Type: DeviceRemoved, Path: path, Device: filepath.Base(path)})
				}
			}
			last = current
		}
	}
}

func (m *HotplugMonitor) snapshot() map[string]bool {
	nodes := make(map[string]bool)
	for _, dir := range m.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && m.relevant(entry.Name()) {
				nodes[filepath.Join(dir, entry.Name())] = true
			}
		}
	}
	return nodes
}

func (m *HotplugMonitor) relevant(name string) bool {
	for _, p := range m.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
