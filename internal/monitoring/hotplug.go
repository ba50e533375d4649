// Package monitoring watches for sound card hotplug. Device node churn in
// /dev/snd triggers a debounced rescan of the kernel PCM list; the diff
// against the previous scan becomes add/remove events.
package monitoring

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/audionode/internal/device/alsa"
)

const sndDir = "/dev/snd"

// Event reports one PCM device appearing or disappearing.
type Event struct {
	Device alsa.PCMDevice
	Added  bool
}

// Monitor emits hotplug events for ALSA PCM devices. The initial scan is
// delivered as Added events so a single handler covers startup and hotplug.
type Monitor struct {
	dir      string
	debounce time.Duration
	scan     func() ([]alsa.PCMDevice, error)
	onEvent  func(Event)
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	seen    map[string]alsa.PCMDevice
	done    chan struct{}
}

// NewMonitor creates a hotplug monitor. Events are delivered from the
// monitor's own goroutine.
func NewMonitor(onEvent func(Event), logger *slog.Logger) *Monitor {
	return &Monitor{
		dir:      sndDir,
		debounce: time.Second,
		scan:     alsa.ScanPCMDevices,
		onEvent:  onEvent,
		logger:   logger,
		seen:     make(map[string]alsa.PCMDevice),
	}
}

// Start performs the initial scan and begins watching for device changes.
// A missing /dev/snd leaves the monitor running on the initial scan only.
func (m *Monitor) Start() error {
	m.rescan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create hotplug watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		m.logger.Warn("Sound device directory not watchable, hotplug disabled",
			"dir", m.dir, "error", err)
		watcher.Close()
		return nil
	}

	m.mu.Lock()
	m.watcher = watcher
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.watch(watcher)
	return nil
}

// Stop halts watching. Pending debounced rescans are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	done := m.done
	m.mu.Unlock()

	if watcher != nil {
		watcher.Close()
		<-done
	}
}

func (m *Monitor) watch(watcher *fsnotify.Watcher) {
	defer close(m.done)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			m.scheduleRescan()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Hotplug watcher error", "error", err)
		}
	}
}

// scheduleRescan coalesces bursts of node events; a card arriving creates
// several nodes in quick succession.
func (m *Monitor) scheduleRescan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.rescan)
}

func (m *Monitor) rescan() {
	devs, err := m.scan()
	if err != nil {
		m.logger.Warn("PCM rescan failed", "error", err)
		return
	}

	current := make(map[string]alsa.PCMDevice, len(devs))
	for _, d := range devs {
		current[fmt.Sprintf("%d-%d", d.Card, d.Device)] = d
	}

	m.mu.Lock()
	prev := m.seen
	m.seen = current
	m.mu.Unlock()

	for key, d := range prev {
		if _, ok := current[key]; !ok {
			m.logger.Info("Sound device removed", "card", d.Card, "device", d.Device, "name", d.Name)
			m.onEvent(Event{Device: d, Added: false})
		}
	}
	for key, d := range current {
		if _, ok := prev[key]; !ok {
			m.logger.Info("Sound device added", "card", d.Card, "device", d.Device, "name", d.Name)
			m.onEvent(Event{Device: d, Added: true})
		}
	}
}
