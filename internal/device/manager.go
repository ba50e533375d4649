package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/device/settings"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
)

// Router is the slice of routing policy the manager drives as devices
// arrive, leave, and change plug state.
type Router interface {
	AddOutput(dev graph.Object)
	RemoveOutput(dev graph.Object)
	AddInput(dev graph.Object)
	RemoveInput(dev graph.Object)
	SetDeviceAutoRouting(dev graph.Object, enabled bool)
}

// defaultPreferredFormat is the shape requested from every new device;
// SelectBestFormat degrades gracefully from here.
var defaultPreferredFormat = format.Format{
	SampleFormat:    format.Signed16,
	Channels:        2,
	FramesPerSecond: 48000,
}

type managedDevice struct {
	obj      graph.Object
	driver   *Driver
	mixDom   *exec.Domain
	uniqueID string
	name     string
	output   bool
	routed   bool
}

// Manager owns device lifecycle: activation through the driver handshake,
// persisted settings, plug-state routing, and teardown. All mutations run
// on the control domain.
type Manager struct {
	log     *slog.Logger
	bus     *events.Bus
	matrix  *graph.LinkMatrix
	router  Router
	store   *settings.Store
	model   *exec.Model
	control *exec.Domain

	mu      sync.Mutex
	devices map[string]*managedDevice
}

// NewManager creates a device manager. The settings store should already
// be loaded.
func NewManager(matrix *graph.LinkMatrix, bus *events.Bus, router Router, store *settings.Store, model *exec.Model) *Manager {
	return &Manager{
		log:     logging.GetLogger("device"),
		bus:     bus,
		matrix:  matrix,
		router:  router,
		store:   store,
		model:   model,
		control: model.Control(),
		devices: make(map[string]*managedDevice),
	}
}

// AddOutputDevice activates an output device over the given transport and
// routes it once the driver handshake completes.
func (m *Manager) AddOutputDevice(name string, transport Transport) {
	mixDom := m.model.AcquireMixDomain()
	out := NewOutput(name, transport, m.matrix, m.bus, mixDom, m.model.IO())
	out.Activate(defaultPreferredFormat, func(err error) {
		_ = m.control.Post(func() {
			m.finishActivation(&managedDevice{
				obj:    out,
				driver: out.Driver(),
				mixDom: mixDom,
				name:   name,
				output: true,
			}, err)
		})
	})
}

// AddInputDevice activates an input device over the given transport.
func (m *Manager) AddInputDevice(name string, transport Transport) {
	mixDom := m.model.AcquireMixDomain()
	in := NewInput(name, transport, mixDom, m.model.IO())
	in.Activate(defaultPreferredFormat, func(err error) {
		_ = m.control.Post(func() {
			m.finishActivation(&managedDevice{
				obj:    in,
				driver: in.Driver(),
				mixDom: mixDom,
				name:   name,
				output: false,
			}, err)
		})
	})
}

// finishActivation runs on the control domain after the driver handshake.
func (m *Manager) finishActivation(d *managedDevice, err error) {
	if err != nil {
		m.log.Error("Device activation failed", "device", d.name, "error", err)
		m.shutdownDevice(d)
		m.model.ReleaseMixDomain(d.mixDom)
		return
	}

	info, _ := d.driver.Info()
	d.uniqueID = info.UniqueID
	if d.uniqueID == "" {
		d.uniqueID = d.obj.ID()
	}

	ds, known := m.store.Lookup(d.uniqueID, d.name)
	if ds.Ignored {
		m.log.Info("Device ignored by settings", "device", d.uniqueID)
		m.shutdownDevice(d)
		m.model.ReleaseMixDomain(d.mixDom)
		return
	}
	if !known {
		if err := m.store.Commit(); err != nil {
			m.log.Warn("Failed to persist settings for new device", "device", d.uniqueID, "error", err)
		}
	}

	m.mu.Lock()
	m.devices[d.obj.ID()] = d
	m.mu.Unlock()

	m.applyGain(d, ds)
	m.router.SetDeviceAutoRouting(d.obj, !ds.DisableAutoRouting)
	m.route(d, true)
	d.driver.SetPlugDetectEnabled(true, func(plugged bool, _ time.Time) {
		_ = m.control.Post(func() { m.onPlugChange(d, plugged) })
	})

	m.log.Info("Device activated", "device", d.uniqueID, "name", d.name, "direction", direction(d.output))
	m.publishAdded(d)
}

// RemoveDevice tears a device down and drops it from routing.
func (m *Manager) RemoveDevice(id string) {
	_ = m.control.Post(func() {
		m.mu.Lock()
		d, ok := m.devices[id]
		if ok {
			delete(m.devices, id)
		}
		m.mu.Unlock()
		if !ok {
			m.log.Warn("Remove of unknown device ignored", "device", id)
			return
		}
		m.route(d, false)
		m.shutdownDevice(d)
		m.model.ReleaseMixDomain(d.mixDom)
		if m.bus != nil {
			m.bus.Publish(events.DeviceRemovedEvent{
				DeviceID:  id,
				Direction: direction(d.output),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	})
}

// Shutdown tears down every device.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*managedDevice, 0, len(m.devices))
	for _, d := range m.devices {
		all = append(all, d)
	}
	m.devices = make(map[string]*managedDevice)
	m.mu.Unlock()
	for _, d := range all {
		m.route(d, false)
		m.shutdownDevice(d)
		m.model.ReleaseMixDomain(d.mixDom)
	}
}

// SetDeviceGain updates a device's gain, pushes it to hardware, and
// persists it. Persistence failures are logged, never fatal.
func (m *Manager) SetDeviceGain(id string, state GainState, flags DirtyFlags) error {
	m.mu.Lock()
	d, ok := m.devices[id]
	m.mu.Unlock()
	if !ok {
		return NewDeviceError(ErrCodeDeviceNotFound, fmt.Sprintf("no such device %q", id), nil)
	}

	switch dev := d.obj.(type) {
	case *Output:
		dev.SetGainInfo(state, flags)
		state = dev.GainInfo()
	case *Input:
		dev.SetGainInfo(state, flags)
		state = dev.GainInfo()
	}

	ds, _ := m.store.Lookup(d.uniqueID, d.name)
	ds.Gain = settings.GainSettings{
		GainDB:     state.GainDB,
		Muted:      state.Muted,
		AGCEnabled: state.AGCEnabled,
	}
	m.store.Update(ds)
	if err := m.store.Commit(); err != nil {
		m.log.Warn("Failed to persist device gain", "device", d.uniqueID, "error", err)
	}
	return nil
}

// ApplySettings re-applies externally edited settings to a live device.
// The settings watcher calls this when the file changes on disk.
func (m *Manager) ApplySettings(uniqueID string, ds settings.DeviceSettings) {
	_ = m.control.Post(func() {
		m.mu.Lock()
		var d *managedDevice
		for _, cand := range m.devices {
			if cand.uniqueID == uniqueID {
				d = cand
				break
			}
		}
		m.mu.Unlock()
		if d == nil {
			return
		}
		m.applyGain(d, ds)
		m.router.SetDeviceAutoRouting(d.obj, !ds.DisableAutoRouting)
	})
}

// Devices returns a snapshot of live devices for the admin surface.
func (m *Manager) Devices() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceInfo, 0, len(m.devices))
	for _, d := range m.devices {
		f, _ := d.obj.Format()
		info := DeviceInfo{
			ID:        d.obj.ID(),
			UniqueID:  d.uniqueID,
			Name:      d.name,
			Direction: direction(d.output),
			Format:    f.String(),
			State:     d.driver.State().String(),
		}
		switch dev := d.obj.(type) {
		case *Output:
			info.Gain = dev.GainInfo()
		case *Input:
			info.Gain = dev.GainInfo()
		}
		out = append(out, info)
	}
	return out
}

// DeviceInfo is the admin-surface view of one device.
type DeviceInfo struct {
	ID        string    `json:"id"`
	UniqueID  string    `json:"unique_id"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	Format    string    `json:"format"`
	State     string    `json:"state"`
	Gain      GainState `json:"gain"`
}

func (m *Manager) applyGain(d *managedDevice, ds settings.DeviceSettings) {
	state := GainState{
		GainDB:     ds.Gain.GainDB,
		Muted:      ds.Gain.Muted,
		AGCEnabled: ds.Gain.AGCEnabled,
	}
	flags := DirtyGain | DirtyMute | DirtyAGC
	switch dev := d.obj.(type) {
	case *Output:
		dev.SetGainInfo(state, flags)
	case *Input:
		dev.SetGainInfo(state, flags)
	}
}

func (m *Manager) onPlugChange(d *managedDevice, plugged bool) {
	m.mu.Lock()
	_, live := m.devices[d.obj.ID()]
	m.mu.Unlock()
	if !live {
		return
	}
	m.log.Info("Plug state changed", "device", d.uniqueID, "plugged", plugged)
	m.route(d, plugged)
}

// route adds or removes the device from routing, tracking the current
// state so plug bounces cannot double-add.
func (m *Manager) route(d *managedDevice, want bool) {
	if d.routed == want {
		return
	}
	d.routed = want
	switch {
	case want && d.output:
		m.router.AddOutput(d.obj)
	case want && !d.output:
		m.router.AddInput(d.obj)
	case !want && d.output:
		m.router.RemoveOutput(d.obj)
	default:
		m.router.RemoveInput(d.obj)
	}
}

func (m *Manager) shutdownDevice(d *managedDevice) {
	switch dev := d.obj.(type) {
	case *Output:
		dev.Shutdown()
	case *Input:
		dev.Shutdown()
	}
}

func (m *Manager) publishAdded(d *managedDevice) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.DeviceAddedEvent{
		DeviceID:  d.obj.ID(),
		Name:      d.name,
		Direction: direction(d.output),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func direction(output bool) string {
	if output {
		return "output"
	}
	return "input"
}
