package device

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/device/settings"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/graph"
)

// fakeRouter records routing calls and signals them on a channel.
type fakeRouter struct {
	mu      sync.Mutex
	outputs map[graph.Object]bool
	inputs  map[graph.Object]bool
	auto    map[graph.Object]bool
	changes chan string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		outputs: make(map[graph.Object]bool),
		inputs:  make(map[graph.Object]bool),
		auto:    make(map[graph.Object]bool),
		changes: make(chan string, 16),
	}
}

func (r *fakeRouter) AddOutput(dev graph.Object) {
	r.mu.Lock()
	r.outputs[dev] = true
	r.mu.Unlock()
	r.changes <- "add-output"
}

func (r *fakeRouter) RemoveOutput(dev graph.Object) {
	r.mu.Lock()
	delete(r.outputs, dev)
	r.mu.Unlock()
	r.changes <- "remove-output"
}

func (r *fakeRouter) AddInput(dev graph.Object) {
	r.mu.Lock()
	r.inputs[dev] = true
	r.mu.Unlock()
	r.changes <- "add-input"
}

func (r *fakeRouter) RemoveInput(dev graph.Object) {
	r.mu.Lock()
	delete(r.inputs, dev)
	r.mu.Unlock()
	r.changes <- "remove-input"
}

func (r *fakeRouter) SetDeviceAutoRouting(dev graph.Object, enabled bool) {
	r.mu.Lock()
	r.auto[dev] = enabled
	r.mu.Unlock()
}

func waitChange(t *testing.T, r *fakeRouter, want string) {
	t.Helper()
	select {
	case got := <-r.changes:
		if got != want {
			t.Fatalf("routing change = %q, want %q", got, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for routing change %q", want)
	}
}

type managerHarness struct {
	model   *exec.Model
	router  *fakeRouter
	store   *settings.Store
	manager *Manager
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		model:  exec.NewModel(exec.MixShared),
		router: newFakeRouter(),
		store:  settings.NewStore(filepath.Join(t.TempDir(), "devices.toml")),
	}
	h.manager = NewManager(graph.NewLinkMatrix(nil), nil, h.router, h.store, h.model)
	t.Cleanup(func() {
		h.manager.Shutdown()
		h.model.Shutdown()
	})
	return h
}

func TestManagerActivatesAndRoutesOutput(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddOutputDevice("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges))
	waitChange(t, h.router, "add-output")

	devs := h.manager.Devices()
	if len(devs) != 1 {
		t.Fatalf("Devices() has %d entries, want 1", len(devs))
	}
	d := devs[0]
	if d.UniqueID != "soft:0,0" || d.Direction != "output" {
		t.Fatalf("device = %+v", d)
	}
	if d.State != DriverStarted.String() {
		t.Errorf("driver state = %q, want started", d.State)
	}
	if d.Format == "" {
		t.Error("activated device has no negotiated format")
	}

	// The new device is persisted for the next boot.
	if _, known := h.store.Lookup("soft:0,0", ""); !known {
		t.Error("activation did not record the device in settings")
	}
}

func TestManagerActivatesInput(t *testing.T) {
	h := newManagerHarness(t)

	h.manager.AddInputDevice("Soft In", NewSoftTransport("soft:1,0", "Soft In", softRanges))
	waitChange(t, h.router, "add-input")

	devs := h.manager.Devices()
	if len(devs) != 1 || devs[0].Direction != "input" {
		t.Fatalf("Devices() = %+v", devs)
	}
}

func TestManagerIgnoredDeviceNeverRoutes(t *testing.T) {
	h := newManagerHarness(t)
	ds, _ := h.store.Lookup("soft:0,0", "Soft Out")
	ds.Ignored = true
	h.store.Update(ds)

	h.manager.AddOutputDevice("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges))

	select {
	case got := <-h.router.changes:
		t.Fatalf("ignored device produced routing change %q", got)
	case <-time.After(300 * time.Millisecond):
	}
	if len(h.manager.Devices()) != 0 {
		t.Error("ignored device kept alive")
	}
}

func TestManagerAppliesPersistedGain(t *testing.T) {
	h := newManagerHarness(t)
	ds, _ := h.store.Lookup("soft:0,0", "Soft Out")
	ds.Gain.GainDB = -24
	ds.Gain.Muted = true
	h.store.Update(ds)

	transport := NewSoftTransport("soft:0,0", "Soft Out", softRanges)
	h.manager.AddOutputDevice("Soft Out", transport)
	waitChange(t, h.router, "add-output")

	// Gain reaches the hardware through the I/O domain.
	deadline := time.Now().Add(5 * time.Second)
	for {
		g := transport.Gain()
		if g.GainDB == -24 && g.Muted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("persisted gain never reached hardware: %+v", g)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerSetDeviceGain(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.AddOutputDevice("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges))
	waitChange(t, h.router, "add-output")

	id := h.manager.Devices()[0].ID
	if err := h.manager.SetDeviceGain(id, GainState{GainDB: -6}, DirtyGain); err != nil {
		t.Fatalf("SetDeviceGain: %v", err)
	}
	if got := h.manager.Devices()[0].Gain.GainDB; got != -6 {
		t.Errorf("GainDB = %v, want -6", got)
	}

	// The change lands in settings under the hardware unique ID.
	ds, _ := h.store.Lookup("soft:0,0", "")
	if ds.Gain.GainDB != -6 {
		t.Errorf("persisted GainDB = %v, want -6", ds.Gain.GainDB)
	}

	err := h.manager.SetDeviceGain("no-such-device", GainState{}, DirtyGain)
	if err == nil {
		t.Fatal("SetDeviceGain accepted an unknown device")
	}
	var de *DeviceError
	if !errors.As(err, &de) || de.Code != ErrCodeDeviceNotFound {
		t.Errorf("unknown device error = %v, want code %s", err, ErrCodeDeviceNotFound)
	}
}

func TestManagerRemoveDevice(t *testing.T) {
	h := newManagerHarness(t)
	h.manager.AddOutputDevice("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges))
	waitChange(t, h.router, "add-output")

	id := h.manager.Devices()[0].ID
	h.manager.RemoveDevice(id)
	waitChange(t, h.router, "remove-output")

	if len(h.manager.Devices()) != 0 {
		t.Error("removed device still listed")
	}
}

func TestManagerPlugStateDrivesRouting(t *testing.T) {
	h := newManagerHarness(t)
	transport := NewSoftTransport("soft:0,0", "Soft Out", softRanges)
	h.manager.AddOutputDevice("Soft Out", transport)
	waitChange(t, h.router, "add-output")

	// Plug detect registration completes on the I/O domain after routing.
	deadline := time.Now().Add(5 * time.Second)
	for !transport.PlugDetectEnabled() {
		if time.Now().After(deadline) {
			t.Fatal("plug detect never enabled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	transport.SetPlugged(false)
	waitChange(t, h.router, "remove-output")
	transport.SetPlugged(true)
	waitChange(t, h.router, "add-output")
}
