// Package cmd holds the one-shot CLI subcommands: device listing, file
// playback, and capture to WAV. Each command stands up its own audio core
// rather than talking to a running service.
package cmd

import (
	"fmt"
	"time"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/device/alsa"
	"github.com/smazurov/audionode/internal/device/settings"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/volume"
)

// engine is the audio core a one-shot command runs against.
type engine struct {
	model    *exec.Model
	bus      *events.Bus
	matrix   *graph.LinkMatrix
	throttle *device.ThrottleOutput
	routes   *route.Graph
	store    *settings.Store
	manager  *device.Manager
	volumes  *volume.Manager
}

func startEngine(settingsPath string) *engine {
	model := exec.NewModel(exec.MixShared)
	bus := events.New()
	matrix := graph.NewLinkMatrix(nil)
	throttle := device.NewThrottleOutput(matrix, model.AcquireMixDomain())
	routes := route.NewGraph(matrix, bus, throttle)
	throttle.Start()

	store := settings.NewStore(settingsPath)
	_ = store.Load()

	return &engine{
		model:    model,
		bus:      bus,
		matrix:   matrix,
		throttle: throttle,
		routes:   routes,
		store:    store,
		manager:  device.NewManager(matrix, bus, routes, store, model),
		volumes:  volume.NewManager(bus),
	}
}

func (e *engine) stop() {
	e.manager.Shutdown()
	e.throttle.Shutdown()
	e.model.Shutdown()
}

// addFirstDevice scans ALSA PCMs and activates the first one in the wanted
// direction, waiting for the driver handshake to finish.
func (e *engine) addFirstDevice(playback bool, timeout time.Duration) error {
	devs, err := alsa.ScanPCMDevices()
	if err != nil {
		return err
	}

	added := make(chan struct{}, 1)
	unsub := e.bus.Subscribe(func(events.DeviceAddedEvent) {
		select {
		case added <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for _, d := range devs {
		if playback && d.Playback {
			e.manager.AddOutputDevice(d.Name, alsa.NewOutputTransport(d.Card, d.Device))
		} else if !playback && d.Capture {
			e.manager.AddInputDevice(d.Name, alsa.NewInputTransport(d.Card, d.Device))
		} else {
			continue
		}
		select {
		case <-added:
			return nil
		case <-time.After(timeout):
			return fmt.Errorf("device hw:%d,%d did not finish activation", d.Card, d.Device)
		}
	}
	if playback {
		return fmt.Errorf("no playback device found")
	}
	return fmt.Errorf("no capture device found")
}
