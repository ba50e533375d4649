package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/capture"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/render"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/timeline"
	"github.com/smazurov/audionode/internal/volume"
)

var engineTestRanges = []format.Range{{
	SampleFormats:      []format.SampleFormat{format.Signed16, format.Float32},
	MinChannels:        1,
	MaxChannels:        2,
	MinFramesPerSecond: 8000,
	MaxFramesPerSecond: 96000,
}}

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	eng := startEngine(filepath.Join(t.TempDir(), "devices.toml"))
	t.Cleanup(eng.stop)
	return eng
}

// addSoftDevice activates a soft transport and waits for routing.
func addSoftDevice(t *testing.T, eng *engine, playback bool) {
	t.Helper()
	added := make(chan struct{}, 1)
	unsub := eng.bus.Subscribe(func(events.DeviceAddedEvent) {
		select {
		case added <- struct{}{}:
		default:
		}
	})
	defer unsub()

	if playback {
		eng.manager.AddOutputDevice("Soft Out", device.NewSoftTransport("soft:0,0", "Soft Out", engineTestRanges))
	} else {
		eng.manager.AddInputDevice("Soft In", device.NewSoftTransport("soft:1,0", "Soft In", engineTestRanges))
	}
	select {
	case <-added:
	case <-time.After(10 * time.Second):
		t.Fatal("soft device never finished activation")
	}
}

// Mirrors the play command: decode, register, route, send, play, and wait
// for the last packet to retire.
func TestPlaybackFlowRetiresPackets(t *testing.T) {
	eng := newTestEngine(t)
	addSoftDevice(t, eng, true)

	f := format.Format{SampleFormat: format.Float32, Channels: 2, FramesPerSecond: 48000}
	r := render.NewRenderer(eng.matrix, func(fn func()) {
		_ = eng.model.Control().Post(fn)
	})
	if err := r.SetPCMFormat(f); err != nil {
		t.Fatal(err)
	}
	eng.volumes.AddStream(r)
	eng.volumes.SetUsageVolume(volume.UsageRenderMedia, 0.8, nil)
	eng.routes.AddRenderer(r)
	defer eng.routes.RemoveRenderer(r)
	eng.routes.SetRendererRoutingProfile(r, route.RoutingProfile{
		Routable: true,
		Usage:    volume.UsageRenderMedia,
	})

	if got := eng.matrix.DestLinkCount(r); got != 1 {
		t.Fatalf("renderer dest links = %d, want 1", got)
	}

	done := make(chan struct{})
	samples := make([]float32, packetFrames*f.Channels)
	for i := range samples {
		samples[i] = 0.25
	}
	if _, err := r.SendPacket(samples, func() { close(done) }); err != nil {
		t.Fatal(err)
	}

	lead := r.MinLeadTime()
	r.Play(timeline.MonotonicNow() + int64(lead) + int64(10*time.Millisecond))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("packet never retired; renderer is not linked to the output")
	}
}

// Mirrors the record command's default path: capture from the current
// input target into a payload buffer.
func TestCaptureFlowDeliversPackets(t *testing.T) {
	eng := newTestEngine(t)
	addSoftDevice(t, eng, false)

	f := format.Format{SampleFormat: format.Signed16, Channels: 2, FramesPerSecond: 48000}
	c := capture.NewCapturer(eng.matrix, eng.bus, eng.model.Control(), eng.model.AcquireMixDomain())
	defer c.Shutdown()
	if err := c.SetPCMFormat(f); err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, f.BytesPerFrame()*f.FramesPerSecond)
	if err := c.AddPayloadBuffer(payload); err != nil {
		t.Fatal(err)
	}

	packets := make(chan capture.Packet, 16)
	c.SetPacketSink(func(p capture.Packet) {
		packets <- p
		c.ReleasePacket(p.Sequence)
	})

	eng.routes.AddCapturer(c)
	defer eng.routes.RemoveCapturer(c)
	eng.routes.SetCapturerRoutingProfile(c, route.RoutingProfile{
		Routable: true,
		Usage:    volume.UsageCaptureForeground,
	})

	if got := eng.matrix.SourceLinkCount(c); got != 1 {
		t.Fatalf("capturer source links = %d, want 1", got)
	}

	if err := c.StartAsyncCapture(int64(f.FramesPerSecond / 10)); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-packets:
		if p.FilledFrames != int64(f.FramesPerSecond/10) {
			t.Errorf("FilledFrames = %d, want %d", p.FilledFrames, f.FramesPerSecond/10)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no capture packet delivered; capturer is not linked to the input")
	}

	drained := make(chan struct{})
	if err := c.StopAsyncCapture(func() { close(drained) }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		t.Fatal("async stop never drained")
	}
}
