package device

import (
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/render"
	"github.com/smazurov/audionode/internal/timeline"
)

func stereo48kFloat() format.Format {
	return format.Format{SampleFormat: format.Float32, Channels: 2, FramesPerSecond: 48000}
}

func activateOutput(t *testing.T) (*Output, *graph.LinkMatrix, func()) {
	t.Helper()
	matrix := graph.NewLinkMatrix(nil)
	mixDom := exec.NewDomain("mix")
	io := exec.NewDomain("io")
	out := NewOutput("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges),
		matrix, nil, mixDom, io)

	done := make(chan error, 1)
	out.Activate(preferred, func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Activate: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("activation never completed")
	}

	cleanup := func() {
		out.Shutdown()
		io.Shutdown()
		mixDom.Shutdown()
	}
	return out, matrix, cleanup
}

func TestOutputMixesRendererIntoRing(t *testing.T) {
	out, matrix, cleanup := activateOutput(t)
	defer cleanup()

	r := render.NewRenderer(matrix, nil)
	if err := r.SetPCMFormat(stereo48kFloat()); err != nil {
		t.Fatalf("SetPCMFormat: %v", err)
	}
	if _, err := matrix.LinkObjects(r, out); err != nil {
		t.Fatalf("LinkObjects: %v", err)
	}

	retired := make(chan struct{})
	samples := make([]float32, 4800*2)
	for i := range samples {
		samples[i] = 0.5
	}
	if _, err := r.SendPacket(samples, func() { close(retired) }); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	r.Play(timeline.MonotonicNow())

	// 4800 frames is 100ms of audio; the mix loop consumes it in
	// roughly real time.
	select {
	case <-retired:
	case <-time.After(10 * time.Second):
		t.Fatal("mix loop never consumed the packet")
	}

	// The loopback ring saw the mixed frames.
	oldest, newest := out.AvailableRange()
	if newest <= oldest {
		t.Fatalf("loopback range [%d, %d) empty after mixing", oldest, newest)
	}
	f := out.SourceFormat()
	dst := make([]float32, 16*f.Channels)
	if !out.CopyOut(newest-16, newest, dst) {
		t.Fatal("CopyOut of the freshest span failed")
	}
}

func TestOutputMuteStillConsumes(t *testing.T) {
	out, matrix, cleanup := activateOutput(t)
	defer cleanup()
	out.SetGainInfo(GainState{Muted: true}, DirtyMute)

	r := render.NewRenderer(matrix, nil)
	if err := r.SetPCMFormat(stereo48kFloat()); err != nil {
		t.Fatalf("SetPCMFormat: %v", err)
	}
	if _, err := matrix.LinkObjects(r, out); err != nil {
		t.Fatalf("LinkObjects: %v", err)
	}

	retired := make(chan struct{})
	if _, err := r.SendPacket(make([]float32, 2400*2), func() { close(retired) }); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	r.Play(timeline.MonotonicNow())

	// A muted device writes silence but consumption pacing is unchanged.
	select {
	case <-retired:
	case <-time.After(10 * time.Second):
		t.Fatal("muted output stalled packet consumption")
	}

	// Loopback history records the silence the hardware is emitting.
	oldest, newest := out.AvailableRange()
	if newest <= oldest {
		t.Fatal("muted output recorded no loopback history")
	}
	n := newest - oldest
	if n > 64 {
		n = 64
	}
	dst := make([]float32, n*int64(out.SourceFormat().Channels))
	if !out.CopyOut(newest-n, newest, dst) {
		t.Fatal("CopyOut failed")
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("muted loopback sample %d = %v, want 0", i, v)
		}
	}
}

func TestOutputPresentationDelayBeforeConfigure(t *testing.T) {
	mixDom := exec.NewDomain("mix")
	defer mixDom.Shutdown()
	io := exec.NewDomain("io")
	defer io.Shutdown()
	matrix := graph.NewLinkMatrix(nil)

	out := NewOutput("Soft Out", NewSoftTransport("soft:0,0", "Soft Out", softRanges),
		matrix, nil, mixDom, io)
	defer out.Shutdown()
	if d := out.PresentationDelay(); d != 0 {
		t.Errorf("PresentationDelay before configure = %v, want 0", d)
	}
	if _, ok := out.Format(); ok {
		t.Error("Format() reported set before configure")
	}
}
