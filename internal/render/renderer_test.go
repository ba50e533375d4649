package render

import (
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/mix"
)

var stereo48k = format.Format{SampleFormat: format.Float32, Channels: 2, FramesPerSecond: 48000}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r := NewRenderer(graph.NewLinkMatrix(nil), nil)
	if err := r.SetPCMFormat(stereo48k); err != nil {
		t.Fatalf("SetPCMFormat: %v", err)
	}
	return r
}

func frames(n int, value float32) []float32 {
	out := make([]float32, n*2)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestSendPacketAssignsContiguousFrames(t *testing.T) {
	r := newTestRenderer(t)

	s1, err := r.SendPacket(frames(480, 0.1), nil)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	s2, err := r.SendPacket(frames(240, 0.2), nil)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if s2 != s1+1 {
		t.Errorf("sequences %d, %d not consecutive", s1, s2)
	}
	if r.QueuedPackets() != 2 {
		t.Errorf("QueuedPackets = %d, want 2", r.QueuedPackets())
	}
}

func TestSendPacketRequiresFormat(t *testing.T) {
	r := NewRenderer(graph.NewLinkMatrix(nil), nil)
	if _, err := r.SendPacket(frames(480, 0.1), nil); err == nil {
		t.Fatal("SendPacket before format must fail")
	}
}

func TestCopyFramesSpansPackets(t *testing.T) {
	r := newTestRenderer(t)
	r.SendPacket(frames(4, 0.25), nil)
	r.SendPacket(frames(4, 0.5), nil)
	r.Play(0)

	// Read 6 frames straddling the packet boundary.
	dst := make([]float32, 6*2)
	r.CopyFrames(2, dst)
	for i := 0; i < 4; i++ {
		if dst[i] != 0.25 {
			t.Fatalf("sample %d = %v, want 0.25 from the first packet", i, dst[i])
		}
	}
	for i := 4; i < 12; i++ {
		if dst[i] != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5 from the second packet", i, dst[i])
		}
	}

	// A gap past both packets reads silence.
	r.CopyFrames(100, dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("sample %d = %v past end of queue, want 0", i, v)
		}
	}
}

func TestCopyFramesSilentWhilePaused(t *testing.T) {
	r := newTestRenderer(t)
	r.SendPacket(frames(4, 0.25), nil)

	dst := make([]float32, 4*2)
	r.CopyFrames(0, dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("sample %d = %v before Play, want 0", i, v)
		}
	}

	r.Play(0)
	r.Pause()
	r.CopyFrames(0, dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("sample %d = %v while paused, want 0", i, v)
		}
	}
}

func TestTrimRetiresInOrder(t *testing.T) {
	r := newTestRenderer(t)
	var retired []int
	r.SendPacket(frames(480, 0.1), func() { retired = append(retired, 1) })
	r.SendPacket(frames(480, 0.2), func() { retired = append(retired, 2) })
	r.SendPacket(frames(480, 0.3), func() { retired = append(retired, 3) })

	// Frame 700 covers only the first packet.
	r.Trim(700)
	if len(retired) != 1 || retired[0] != 1 {
		t.Fatalf("retired = %v, want [1]", retired)
	}
	if r.QueuedPackets() != 2 {
		t.Fatalf("QueuedPackets = %d, want 2", r.QueuedPackets())
	}

	r.Trim(1440)
	if len(retired) != 3 {
		t.Fatalf("retired = %v, want all three", retired)
	}
	for i, seq := range retired {
		if seq != i+1 {
			t.Fatalf("retired out of order: %v", retired)
		}
	}
}

func TestTrimByTimeFollowsPlayAnchor(t *testing.T) {
	r := newTestRenderer(t)
	retired := false
	r.SendPacket(frames(480, 0.1), func() { retired = true })

	anchor := int64(1_000_000_000)
	r.Play(anchor)

	// 480 frames at 48kHz is 10ms past the anchor.
	r.TrimByTime(anchor + 9*int64(time.Millisecond))
	if retired {
		t.Fatal("packet retired before its frames were consumed")
	}
	r.TrimByTime(anchor + 10*int64(time.Millisecond))
	if !retired {
		t.Fatal("packet not retired after its span elapsed")
	}
}

func TestPlayAnchorsTimeline(t *testing.T) {
	r := newTestRenderer(t)
	anchor := int64(5_000_000_000)
	r.Play(anchor)
	if !r.Playing() {
		t.Fatal("Playing() = false after Play")
	}

	fn := r.RefToFracFrames()
	if got := fn.Apply(anchor); got != 0 {
		t.Errorf("frame at anchor = %d, want 0", got)
	}
	// One second past the anchor is 48000 frames.
	if got := fn.Apply(anchor + int64(time.Second)); got != 48000<<mix.FracBits {
		t.Errorf("frame at anchor+1s = %d, want %d", got, int64(48000)<<mix.FracBits)
	}
}

func TestMinLeadTimeTracksLinkedDevices(t *testing.T) {
	m := graph.NewLinkMatrix(nil)
	r := NewRenderer(m, nil)
	if err := r.SetPCMFormat(stereo48k); err != nil {
		t.Fatalf("SetPCMFormat: %v", err)
	}

	dev := &fakeSink{delay: 30 * time.Millisecond}
	if _, err := m.LinkObjects(r, dev); err != nil {
		t.Fatalf("LinkObjects: %v", err)
	}
	r.RecomputeMinLeadTime()
	if got := r.MinLeadTime(); got != 30*time.Millisecond {
		t.Errorf("MinLeadTime = %v, want 30ms", got)
	}
}

// fakeSink is a destination with a fixed presentation delay.
type fakeSink struct {
	delay time.Duration
}

func (f *fakeSink) ID() string                   { return "fake-sink" }
func (f *fakeSink) ObjectType() graph.ObjectType { return graph.TypeOutput }
func (f *fakeSink) Format() (format.Format, bool) {
	return stereo48k, true
}
func (f *fakeSink) OnLinkAdded(*graph.Link)          {}
func (f *fakeSink) OnLinkRemoved(*graph.Link)        {}
func (f *fakeSink) PresentationDelay() time.Duration { return f.delay }
