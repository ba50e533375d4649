package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/mix"
	"github.com/smazurov/audionode/internal/timeline"
)

// Input is a hardware-backed capture device. The hardware fills the ring
// buffer; capturers pull frames out through the capture source contract.
type Input struct {
	id     string
	name   string
	log    *slog.Logger
	driver *Driver
	clock  *timeline.Clock

	mu    sync.Mutex
	gain  GainState
	dirty DirtyFlags
}

// NewInput creates an inactive input device around a transport.
func NewInput(name string, transport Transport, domain, io *exec.Domain) *Input {
	in := &Input{
		id:    uuid.NewString(),
		name:  name,
		log:   logging.GetLogger("device"),
		clock: timeline.NewClock(nil, false),
	}
	in.driver = NewDriver(transport, domain, io, in.clock, func(cmd string, overrun time.Duration) {
		in.log.Warn("Input driver timeout", "device", in.id, "cmd", cmd, "overrun", overrun)
	})
	return in
}

// ID implements graph.Object.
func (in *Input) ID() string { return in.id }

// Name returns the human-readable device name.
func (in *Input) Name() string { return in.name }

// ObjectType implements graph.Object.
func (in *Input) ObjectType() graph.ObjectType { return graph.TypeInput }

// Format implements graph.Object.
func (in *Input) Format() (format.Format, bool) { return in.driver.Format() }

// OnLinkAdded implements graph.Object.
func (in *Input) OnLinkAdded(*graph.Link) {}

// OnLinkRemoved implements graph.Object.
func (in *Input) OnLinkRemoved(*graph.Link) {}

// Driver exposes the handshake state machine.
func (in *Input) Driver() *Driver { return in.driver }

// Activate walks the driver through info/configure/start.
func (in *Input) Activate(pref format.Format, done func(error)) {
	in.driver.FetchDriverInfo(func(err error) {
		if err != nil {
			done(err)
			return
		}
		in.driver.Configure(pref, 4*MixPeriod, func(err error) {
			if err != nil {
				done(err)
				return
			}
			in.driver.Start(done)
		})
	})
}

// Shutdown tears the driver down. Idempotent.
func (in *Input) Shutdown() {
	in.driver.Shutdown()
}

// SetGainInfo applies a gain change. Only the dirty delta reaches the
// hardware.
func (in *Input) SetGainInfo(state GainState, flags DirtyFlags) {
	in.mu.Lock()
	if flags&DirtyGain != 0 {
		in.gain.GainDB = state.GainDB
	}
	if flags&DirtyMute != 0 {
		in.gain.Muted = state.Muted
	}
	if flags&DirtyAGC != 0 {
		in.gain.AGCEnabled = state.AGCEnabled
	}
	in.dirty |= flags
	gain := in.gain
	dirty := in.dirty
	in.dirty = 0
	in.mu.Unlock()
	in.driver.SendGain(gain, dirty)
}

// GainInfo returns the current gain state.
func (in *Input) GainInfo() GainState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.gain
}

// SourceFormat implements the capture source contract.
func (in *Input) SourceFormat() format.Format {
	f, _ := in.driver.Format()
	return f
}

// AvailableRange implements the capture source contract. The newest
// readable frame trails the hardware position by the FIFO depth; the
// oldest is one ring behind that.
func (in *Input) AvailableRange() (int64, int64) {
	ring, refToFrame, _ := in.driver.Ring()
	if ring.Frames == 0 {
		return 0, 0
	}
	newest := refToFrame.Apply(in.clock.Now()) - ring.FIFOFrames
	if newest < 0 {
		newest = 0
	}
	oldest := newest - ring.Frames
	if oldest < 0 {
		oldest = 0
	}
	return oldest, newest
}

// CopyOut implements the capture source contract, converting ring bytes
// to float32. Returns false when the span has left the ring or has not
// been captured yet.
func (in *Input) CopyOut(from, to int64, dst []float32) bool {
	ring, _, _ := in.driver.Ring()
	f, ok := in.driver.Format()
	if !ok || ring.Frames == 0 || from > to {
		return false
	}
	oldest, newest := in.AvailableRange()
	if from < oldest || to > newest {
		return false
	}

	bpf := int64(f.BytesPerFrame())
	ch := int64(f.Channels)
	for done := int64(0); done < to-from; {
		frame := (from + done) % ring.Frames
		n := to - from - done
		if frame+n > ring.Frames {
			n = ring.Frames - frame
		}
		mix.FromWire(dst[done*ch:(done+n)*ch], ring.Data[frame*bpf:(frame+n)*bpf], f.SampleFormat)
		done += n
	}
	return true
}
