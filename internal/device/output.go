package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/mix"
	"github.com/smazurov/audionode/internal/timeline"
)

// MixPeriod is the wakeup cadence of an output's mix loop.
const MixPeriod = 10 * time.Millisecond

// highWater is how far ahead of the hardware pointer the write pointer is
// kept; two periods absorbs one full missed wakeup.
const highWater = 2 * MixPeriod

// MixSource is a linked object the mix loop can pull frames from.
// Renderers implement it.
type MixSource interface {
	graph.Object
	// CopyFrames fills dst with interleaved source-format samples
	// starting at the given source frame, zero-filling gaps.
	CopyFrames(frame int64, dst []float32)
	// Trim releases stream data consumed through the given frame.
	Trim(frame int64)
	// RefToFracFrames maps reference time to fractional source frames.
	RefToFracFrames() timeline.Function
	// Playing reports whether the source timeline is running.
	Playing() bool
}

// MixJob is one span of destination frames to produce.
type MixJob struct {
	StartFrame int64
	Frames     int64
	Muted      bool
	buf        []float32
}

// Output is a hardware-backed output device. Its mix loop runs on the
// device's mix domain; gain and plug state are shared with the control
// domain under a mutex.
type Output struct {
	id     string
	name   string
	log    *slog.Logger
	bus    *events.Bus
	matrix *graph.LinkMatrix
	driver *Driver
	domain *exec.Domain
	clock  *timeline.Clock

	mu      sync.Mutex
	gain    GainState
	dirty   DirtyFlags
	plugged bool
	running bool

	// Mix-domain state; only mix tasks touch it.
	primed       bool
	frameWritten int64
	scheduled    time.Time
	timer        *exec.Timer

	// Loopback history ring, written after every mix job.
	loopMu     sync.Mutex
	loopBuf    []float32
	loopFrames int64
	loopEnd    int64
}

// NewOutput creates an inactive output device around a transport.
func NewOutput(name string, transport Transport, matrix *graph.LinkMatrix, bus *events.Bus, domain, io *exec.Domain) *Output {
	o := &Output{
		id:     uuid.NewString(),
		name:   name,
		log:    logging.GetLogger("device"),
		bus:    bus,
		matrix: matrix,
		domain: domain,
		clock:  timeline.NewClock(nil, false),
	}
	o.driver = NewDriver(transport, domain, io, o.clock, func(cmd string, overrun time.Duration) {
		o.log.Warn("Output driver timeout", "device", o.id, "cmd", cmd, "overrun", overrun)
	})
	return o
}

// ID implements graph.Object.
func (o *Output) ID() string { return o.id }

// Name returns the human-readable device name.
func (o *Output) Name() string { return o.name }

// ObjectType implements graph.Object.
func (o *Output) ObjectType() graph.ObjectType { return graph.TypeOutput }

// Format implements graph.Object.
func (o *Output) Format() (format.Format, bool) { return o.driver.Format() }

// OnLinkAdded implements graph.Object. The new link's bookkeeping is
// refreshed lazily on the next mix pass.
func (o *Output) OnLinkAdded(*graph.Link) {}

// OnLinkRemoved implements graph.Object.
func (o *Output) OnLinkRemoved(*graph.Link) {}

// Driver exposes the handshake state machine.
func (o *Output) Driver() *Driver { return o.driver }

// PresentationDelay implements the renderer lead-time contract.
func (o *Output) PresentationDelay() time.Duration {
	return o.driver.PresentationDelay()
}

// Activate walks the driver through info/configure/start and then begins
// the mix loop. done is called on completion either way.
func (o *Output) Activate(pref format.Format, done func(error)) {
	o.driver.FetchDriverInfo(func(err error) {
		if err != nil {
			done(err)
			return
		}
		o.driver.Configure(pref, highWater+2*MixPeriod, func(err error) {
			if err != nil {
				done(err)
				return
			}
			o.driver.Start(func(err error) {
				if err != nil {
					done(err)
					return
				}
				o.startMixLoop()
				done(nil)
			})
		})
	})
}

// Shutdown stops the loop and tears the driver down. Idempotent; safe from
// the control domain. Hardware release happens on the mix domain before the
// driver closes the transport.
func (o *Output) Shutdown() {
	o.mu.Lock()
	running := o.running
	o.running = false
	o.mu.Unlock()
	if !running {
		o.driver.Shutdown()
		return
	}
	_ = o.domain.Post(func() {
		if o.timer != nil {
			o.timer.Cancel()
			o.timer = nil
		}
		o.driver.Shutdown()
	})
}

// SetGainInfo applies a gain change from routing or the client surface.
// Only the dirty delta reaches the hardware.
func (o *Output) SetGainInfo(state GainState, flags DirtyFlags) {
	o.mu.Lock()
	if flags&DirtyGain != 0 {
		o.gain.GainDB = state.GainDB
	}
	if flags&DirtyMute != 0 {
		o.gain.Muted = state.Muted
	}
	if flags&DirtyAGC != 0 {
		o.gain.AGCEnabled = state.AGCEnabled
	}
	o.dirty |= flags
	gain := o.gain
	dirty := o.dirty
	o.dirty = 0
	o.mu.Unlock()
	o.driver.SendGain(gain, dirty)
}

// GainInfo returns the current gain state.
func (o *Output) GainInfo() GainState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gain
}

func (o *Output) startMixLoop() {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	_ = o.domain.Post(func() {
		o.scheduled = time.Now()
		o.setupLoopback()
		o.mixPass()
	})
}

// mixPass produces one job and reschedules itself with drift catchup: a
// missed deadline resets the schedule to now+period instead of trying to
// run every missed pass back to back.
func (o *Output) mixPass() {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if !running {
		return
	}

	passStart := time.Now()
	if job, ok := o.StartMixJob(o.clock.Now()); ok {
		o.process(job)
		o.FinishMixJob(job)
	}
	metrics.ObserveMixPass(o.id, time.Since(passStart).Seconds())

	next := o.scheduled.Add(MixPeriod)
	if now := time.Now(); now.After(next) {
		late := now.Sub(next)
		metrics.IncMixOverrun(o.id)
		if o.bus != nil {
			o.bus.Publish(events.MixOverrunEvent{
				DeviceID:  o.id,
				LateBy:    late.String(),
				Timestamp: now.UTC().Format(time.RFC3339),
			})
		}
		next = now.Add(MixPeriod)
	}
	o.scheduled = next
	if t, err := o.domain.PostAt(next, o.mixPass); err == nil {
		o.timer = t
	}
}

// StartMixJob computes the destination frame span due now: enough to keep
// the write pointer a high-water interval ahead of the hardware pointer,
// bounded by ring headroom.
func (o *Output) StartMixJob(refNow int64) (*MixJob, bool) {
	ring, refToFrame, _ := o.driver.Ring()
	f, ok := o.driver.Format()
	if !ok || ring.Frames == 0 {
		return nil, false
	}

	target := refToFrame.Apply(refNow+int64(highWater)) + ring.FIFOFrames
	if !o.primed {
		o.frameWritten = refToFrame.Apply(refNow) + ring.FIFOFrames
		o.primed = true
	}
	span := target - o.frameWritten
	if span <= 0 {
		return nil, false
	}
	if headroom := ring.Frames - ring.FIFOFrames; span > headroom {
		span = headroom
	}

	o.mu.Lock()
	muted := o.gain.Muted
	o.mu.Unlock()

	return &MixJob{
		StartFrame: o.frameWritten,
		Frames:     span,
		Muted:      muted,
		buf:        make([]float32, span*int64(f.Channels)),
	}, true
}

// process pulls every linked source into the job buffer. The link set is a
// snapshot; the matrix lock is never held across a mix call. A muted
// device skips mixing but still trims sources so packet retirement keeps
// its normal schedule.
func (o *Output) process(job *MixJob) {
	_, refToFrame, gen := o.driver.Ring()

	for _, l := range o.matrix.SourceLinks(o) {
		src, ok := l.Source.(MixSource)
		if !ok || !src.Playing() {
			continue
		}
		bk := l.Bookkeeping
		if bk.Stale(gen) {
			bk.Refresh(refToFrame, src.RefToFracFrames(), gen)
		}

		fracStart := bk.DestToFracSource.Apply(job.StartFrame)
		fracEnd := bk.DestToFracSource.Apply(job.StartFrame + job.Frames)

		if !job.Muted && bk.Mixer != nil && !bk.Gain.Muted() {
			step := bk.Mixer.StepSize()
			srcFormat, _ := src.Format()
			srcFrames := (job.Frames*step)>>mix.FracBits + 2
			srcBuf := make([]float32, srcFrames*int64(srcFormat.Channels))
			src.CopyFrames(fracStart>>mix.FracBits, srcBuf)

			destOffset := 0
			fracSrc := fracStart & (mix.FracOne - 1)
			bk.Mixer.Mix(job.buf, int(job.Frames), &destOffset,
				srcBuf, srcFrames<<mix.FracBits, &fracSrc,
				true, &bk.Gain)
		}

		src.Trim(fracEnd >> mix.FracBits)
	}
}

// FinishMixJob converts the mixed buffer to the wire format and writes it
// into the ring at the job's frame position, then records the frames into
// the loopback history.
func (o *Output) FinishMixJob(job *MixJob) {
	ring, _, _ := o.driver.Ring()
	f, ok := o.driver.Format()
	if !ok || ring.Frames == 0 {
		return
	}
	bpf := int64(f.BytesPerFrame())

	// Ring writes wrap on frame boundaries.
	for done := int64(0); done < job.Frames; {
		frame := (job.StartFrame + done) % ring.Frames
		n := job.Frames - done
		if frame+n > ring.Frames {
			n = ring.Frames - frame
		}
		dst := ring.Data[frame*bpf : (frame+n)*bpf]
		if job.Muted {
			mix.Silence(dst, f.SampleFormat)
		} else {
			samples := job.buf[done*int64(f.Channels) : (done+n)*int64(f.Channels)]
			mix.ToWire(dst, samples, f.SampleFormat)
		}
		done += n
	}

	o.writeLoopback(job)
	o.frameWritten = job.StartFrame + job.Frames
}
