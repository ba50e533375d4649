package capture

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/mix"
	"github.com/smazurov/audionode/internal/volume"
)

const mixPeriod = 10 * time.Millisecond

// ErrNoPayloadBuffer is returned for operations that need the shared
// payload buffer before one was supplied.
var ErrNoPayloadBuffer = errors.New("capture: payload buffer not supplied")

// ErrPacketsInFlight rejects StartAsyncCapture while sync packets are
// still pending.
var ErrPacketsInFlight = errors.New("capture: packets still in flight")

// Source is a device-side object a capturer can pull frames from: an
// input device, or an output device's loopback ring.
type Source interface {
	graph.Object
	// SourceFormat is the format frames are produced in.
	SourceFormat() format.Format
	// AvailableRange returns the [oldest, newest) source frame span
	// currently readable. Frames before oldest have been overwritten.
	AvailableRange() (int64, int64)
	// CopyOut copies source frames [from, to) into dst as float32.
	// Returns false when part of the range has already left the ring.
	CopyOut(from, to int64, dst []float32) bool
}

// Packet is one capture region inside the shared payload buffer.
type Packet struct {
	Sequence         uint64
	OffsetFrames     int64
	NumFrames        int64
	FilledFrames     int64
	CaptureTimestamp int64
	// Callback delivers the finished packet on the control domain.
	Callback func(Packet)
}

// Capturer is a recording stream graph object implementing the capture
// state machine.
type Capturer struct {
	id      string
	log     *slog.Logger
	bus     *events.Bus
	matrix  *graph.LinkMatrix
	control *exec.Domain
	mixDom  *exec.Domain
	curve   volume.Curve

	// mu guards format/usage/state plus the timeline below.
	mu      sync.Mutex
	state   State
	fmt     format.Format
	fmtSet  bool
	usage   volume.Usage
	muted   bool
	payload []byte
	gain    mix.Gain

	// qmu guards the packet queues. It is distinct from mu because the
	// queues are touched by both the mix tick and control calls, and the
	// mix tick must not contend with unrelated control-side state.
	qmu      sync.Mutex
	pending  []*Packet
	finished []*Packet
	nextSeq  uint64

	// Mix-domain state; only the mix tick touches it.
	timer       *exec.Timer
	srcFrame    int64
	srcPrimed   bool
	asyncFrames int64
	asyncOffset int64
	stopCB      func()
	sink        func(Packet)

	overflows        uint64
	partialOverflows uint64
}

// NewCapturer creates a capturer in WaitingForBuffer.
func NewCapturer(matrix *graph.LinkMatrix, bus *events.Bus, control, mixDom *exec.Domain) *Capturer {
	return &Capturer{
		id:      uuid.NewString(),
		log:     logging.GetLogger("capture"),
		bus:     bus,
		matrix:  matrix,
		control: control,
		mixDom:  mixDom,
		curve:   volume.DefaultCurve(),
		usage:   volume.UsageCaptureForeground,
		state:   WaitingForBuffer,
	}
}

// ID implements graph.Object.
func (c *Capturer) ID() string { return c.id }

// ObjectType implements graph.Object.
func (c *Capturer) ObjectType() graph.ObjectType { return graph.TypeCapturer }

// Format implements graph.Object.
func (c *Capturer) Format() (format.Format, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fmt, c.fmtSet
}

// OnLinkAdded implements graph.Object.
func (c *Capturer) OnLinkAdded(*graph.Link) {}

// OnLinkRemoved implements graph.Object.
func (c *Capturer) OnLinkRemoved(*graph.Link) {}

// State returns the current lifecycle state.
func (c *Capturer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition is the single place state changes happen.
func (c *Capturer) transition(to State, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(to, op)
}

func (c *Capturer) transitionLocked(to State, op string) error {
	if !transitionAllowed(c.state, to) {
		return &ErrBadTransition{From: c.state, To: to, Op: op}
	}
	c.log.Debug("State transition", "capturer", c.id, "from", c.state.String(), "to", to.String())
	c.state = to
	return nil
}

// SetPCMFormat negotiates the capture format. Legal until the payload
// buffer arrives.
func (c *Capturer) SetPCMFormat(f format.Format) error {
	if !f.Valid() {
		return format.ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != WaitingForBuffer {
		return &ErrBadTransition{From: c.state, Op: "SetPCMFormat"}
	}
	c.fmt = f
	c.fmtSet = true
	return nil
}

// SetUsage declares the capture usage.
func (c *Capturer) SetUsage(u volume.Usage) {
	c.mu.Lock()
	c.usage = u
	c.mu.Unlock()
}

// StreamUsage implements volume.Stream.
func (c *Capturer) StreamUsage() volume.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// StreamMute implements volume.Stream.
func (c *Capturer) StreamMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// SetMute mutes captured data. Legal in every state.
func (c *Capturer) SetMute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// RealizeVolume implements volume.Stream.
func (c *Capturer) RealizeVolume(cmd volume.Command) {
	db := c.curve.VolumeToDB(cmd.Volume) + cmd.GainDBAdjustment
	c.gain.SetSourceGainDB(db)
}

// SetPacketSink registers the callback that receives produced packets when
// no per-call callback was given (async capture, end-of-stream markers).
func (c *Capturer) SetPacketSink(sink func(Packet)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// AddPayloadBuffer supplies the shared buffer capture fills. Transitions
// WaitingForBuffer -> OperatingSync; requires a negotiated format.
func (c *Capturer) AddPayloadBuffer(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fmtSet {
		return format.ErrNotSupported
	}
	if len(buf) == 0 {
		return ErrNoPayloadBuffer
	}
	if err := c.transitionLocked(OperatingSync, "AddPayloadBuffer"); err != nil {
		return err
	}
	c.payload = buf
	return nil
}

// CaptureAt enqueues a pending capture packet. Legal only in OperatingSync;
// packets complete in FIFO sequence order regardless of which domain
// signals completion.
func (c *Capturer) CaptureAt(offsetFrames, numFrames int64, cb func(Packet)) error {
	c.mu.Lock()
	if c.state != OperatingSync {
		st := c.state
		c.mu.Unlock()
		return &ErrBadTransition{From: st, Op: "CaptureAt"}
	}
	bpf := int64(c.fmt.BytesPerFrame())
	if numFrames <= 0 || (offsetFrames+numFrames)*bpf > int64(len(c.payload)) {
		c.mu.Unlock()
		return ErrNoPayloadBuffer
	}
	c.mu.Unlock()

	c.qmu.Lock()
	c.nextSeq++
	c.pending = append(c.pending, &Packet{
		Sequence:     c.nextSeq,
		OffsetFrames: offsetFrames,
		NumFrames:    numFrames,
		Callback:     cb,
	})
	c.qmu.Unlock()

	c.ensureMixTimer()
	return nil
}

// DiscardAllPackets drops pending sync packets, delivering them back empty.
// Illegal while operating asynchronously.
func (c *Capturer) DiscardAllPackets() error {
	c.mu.Lock()
	if c.state != OperatingSync {
		st := c.state
		c.mu.Unlock()
		return &ErrBadTransition{From: st, Op: "DiscardAllPackets"}
	}
	c.mu.Unlock()

	c.qmu.Lock()
	dropped := c.pending
	c.pending = nil
	c.qmu.Unlock()

	for _, p := range dropped {
		c.deliver(p)
	}
	return nil
}

// StartAsyncCapture flips to continuous capture. Fails if sync packets are
// still in flight.
func (c *Capturer) StartAsyncCapture(framesPerPacket int64) error {
	c.qmu.Lock()
	inflight := len(c.pending) > 0
	c.qmu.Unlock()
	if inflight {
		return ErrPacketsInFlight
	}

	c.mu.Lock()
	if framesPerPacket <= 0 || !c.fmtSet ||
		framesPerPacket*int64(c.fmt.BytesPerFrame()) > int64(len(c.payload)) {
		c.mu.Unlock()
		return ErrNoPayloadBuffer
	}
	if err := c.transitionLocked(OperatingAsync, "StartAsyncCapture"); err != nil {
		c.mu.Unlock()
		return err
	}
	// The packet geometry must land before the lock is released; a mix
	// tick left armed by an earlier sync capture reads it as soon as it
	// observes OperatingAsync.
	c.asyncFrames = framesPerPacket
	c.asyncOffset = 0
	c.mu.Unlock()

	c.ensureMixTimer()
	return nil
}

// StopAsyncCapture schedules the async drain on the mix domain. The
// callback (optional) fires on the control domain after every finished
// packet has been delivered; the capturer is then back in OperatingSync.
func (c *Capturer) StopAsyncCapture(cb func()) error {
	if err := c.transition(AsyncStopping, "StopAsyncCapture"); err != nil {
		return err
	}
	c.stopCB = cb
	if err := c.mixDom.Post(c.finishAsyncStop); err != nil {
		// Mix domain already gone; finish inline.
		c.finishAsyncStop()
	}
	return nil
}

// ReleasePacket returns a delivered packet's payload region. Unrecognized
// releases are benign no-ops in every non-Shutdown state; a stale release
// must never kill the stream.
func (c *Capturer) ReleasePacket(sequence uint64) {
	c.mu.Lock()
	if c.state == Shutdown {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// Payload regions are client-managed in this model; nothing to free.
	_ = sequence
}

// Shutdown tears the capturer down from any state. Idempotent.
func (c *Capturer) Shutdown() {
	c.mu.Lock()
	if c.state == Shutdown {
		c.mu.Unlock()
		return
	}
	_ = c.transitionLocked(Shutdown, "")
	c.payload = nil
	timer := c.timer
	c.timer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	c.qmu.Lock()
	c.pending = nil
	c.finished = nil
	c.qmu.Unlock()
}

// Overflows returns the saturating (overflow, partial overflow) counters.
func (c *Capturer) Overflows() (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflows, c.partialOverflows
}
