// Package render implements client playback streams. A renderer owns the
// packet queue feeding its destination links; packets are retired as the
// destination's timeline sweeps past them, whether the device actually
// played them (mute writes silence but consumption continues) or the
// throttle output trimmed them.
package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/mix"
	"github.com/smazurov/audionode/internal/timeline"
	"github.com/smazurov/audionode/internal/volume"
)

// Packet is one queued span of PCM from the client.
type Packet struct {
	Sequence   uint64
	StartFrame int64
	Frames     int64
	// Samples is interleaved float32 at the renderer's format.
	Samples []float32
	// OnRetire runs on the control domain once the packet has been fully
	// consumed or trimmed.
	OnRetire func()
}

// Renderer is a playback stream graph object.
type Renderer struct {
	id     string
	log    *slog.Logger
	matrix *graph.LinkMatrix
	curve  volume.Curve

	mu        sync.Mutex
	fmt       format.Format
	fmtSet    bool
	usage     volume.Usage
	muted     bool
	playing   bool
	refToFrac timeline.Function
	queue     []*Packet
	nextSeq   uint64
	nextFrame int64
	trimmed   int64
	leadTime  time.Duration

	retire func(func())
}

// NewRenderer creates a renderer with media usage and no format.
// retire, when non-nil, is used to post packet completion callbacks back to
// the control domain.
func NewRenderer(matrix *graph.LinkMatrix, retire func(func())) *Renderer {
	if retire == nil {
		retire = func(f func()) { f() }
	}
	return &Renderer{
		id:     uuid.NewString(),
		log:    logging.GetLogger("render"),
		matrix: matrix,
		curve:  volume.DefaultCurve(),
		usage:  volume.UsageRenderMedia,
		retire: retire,
	}
}

// ID implements graph.Object.
func (r *Renderer) ID() string { return r.id }

// ObjectType implements graph.Object.
func (r *Renderer) ObjectType() graph.ObjectType { return graph.TypeRenderer }

// Format implements graph.Object.
func (r *Renderer) Format() (format.Format, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fmt, r.fmtSet
}

// OnLinkAdded implements graph.Object. Renderers are never destinations.
func (r *Renderer) OnLinkAdded(*graph.Link) {}

// OnLinkRemoved implements graph.Object.
func (r *Renderer) OnLinkRemoved(*graph.Link) {}

// SetPCMFormat negotiates the stream format. Must precede Play.
func (r *Renderer) SetPCMFormat(f format.Format) error {
	if !f.Valid() {
		return format.ErrNotSupported
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fmt = f
	r.fmtSet = true
	return nil
}

// SetUsage declares the stream usage. Takes effect on the next routing
// profile update.
func (r *Renderer) SetUsage(u volume.Usage) {
	r.mu.Lock()
	r.usage = u
	r.mu.Unlock()
}

// StreamUsage implements volume.Stream.
func (r *Renderer) StreamUsage() volume.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// StreamMute implements volume.Stream.
func (r *Renderer) StreamMute() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// SetMute mutes the stream's contribution without stalling its packets.
func (r *Renderer) SetMute(muted bool) {
	r.mu.Lock()
	r.muted = muted
	r.mu.Unlock()
}

// RealizeVolume implements volume.Stream: the realized gain lands on every
// dest link's bookkeeping.
func (r *Renderer) RealizeVolume(cmd volume.Command) {
	db := r.curve.VolumeToDB(cmd.Volume) + cmd.GainDBAdjustment
	r.mu.Lock()
	f := r.fmt
	fmtSet := r.fmtSet
	r.mu.Unlock()

	r.matrix.ForEachDestLink(r, func(l *graph.Link) {
		g := &l.Bookkeeping.Gain
		if cmd.Ramp != nil && fmtSet {
			frames := int64(cmd.Ramp.Duration) * int64(f.FramesPerSecond) / int64(time.Second)
			g.SetSourceGainWithRamp(db, frames, cmd.Ramp.Type)
			return
		}
		g.SetSourceGainDB(db)
	})
}

// Play anchors the renderer's frame timeline at the given reference time
// and starts consuming packets.
func (r *Renderer) Play(refTime int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fmtSet {
		r.log.Warn("Play before format negotiation", "renderer", r.id)
		return
	}
	rate := timeline.NewRate(
		uint64(r.fmt.FramesPerSecond)<<mix.FracBits, 1_000_000_000)
	r.refToFrac = timeline.NewFunction(0, refTime, rate)
	r.playing = true
}

// Pause stops the timeline; queued packets stay queued.
func (r *Renderer) Pause() {
	r.mu.Lock()
	r.playing = false
	r.mu.Unlock()
}

// SendPacket enqueues PCM at the stream's write cursor. The retire callback
// fires once the packet is fully consumed.
func (r *Renderer) SendPacket(samples []float32, onRetire func()) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fmtSet {
		return 0, format.ErrNotSupported
	}
	frames := int64(len(samples) / r.fmt.Channels)
	r.nextSeq++
	p := &Packet{
		Sequence:   r.nextSeq,
		StartFrame: r.nextFrame,
		Frames:     frames,
		Samples:    samples,
		OnRetire:   onRetire,
	}
	r.nextFrame += frames
	r.queue = append(r.queue, p)
	return p.Sequence, nil
}

// QueuedPackets returns the number of unretired packets.
func (r *Renderer) QueuedPackets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// CopyFrames implements the mix-source contract: fill dst with interleaved
// samples starting at the given source frame, zero-filling gaps. Called
// from the mix domain.
func (r *Renderer) CopyFrames(frame int64, dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return
	}
	chans := r.fmt.Channels
	frames := int64(len(dst) / chans)
	for _, p := range r.queue {
		if p.StartFrame >= frame+frames || p.StartFrame+p.Frames <= frame {
			continue
		}
		srcStart := int64(0)
		dstStart := p.StartFrame - frame
		if dstStart < 0 {
			srcStart = -dstStart
			dstStart = 0
		}
		n := p.Frames - srcStart
		if n > frames-dstStart {
			n = frames - dstStart
		}
		copy(dst[dstStart*int64(chans):(dstStart+n)*int64(chans)],
			p.Samples[srcStart*int64(chans):(srcStart+n)*int64(chans)])
	}
}

// Trim retires every packet wholly consumed through the given frame.
// Retirement callbacks are posted to the control domain in FIFO order.
func (r *Renderer) Trim(frame int64) {
	var done []*Packet
	r.mu.Lock()
	for len(r.queue) > 0 {
		p := r.queue[0]
		if p.StartFrame+p.Frames > frame {
			break
		}
		done = append(done, p)
		r.queue = r.queue[1:]
	}
	if frame > r.trimmed {
		r.trimmed = frame
	}
	r.mu.Unlock()

	for _, p := range done {
		if p.OnRetire != nil {
			r.retire(p.OnRetire)
		}
	}
}

// TrimByTime trims against the renderer's own timeline; the throttle output
// uses this since it has no hardware frame cursor.
func (r *Renderer) TrimByTime(refTime int64) {
	r.mu.Lock()
	playing := r.playing
	fn := r.refToFrac
	r.mu.Unlock()
	if !playing {
		return
	}
	r.Trim(fn.Apply(refTime) >> mix.FracBits)
}

// RefToFracFrames returns the reference-time to fractional-frame transform.
func (r *Renderer) RefToFracFrames() timeline.Function {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refToFrac
}

// Playing reports whether the timeline is running.
func (r *Renderer) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// RecomputeMinLeadTime walks the reachable devices and adopts the largest
// presentation delay. Invoked by the route graph whenever the renderer is
// linked to a new target.
func (r *Renderer) RecomputeMinLeadTime() {
	var lead time.Duration
	r.matrix.ForEachDestLink(r, func(l *graph.Link) {
		if d, ok := l.Dest.(interface{ PresentationDelay() time.Duration }); ok {
			if pd := d.PresentationDelay(); pd > lead {
				lead = pd
			}
		}
	})
	r.mu.Lock()
	r.leadTime = lead
	r.mu.Unlock()
}

// MinLeadTime returns the current minimum lead time.
func (r *Renderer) MinLeadTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leadTime
}
