package capture

import (
	"time"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/mix"
)

// ensureMixTimer arms the periodic fill tick on the mix domain. The tick
// reschedules itself while there is work; letting it lapse is the idle
// state, not an error.
func (c *Capturer) ensureMixTimer() {
	c.mu.Lock()
	if c.timer != nil || c.state == Shutdown {
		c.mu.Unlock()
		return
	}
	timer, err := c.mixDom.PostAfter(mixPeriod, c.mixTick)
	if err == nil {
		c.timer = timer
	}
	c.mu.Unlock()
}

func (c *Capturer) mixTick() {
	c.mu.Lock()
	c.timer = nil
	state := c.state
	c.mu.Unlock()

	switch state {
	case OperatingSync, OperatingAsync:
		c.fill(false)
	case AsyncStopping:
		// finishAsyncStop owns the drain; nothing to do here.
		return
	default:
		return
	}

	// Reschedule while there is buffered work or async capture runs.
	c.qmu.Lock()
	more := len(c.pending) > 0
	c.qmu.Unlock()
	if state == OperatingAsync {
		more = true
	}
	if more {
		c.mu.Lock()
		if c.timer == nil && c.state != Shutdown {
			if t, err := c.mixDom.PostAfter(mixPeriod, c.mixTick); err == nil {
				c.timer = t
			}
		}
		c.mu.Unlock()
	}
}

// source returns the device currently feeding this capturer, if any.
func (c *Capturer) source() Source {
	for _, l := range c.matrix.SourceLinks(c) {
		if s, ok := l.Source.(Source); ok {
			return s
		}
	}
	return nil
}

// fill moves as many source frames as are available into pending packets.
// Runs on the mix domain only. When drain is true a partially filled packet
// is finished as-is.
func (c *Capturer) fill(drain bool) {
	src := c.source()
	if src == nil {
		return
	}

	oldest, newest := src.AvailableRange()
	if !c.srcPrimed {
		c.srcFrame = newest
		c.srcPrimed = true
	}
	if c.srcFrame < oldest {
		// The ring lapped us: a complete capture interval was lost.
		c.noteOverflow(false)
		c.srcFrame = oldest
	}

	for {
		p := c.currentPacket()
		if p == nil {
			break
		}
		want := p.NumFrames - p.FilledFrames
		avail := c.destFramesAvailable(src, newest)
		n := want
		if n > avail {
			n = avail
		}
		if n <= 0 {
			break
		}
		if !c.copyInto(src, p, n) {
			c.noteOverflow(true)
		}
		p.FilledFrames += n
		if p.CaptureTimestamp == 0 {
			p.CaptureTimestamp = time.Now().UnixNano()
		}
		if p.FilledFrames >= p.NumFrames {
			c.completeCurrent()
		} else if !drain {
			break
		}
	}

	if drain {
		if p := c.currentPacket(); p != nil && p.FilledFrames > 0 {
			c.completeCurrent()
		}
	}
}

// destFramesAvailable converts the unread source span into whole
// destination frames at the capturer's rate.
func (c *Capturer) destFramesAvailable(src Source, newest int64) int64 {
	srcSpan := newest - c.srcFrame
	if srcSpan <= 0 {
		return 0
	}
	step := c.stepSize(src)
	if step <= 0 {
		return 0
	}
	return (srcSpan << mix.FracBits) / step
}

func (c *Capturer) stepSize(src Source) int64 {
	sf := src.SourceFormat()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fmtSet {
		return 0
	}
	return (int64(sf.FramesPerSecond) << mix.FracBits) / int64(c.fmt.FramesPerSecond)
}

// currentPacket returns the packet being filled, creating the next async
// packet when operating asynchronously.
func (c *Capturer) currentPacket() *Packet {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.pending) > 0 {
		return c.pending[0]
	}

	c.mu.Lock()
	async := c.state == OperatingAsync
	bpf := int64(c.fmt.BytesPerFrame())
	payloadFrames := int64(len(c.payload)) / max(bpf, 1)
	c.mu.Unlock()
	if !async {
		return nil
	}

	if c.asyncOffset+c.asyncFrames > payloadFrames {
		c.asyncOffset = 0
	}
	c.nextSeq++
	p := &Packet{
		Sequence:     c.nextSeq,
		OffsetFrames: c.asyncOffset,
		NumFrames:    c.asyncFrames,
	}
	c.asyncOffset += c.asyncFrames
	c.pending = append(c.pending, p)
	return p
}

// copyInto resamples n destination frames from the source into the packet's
// payload region. Returns false if part of the source span was lost.
func (c *Capturer) copyInto(src Source, p *Packet, n int64) bool {
	sf := src.SourceFormat()
	step := c.stepSize(src)

	c.mu.Lock()
	capFmt := c.fmt
	payload := c.payload
	muted := c.muted
	c.mu.Unlock()

	srcFrames := ((n*step)>>mix.FracBits + 2)
	srcBuf := make([]float32, srcFrames*int64(sf.Channels))
	ok := src.CopyOut(c.srcFrame, c.srcFrame+srcFrames, srcBuf)

	scratch := make([]float32, n*int64(capFmt.Channels))
	mixer, err := mix.NewMixer(sf, capFmt)
	if err == nil && !muted {
		destOffset := 0
		fracSrc := int64(0)
		mixer.Mix(scratch, int(n), &destOffset,
			srcBuf, srcFrames<<mix.FracBits, &fracSrc,
			false, &c.gain)
	}

	bpf := int64(capFmt.BytesPerFrame())
	start := (p.OffsetFrames + p.FilledFrames) * bpf
	region := payload[start : start+n*bpf]
	if muted {
		mix.Silence(region, capFmt.SampleFormat)
	} else {
		mix.ToWire(region, scratch, capFmt.SampleFormat)
	}

	c.srcFrame += (n * step) >> mix.FracBits
	return ok
}

// completeCurrent moves the head pending packet to the finished queue and
// schedules delivery on the control domain.
func (c *Capturer) completeCurrent() {
	c.qmu.Lock()
	if len(c.pending) == 0 {
		c.qmu.Unlock()
		return
	}
	p := c.pending[0]
	c.pending = c.pending[1:]
	c.finished = append(c.finished, p)
	c.qmu.Unlock()
	c.deliverFinished()
}

// deliverFinished flushes the finished queue to the client in FIFO order.
func (c *Capturer) deliverFinished() {
	c.qmu.Lock()
	done := c.finished
	c.finished = nil
	c.qmu.Unlock()
	for _, p := range done {
		c.deliver(p)
	}
}

func (c *Capturer) deliver(p *Packet) {
	cb := p.Callback
	if cb == nil {
		c.mu.Lock()
		cb = c.sink
		c.mu.Unlock()
	}
	if cb == nil {
		return
	}
	pkt := *p
	if err := c.control.Post(func() { cb(pkt) }); err != nil {
		cb(pkt)
	}
}

// finishAsyncStop runs on the mix domain: drain the in-flight packet, move
// everything to finished, then hand completion back to the control domain.
func (c *Capturer) finishAsyncStop() {
	c.fill(true)

	c.qmu.Lock()
	c.finished = append(c.finished, c.pending...)
	c.pending = nil
	hadPackets := len(c.finished) > 0
	c.qmu.Unlock()

	if err := c.transition(AsyncStoppingCallbackPending, ""); err != nil {
		// Shutdown raced the stop; nothing more to deliver.
		return
	}

	finish := func() {
		c.deliverFinished()
		if !hadPackets {
			// The client always sees an end-of-stream marker.
			c.qmu.Lock()
			c.nextSeq++
			seq := c.nextSeq
			c.qmu.Unlock()
			c.deliver(&Packet{Sequence: seq})
		}
		if cb := c.stopCB; cb != nil {
			c.stopCB = nil
			cb()
		}
		_ = c.transition(OperatingSync, "")
	}
	if err := c.control.Post(finish); err != nil {
		finish()
	}
}

func (c *Capturer) noteOverflow(partial bool) {
	c.mu.Lock()
	if partial {
		if c.partialOverflows < ^uint64(0) {
			c.partialOverflows++
		}
	} else {
		if c.overflows < ^uint64(0) {
			c.overflows++
		}
	}
	c.mu.Unlock()

	metrics.IncCaptureOverflow(c.id, partial)
	if c.bus != nil {
		c.bus.Publish(events.CaptureOverflowEvent{
			CapturerID: c.id,
			Partial:    partial,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}
