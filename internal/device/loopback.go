package device

import (
	"time"

	"github.com/smazurov/audionode/internal/format"
)

// loopbackHistory is how much rendered audio an output keeps for loopback
// capturers. One second absorbs any realistic capture cadence.
const loopbackHistory = time.Second

func (o *Output) setupLoopback() {
	f, ok := o.driver.Format()
	if !ok {
		return
	}
	frames := int64(f.FramesPerSecond) * int64(loopbackHistory) / int64(time.Second)
	o.loopMu.Lock()
	o.loopBuf = make([]float32, frames*int64(f.Channels))
	o.loopFrames = frames
	o.loopEnd = 0
	o.loopMu.Unlock()
}

// writeLoopback records the mixed job into the history ring. A muted
// device records silence, matching what the hardware is emitting.
func (o *Output) writeLoopback(job *MixJob) {
	f, ok := o.driver.Format()
	if !ok {
		return
	}
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loopFrames == 0 {
		return
	}
	ch := int64(f.Channels)
	for i := int64(0); i < job.Frames; i++ {
		frame := (job.StartFrame + i) % o.loopFrames
		dst := o.loopBuf[frame*ch : (frame+1)*ch]
		if job.Muted {
			for c := range dst {
				dst[c] = 0
			}
			continue
		}
		copy(dst, job.buf[i*ch:(i+1)*ch])
	}
	o.loopEnd = job.StartFrame + job.Frames
}

// SourceFormat implements the capture source contract for loopback.
func (o *Output) SourceFormat() format.Format {
	f, _ := o.driver.Format()
	return f
}

// AvailableRange implements the capture source contract.
func (o *Output) AvailableRange() (int64, int64) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	end := o.loopEnd
	start := end - o.loopFrames
	if start < 0 {
		start = 0
	}
	return start, end
}

// CopyOut implements the capture source contract. Returns false once any
// part of the requested span has been overwritten by newer frames.
func (o *Output) CopyOut(from, to int64, dst []float32) bool {
	f, ok := o.driver.Format()
	if !ok {
		return false
	}
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loopFrames == 0 || from < o.loopEnd-o.loopFrames || to > o.loopEnd || from > to {
		return false
	}
	ch := int64(f.Channels)
	for i := from; i < to; i++ {
		frame := i % o.loopFrames
		copy(dst[(i-from)*ch:(i-from+1)*ch], o.loopBuf[frame*ch:(frame+1)*ch])
	}
	return true
}
