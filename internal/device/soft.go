package device

import (
	"errors"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/timeline"
)

// ErrTransportClosed is returned by transport calls after Close.
var ErrTransportClosed = errors.New("device: transport closed")

// SoftTransport is an in-memory Transport. It backs virtual devices and
// tests: the ring is plain memory and the hardware pointer is derived from
// the process monotonic clock, so a driver on top of it behaves exactly
// like one on real hardware minus the audio.
type SoftTransport struct {
	mu      sync.Mutex
	info    DriverInfo
	ring    RingSpec
	fps     int64
	started bool
	closed  bool
	gain    GainState
	plugged bool
	plugCB  PlugHandler
}

// NewSoftTransport creates a software transport advertising the given
// format ranges.
func NewSoftTransport(uniqueID, name string, formats []format.Range) *SoftTransport {
	return &SoftTransport{
		info: DriverInfo{
			UniqueID:  uniqueID,
			Name:      name,
			CanMute:   true,
			CanAGC:    false,
			MinGainDB: -60,
			MaxGainDB: 0,
			Formats:   formats,
		},
		plugged: true,
	}
}

// GetDriverInfo implements Transport.
func (s *SoftTransport) GetDriverInfo() (DriverInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return DriverInfo{}, ErrTransportClosed
	}
	return s.info, nil
}

// Configure implements Transport. The ring is sized up to a whole number
// of 10ms periods covering minRingDuration.
func (s *SoftTransport) Configure(f format.Format, minRingDuration time.Duration) (RingSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RingSpec{}, ErrTransportClosed
	}
	if s.started {
		return RingSpec{}, errors.New("device: configure while started")
	}

	period := int64(f.FramesPerSecond) / 100
	frames := int64(minRingDuration) * int64(f.FramesPerSecond) / int64(time.Second)
	if rem := frames % period; rem != 0 {
		frames += period - rem
	}
	if frames < period {
		frames = period
	}

	s.fps = int64(f.FramesPerSecond)
	s.ring = RingSpec{
		Frames:        frames,
		Data:          make([]byte, frames*int64(f.BytesPerFrame())),
		FIFOFrames:    0,
		ExternalDelay: 0,
	}
	return s.ring, nil
}

// Start implements Transport, anchoring frame 0 at the current reading of
// the shared monotonic clock.
func (s *SoftTransport) Start() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrTransportClosed
	}
	if s.ring.Frames == 0 {
		return 0, errors.New("device: start before configure")
	}
	s.started = true
	return timeline.MonotonicNow(), nil
}

// Stop implements Transport.
func (s *SoftTransport) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrTransportClosed
	}
	s.started = false
	return nil
}

// SetPlugDetectEnabled implements Transport. The handler fires once with
// the current plug state, matching hardware plug detect semantics.
func (s *SoftTransport) SetPlugDetectEnabled(enabled bool, h PlugHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrTransportClosed
	}
	if enabled {
		s.plugCB = h
	} else {
		s.plugCB = nil
	}
	plugged := s.plugged
	s.mu.Unlock()
	if enabled && h != nil {
		h(plugged, time.Now())
	}
	return nil
}

// PlugDetectEnabled reports whether a plug handler is registered.
func (s *SoftTransport) PlugDetectEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plugCB != nil
}

// SetPlugged flips the simulated plug state, notifying any registered
// handler.
func (s *SoftTransport) SetPlugged(plugged bool) {
	s.mu.Lock()
	s.plugged = plugged
	h := s.plugCB
	s.mu.Unlock()
	if h != nil {
		h(plugged, time.Now())
	}
}

// SendGain implements Transport.
func (s *SoftTransport) SendGain(state GainState, flags DirtyFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrTransportClosed
	}
	if flags&DirtyGain != 0 {
		s.gain.GainDB = state.GainDB
	}
	if flags&DirtyMute != 0 {
		s.gain.Muted = state.Muted
	}
	if flags&DirtyAGC != 0 {
		s.gain.AGCEnabled = state.AGCEnabled
	}
	return nil
}

// Gain returns the last gain state the driver pushed down.
func (s *SoftTransport) Gain() GainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Close implements Transport.
func (s *SoftTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	return nil
}
