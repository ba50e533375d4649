// Package alsa adapts ALSA PCM devices to the audio device transport.
package alsa

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	goalsa "github.com/gen2brain/alsa"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/timeline"
)

// periodCount is how many periods the ALSA buffer holds.
const periodCount = 4

// Transport drives one ALSA PCM through the device transport contract.
// ALSA here is a read/write interface, so the transport keeps its own
// ring buffer and a pump goroutine moves one period at a time between
// the ring and the PCM. The blocking PCM calls pace the pump.
type Transport struct {
	card    uint
	devNum  uint
	capture bool
	log     *slog.Logger

	mu     sync.Mutex
	pcm    *goalsa.PCM
	fmt    format.Format
	ring   device.RingSpec
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewOutputTransport opens nothing yet; the driver's configure step does.
func NewOutputTransport(card, dev uint) *Transport {
	return &Transport{card: card, devNum: dev, log: logging.GetLogger("alsa")}
}

// NewInputTransport is the capture-direction counterpart.
func NewInputTransport(card, dev uint) *Transport {
	return &Transport{card: card, devNum: dev, capture: true, log: logging.GetLogger("alsa")}
}

func (t *Transport) flags() goalsa.PcmFlag {
	if t.capture {
		return goalsa.PCM_IN
	}
	return goalsa.PCM_OUT
}

var pcmFormats = map[format.SampleFormat]goalsa.PcmFormat{
	format.Unsigned8:    goalsa.SNDRV_PCM_FORMAT_U8,
	format.Signed16:     goalsa.SNDRV_PCM_FORMAT_S16_LE,
	format.Signed24In32: goalsa.SNDRV_PCM_FORMAT_S24_LE,
	format.Float32:      goalsa.SNDRV_PCM_FORMAT_FLOAT_LE,
}

// GetDriverInfo implements device.Transport, refining the hardware
// parameter space into format ranges.
func (t *Transport) GetDriverInfo() (device.DriverInfo, error) {
	params, err := goalsa.PcmParamsGet(t.card, t.devNum, t.flags())
	if err != nil {
		return device.DriverInfo{}, fmt.Errorf("alsa: refine params for hw:%d,%d: %w", t.card, t.devNum, err)
	}

	var formats []format.SampleFormat
	for sf, pf := range pcmFormats {
		if params.FormatIsSupported(pf) {
			formats = append(formats, sf)
		}
	}
	if len(formats) == 0 {
		return device.DriverInfo{}, fmt.Errorf("alsa: hw:%d,%d supports no usable sample format", t.card, t.devNum)
	}

	minCh, err := params.RangeMin(goalsa.SNDRV_PCM_HW_PARAM_CHANNELS)
	if err != nil {
		return device.DriverInfo{}, err
	}
	maxCh, err := params.RangeMax(goalsa.SNDRV_PCM_HW_PARAM_CHANNELS)
	if err != nil {
		return device.DriverInfo{}, err
	}
	minRate, err := params.RangeMin(goalsa.SNDRV_PCM_HW_PARAM_RATE)
	if err != nil {
		return device.DriverInfo{}, err
	}
	maxRate, err := params.RangeMax(goalsa.SNDRV_PCM_HW_PARAM_RATE)
	if err != nil {
		return device.DriverInfo{}, err
	}

	id := fmt.Sprintf("alsa:%d,%d", t.card, t.devNum)
	return device.DriverInfo{
		UniqueID: id,
		Name:     id,
		CanMute:  false,
		CanAGC:   false,
		Formats: []format.Range{{
			SampleFormats:      formats,
			MinChannels:        int(minCh),
			MaxChannels:        int(maxCh),
			MinFramesPerSecond: int(minRate),
			MaxFramesPerSecond: int(maxRate),
		}},
	}, nil
}

// Configure implements device.Transport. The ring is sized to cover
// minRingDuration in whole periods; the pump granularity becomes the
// FIFO fence.
func (t *Transport) Configure(f format.Format, minRingDuration time.Duration) (device.RingSpec, error) {
	pf, ok := pcmFormats[f.SampleFormat]
	if !ok {
		return device.RingSpec{}, fmt.Errorf("alsa: no PCM format for %s", f.SampleFormat)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return device.RingSpec{}, errors.New("alsa: transport closed")
	}
	if t.pcm != nil {
		return device.RingSpec{}, errors.New("alsa: already configured")
	}

	period := uint32(f.FramesPerSecond / 100)
	cfg := goalsa.Config{
		Channels:    uint32(f.Channels),
		Rate:        uint32(f.FramesPerSecond),
		PeriodSize:  period,
		PeriodCount: periodCount,
		Format:      pf,
	}
	pcm, err := goalsa.PcmOpen(t.card, t.devNum, t.flags(), &cfg)
	if err != nil {
		return device.RingSpec{}, fmt.Errorf("alsa: open hw:%d,%d: %w", t.card, t.devNum, err)
	}

	frames := int64(minRingDuration) * int64(f.FramesPerSecond) / int64(time.Second)
	if rem := frames % int64(period); rem != 0 {
		frames += int64(period) - rem
	}
	if floor := int64(period) * periodCount; frames < floor {
		frames = floor
	}

	t.pcm = pcm
	t.fmt = f
	t.ring = device.RingSpec{
		Frames:        frames,
		Data:          make([]byte, frames*int64(f.BytesPerFrame())),
		FIFOFrames:    int64(period),
		ExternalDelay: pcm.PeriodTime(),
	}
	return t.ring, nil
}

// Start implements device.Transport, launching the pump.
func (t *Transport) Start() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pcm == nil || t.closed {
		return 0, errors.New("alsa: start before configure")
	}
	if t.stop != nil {
		return 0, errors.New("alsa: already started")
	}
	if err := t.pcm.Prepare(); err != nil {
		return 0, fmt.Errorf("alsa: prepare: %w", err)
	}

	t.stop = make(chan struct{})
	t.wg.Add(1)
	if t.capture {
		go t.pumpIn(t.pcm, t.ring, t.stop)
	} else {
		go t.pumpOut(t.pcm, t.ring, t.stop)
	}
	return timeline.MonotonicNow(), nil
}

// pumpOut hands ring periods to the PCM. The first write implicitly
// starts the stream; blocking writes pace the loop afterwards. On an
// underrun the stream is re-prepared and the loop continues.
func (t *Transport) pumpOut(pcm *goalsa.PCM, ring device.RingSpec, stop chan struct{}) {
	defer t.wg.Done()
	period := ring.FIFOFrames
	bpf := int64(t.fmt.BytesPerFrame())
	var hw int64
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame := hw % ring.Frames
		if _, err := pcm.Write(ring.Data[frame*bpf : (frame+period)*bpf]); err != nil {
			if errors.Is(err, syscall.EPIPE) {
				t.log.Warn("Playback underrun", "device", fmt.Sprintf("hw:%d,%d", t.card, t.devNum), "xruns", pcm.Xruns())
				if err := pcm.Prepare(); err != nil {
					t.log.Error("Recovery failed after underrun", "error", err)
					return
				}
				continue
			}
			select {
			case <-stop:
			default:
				t.log.Error("Playback write failed", "error", err)
			}
			return
		}
		hw += period
	}
}

// pumpIn fills the ring from the PCM one period at a time.
func (t *Transport) pumpIn(pcm *goalsa.PCM, ring device.RingSpec, stop chan struct{}) {
	defer t.wg.Done()
	period := ring.FIFOFrames
	bpf := int64(t.fmt.BytesPerFrame())
	var hw int64
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame := hw % ring.Frames
		if _, err := pcm.Read(ring.Data[frame*bpf : (frame+period)*bpf]); err != nil {
			if errors.Is(err, syscall.EPIPE) {
				t.log.Warn("Capture overrun", "device", fmt.Sprintf("hw:%d,%d", t.card, t.devNum), "xruns", pcm.Xruns())
				if err := pcm.Prepare(); err != nil {
					t.log.Error("Recovery failed after overrun", "error", err)
					return
				}
				continue
			}
			select {
			case <-stop:
			default:
				t.log.Error("Capture read failed", "error", err)
			}
			return
		}
		hw += period
	}
}

// Stop implements device.Transport.
func (t *Transport) Stop() error {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	pcm := t.pcm
	t.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	if pcm != nil {
		_ = pcm.Stop()
	}
	t.wg.Wait()
	return nil
}

// SetPlugDetectEnabled implements device.Transport. A raw hw PCM has no
// jack state to watch, so the device reports permanently plugged.
func (t *Transport) SetPlugDetectEnabled(enabled bool, h device.PlugHandler) error {
	if enabled && h != nil {
		h(true, time.Now())
	}
	return nil
}

// SendGain implements device.Transport. Raw PCM devices carry no mixer
// element, so hardware gain is not applied here; software gain in the
// mix covers it.
func (t *Transport) SendGain(device.GainState, device.DirtyFlags) error {
	return nil
}

// Close implements device.Transport.
func (t *Transport) Close() error {
	_ = t.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.pcm != nil {
		return t.pcm.Close()
	}
	return nil
}
