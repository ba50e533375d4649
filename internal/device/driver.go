package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/mix"
	"github.com/smazurov/audionode/internal/timeline"
)

// DriverState is the handshake progression with the hardware driver.
type DriverState int

const (
	DriverUninitialized DriverState = iota
	DriverMissingInfo
	DriverUnconfigured
	DriverConfiguringSettingFormat
	DriverConfiguringGettingFifoDepth
	DriverConfiguringGettingRingBuffer
	DriverConfigured
	DriverStarting
	DriverStarted
	DriverStopping
	DriverShutdown
)

func (s DriverState) String() string {
	switch s {
	case DriverUninitialized:
		return "uninitialized"
	case DriverMissingInfo:
		return "missing-driver-info"
	case DriverUnconfigured:
		return "unconfigured"
	case DriverConfiguringSettingFormat:
		return "configuring-setting-format"
	case DriverConfiguringGettingFifoDepth:
		return "configuring-getting-fifo-depth"
	case DriverConfiguringGettingRingBuffer:
		return "configuring-getting-ring-buffer"
	case DriverConfigured:
		return "configured"
	case DriverStarting:
		return "starting"
	case DriverStarted:
		return "started"
	case DriverStopping:
		return "stopping"
	case DriverShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Command timeouts. Info fetches get the long deadline as some hardware is
// slow to enumerate formats.
const (
	shortCmdTimeout = 2 * time.Second
	longCmdTimeout  = 4 * time.Second
)

// ErrWrongState rejects a driver request issued out of order.
var ErrWrongState = errors.New("device: driver request illegal in current state")

// TimeoutHandler observes a driver command overrunning its deadline.
type TimeoutHandler func(cmd string, overrun time.Duration)

// Driver runs the handshake state machine for one device. All state
// mutation happens on the device's mix domain; the transport call itself
// runs on the I/O domain so a wedged driver never stalls mixing.
type Driver struct {
	log       *slog.Logger
	transport Transport
	domain    *exec.Domain
	io        *exec.Domain
	clock     *timeline.Clock
	onTimeout TimeoutHandler

	mu         sync.Mutex
	state      DriverState
	info       DriverInfo
	haveInfo   bool
	fmt        format.Format
	ring       RingSpec
	refToFrame timeline.Function
	generation uint64
}

// NewDriver wires a driver around a transport. domain is the owning
// device's mix domain; io is the process I/O domain.
func NewDriver(transport Transport, domain, io *exec.Domain, clock *timeline.Clock, onTimeout TimeoutHandler) *Driver {
	if onTimeout == nil {
		onTimeout = func(string, time.Duration) {}
	}
	return &Driver{
		log:       logging.GetLogger("driver"),
		transport: transport,
		domain:    domain,
		io:        io,
		clock:     clock,
		onTimeout: onTimeout,
		state:     DriverUninitialized,
	}
}

// State returns the current handshake state.
func (d *Driver) State() DriverState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Info returns the fetched driver info.
func (d *Driver) Info() (DriverInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info, d.haveInfo
}

// Format returns the configured format.
func (d *Driver) Format() (format.Format, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fmt, d.state >= DriverConfigured && d.state != DriverShutdown
}

// Ring returns the ring spec, the reference-time to frame transform, and
// the generation counter that invalidates cached mix parameters whenever
// the mapping changes.
func (d *Driver) Ring() (RingSpec, timeline.Function, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring, d.refToFrame, d.generation
}

func (d *Driver) setState(s DriverState) {
	d.mu.Lock()
	from := d.state
	d.state = s
	d.mu.Unlock()
	d.log.Debug("Driver state", "from", from.String(), "to", s.String())
}

// run executes one transport command on the I/O domain under a watchdog,
// then hands the result back to the driver's domain.
func (d *Driver) run(cmd string, timeout time.Duration, fatalOnTimeout bool, call func() error, done func(error)) {
	completed := make(chan struct{})
	started := time.Now()

	watchdog, _ := d.domain.PostAfter(timeout, func() {
		select {
		case <-completed:
			return
		default:
		}
		overrun := time.Since(started) - timeout
		d.log.Warn("Driver command timeout", "cmd", cmd, "overrun", overrun)
		d.onTimeout(cmd, overrun)
		if fatalOnTimeout {
			// The hardware is unresponsive for a prerequisite command.
			d.Shutdown()
		}
	})

	if err := d.io.Post(func() {
		err := call()
		close(completed)
		if watchdog != nil {
			watchdog.Cancel()
		}
		if postErr := d.domain.Post(func() { done(err) }); postErr != nil {
			done(exec.ErrShutDown)
		}
	}); err != nil {
		if watchdog != nil {
			watchdog.Cancel()
		}
		done(err)
	}
}

// FetchDriverInfo requests driver info. Legal from Uninitialized or
// MissingDriverInfo. Timeout here is diagnostic only; the fetch may still
// complete later.
func (d *Driver) FetchDriverInfo(done func(error)) {
	d.mu.Lock()
	if d.state != DriverUninitialized && d.state != DriverMissingInfo {
		d.mu.Unlock()
		done(fmt.Errorf("%w: GetDriverInfo in %s", ErrWrongState, d.state))
		return
	}
	d.state = DriverMissingInfo
	d.mu.Unlock()

	var info DriverInfo
	d.run("GetDriverInfo", longCmdTimeout, false,
		func() (err error) {
			info, err = d.transport.GetDriverInfo()
			return err
		},
		func(err error) {
			if err != nil {
				done(err)
				return
			}
			d.mu.Lock()
			d.info = info
			d.haveInfo = true
			if d.state == DriverMissingInfo {
				d.state = DriverUnconfigured
			}
			d.mu.Unlock()
			done(nil)
		})
}

// Configure negotiates a format and ring buffer. Legal from Unconfigured
// or Configured (reconfigure). The preferred format is resolved against the
// hardware's ranges with SelectBestFormat before the transport is invoked.
func (d *Driver) Configure(pref format.Format, minRing time.Duration, done func(error)) {
	d.mu.Lock()
	if d.state != DriverUnconfigured && d.state != DriverConfigured {
		d.mu.Unlock()
		done(fmt.Errorf("%w: Configure in %s", ErrWrongState, d.state))
		return
	}
	info := d.info
	d.state = DriverConfiguringSettingFormat
	d.mu.Unlock()

	chosen, err := format.SelectBestFormat(pref, info.Formats)
	if err != nil {
		d.setState(DriverUnconfigured)
		done(err)
		return
	}

	var ring RingSpec
	d.run("Configure", longCmdTimeout, true,
		func() (err error) {
			ring, err = d.transport.Configure(chosen, minRing)
			return err
		},
		func(err error) {
			if err != nil {
				d.setState(DriverUnconfigured)
				done(err)
				return
			}
			d.mu.Lock()
			// The sub-steps complete inside the single transport call;
			// walk the states so observers see the full progression.
			d.state = DriverConfiguringGettingFifoDepth
			d.state = DriverConfiguringGettingRingBuffer
			d.fmt = chosen
			d.ring = ring
			d.generation++
			d.state = DriverConfigured
			d.mu.Unlock()
			done(nil)
		})
}

// Start begins streaming. Legal only from Configured.
func (d *Driver) Start(done func(error)) {
	d.mu.Lock()
	if d.state != DriverConfigured {
		d.mu.Unlock()
		done(fmt.Errorf("%w: Start in %s", ErrWrongState, d.state))
		return
	}
	d.state = DriverStarting
	d.mu.Unlock()

	var startRef int64
	d.run("Start", shortCmdTimeout, true,
		func() (err error) {
			startRef, err = d.transport.Start()
			return err
		},
		func(err error) {
			if err != nil {
				d.setState(DriverConfigured)
				done(err)
				return
			}
			d.mu.Lock()
			rate := timeline.NewRate(uint64(d.fmt.FramesPerSecond), 1_000_000_000)
			d.refToFrame = timeline.NewFunction(0, startRef, rate)
			d.generation++
			d.state = DriverStarted
			d.mu.Unlock()
			done(nil)
		})
}

// Stop halts streaming, returning to Configured on success.
func (d *Driver) Stop(done func(error)) {
	d.mu.Lock()
	if d.state != DriverStarted {
		d.mu.Unlock()
		done(fmt.Errorf("%w: Stop in %s", ErrWrongState, d.state))
		return
	}
	d.state = DriverStopping
	d.mu.Unlock()

	d.run("Stop", shortCmdTimeout, true,
		func() error { return d.transport.Stop() },
		func(err error) {
			if err != nil {
				d.Shutdown()
				done(err)
				return
			}
			d.setState(DriverConfigured)
			done(nil)
		})
}

// SetPlugDetectEnabled toggles plug detection.
func (d *Driver) SetPlugDetectEnabled(enabled bool, h PlugHandler) {
	d.run("SetPlugDetectEnabled", shortCmdTimeout, false,
		func() error { return d.transport.SetPlugDetectEnabled(enabled, h) },
		func(err error) {
			if err != nil {
				d.log.Warn("Plug detect toggle failed", "error", err)
			}
		})
}

// SendGain pushes dirty gain fields to the hardware.
func (d *Driver) SendGain(state GainState, flags DirtyFlags) {
	d.run("SendGain", shortCmdTimeout, false,
		func() error { return d.transport.SendGain(state, flags) },
		func(err error) {
			if err != nil {
				d.log.Warn("Gain sync failed", "error", err)
			}
		})
}

// Shutdown is terminal and idempotent.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.state == DriverShutdown {
		d.mu.Unlock()
		return
	}
	d.state = DriverShutdown
	d.mu.Unlock()
	_ = d.io.Post(func() { _ = d.transport.Close() })
}

// SafeWriteFrame converts a reference time to the earliest frame the mix
// loop may still write: the hardware pointer plus the FIFO fence.
func (d *Driver) SafeWriteFrame(refTime int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refToFrame.Apply(refTime) + d.ring.FIFOFrames
}

// PresentationDelay is the total latency from ring write to analog out.
func (d *Driver) PresentationDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fmt.FramesPerSecond == 0 {
		return 0
	}
	fifo := time.Duration(d.ring.FIFOFrames) * time.Second / time.Duration(d.fmt.FramesPerSecond)
	return fifo + d.ring.ExternalDelay
}

// RefToFracFrames exposes the driver timeline in fractional frames, for
// link bookkeeping refreshes.
func (d *Driver) RefToFracFrames() timeline.Function {
	d.mu.Lock()
	defer d.mu.Unlock()
	rate := timeline.NewRate(uint64(d.fmt.FramesPerSecond)<<mix.FracBits, 1_000_000_000)
	return timeline.NewFunction(0, d.refToFrame.ReferenceOffset(), rate)
}
