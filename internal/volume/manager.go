package volume

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/mix"
)

// Ramp describes how a gain change is animated instead of stepped.
type Ramp struct {
	Duration time.Duration
	Type     mix.RampType
}

// Command carries one realized volume change to a stream.
type Command struct {
	// Volume is the user volume in [0, 1].
	Volume float64
	// GainDBAdjustment is the policy adjustment added on top of the
	// volume, or the muted sentinel when the stream is muted.
	GainDBAdjustment float64
	// Ramp, when non-nil, animates the change.
	Ramp *Ramp
}

// Stream is a live renderer or capturer registered for volume fan-out.
type Stream interface {
	StreamUsage() Usage
	StreamMute() bool
	// RealizeVolume applies the command to all of the stream's current
	// links' gain bookkeeping.
	RealizeVolume(Command)
}

// Manager keeps the usage gain/volume tables and pushes changes to every
// registered stream of a matching usage.
type Manager struct {
	mu         sync.Mutex
	log        *slog.Logger
	bus        *events.Bus
	curve      Curve
	usageGain  map[Usage]float64
	gainAdjust map[Usage]float64
	userVolume map[Usage]float64
	streams    map[Stream]struct{}
}

// NewManager creates a manager with every usage at full volume, unity gain.
func NewManager(bus *events.Bus) *Manager {
	m := &Manager{
		log:        logging.GetLogger("volume"),
		bus:        bus,
		curve:      DefaultCurve(),
		usageGain:  make(map[Usage]float64),
		gainAdjust: make(map[Usage]float64),
		userVolume: make(map[Usage]float64),
		streams:    make(map[Stream]struct{}),
	}
	for _, u := range Usages() {
		m.userVolume[u] = 1
	}
	return m
}

// AddStream registers a stream for volume fan-out and immediately realizes
// its current usage settings.
func (m *Manager) AddStream(s Stream) {
	m.mu.Lock()
	m.streams[s] = struct{}{}
	cmd := m.commandLocked(s, nil)
	m.mu.Unlock()
	s.RealizeVolume(cmd)
}

// RemoveStream unregisters a stream. Streams must be removed before they
// are destroyed.
func (m *Manager) RemoveStream(s Stream) {
	m.mu.Lock()
	delete(m.streams, s)
	m.mu.Unlock()
}

// SetUsageGain sets the absolute usage gain in dB and re-realizes volume on
// every stream with that usage.
func (m *Manager) SetUsageGain(usage Usage, db float64) {
	m.mu.Lock()
	m.usageGain[usage] = db
	m.realizeUsageLocked(usage, nil)
	m.mu.Unlock()
	m.publish(usage)
}

// SetUsageGainAdjustment sets the policy-driven (ducking) adjustment in dB.
func (m *Manager) SetUsageGainAdjustment(usage Usage, db float64) {
	m.mu.Lock()
	m.gainAdjust[usage] = db
	m.realizeUsageLocked(usage, nil)
	m.mu.Unlock()
	m.publish(usage)
}

// SetUsageVolume sets the user volume in [0, 1] for a usage, optionally
// ramped.
func (m *Manager) SetUsageVolume(usage Usage, vol float64, ramp *Ramp) {
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	m.mu.Lock()
	m.userVolume[usage] = vol
	m.realizeUsageLocked(usage, ramp)
	m.mu.Unlock()
	m.publish(usage)
}

// UsageVolume returns the current user volume for a usage.
func (m *Manager) UsageVolume(usage Usage) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userVolume[usage]
}

// UsageGainDB returns usage gain plus adjustment in dB.
func (m *Manager) UsageGainDB(usage Usage) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageGain[usage] + m.gainAdjust[usage]
}

// NotifyStreamChanged re-realizes one stream, e.g. after its mute flag or
// usage changed.
func (m *Manager) NotifyStreamChanged(s Stream) {
	m.mu.Lock()
	if _, ok := m.streams[s]; !ok {
		m.mu.Unlock()
		m.log.Warn("Volume change for unregistered stream")
		return
	}
	cmd := m.commandLocked(s, nil)
	m.mu.Unlock()
	s.RealizeVolume(cmd)
}

// realizeUsageLocked pushes current settings to every stream of the usage.
// Callers hold m.mu; RealizeVolume implementations must not call back into
// the manager.
func (m *Manager) realizeUsageLocked(usage Usage, ramp *Ramp) {
	for s := range m.streams {
		if s.StreamUsage() != usage {
			continue
		}
		s.RealizeVolume(m.commandLocked(s, ramp))
	}
}

func (m *Manager) commandLocked(s Stream, ramp *Ramp) Command {
	usage := s.StreamUsage()
	adjust := m.usageGain[usage] + m.gainAdjust[usage]
	if s.StreamMute() {
		// Mute overrides volume; the computed usage gain is irrelevant.
		adjust = mix.MutedGainDB
	}
	return Command{
		Volume:           m.userVolume[usage],
		GainDBAdjustment: adjust,
		Ramp:             ramp,
	}
}

// CurveDB converts a user volume through the manager's curve.
func (m *Manager) CurveDB(vol float64) float64 {
	return m.curve.VolumeToDB(vol)
}

func (m *Manager) publish(usage Usage) {
	if m.bus == nil {
		return
	}
	m.mu.Lock()
	vol := m.userVolume[usage]
	db := m.usageGain[usage] + m.gainAdjust[usage]
	m.mu.Unlock()
	m.bus.Publish(events.VolumeChangedEvent{
		Usage:     usage.String(),
		Volume:    vol,
		GainDB:    db,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
