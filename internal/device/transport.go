// Package device owns hardware-facing audio devices: the driver handshake
// state machine, the ring-buffer timeline, and the per-output real-time
// mix loop.
package device

import (
	"time"

	"github.com/smazurov/audionode/internal/format"
)

// GainState is the hardware gain block of one device.
type GainState struct {
	GainDB     float64 `toml:"gain_db" json:"gain_db"`
	Muted      bool    `toml:"muted" json:"muted"`
	AGCEnabled bool    `toml:"agc_enabled" json:"agc_enabled"`
}

// DirtyFlags records which gain sub-fields changed since the last hardware
// sync, so the mix domain only pushes the delta.
type DirtyFlags uint32

const (
	DirtyGain DirtyFlags = 1 << iota
	DirtyMute
	DirtyAGC
)

// DriverInfo is everything learned from the driver before configuration.
type DriverInfo struct {
	UniqueID  string
	Name      string
	CanMute   bool
	CanAGC    bool
	MinGainDB float64
	MaxGainDB float64
	Formats   []format.Range
}

// RingSpec describes the shared ring buffer negotiated with the driver.
type RingSpec struct {
	// Frames and Data describe the mapped ring; len(Data) equals
	// Frames * BytesPerFrame of the configured format.
	Frames int64
	Data   []byte
	// FIFOFrames is the hardware fence: frames within this distance of
	// the hardware pointer are already committed to the analog domain.
	FIFOFrames int64
	// ExternalDelay is additional pipeline latency past the FIFO.
	ExternalDelay time.Duration
}

// PlugHandler receives plug-detect state changes from the transport.
type PlugHandler func(plugged bool, at time.Time)

// Transport is the narrow interface to a driver. Calls are synchronous Go
// calls; the Driver runs them on the I/O domain and applies its own command
// timeouts. Protocol framing lives entirely behind this interface.
type Transport interface {
	GetDriverInfo() (DriverInfo, error)
	Configure(f format.Format, minRingDuration time.Duration) (RingSpec, error)
	// Start begins streaming and returns the reference time at which the
	// hardware pointer crossed frame zero.
	Start() (int64, error)
	Stop() error
	SetPlugDetectEnabled(enabled bool, h PlugHandler) error
	SendGain(state GainState, flags DirtyFlags) error
	Close() error
}
