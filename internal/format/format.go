// Package format defines PCM stream formats and hardware format negotiation.
package format

import (
	"fmt"
)

// SampleFormat identifies the wire encoding of a single sample.
type SampleFormat int

const (
	Unsigned8 SampleFormat = iota
	Signed16
	Signed24In32
	Float32
)

// String returns a short human-readable name for the sample format.
func (f SampleFormat) String() string {
	switch f {
	case Unsigned8:
		return "u8"
	case Signed16:
		return "s16"
	case Signed24In32:
		return "s24in32"
	case Float32:
		return "f32"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// BytesPerSample returns the size of one sample on the wire.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case Unsigned8:
		return 1
	case Signed16:
		return 2
	case Signed24In32, Float32:
		return 4
	default:
		return 0
	}
}

// Format is a fully negotiated PCM stream format.
type Format struct {
	SampleFormat    SampleFormat
	Channels        int
	FramesPerSecond int
}

// Valid reports whether the format has been populated with usable values.
func (f Format) Valid() bool {
	return f.Channels > 0 && f.FramesPerSecond > 0 && f.SampleFormat.BytesPerSample() > 0
}

// BytesPerFrame returns the size of one frame (all channels) on the wire.
func (f Format) BytesPerFrame() int {
	return f.SampleFormat.BytesPerSample() * f.Channels
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dch/%dHz", f.SampleFormat, f.Channels, f.FramesPerSecond)
}

// Range describes one hardware-supported format range as reported by a driver.
type Range struct {
	SampleFormats      []SampleFormat
	MinChannels        int
	MaxChannels        int
	MinFramesPerSecond int
	MaxFramesPerSecond int
	// RatesDiscrete lists the exact rates supported when the hardware does
	// not support a continuous range. Empty means any rate in [Min, Max].
	RatesDiscrete []int
}
