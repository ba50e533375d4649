// Package mix implements per-link sample mixing: resampling a source stream
// onto a destination frame timeline, applying link gain, and accumulating
// into a float32 mix buffer that is later converted to the wire format.
package mix

import (
	"errors"
	"fmt"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/timeline"
)

// Source positions carry fractional precision so slow rate ratios do not
// accumulate rounding drift.
const (
	FracBits = 16
	FracOne  = 1 << FracBits
)

// ErrNoMixer is returned when no mixer exists for a source/dest format pair.
var ErrNoMixer = errors.New("mix: unsupported source/destination format pair")

// Mixer resamples and accumulates source frames into a destination buffer.
//
// dest is interleaved float32 with the destination channel count. destOffset
// and fracSrcOffset are advanced in place. When accumulate is false the
// mixer overwrites dest instead of summing. The return value reports whether
// the source region was fully consumed.
type Mixer interface {
	Mix(dest []float32, destFrames int, destOffset *int,
		src []float32, fracSrcFrames int64, fracSrcOffset *int64,
		accumulate bool, gain *Gain) bool

	// StepSize returns the fractional source frames consumed per
	// destination frame.
	StepSize() int64
}

// NewMixer selects a mixer for the given source and destination formats.
// Identical rates use point sampling; differing rates use linear
// interpolation. Channel layouts are limited to mono/stereo adaptation or
// identical counts.
func NewMixer(src, dest format.Format) (Mixer, error) {
	if !src.Valid() || !dest.Valid() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoMixer, src, dest)
	}
	if !channelsCompatible(src.Channels, dest.Channels) {
		return nil, fmt.Errorf("%w: %d -> %d channels", ErrNoMixer, src.Channels, dest.Channels)
	}

	step := (int64(src.FramesPerSecond) << FracBits) / int64(dest.FramesPerSecond)
	if src.FramesPerSecond == dest.FramesPerSecond {
		return &pointSampler{srcChans: src.Channels, destChans: dest.Channels, step: step}, nil
	}
	return &linearSampler{srcChans: src.Channels, destChans: dest.Channels, step: step}, nil
}

func channelsCompatible(src, dest int) bool {
	if src == dest {
		return src > 0
	}
	return (src == 1 && dest == 2) || (src == 2 && dest == 1)
}

// Bookkeeping is the mutable mix state attached to one graph link.
//
// The destination tracks its reference-clock-to-frame transform with a
// generation counter; when the cached generation falls behind, the mix loop
// recomputes DestToFracSource before using the bookkeeping again.
type Bookkeeping struct {
	Mixer Mixer
	Gain  Gain

	// DestToFracSource maps destination frames to fractional source
	// frames for the current timeline generation.
	DestToFracSource timeline.Function

	// DestGeneration is the destination timeline generation the cached
	// transform was computed against.
	DestGeneration uint64
}

// Stale reports whether cached mix parameters must be refreshed against the
// destination's current timeline generation.
func (bk *Bookkeeping) Stale(destGeneration uint64) bool {
	return bk.DestGeneration != destGeneration
}

// Refresh recomputes the dest-frame to frac-source-frame mapping from the
// destination's reference transform and the source's reference transform.
func (bk *Bookkeeping) Refresh(destRefToFrame, srcRefToFracFrame timeline.Function, destGeneration uint64) {
	if !destRefToFrame.Invertible() {
		return
	}
	// dest frame -> reference time -> frac source frame.
	frameToRef := timeline.NewFunction(
		destRefToFrame.ReferenceOffset(),
		destRefToFrame.SubjectOffset(),
		destRefToFrame.Rate().Inverse(),
	)
	bk.DestToFracSource = timeline.Compose(srcRefToFracFrame, frameToRef)
	bk.DestGeneration = destGeneration
}
