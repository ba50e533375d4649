package mix

import (
	"math"
	"sync"
)

// MutedGainDB is the sentinel gain at or below which a stream contributes
// nothing and the mixer may skip its samples entirely.
const MutedGainDB = -160.0

// UnityGainDB is the no-op gain.
const UnityGainDB = 0.0

// DBToScale converts decibels to a linear amplitude scale.
func DBToScale(db float64) float64 {
	if db <= MutedGainDB {
		return 0
	}
	return math.Pow(10, db/20)
}

// ScaleToDB converts a linear amplitude scale to decibels.
func ScaleToDB(scale float64) float64 {
	if scale <= 0 {
		return MutedGainDB
	}
	return 20 * math.Log10(scale)
}

// RampType selects the interpolation shape of a gain ramp.
type RampType int

const (
	// RampLinearScale interpolates the linear amplitude scale.
	RampLinearScale RampType = iota
)

// Gain is the per-link gain stage. Setters run on the control domain while
// the mix domain reads scales mid-pass, so every access goes through the
// internal mutex. The zero value is unity gain.
type Gain struct {
	mu       sync.Mutex
	sourceDB float64
	destDB   float64
	muted    bool

	// Ramp state, in destination frames.
	rampFramesLeft int64
	rampDeltaScale float64
	currentScale   float64
	scaleValid     bool
}

// SetSourceGainDB sets the stream side of the gain, clearing any ramp.
func (g *Gain) SetSourceGainDB(db float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setSourceGainLocked(db)
}

func (g *Gain) setSourceGainLocked(db float64) {
	g.sourceDB = db
	g.rampFramesLeft = 0
	g.scaleValid = false
}

// SetSourceGainWithRamp animates the stream gain toward db over rampFrames
// destination frames using a linear scale ramp.
func (g *Gain) SetSourceGainWithRamp(db float64, rampFrames int64, _ RampType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rampFrames <= 0 {
		g.setSourceGainLocked(db)
		return
	}
	from := g.scaleLocked()
	g.sourceDB = db
	g.scaleValid = false
	to := g.targetScaleLocked()
	g.currentScale = from
	g.rampDeltaScale = (to - from) / float64(rampFrames)
	g.rampFramesLeft = rampFrames
}

// SetDestGainDB sets the device side of the gain.
func (g *Gain) SetDestGainDB(db float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.destDB = db
	g.scaleValid = false
}

// SetMute mutes or unmutes the link. Mute overrides every other setting.
func (g *Gain) SetMute(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = muted
	g.scaleValid = false
}

// Muted reports whether the link is effectively silent.
func (g *Gain) Muted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muted || (g.rampFramesLeft == 0 && g.targetScaleLocked() == 0)
}

func (g *Gain) targetScaleLocked() float64 {
	if g.muted {
		return 0
	}
	return DBToScale(g.sourceDB + g.destDB)
}

// Scale returns the current linear scale, mid-ramp or settled.
func (g *Gain) Scale() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scaleLocked()
}

func (g *Gain) scaleLocked() float64 {
	if g.rampFramesLeft > 0 {
		return g.currentScale
	}
	if !g.scaleValid {
		g.currentScale = g.targetScaleLocked()
		g.scaleValid = true
	}
	return g.currentScale
}

// Step returns the scale for one destination frame and advances any ramp
// past it. The samplers call this once per frame.
func (g *Gain) Step() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.scaleLocked()
	g.advanceLocked(1)
	return float32(s)
}

// Advance moves ramp state forward by frames destination frames.
func (g *Gain) Advance(frames int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advanceLocked(frames)
}

func (g *Gain) advanceLocked(frames int64) {
	if g.rampFramesLeft == 0 {
		return
	}
	if frames >= g.rampFramesLeft {
		g.rampFramesLeft = 0
		g.scaleValid = false
		return
	}
	g.rampFramesLeft -= frames
	g.currentScale += g.rampDeltaScale * float64(frames)
}
