// Package timeline provides affine mappings between a monotonic reference
// clock and media frame positions, plus the clocks those mappings refer to.
package timeline

// Rate is a ratio of subject-units per reference-unit, kept in lowest terms.
// The zero value (0/0) is invalid; use NewRate.
type Rate struct {
	subjectDelta   uint64
	referenceDelta uint64
}

// NewRate creates a reduced rate of subjectDelta per referenceDelta.
// referenceDelta must be non-zero.
func NewRate(subjectDelta, referenceDelta uint64) Rate {
	if referenceDelta == 0 {
		panic("timeline: rate with zero reference delta")
	}
	g := gcd(subjectDelta, referenceDelta)
	if g > 1 {
		subjectDelta /= g
		referenceDelta /= g
	}
	return Rate{subjectDelta: subjectDelta, referenceDelta: referenceDelta}
}

// FramesPerNanosecond builds the rate mapping nanoseconds to frames at the
// given frame rate.
func FramesPerNanosecond(framesPerSecond int) Rate {
	return NewRate(uint64(framesPerSecond), 1_000_000_000)
}

// SubjectDelta returns the numerator of the reduced rate.
func (r Rate) SubjectDelta() uint64 { return r.subjectDelta }

// ReferenceDelta returns the denominator of the reduced rate.
func (r Rate) ReferenceDelta() uint64 { return r.referenceDelta }

// Zero reports whether the rate maps everything to zero.
func (r Rate) Zero() bool { return r.subjectDelta == 0 }

// Invertible reports whether the rate can be applied in reverse.
func (r Rate) Invertible() bool { return r.subjectDelta != 0 }

// Inverse returns the reciprocal rate. The rate must be invertible.
func (r Rate) Inverse() Rate {
	if r.subjectDelta == 0 {
		panic("timeline: inverting a zero rate")
	}
	return Rate{subjectDelta: r.referenceDelta, referenceDelta: r.subjectDelta}
}

// Scale applies the rate to a reference delta, rounding toward negative
// infinity. The intermediate product is split into high and low words so
// rates like 48000/1e9 survive nanosecond-scale inputs without overflow.
func (r Rate) Scale(referenceDelta int64) int64 {
	negative := referenceDelta < 0
	abs := uint64(referenceDelta)
	if negative {
		abs = uint64(-referenceDelta)
	}

	hi := (abs >> 32) * r.subjectDelta
	lo := (abs & 0xffffffff) * r.subjectDelta

	rem := hi % r.referenceDelta
	hi /= r.referenceDelta
	lo += rem << 32
	loRem := lo % r.referenceDelta
	lo /= r.referenceDelta

	result := (hi << 32) + lo
	if negative {
		if loRem != 0 {
			result++
		}
		return -int64(result)
	}
	return int64(result)
}

// Product returns the composition of two rates, reduced before multiplying
// to keep the intermediate terms small.
func Product(a, b Rate) Rate {
	g1 := gcd(a.subjectDelta, b.referenceDelta)
	g2 := gcd(b.subjectDelta, a.referenceDelta)
	return NewRate(
		(a.subjectDelta/g1)*(b.subjectDelta/g2),
		(a.referenceDelta/g2)*(b.referenceDelta/g1),
	)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
