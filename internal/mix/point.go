package mix

// pointSampler copies the nearest source frame per destination frame. Used
// when source and destination run at the same rate; the step size is then
// exactly FracOne and no interpolation is needed.
type pointSampler struct {
	srcChans  int
	destChans int
	step      int64
}

func (p *pointSampler) StepSize() int64 { return p.step }

func (p *pointSampler) Mix(dest []float32, destFrames int, destOffset *int,
	src []float32, fracSrcFrames int64, fracSrcOffset *int64,
	accumulate bool, gain *Gain) bool {

	di := *destOffset
	so := *fracSrcOffset

	for di < destFrames && so < fracSrcFrames {
		idx := int(so >> FracBits)
		l, r := readFrame(src, idx, p.srcChans)
		writeFrame(dest, di, p.destChans, l, r, p.srcChans, gain.Step(), accumulate)
		di++
		so += p.step
	}

	*destOffset = di
	*fracSrcOffset = so
	return so >= fracSrcFrames
}

// readFrame fetches one source frame as a left/right pair. Mono sources
// return the same sample for both.
func readFrame(src []float32, frame, chans int) (float32, float32) {
	base := frame * chans
	if base >= len(src) {
		return 0, 0
	}
	if chans == 1 {
		s := src[base]
		return s, s
	}
	return src[base], src[base+1]
}

// writeFrame applies gain and channel adaptation, then writes or
// accumulates one destination frame.
func writeFrame(dest []float32, frame, destChans int, l, r float32, srcChans int, scale float32, accumulate bool) {
	base := frame * destChans
	if destChans == 1 {
		s := l
		if srcChans == 2 {
			s = (l + r) * 0.5
		}
		s *= scale
		if accumulate {
			dest[base] += s
		} else {
			dest[base] = s
		}
		return
	}

	l *= scale
	r *= scale
	if accumulate {
		dest[base] += l
		dest[base+1] += r
	} else {
		dest[base] = l
		dest[base+1] = r
	}
	// Channels beyond stereo are duplicated from the stereo pair.
	for c := 2; c < destChans; c++ {
		v := l
		if c%2 == 1 {
			v = r
		}
		if accumulate {
			dest[base+c] += v
		} else {
			dest[base+c] = v
		}
	}
}
