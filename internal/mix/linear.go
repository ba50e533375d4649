package mix

// linearSampler interpolates between adjacent source frames, used whenever
// source and destination rates differ. The fractional position wholly
// determines the interpolation weight, so repeated mixes over the same
// region are deterministic.
type linearSampler struct {
	srcChans  int
	destChans int
	step      int64
}

func (ls *linearSampler) StepSize() int64 { return ls.step }

func (ls *linearSampler) Mix(dest []float32, destFrames int, destOffset *int,
	src []float32, fracSrcFrames int64, fracSrcOffset *int64,
	accumulate bool, gain *Gain) bool {

	di := *destOffset
	so := *fracSrcOffset
	srcFrames := len(src) / ls.srcChans

	for di < destFrames && so < fracSrcFrames {
		idx := int(so >> FracBits)
		frac := float32(so&(FracOne-1)) / float32(FracOne)

		l0, r0 := readFrame(src, idx, ls.srcChans)
		l1, r1 := l0, r0
		if idx+1 < srcFrames {
			l1, r1 = readFrame(src, idx+1, ls.srcChans)
		}
		l := l0 + (l1-l0)*frac
		r := r0 + (r1-r0)*frac

		writeFrame(dest, di, ls.destChans, l, r, ls.srcChans, gain.Step(), accumulate)
		di++
		so += ls.step
	}

	*destOffset = di
	*fracSrcOffset = so
	return so >= fracSrcFrames
}
