package audio

// Resampler converts interleaved stereo float frames between two sample
// rates using linear interpolation. It is good enough for loopback
// capture of compressed program audio; a polyphase filter would be the
// next step if aliasing ever becomes audible.
type Resampler struct {
	inRate  int
	outRate int
	out     []float32
}

// NewResampler builds a stereo resampler from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{inRate: inRate, outRate: outRate}
}

// OutputFrames returns how many output frames a buffer of inFrames maps to.
func (r *Resampler) OutputFrames(inFrames int) int {
	return int(float64(inFrames) * float64(r.outRate) / float64(r.inRate))
}

// Resample interpolates one buffer of interleaved stereo frames. The
// returned slice is valid until the next call.
func (r *Resampler) Resample(frames []float32) []float32 {
	inFrames := len(frames) / 2
	outFrames := r.OutputFrames(inFrames)
	if outFrames == 0 || inFrames == 0 {
		return nil
	}

	if cap(r.out) < outFrames*2 {
		r.out = make([]float32, outFrames*2)
	}
	r.out = r.out[:outFrames*2]

	// One frame on either side leaves nothing to interpolate between.
	if inFrames == 1 || outFrames == 1 {
		for i := 0; i < outFrames; i++ {
			r.out[i*2] = frames[0]
			r.out[i*2+1] = frames[1]
		}
		return r.out
	}

	step := float64(inFrames-1) / float64(outFrames-1)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx >= inFrames-1 {
			idx = inFrames - 2
			frac = 1.0
		}
		r.out[i*2] = frames[idx*2]*(1-frac) + frames[(idx+1)*2]*frac
		r.out[i*2+1] = frames[idx*2+1]*(1-frac) + frames[(idx+1)*2+1]*frac
	}
	return r.out
}
