package audio

import "math"

// linearResampler converts a stereo float stream between sample rates by
// linear interpolation. Input frames are pulled on demand and the
// fractional read position carries across calls.
type linearResampler struct {
	ratio float64 // input frames per output frame
	pos   float64 // read position, in frames, relative to hist[0]
	hist  []float32
}

func newLinearResampler(inRate, outRate int) *linearResampler {
	return &linearResampler{ratio: float64(inRate) / float64(outRate)}
}

// process fills out (interleaved stereo) and calls read to obtain more
// input frames; read must fill its whole argument.
func (r *linearResampler) process(out []float32, read func(dst []float32)) {
	frames := len(out) / 2
	if frames == 0 {
		return
	}

	need := int(math.Floor(r.pos+float64(frames-1)*r.ratio)) + 2
	have := len(r.hist) / 2
	if need > have {
		if cap(r.hist) < 2*need {
			grown := make([]float32, len(r.hist), 2*need)
			copy(grown, r.hist)
			r.hist = grown
		}
		r.hist = r.hist[:2*need]
		read(r.hist[2*have:])
		have = need
	}

	for k := 0; k < frames; k++ {
		t := r.pos + float64(k)*r.ratio
		i := int(t)
		frac := float32(t - float64(i))
		a := r.hist[2*i : 2*i+2]
		b := r.hist[2*i+2 : 2*i+4]
		out[2*k] = a[0] + (b[0]-a[0])*frac
		out[2*k+1] = a[1] + (b[1]-a[1])*frac
	}

	r.pos += float64(frames) * r.ratio
	drop := int(r.pos)
	if drop > have {
		drop = have
	}
	n := copy(r.hist, r.hist[2*drop:])
	r.hist = r.hist[:n]
	r.pos -= float64(drop)
}
