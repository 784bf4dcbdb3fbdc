// Package mix implements per-source frame mapping, linear-interpolation
// resampling, and gain application for the compositor's mixing kernel.
package mix

import "github.com/radmix/compositor/internal/metrics"

// Source is the minimal read surface mix needs from a composition
// source: one interleaved frame at a given frame index, or ok=false at
// end-of-source.
type Source interface {
	SampleRate() uint32
	Read(frame uint64) ([]float32, bool)
}

// Placement describes where one source sits in a composition's mix.
type Placement struct {
	Source        Source
	FrameOffset   int64
	Amplification float32
}

// scratch holds reusable per-call buffers so repeated Frame calls don't
// allocate on every sample. Not safe for concurrent use; the compositor
// producer owns one scratch per (composition, sample rate) pair.
type Scratch struct {
	out []float32
}

// NewScratch returns a Scratch sized for channels output samples.
func NewScratch(channels int) *Scratch {
	return &Scratch{out: make([]float32, channels)}
}

// Frame computes one mixed, composition-gain-applied frame at target
// frame index f for target sample rate targetRate and channel count
// channels, from the given placements. The returned slice is owned by
// the Scratch and is overwritten by the next call.
func (sc *Scratch) Frame(f uint64, targetRate uint32, channels int, placements []Placement, compositionGain float32) []float32 {
	for i := range sc.out {
		sc.out[i] = 0
	}

	for _, p := range placements {
		out, ok := sourceFrame(p, f, targetRate)
		if !ok {
			continue
		}
		for c := 0; c < channels; c++ {
			sc.out[c] += out[c%len(out)] * p.Amplification
		}
	}

	for c := 0; c < channels; c++ {
		sc.out[c] *= compositionGain
	}

	return sc.out
}

// sourceFrame maps target frame f to a placement's source rate and
// reads (resampling with linear interpolation when rates differ),
// implementing §4.3 of the mixing algorithm.
func sourceFrame(p Placement, f uint64, targetRate uint32) ([]float32, bool) {
	srcRate := p.Source.SampleRate()

	if targetRate == srcRate {
		fSrcExact := int64(f) - p.FrameOffset
		if fSrcExact < 0 {
			return nil, false
		}
		return p.Source.Read(uint64(fSrcExact))
	}

	fSrcExact := (float64(f) * float64(srcRate) / float64(targetRate)) - float64(p.FrameOffset)
	if fSrcExact < 0 {
		return nil, false
	}

	a := uint64(fSrcExact)
	t := fSrcExact - float64(a)

	sampleA, okA := p.Source.Read(a)
	sampleB, okB := p.Source.Read(a + 1)
	if !okA || !okB {
		metrics.MixUnderrunsTotal.Inc()
		return nil, false
	}

	out := make([]float32, len(sampleA))
	for c := range out {
		bv := sampleB[c%len(sampleB)]
		out[c] = sampleA[c] + (bv-sampleA[c])*float32(t)
	}
	return out, true
}
