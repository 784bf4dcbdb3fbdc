package mix

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radmix/compositor/internal/metrics"
)

type dcSource struct {
	rate  uint32
	value float32
}

func (d *dcSource) SampleRate() uint32 { return d.rate }
func (d *dcSource) Read(frame uint64) ([]float32, bool) {
	return []float32{d.value, d.value}, true
}

type rampSource struct {
	rate uint32
}

func (r *rampSource) SampleRate() uint32 { return r.rate }
func (r *rampSource) Read(frame uint64) ([]float32, bool) {
	v := float32(frame)
	return []float32{v, v}, true
}

type finiteSource struct {
	rate   uint32
	values [][]float32
}

func (f *finiteSource) SampleRate() uint32 { return f.rate }
func (f *finiteSource) Read(frame uint64) ([]float32, bool) {
	if frame >= uint64(len(f.values)) {
		return nil, false
	}
	return f.values[frame], true
}

func TestSilenceWithNoSources(t *testing.T) {
	t.Parallel()

	sc := NewScratch(2)
	out := sc.Frame(0, 48000, 2, nil, 1.0)

	for _, v := range out {
		if v != 0 {
			t.Errorf("expected silence, got %v", v)
		}
	}
}

func TestDCSourceWithCompositionGain(t *testing.T) {
	t.Parallel()

	src := &dcSource{rate: 48000, value: 0.5}
	placements := []Placement{{Source: src, FrameOffset: 0, Amplification: 1.0}}

	sc := NewScratch(2)
	out := sc.Frame(0, 48000, 2, placements, 2.0)

	for _, v := range out {
		if v != 1.0 {
			t.Errorf("expected 1.0, got %v", v)
		}
	}
}

func TestDelayedEntrySkipsBeforeOffset(t *testing.T) {
	t.Parallel()

	src := &dcSource{rate: 48000, value: 0.5}
	placements := []Placement{{Source: src, FrameOffset: 512, Amplification: 1.0}}

	sc := NewScratch(2)

	out := sc.Frame(0, 48000, 2, placements, 2.0)
	for _, v := range out {
		if v != 0 {
			t.Errorf("expected silence before frame_offset, got %v", v)
		}
	}

	out = sc.Frame(512, 48000, 2, placements, 2.0)
	for _, v := range out {
		if v != 1.0 {
			t.Errorf("expected 1.0 at frame_offset, got %v", v)
		}
	}
}

func TestLinearResampleHalfRate(t *testing.T) {
	t.Parallel()

	src := &rampSource{rate: 24000}
	placements := []Placement{{Source: src, FrameOffset: 0, Amplification: 1.0}}

	sc := NewScratch(2)

	out := sc.Frame(0, 48000, 2, placements, 1.0)
	if out[0] != 0 {
		t.Errorf("frame 0: expected 0, got %v", out[0])
	}

	out = sc.Frame(1, 48000, 2, placements, 1.0)
	if out[0] != 0.5 {
		t.Errorf("frame 1: expected 0.5, got %v", out[0])
	}

	out = sc.Frame(2, 48000, 2, placements, 1.0)
	if out[0] != 1.0 {
		t.Errorf("frame 2: expected 1.0, got %v", out[0])
	}
}

func TestMixingIsLinearAcrossSources(t *testing.T) {
	t.Parallel()

	s1 := &dcSource{rate: 48000, value: 0.2}
	s2 := &dcSource{rate: 48000, value: 0.3}

	sc := NewScratch(2)

	only1 := append([]float32{}, sc.Frame(0, 48000, 2, []Placement{{Source: s1, Amplification: 1.0}}, 1.0)...)
	only2 := append([]float32{}, sc.Frame(0, 48000, 2, []Placement{{Source: s2, Amplification: 1.0}}, 1.0)...)
	both := sc.Frame(0, 48000, 2, []Placement{
		{Source: s1, Amplification: 1.0},
		{Source: s2, Amplification: 1.0},
	}, 1.0)

	for c := range both {
		sum := only1[c] + only2[c]
		if diff := sum - both[c]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("channel %d: expected linearity, sum=%v combined=%v", c, sum, both[c])
		}
	}
}

func TestMissingSampleOnEitherSideOfResampleIsAbsent(t *testing.T) {
	src := &finiteSource{rate: 24000, values: [][]float32{{1, 1}}}
	placements := []Placement{{Source: src, Amplification: 1.0}}

	before := testutil.ToFloat64(metrics.MixUnderrunsTotal)

	sc := NewScratch(2)
	out := sc.Frame(1, 48000, 2, placements, 1.0) // needs src frame 0 and 1; 1 is absent

	for _, v := range out {
		if v != 0 {
			t.Errorf("expected silence when interpolation neighbor missing, got %v", v)
		}
	}

	after := testutil.ToFloat64(metrics.MixUnderrunsTotal)
	if after != before+1 {
		t.Errorf("expected underrun counter to increase by 1, went from %v to %v", before, after)
	}
}
