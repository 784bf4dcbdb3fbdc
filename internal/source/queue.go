package source

import (
	"github.com/radmix/compositor/internal/xerrors"
)

// Queue concatenates child sources end-to-end in frame space at a
// nominal output sample rate, resampling children whose rate differs.
//
// Construction requires every child except possibly the last to have a
// known duration — the read loop advances by a child's duration to
// find the next child's starting offset, which isn't possible for a
// child with unbounded length sitting before the end of the queue.
type Queue struct {
	sampleRate uint32
	channels   uint8
	children   []Source

	// childOffsets[i] is the queue-rate frame at which children[i]
	// begins. Computed once at construction since durations are
	// required to be stable (children must report known duration or
	// be last).
	childOffsets []uint64

	// scratch buffer for linear resampling output, reused across reads
	// to avoid reallocating per call.
	scratch []float32

	memoComputed      bool
	memoDurationKnown bool
	memoDuration      uint64
}

// NewQueue validates and constructs a Queue source. It returns a
// CategoryComposition validation error if a non-terminal child has an
// unknown duration.
func NewQueue(sampleRate uint32, channels uint8, children []Source) (*Queue, error) {
	offsets := make([]uint64, len(children))
	var running uint64

	for i, child := range children {
		offsets[i] = running

		d, known := child.Duration()
		isLast := i == len(children)-1
		if !known && !isLast {
			return nil, xerrors.Newf("queue child %d has unknown duration but is not last", i).
				Category(xerrors.CategoryComposition).
				Component("source").
				Context("child_index", i).
				Build()
		}
		if known {
			running += durationAtRate(d, child.SampleRate(), sampleRate)
		}
	}

	return &Queue{
		sampleRate:   sampleRate,
		channels:     channels,
		children:     children,
		childOffsets: offsets,
		scratch:      make([]float32, channels),
	}, nil
}

func durationAtRate(frames uint64, fromRate, toRate uint32) uint64 {
	if fromRate == toRate {
		return frames
	}
	return uint64(float64(frames) * float64(toRate) / float64(fromRate))
}

func (q *Queue) SampleRate() uint32 { return q.sampleRate }
func (q *Queue) Channels() uint8    { return q.channels }

// Duration returns the total queue length if every child's duration is
// known; the total is memoized on first computation per §4 supplemental
// feature (queue duration memoization), since summing children can be
// non-trivial for nested queues.
func (q *Queue) Duration() (uint64, bool) {
	if q.memoComputed {
		return q.memoDuration, q.memoDurationKnown
	}

	var total uint64
	for _, child := range q.children {
		d, known := child.Duration()
		if !known {
			q.memoComputed = true
			q.memoDurationKnown = false
			return 0, false
		}
		total += durationAtRate(d, child.SampleRate(), q.sampleRate)
	}

	q.memoComputed = true
	q.memoDurationKnown = true
	q.memoDuration = total
	return total, true
}

// CurrentDurationFrames sums children's current durations; stable once
// every child has reached end-of-stream.
func (q *Queue) CurrentDurationFrames() uint64 {
	var total uint64
	for _, child := range q.children {
		total += durationAtRate(child.CurrentDurationFrames(), child.SampleRate(), q.sampleRate)
	}
	return total
}

// Read walks children in order, resampling on rate mismatch, per §4.2.
func (q *Queue) Read(frame uint64) ([]float32, bool) {
	offset := uint64(0)

	for _, child := range q.children {
		localFrame := frame - offset

		var out []float32
		var ok bool
		if child.SampleRate() == q.sampleRate {
			out, ok = child.Read(localFrame)
		} else {
			out, ok = q.readResampled(child, localFrame)
		}
		if ok {
			return out, true
		}

		d, known := child.Duration()
		if !known {
			// Unknown duration is only legal on the last child; once it
			// reports no frame, the queue itself is exhausted.
			return nil, false
		}
		offset += durationAtRate(d, child.SampleRate(), q.sampleRate)
	}

	return nil, false
}

// readResampled maps a queue-rate frame to a fractional child-rate
// frame and linearly interpolates, mirroring the compositor's mixing
// kernel (§4.3) at the per-source level.
func (q *Queue) readResampled(child Source, queueFrame uint64) ([]float32, bool) {
	fChildExact := float64(queueFrame) * float64(child.SampleRate()) / float64(q.sampleRate)
	a := uint64(fChildExact)
	t := fChildExact - float64(a)

	sampleA, okA := child.Read(a)
	sampleB, okB := child.Read(a + 1)
	if !okA || !okB {
		return nil, false
	}

	for c := range q.scratch[:len(sampleA)] {
		bv := sampleB[c%len(sampleB)]
		q.scratch[c] = sampleA[c] + (bv-sampleA[c])*float32(t)
	}
	return q.scratch[:len(sampleA)], true
}
