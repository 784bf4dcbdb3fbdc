// Package compositor implements the per-(composition, sample rate)
// producer thread and the registry that demultiplexes consumers to
// producers, per §4.5 and §4.6.
package compositor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/radmix/compositor/internal/composition"
	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/metrics"
	"github.com/radmix/compositor/internal/mix"
	"github.com/radmix/compositor/internal/stream"
)

// Default tunables; overridden by config.CompositorConfig in practice.
const (
	DefaultBufSize         = 1024
	DefaultLookaheadSec    = 0.3
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultActiveThreshold = 3
)

// producerState is the terminal-state pair a Producer can occupy.
type producerState int32

const (
	stateActive producerState = iota
	stateKilled
)

// Producer advances the buffer stream for one (composition, sample
// rate) pair under a lookahead budget, stopping when no consumer
// remains attached.
type Producer struct {
	comp       *composition.Composition
	sampleRate uint32
	channels   uint8

	bufSize         int
	lookaheadSec    float64
	pollInterval    time.Duration
	activeThreshold int32

	state atomic.Int32 // producerState

	// refCount approximates the strong-reference count described in
	// §4.5: the registry and the producer's own local tail variable
	// each hold one baseline reference; every additional attached
	// consumer increments it via the registry's Attach path.
	refCount atomic.Int32

	headMu headHolder
}

// headHolder publishes the producer's current tail pointer for the
// registry to read without taking the composition lock.
type headHolder struct {
	node atomic.Pointer[stream.Node]
}

func (h *headHolder) store(n *stream.Node) { h.node.Store(n) }
func (h *headHolder) load() *stream.Node   { return h.node.Load() }

// NewProducer snapshots the composition's channel count and
// synthesizes the initial buffer, returning a Producer ready to Start.
func NewProducer(comp *composition.Composition, sampleRate uint32, bufSize int, lookaheadSec float64, pollInterval time.Duration, activeThreshold int) *Producer {
	channels := comp.Channels()

	p := &Producer{
		comp:            comp,
		sampleRate:      sampleRate,
		channels:        channels,
		bufSize:         bufSize,
		lookaheadSec:    lookaheadSec,
		pollInterval:    pollInterval,
		activeThreshold: int32(activeThreshold),
	}
	p.refCount.Store(2) // registry record + producer's own local tail variable
	p.state.Store(int32(stateActive))

	// Synthesize the frame-0 buffer under the composition lock before
	// wrapping it as the stream head, matching the original's
	// first_node = compute_frames(sample_rate, &mut cmp, 0) computed
	// inside the cmp_state.write() critical section (compositor.rs).
	framesPerNode := stream.FramesPerNode(bufSize, channels)
	scratch := mix.NewScratch(int(channels))

	comp.Lock()
	initial := p.computeFrames(scratch, 0, framesPerNode)
	comp.Unlock()

	head := stream.NewHead(bufSize, channels, initial)
	p.headMu.store(head)

	return p
}

// computeFrames renders framesPerNode frames starting at frameIndex into a
// bufSize-length interleaved buffer. The caller must already hold p.comp's
// lock; this mirrors the original's compute_frames, which always runs
// inside a cmp_state write-lock critical section.
func (p *Producer) computeFrames(scratch *mix.Scratch, frameIndex uint64, framesPerNode int) []float32 {
	placements := sourcePlacements(p.comp.Sources())
	gain := p.comp.Amplification()

	buf := make([]float32, p.bufSize)
	for i := 0; i < framesPerNode; i++ {
		frame := scratch.Frame(frameIndex+uint64(i), p.sampleRate, int(p.channels), placements, gain)
		copy(buf[i*int(p.channels):(i+1)*int(p.channels)], frame)
	}
	return buf
}

// Head returns the current tail pointer.
func (p *Producer) Head() *stream.Node { return p.headMu.load() }

// IsActive reports whether the producer has not yet been reaped.
func (p *Producer) IsActive() bool {
	return producerState(p.state.Load()) == stateActive
}

// Attach registers one more consumer reference; Detach releases it.
func (p *Producer) Attach() { p.refCount.Add(1) }
func (p *Producer) Detach() { p.refCount.Add(-1) }

// Name matches the spec's producer thread naming convention.
func (p *Producer) Name() string {
	return fmt.Sprintf("cmp-%s/%d", p.comp.ID(), p.sampleRate)
}

// Start spawns the producer goroutine.
func (p *Producer) Start() {
	go p.run()
}

func (p *Producer) run() {
	framesPerNode := stream.FramesPerNode(p.bufSize, p.channels)
	scratch := mix.NewScratch(int(p.channels))

	startWall := time.Now()
	var frameIndex uint64
	var changeEpochLocal uint16
	var secondsEmitted float64

	var changeEpochInit bool

	tail := p.headMu.load()

	logging.Debug("compositor producer starting", "name", p.Name(), "sample_rate", p.sampleRate)

	for {
		if p.refCount.Load() < p.activeThreshold {
			p.state.Store(int32(stateKilled))
			logging.Debug("compositor producer reaped (idle)", "name", p.Name())
			metrics.CompositorProducersActive.Dec()
			return
		}

		elapsed := time.Since(startWall).Seconds()
		if secondsEmitted-elapsed > p.lookaheadSec {
			time.Sleep(p.pollInterval)
			continue
		}

		p.comp.Lock()

		if p.comp.IsPaused() {
			p.comp.Unlock()
			time.Sleep(p.pollInterval)
			continue
		}

		epoch := p.comp.ChangeEpoch()
		if !changeEpochInit || epoch != changeEpochLocal {
			startWall = time.Now()
			secondsEmitted = 0
			frameIndex = uint64(float64(p.comp.LogicalMillis()) / 1000.0 * float64(p.sampleRate))
			changeEpochLocal = epoch
			changeEpochInit = true
		}

		buf := p.computeFrames(scratch, frameIndex, framesPerNode)

		p.comp.Unlock()

		tail = tail.PushNext(buf)
		p.headMu.store(tail)
		metrics.CompositorBuffersProduced.Inc()

		secondsEmitted += float64(framesPerNode) / float64(p.sampleRate)
		frameIndex += uint64(framesPerNode)
	}
}

func sourcePlacements(srcs []*composition.Src) []mix.Placement {
	placements := make([]mix.Placement, 0, len(srcs))
	for _, s := range srcs {
		if !s.Enabled() {
			continue
		}
		placements = append(placements, mix.Placement{
			Source:        s.Source,
			FrameOffset:   s.FrameOffset,
			Amplification: s.Amplification,
		})
	}
	return placements
}
