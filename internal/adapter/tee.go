package adapter

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/stream"
)

// Tee drains a composition's buffer stream into an in-memory ring
// buffer that a slow downstream writer can read from without blocking
// the producer, smoothing over scheduling jitter on the sink side.
type Tee struct {
	src           Source
	compositionID string
	sampleRate    uint32
	channels      uint8

	ring   *ringbuffer.RingBuffer
	closed atomic.Bool
	done   chan struct{}
	sink   io.Writer
}

// NewTee constructs a Tee that writes PCM float32-as-bytes frames to
// sink as they arrive, buffered through a ring of ringBytes capacity.
func NewTee(src Source, compositionID string, ringBytes int, sink io.Writer) *Tee {
	rate, channels := src.Format()
	ring := ringbuffer.New(ringBytes)
	ring.SetBlocking(true)
	return &Tee{
		src:           src,
		compositionID: compositionID,
		sampleRate:    rate,
		channels:      channels,
		ring:          ring,
		done:          make(chan struct{}),
		sink:          sink,
	}
}

// Run attaches to the composition's stream and copies every
// subsequent buffer node into the ring, then drains the ring to sink.
// Blocks until a write into the ring fails, or until the next node
// arrives after Close has been called.
func (t *Tee) Run() error {
	node, release, err := t.src.Attach(t.compositionID, t.sampleRate)
	if err != nil {
		return err
	}
	defer release()

	go t.drain()

	node = stream.Live(node, t.sampleRate, t.channels, len(node.Buffer), 0.1)

	for !t.closed.Load() {
		next := node.Next()
		if err := t.writeFrame(next.Buffer); err != nil {
			logging.Warn("tee adapter write into ring failed", "composition", t.compositionID, "error", err)
			return err
		}
		node = next
	}
	return nil
}

func (t *Tee) writeFrame(buf []float32) error {
	raw := float32SliceToBytes(buf)
	_, err := t.ring.Write(raw)
	return err
}

func (t *Tee) drain() {
	buf := make([]byte, 4096)
	for {
		n, err := t.ring.Read(buf)
		if n > 0 {
			if _, werr := t.sink.Write(buf[:n]); werr != nil {
				logging.Warn("tee adapter sink write failed", "composition", t.compositionID, "error", werr)
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-t.done:
			return
		default:
		}
	}
}

// Close stops Run and unblocks the drain goroutine.
func (t *Tee) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		close(t.done)
	}
	return nil
}

func float32SliceToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
