package compositor

import (
	"testing"
	"time"

	"github.com/radmix/compositor/internal/composition"
)

// rampSource emits frame index cast to float32 on every channel, so
// tests can read back the exact frame a compositor cycle produced.
type rampSource struct {
	rate     uint32
	channels uint8
}

func (r *rampSource) SampleRate() uint32           { return r.rate }
func (r *rampSource) Channels() uint8              { return r.channels }
func (r *rampSource) Duration() (uint64, bool)     { return 0, false }
func (r *rampSource) CurrentDurationFrames() uint64 { return 0 }
func (r *rampSource) Read(frame uint64) ([]float32, bool) {
	out := make([]float32, r.channels)
	for c := range out {
		out[c] = float32(frame)
	}
	return out, true
}

// constSource emits a fixed value on every channel at every frame, so
// tests can tell the stream head apart from silence.
type constSource struct {
	rate     uint32
	channels uint8
	value    float32
}

func (c *constSource) SampleRate() uint32           { return c.rate }
func (c *constSource) Channels() uint8              { return c.channels }
func (c *constSource) Duration() (uint64, bool)     { return 0, false }
func (c *constSource) CurrentDurationFrames() uint64 { return 0 }
func (c *constSource) Read(frame uint64) ([]float32, bool) {
	out := make([]float32, c.channels)
	for i := range out {
		out[i] = c.value
	}
	return out, true
}

func TestNewProducerSynthesizesFrameZeroHead(t *testing.T) {
	t.Parallel()

	comp := composition.New("cmp-1", 2, 1.0)
	comp.PushSourceWithOffset(&constSource{rate: 48000, channels: 2, value: 0.5}, 0, 1.0)

	p := NewProducer(comp, 48000, 16, 0.3, 2*time.Millisecond, 3)

	head := p.Head()
	for i, v := range head.Buffer {
		if v != 0.5 {
			t.Fatalf("expected stream head to carry synthesized frame-0 content, buffer[%d] = %v", i, v)
		}
	}
}

func testOptions() Options {
	return Options{
		BufSize:         16,
		LookaheadSec:    0.3,
		PollInterval:    2 * time.Millisecond,
		ActiveThreshold: 3,
	}
}

func TestRegistryDuplicatePushPanics(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	comp := composition.New("cmp-1", 2, 1.0)
	reg.PushComposition(comp)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic pushing a duplicate composition id")
		}
	}()
	reg.PushComposition(composition.New("cmp-1", 2, 1.0))
}

func TestGetActiveBufferUnknownCompositionErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	_, _, err := reg.GetActiveBuffer("missing", 48000)
	if err == nil {
		t.Fatal("expected error for unknown composition")
	}
}

func TestGetActiveBufferSpawnsProducerAndAdvances(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	comp := composition.New("cmp-1", 2, 1.0)
	comp.PushSourceWithOffset(&rampSource{rate: 48000, channels: 2}, 0, 1.0)
	reg.PushComposition(comp)

	node, release, err := reg.GetActiveBuffer("cmp-1", 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if reg.ActiveProducerCount() != 1 {
		t.Fatalf("expected 1 active producer, got %d", reg.ActiveProducerCount())
	}

	next := node.Next()
	if next == nil {
		t.Fatal("expected producer to advance the stream")
	}
}

func TestReleasedProducerIsEventuallyReaped(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	comp := composition.New("cmp-1", 2, 1.0)
	comp.PushSourceWithOffset(&rampSource{rate: 48000, channels: 2}, 0, 1.0)
	reg.PushComposition(comp)

	_, release, err := reg.GetActiveBuffer("cmp-1", 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	deadline := time.Now().Add(2 * time.Second)
	for reg.ActiveProducerCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("producer was not reaped after consumer detached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSeekBumpsEpochAndResyncsFrameIndex(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	comp := composition.New("cmp-1", 1, 1.0)
	comp.PushSourceWithOffset(&rampSource{rate: 48000, channels: 1}, 0, 1.0)
	reg.PushComposition(comp)

	_, release, err := reg.GetActiveBuffer("cmp-1", 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	comp.SetTimeMillis(10000)

	node, release2, err := reg.GetActiveBuffer("cmp-1", 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release2()

	next := node.Next()

	var maxVal float32
	for _, v := range next.Buffer {
		if v > maxVal {
			maxVal = v
		}
	}

	if maxVal < 479000 || maxVal > 481500 {
		t.Errorf("expected frame index near 480000 (10s @ 48kHz) after seek, got %v", maxVal)
	}
}
