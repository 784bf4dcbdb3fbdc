package composition

import (
	"testing"
	"time"
)

func TestLogicalMillisAdvancesWithWallClock(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	time.Sleep(20 * time.Millisecond)

	c.mu.RLock()
	ms := c.LogicalMillis()
	c.mu.RUnlock()

	if ms < 15 {
		t.Errorf("expected logical_ms to advance with wall clock, got %d", ms)
	}
}

func TestSetPausedFreezesClock(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	c.SetPaused(true)

	c.mu.RLock()
	first := c.LogicalMillis()
	c.mu.RUnlock()

	time.Sleep(20 * time.Millisecond)

	c.mu.RLock()
	second := c.LogicalMillis()
	paused := c.IsPaused()
	c.mu.RUnlock()

	if first != second {
		t.Errorf("expected logical_ms to freeze while paused: first=%d second=%d", first, second)
	}
	if !paused {
		t.Error("expected IsPaused to report true")
	}
}

func TestResumeAdjustsOffsetForElapsedPause(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	c.SetPaused(true)
	time.Sleep(20 * time.Millisecond)
	c.SetPaused(false)

	c.mu.RLock()
	ms := c.LogicalMillis()
	paused := c.IsPaused()
	c.mu.RUnlock()

	if paused {
		t.Error("expected IsPaused to report false after resume")
	}
	if ms < 0 {
		t.Errorf("expected non-negative logical_ms after resume, got %d", ms)
	}
}

func TestSetTimeMillisSeeksAndBumpsEpoch(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	c.mu.RLock()
	epochBefore := c.ChangeEpoch()
	c.mu.RUnlock()

	c.SetTimeMillis(10000)

	c.mu.RLock()
	ms := c.LogicalMillis()
	epochAfter := c.ChangeEpoch()
	c.mu.RUnlock()

	if ms < 9900 || ms > 10100 {
		t.Errorf("expected logical_ms near 10000 after seek, got %d", ms)
	}
	if epochAfter == epochBefore {
		t.Error("expected change_epoch to bump on seek")
	}
}

func TestNegativeSeekReportsPausedUntilCaughtUp(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	c.SetTimeMillis(-5000)

	c.mu.RLock()
	paused := c.IsPaused()
	c.mu.RUnlock()

	if !paused {
		t.Error("expected negative logical_ms to report is_paused true")
	}
}

func TestPushSourceUsesCurrentLogicalFrameAsOffset(t *testing.T) {
	t.Parallel()

	c := New("cmp-1", 2, 1.0)
	c.SetTimeMillis(1000) // logical_ms ~= 1000

	src := &fixedRateSource{rate: 48000}
	c.PushSource(src, 1.0)

	c.mu.RLock()
	sources := c.Sources()
	c.mu.RUnlock()

	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	got := sources[0].FrameOffset
	if got < 47000 || got > 49000 {
		t.Errorf("expected frame_offset near 48000 (1s @ 48kHz), got %d", got)
	}
}

type fixedRateSource struct{ rate uint32 }

func (f *fixedRateSource) SampleRate() uint32            { return f.rate }
func (f *fixedRateSource) Channels() uint8                { return 2 }
func (f *fixedRateSource) Duration() (uint64, bool)       { return 0, false }
func (f *fixedRateSource) CurrentDurationFrames() uint64  { return 0 }
func (f *fixedRateSource) Read(frame uint64) ([]float32, bool) { return nil, false }
