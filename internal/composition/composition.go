// Package composition implements the composition timeline model: a
// wall-clock-anchored logical playback clock with pause/resume, seek,
// and a change-epoch invalidation discipline.
package composition

import (
	"sync"
	"time"

	"github.com/radmix/compositor/internal/notify"
	"github.com/radmix/compositor/internal/source"
)

// Src places one source within a composition's timeline.
type Src struct {
	Source        source.Source
	FrameOffset   int64
	Amplification float32
	enabled       bool
}

// Enabled reports whether the placed source currently participates in
// the mix.
func (s *Src) Enabled() bool { return s.enabled }

// Composition is the authoritative timeline and content of one mix. A
// single RWMutex guards every field; the producer takes the write lock
// each cycle because it needs to read mutable source state through it.
type Composition struct {
	mu sync.RWMutex

	id            string
	channels      uint8
	amplification float32
	sources       []*Src

	startWall  time.Time
	pauseWall  *time.Time
	offsetMs   int64
	changeEpoch uint16
}

// New constructs a Composition anchored to the current wall clock.
func New(id string, channels uint8, amplification float32) *Composition {
	return &Composition{
		id:            id,
		channels:      channels,
		amplification: amplification,
		startWall:     time.Now(),
	}
}

func (c *Composition) ID() string { return c.id }

// Lock / Unlock expose the composition's write lock directly to the
// compositor producer, which must hold it while reading mutable source
// state and while computing the derived logical time for a cycle.
func (c *Composition) Lock()   { c.mu.Lock() }
func (c *Composition) Unlock() { c.mu.Unlock() }

func (c *Composition) Channels() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels
}

// Amplification returns the composition-level gain. Must be called
// with at least a read lock held by the caller, matching ChangeEpoch
// and Sources — the producer reads it in the same locked cycle it
// reads Sources, so it cannot also take its own lock here.
func (c *Composition) Amplification() float32 {
	return c.amplification
}

// ChangeEpoch returns the current epoch. Must be called with the read
// or write lock held by the caller, matching producer usage.
func (c *Composition) ChangeEpoch() uint16 {
	return c.changeEpoch
}

// Sources returns the live placement list. Callers must hold the lock.
func (c *Composition) Sources() []*Src {
	return c.sources
}

// LogicalMillis computes logical_ms per §3: the wall-clock elapsed time
// since start_wall (frozen at pause_wall while paused), plus the seek
// offset. Must be called with at least a read lock held.
func (c *Composition) LogicalMillis() int64 {
	now := time.Now()
	if c.pauseWall != nil {
		now = *c.pauseWall
	}
	elapsed := now.Sub(c.startWall).Milliseconds()
	return saturatingAdd(elapsed, c.offsetMs)
}

// IsPaused reports pause_wall.is_some() OR logical_ms < 0 — the latter
// expresses a seek into the future still waiting for real time to
// catch up. Must be called with at least a read lock held.
func (c *Composition) IsPaused() bool {
	if c.pauseWall != nil {
		return true
	}
	return c.LogicalMillis() < 0
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return int64(^uint64(0) >> 1) // math.MaxInt64
		}
		return -int64(^uint64(0)>>1) - 1 // math.MinInt64
	}
	return sum
}

// --- Control-plane mutations (§6) ---
// Every mutator acquires the write lock internally; callers must not
// already hold it.

// PushSource appends src with frame_offset equal to the current
// logical time expressed in the source's own sample rate.
func (c *Composition) PushSource(src source.Source, amplification float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logicalFrame := millisToFrames(c.LogicalMillis(), src.SampleRate())
	c.sources = append(c.sources, &Src{
		Source:        src,
		FrameOffset:   logicalFrame,
		Amplification: amplification,
		enabled:       true,
	})
	notify.Dispatch(notify.Event{Type: notify.EventSourcePushed, CompositionID: c.id, Timestamp: time.Now()})
}

// PushSourceWithOffset appends src with an explicit raw frame offset.
func (c *Composition) PushSourceWithOffset(src source.Source, offset int64, amplification float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sources = append(c.sources, &Src{
		Source:        src,
		FrameOffset:   offset,
		Amplification: amplification,
		enabled:       true,
	})
	notify.Dispatch(notify.Event{Type: notify.EventSourcePushed, CompositionID: c.id, Timestamp: time.Now()})
}

// SetTimeMillis seeks the composition clock to ms, bumping the change
// epoch so the compositor resynchronizes.
func (c *Composition) SetTimeMillis(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.LogicalMillis()
	c.offsetMs += ms - current
	c.changeEpoch++
	notify.Dispatch(notify.Event{Type: notify.EventSeek, CompositionID: c.id, Timestamp: time.Now()})
}

// SetPaused transitions between playing and paused. No-op if already
// in the requested state.
func (c *Composition) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if paused {
		if c.pauseWall != nil {
			return
		}
		c.pauseWall = &now
		notify.Dispatch(notify.Event{Type: notify.EventPaused, CompositionID: c.id, Timestamp: now})
		return
	}

	if c.pauseWall == nil {
		return
	}
	c.offsetMs -= now.Sub(*c.pauseWall).Milliseconds()
	c.pauseWall = nil
	notify.Dispatch(notify.Event{Type: notify.EventResumed, CompositionID: c.id, Timestamp: now})
}

// SetAmplification applies a new composition-level gain at the next
// buffer boundary. Bumping the epoch is optional; callers that cannot
// tolerate a torn gain transition should follow with a manual epoch
// bump via SetTimeMillis(current time).
func (c *Composition) SetAmplification(gain float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amplification = gain
}

// Rename changes the composition's id. Supplemental control mutation
// not present in the original control-plane contract but present in
// the reference remote-control client.
func (c *Composition) Rename(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

func millisToFrames(ms int64, sampleRate uint32) int64 {
	return int64(float64(ms) * float64(sampleRate) / 1000.0)
}
