package segstore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radmix/compositor/internal/metrics"
)

func samples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestInsertAndLookupRoundTrip(t *testing.T) {
	t.Parallel()

	s := New(0)
	p := s.NewPile()

	s.Insert(p, 0, 2, samples(20), false)

	seg, ok := s.Lookup(p, 5)
	if !ok {
		t.Fatal("expected lookup hit within inserted segment")
	}
	if seg.StartFrame != 0 {
		t.Errorf("expected start_frame 0, got %d", seg.StartFrame)
	}

	if _, ok := s.Lookup(p, 50); ok {
		t.Error("expected lookup miss past end of segment")
	}
}

func TestOverlappingInsertIsSilentlyIgnored(t *testing.T) {
	t.Parallel()

	s := New(0)
	p := s.NewPile()

	s.Insert(p, 0, 2, samples(20), false) // frames [0,10)
	s.Insert(p, 5, 2, samples(10), false) // overlaps [5,10) with prior

	seg, ok := s.Lookup(p, 5)
	if !ok {
		t.Fatal("expected original segment to remain")
	}
	if seg.StartFrame != 0 {
		t.Errorf("expected overlapping insert to be rejected, got segment at %d", seg.StartFrame)
	}
}

func TestCacheBoundHolds(t *testing.T) {
	t.Parallel()

	segBytes := int64(10 * 4) // 10 float32 samples
	s := New(segBytes * 3)
	p := s.NewPile()

	for i := 0; i < 10; i++ {
		s.Insert(p, uint64(i*10), 1, samples(10), false)
		if s.CacheBytes() > segBytes*3 {
			t.Fatalf("cache bound violated after insert %d: %d bytes", i, s.CacheBytes())
		}
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	segFrames := 4
	segBytes := int64(segFrames * 2 * 4) // 2 channels
	s := New(segBytes * 3)
	p := s.NewPile()

	s.Insert(p, 0, 2, samples(segFrames*2), false)  // A
	s.Insert(p, 4, 2, samples(segFrames*2), false)  // B
	s.Insert(p, 8, 2, samples(segFrames*2), false)  // C

	// touch A so B becomes least-recently-used
	if _, ok := s.Lookup(p, 0); !ok {
		t.Fatal("expected lookup hit on A")
	}

	s.Insert(p, 12, 2, samples(segFrames*2), false) // D, evicts B

	if _, ok := s.Lookup(p, 0); !ok {
		t.Error("expected A to survive eviction")
	}
	if _, ok := s.Lookup(p, 4); ok {
		t.Error("expected B to be evicted")
	}
	if _, ok := s.Lookup(p, 8); !ok {
		t.Error("expected C to survive eviction")
	}
	if _, ok := s.Lookup(p, 12); !ok {
		t.Error("expected D to be present")
	}
}

func TestLRUEvictionIncrementsMetric(t *testing.T) {
	segFrames := 4
	segBytes := int64(segFrames * 2 * 4)
	s := New(segBytes * 2)
	p := s.NewPile()

	before := testutil.ToFloat64(metrics.SegStoreEvictionsTotal)

	s.Insert(p, 0, 2, samples(segFrames*2), false) // A
	s.Insert(p, 4, 2, samples(segFrames*2), false) // B
	s.Insert(p, 8, 2, samples(segFrames*2), false) // evicts A

	after := testutil.ToFloat64(metrics.SegStoreEvictionsTotal)
	if after != before+1 {
		t.Errorf("expected eviction counter to increase by 1, went from %v to %v", before, after)
	}
}

func TestPermanentSegmentsBypassEviction(t *testing.T) {
	t.Parallel()

	s := New(1) // tiny cache, any evictable insert would be rejected
	p := s.NewPile()

	s.Insert(p, 0, 1, samples(100), true)

	if s.CacheBytes() != 0 {
		t.Errorf("expected permanent segment to not count toward cache_bytes, got %d", s.CacheBytes())
	}
	if _, ok := s.Lookup(p, 50); !ok {
		t.Error("expected permanent segment to remain queryable")
	}
}

func TestInsertIntoForeignStorePanics(t *testing.T) {
	t.Parallel()

	s1 := New(0)
	s2 := New(0)
	p2 := s2.NewPile()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic inserting into foreign store's pile")
		}
	}()

	s1.Insert(p2, 0, 1, samples(4), false)
}

func TestDropPileRemovesSegments(t *testing.T) {
	t.Parallel()

	s := New(0)
	p := s.NewPile()
	s.Insert(p, 0, 1, samples(10), false)

	s.DropPile(p)

	if _, ok := s.Lookup(p, 0); ok {
		t.Error("expected lookup to miss after drop_pile")
	}
}
