// Package segstore implements the sample segment store: a per-source,
// LRU-bounded cache of decoded PCM runs keyed by frame index.
package segstore

import (
	"sync"
	"sync/atomic"

	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/metrics"
	"github.com/radmix/compositor/internal/xerrors"
)

// DefaultCacheLimitBytes is the cache ceiling used when a Store is
// constructed without an explicit limit.
const DefaultCacheLimitBytes = 32 * 1024 * 1024

var storeIDSeq atomic.Uint64

// PileID identifies one source's pile within a specific Store.
type PileID struct {
	Index   uint64
	StoreID uint64
}

// Segment is a contiguous run of decoded interleaved samples belonging
// to one pile.
type Segment struct {
	StartFrame  uint64
	Channels    uint8
	Interleaved []float32
}

// FrameCount returns the number of frames covered by the segment.
func (s *Segment) FrameCount() uint64 {
	return uint64(len(s.Interleaved)) / uint64(s.Channels)
}

// Covers reports whether frame falls within [StartFrame, StartFrame+FrameCount).
func (s *Segment) Covers(frame uint64) bool {
	return frame >= s.StartFrame && frame < s.StartFrame+s.FrameCount()
}

func (s *Segment) sizeBytes() int64 {
	return int64(len(s.Interleaved)) * 4
}

type recencyEntry struct {
	idx        uint64
	pileIndex  uint64
	startFrame uint64
}

type pile struct {
	// segments ordered by StartFrame; a simple sorted slice is enough
	// for the predecessor-query access pattern the store needs.
	segments []*Segment
}

// Store is the process-global (or per-run) sample segment cache. A
// single exclusive lock guards the whole store, matching its
// specified concurrency model.
type Store struct {
	id uint64
	mu sync.Mutex

	piles   map[uint64]*pile
	nextIdx uint64

	cacheBytes      int64
	cacheLimitBytes int64
	recencySeq      uint64
	recency         []recencyEntry // kept sorted by idx ascending
}

// New creates an empty Store with the given cache ceiling. A
// cacheLimitBytes of 0 selects DefaultCacheLimitBytes.
func New(cacheLimitBytes int64) *Store {
	if cacheLimitBytes <= 0 {
		cacheLimitBytes = DefaultCacheLimitBytes
	}
	return &Store{
		id:              storeIDSeq.Add(1),
		piles:           make(map[uint64]*pile),
		cacheLimitBytes: cacheLimitBytes,
	}
}

// NewPile allocates a fresh, empty pile owned by this store.
func (s *Store) NewPile() PileID {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nextIdx
	s.nextIdx++
	s.piles[idx] = &pile{}
	return PileID{Index: idx, StoreID: s.id}
}

// Insert adds a segment to pile. It fails silently (logs and no-ops) if
// the segment overlaps an existing one in the pile, per the store's
// soft-failure contract. Inserting into a pile from a different store
// is an assertion-class violation and panics.
func (s *Store) Insert(id PileID, startFrame uint64, channels uint8, interleaved []float32, permanent bool) {
	if id.StoreID != s.id {
		xerrors.Newf("insert into pile from foreign store: pile store=%d this store=%d", id.StoreID, s.id).
			Category(xerrors.CategorySegmentStore).
			Component("segstore").
			MustBuild()
	}

	seg := &Segment{StartFrame: startFrame, Channels: channels, Interleaved: interleaved}
	sizeBytes := seg.sizeBytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !permanent && sizeBytes > s.cacheLimitBytes {
		logging.Warn("segment exceeds cache limit, rejecting insert",
			"pile", id.Index, "size_bytes", sizeBytes, "cache_limit_bytes", s.cacheLimitBytes)
		return
	}

	p, ok := s.piles[id.Index]
	if !ok {
		logging.Error("insert into unknown pile", "pile", id.Index)
		return
	}

	if s.overlaps(p, startFrame, seg.FrameCount()) {
		logging.Debug("segment insert overlaps existing segment, ignoring",
			"pile", id.Index, "start_frame", startFrame)
		return
	}

	s.insertSorted(p, seg)

	if !permanent {
		s.recencySeq++
		s.recency = append(s.recency, recencyEntry{idx: s.recencySeq, pileIndex: id.Index, startFrame: startFrame})
		s.cacheBytes += sizeBytes
		s.evictToFit()
	}
}

// overlaps reports whether [start, start+count) intersects any segment
// already in p, using the nearest-predecessor rule from Lookup.
func (s *Store) overlaps(p *pile, start, count uint64) bool {
	end := start + count
	i := s.predecessorIndex(p, start)
	if i >= 0 {
		pred := p.segments[i]
		if pred.StartFrame+pred.FrameCount() > start {
			return true
		}
	}
	// also check the segment immediately after the predecessor in case
	// the new range extends forward into it.
	j := i + 1
	if j < len(p.segments) && p.segments[j].StartFrame < end {
		return true
	}
	return false
}

// predecessorIndex returns the index of the greatest segment with
// StartFrame <= frame, or -1 if none.
func (s *Store) predecessorIndex(p *pile, frame uint64) int {
	lo, hi := 0, len(p.segments)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if p.segments[mid].StartFrame <= frame {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

func (s *Store) insertSorted(p *pile, seg *Segment) {
	i := s.predecessorIndex(p, seg.StartFrame)
	insertAt := i + 1
	p.segments = append(p.segments, nil)
	copy(p.segments[insertAt+1:], p.segments[insertAt:])
	p.segments[insertAt] = seg
}

// Lookup retrieves the segment covering frame, if any. A hit on an
// evictable segment performs an LRU touch: its recency entry is
// refreshed with a new index. Lookups never evict.
func (s *Store) Lookup(id PileID, frame uint64) (*Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.piles[id.Index]
	if !ok {
		return nil, false
	}

	i := s.predecessorIndex(p, frame)
	if i < 0 {
		return nil, false
	}
	seg := p.segments[i]
	if !seg.Covers(frame) {
		return nil, false
	}

	s.touchRecency(id.Index, seg.StartFrame)

	return seg, true
}

func (s *Store) touchRecency(pileIndex, startFrame uint64) {
	for i := range s.recency {
		if s.recency[i].pileIndex == pileIndex && s.recency[i].startFrame == startFrame {
			s.recencySeq++
			entry := s.recency[i]
			entry.idx = s.recencySeq
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			s.recency = insertRecencySorted(s.recency, entry)
			return
		}
	}
}

func insertRecencySorted(recency []recencyEntry, e recencyEntry) []recencyEntry {
	// idx is always increasing for the entry being reinserted, so it
	// belongs at the tail.
	return append(recency, e)
}

// evictToFit removes least-recently-used evictable segments until
// cacheBytes <= cacheLimitBytes. Must be called with s.mu held.
func (s *Store) evictToFit() {
	for s.cacheBytes > s.cacheLimitBytes && len(s.recency) > 0 {
		victim := s.recency[0]
		s.recency = s.recency[1:]

		p, ok := s.piles[victim.pileIndex]
		if !ok {
			continue
		}
		i := s.predecessorIndex(p, victim.startFrame)
		if i < 0 || p.segments[i].StartFrame != victim.startFrame {
			continue
		}
		seg := p.segments[i]
		p.segments = append(p.segments[:i], p.segments[i+1:]...)
		s.cacheBytes -= seg.sizeBytes()
		metrics.SegStoreEvictionsTotal.Inc()

		logging.Trace("evicted segment", "pile", victim.pileIndex, "start_frame", victim.startFrame)
	}
}

// DropPile removes all segments belonging to id and their recency
// entries.
func (s *Store) DropPile(id PileID) {
	if id.StoreID != s.id {
		xerrors.Newf("drop pile from foreign store").
			Category(xerrors.CategorySegmentStore).
			Component("segstore").
			MustBuild()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.piles[id.Index]
	if !ok {
		logging.Debug("drop of unknown pile ignored", "pile", id.Index)
		return
	}

	// Only evictable segments (those with a recency entry) count toward
	// cacheBytes.
	for _, e := range s.recency {
		if e.pileIndex != id.Index {
			continue
		}
		if i := s.predecessorIndex(p, e.startFrame); i >= 0 && p.segments[i].StartFrame == e.startFrame {
			s.cacheBytes -= p.segments[i].sizeBytes()
		}
	}
	delete(s.piles, id.Index)

	filtered := s.recency[:0]
	for _, e := range s.recency {
		if e.pileIndex != id.Index {
			filtered = append(filtered, e)
		}
	}
	s.recency = filtered
}

// CacheBytes returns the current evictable byte usage. Exposed for
// metrics and tests.
func (s *Store) CacheBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheBytes
}
