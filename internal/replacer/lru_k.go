// Package replacer implements the LRU-K buffer replacement policy: the
// frame chosen for eviction is the evictable frame with the largest
// backward K-distance, with classic-LRU tie-breaking for frames that have
// not yet accumulated K accesses.
//
// Grounded on the teacher's pkg/cache/lru.go (container/list-backed access
// history under a dedicated mutex), generalized from a single most-recent
// timestamp per entry to a bounded per-frame history of the K most recent
// accesses.
package replacer

import (
	"container/list"
	"errors"
	"sync"

	"github.com/corekv/corekv/internal/page"
)

// ErrNotEvictable is returned by Remove when asked to drop a frame that is
// currently in use and marked non-evictable.
var ErrNotEvictable = errors.New("replacer: frame is in use and not evictable")

type frameState struct {
	inUse      bool
	evictable  bool
	history    *list.List // back = most recent access timestamp (int64)
	firstSeen  int64
}

// LRUK tracks access history for up to k entries per frame and selects
// eviction victims by backward k-distance.
type LRUK struct {
	mu    sync.Mutex
	k     int
	clock int64
	size  int // number of frames currently marked evictable
	table map[page.FrameID]*frameState
}

// New returns an LRU-K replacer using k as the history depth. Frames are
// tracked as they are first accessed; there is no fixed frame capacity.
func New(k int) *LRUK {
	if k < 1 {
		k = 1
	}
	return &LRUK{
		k:     k,
		table: make(map[page.FrameID]*frameState),
	}
}

func (r *LRUK) tick() int64 {
	r.clock++
	return r.clock
}

func (r *LRUK) entry(f page.FrameID) *frameState {
	st, ok := r.table[f]
	if !ok {
		st = &frameState{history: list.New()}
		r.table[f] = st
	}
	return st
}

// RecordAccess appends the current logical timestamp to frame's history,
// dropping the oldest entry once history exceeds K, and marks the frame
// in-use.
func (r *LRUK) RecordAccess(f page.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.entry(f)
	ts := r.tick()
	if st.history.Len() == 0 {
		st.firstSeen = ts
	}
	st.history.PushBack(ts)
	if st.history.Len() > r.k {
		st.history.Remove(st.history.Front())
	}
	st.inUse = true
}

// SetEvictable toggles whether frame f participates in victim selection.
// A no-op if the frame has no recorded access (never in use).
func (r *LRUK) SetEvictable(f page.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.table[f]
	if !ok || !st.inUse {
		return
	}
	if st.evictable == evictable {
		return
	}
	st.evictable = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

// Remove clears all state for f. Returns ErrNotEvictable if f is in use and
// currently marked non-evictable.
func (r *LRUK) Remove(f page.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.table[f]
	if !ok {
		return nil
	}
	if st.inUse && !st.evictable {
		return ErrNotEvictable
	}
	if st.evictable {
		r.size--
	}
	delete(r.table, f)
	return nil
}

// Size returns the number of frames currently marked evictable.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Evict chooses the evictable frame with the largest backward K-distance.
// A frame with fewer than K recorded accesses has infinite K-distance;
// among infinite-distance frames the earliest first-access timestamp wins
// (classic LRU). All bookkeeping for the chosen frame is cleared.
func (r *LRUK) Evict() (page.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found        bool
		victim       page.FrameID
		victimIsInf  bool
		victimDist   int64
		victimOldest int64
	)

	for f, st := range r.table {
		if !st.evictable {
			continue
		}
		isInf := st.history.Len() < r.k
		var dist int64
		if isInf {
			dist = 0 // unused when isInf
		} else {
			kth := st.history.Front().Value.(int64)
			dist = r.clock - kth
		}

		switch {
		case !found:
			found = true
			victim, victimIsInf, victimDist, victimOldest = f, isInf, dist, st.firstSeen
		case isInf && victimIsInf:
			if st.firstSeen < victimOldest {
				victim, victimOldest = f, st.firstSeen
			}
		case isInf && !victimIsInf:
			victim, victimIsInf, victimOldest = f, true, st.firstSeen
		case !isInf && victimIsInf:
			// current victim already has infinite distance, keep it.
		default:
			if dist > victimDist {
				victim, victimDist = f, dist
			}
		}
	}

	if !found {
		return 0, false
	}

	r.size--
	delete(r.table, victim)
	return victim, true
}
