package btree

import "github.com/corekv/corekv/internal/page"

// Iterator walks leaf entries in key order. It holds a read latch on exactly
// one leaf at a time, releasing it and acquiring the next leaf's latch when
// it crosses a next_page_id boundary, per spec.md §4.5.4.
type Iterator[K any] struct {
	t       *Tree[K]
	pg      *page.Page
	entries []leafEntry[K]
	idx     int
	done    bool
}

// Begin returns an iterator positioned at the first entry of the tree.
func (t *Tree[K]) Begin() (*Iterator[K], error) {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()
	if rootID == page.Invalid {
		return &Iterator[K]{done: true}, nil
	}
	leaf, err := t.descendForRead(rootID, nil, true)
	if err != nil {
		return nil, err
	}
	return t.makeIterator(leaf, 0), nil
}

// BeginAt returns an iterator positioned at the first entry with key >= k.
func (t *Tree[K]) BeginAt(k K) (*Iterator[K], error) {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()
	if rootID == page.Invalid {
		return &Iterator[K]{done: true}, nil
	}
	leaf, err := t.descendForRead(rootID, &k, false)
	if err != nil {
		return nil, err
	}
	idx, _ := t.searchLeaf(t.leafEntries(leaf), k)
	return t.makeIterator(leaf, idx), nil
}

func (t *Tree[K]) makeIterator(leaf *page.Page, idx int) *Iterator[K] {
	it := &Iterator[K]{t: t, pg: leaf, entries: t.leafEntries(leaf), idx: idx}
	it.skipToValid()
	return it
}

func (it *Iterator[K]) skipToValid() {
	for !it.done && it.idx >= len(it.entries) {
		h := readHeader(it.pg)
		next := h.nextID
		it.pg.Latch.RUnlock()
		_ = it.t.bp.UnpinPage(it.pg.ID(), false)

		if next == page.Invalid {
			it.done = true
			it.pg = nil
			return
		}
		npg, err := it.t.bp.FetchPage(next)
		if err != nil {
			it.done = true
			it.pg = nil
			return
		}
		npg.Latch.RLock()
		it.pg = npg
		it.entries = it.t.leafEntries(npg)
		it.idx = 0
	}
}

// Valid reports whether Item may be called.
func (it *Iterator[K]) Valid() bool { return !it.done }

// Item returns the key and RID at the iterator's current position.
func (it *Iterator[K]) Item() (K, page.RID) {
	e := it.entries[it.idx]
	return e.key, e.rid
}

// Next advances the iterator by one entry.
func (it *Iterator[K]) Next() {
	it.idx++
	it.skipToValid()
}

// Close releases the iterator's held leaf latch, if any. Safe to call
// multiple times and safe to skip once Valid() is false.
func (it *Iterator[K]) Close() {
	if it.pg != nil {
		it.pg.Latch.RUnlock()
		_ = it.t.bp.UnpinPage(it.pg.ID(), false)
		it.pg = nil
	}
	it.done = true
}
