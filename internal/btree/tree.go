// Package btree implements the crabbing-latched B+Tree index of spec.md
// §4.5: page-backed internal/leaf nodes, latch-coupled descent that releases
// ancestor latches as soon as a node is provably safe for the operation, and
// split/merge/redistribute maintenance on insert and delete.
//
// Grounded on the teacher's internal/btree package (page-backed node shape,
// entry encode/decode on raw byte slices, the public Tree/Iterator surface)
// and on original_source/src/storage/index/b_plus_tree.cpp's latch-crabbing
// descent and delete_entry recursion, re-expressed with Go generics and a
// Comparator/Codec pair standing in for the C++ version's templated KeyType.
package btree

import (
	"sort"
	"sync"

	"github.com/corekv/corekv/internal/bufferpool"
	"github.com/corekv/corekv/internal/page"
)

// Tree is a B+Tree index over keys of type K, backed by a buffer pool. All
// exported methods are safe for concurrent use; the tree performs its own
// latch crabbing and never requires an external lock.
type Tree[K any] struct {
	bp    *bufferpool.Pool
	cmp   Comparator[K]
	codec Codec[K]

	leafMax     int
	internalMax int

	// rootMu is the root-pointer latch of spec.md §4.5.5: it protects rootID
	// itself, held across a traversal only until the first node proven safe
	// for the current operation is reached.
	rootMu sync.RWMutex
	rootID page.ID
}

// NewTree creates an empty tree. leafMax/internalMax are clamped to what a
// page can actually hold for K's encoded width, with a floor of 3 so splits
// and merges always have room to work with.
func NewTree[K any](bp *bufferpool.Pool, cmp Comparator[K], codec Codec[K], leafMax, internalMax int) *Tree[K] {
	t := &Tree[K]{bp: bp, cmp: cmp, codec: codec, rootID: page.Invalid}

	capLeaf := (page.Size - headerSize) / (codec.Width() + 8)
	capInternal := (page.Size - headerSize) / (codec.Width() + 4)
	if leafMax <= 0 || leafMax > capLeaf {
		leafMax = capLeaf
	}
	if internalMax <= 0 || internalMax > capInternal {
		internalMax = capInternal
	}
	if leafMax < 3 {
		leafMax = 3
	}
	if internalMax < 3 {
		internalMax = 3
	}
	t.leafMax = leafMax
	t.internalMax = internalMax
	return t
}

// OpenTree reopens a tree whose root page id is already known, e.g. recovered
// from the catalog's header-page directory.
func OpenTree[K any](bp *bufferpool.Pool, cmp Comparator[K], codec Codec[K], leafMax, internalMax int, rootID page.ID) *Tree[K] {
	t := NewTree(bp, cmp, codec, leafMax, internalMax)
	t.rootID = rootID
	return t
}

// RootID returns the current root page id, or page.Invalid for an empty tree.
func (t *Tree[K]) RootID() page.ID {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootID
}

// IsEmpty reports whether the tree currently has no root.
func (t *Tree[K]) IsEmpty() bool { return t.RootID() == page.Invalid }

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (t *Tree[K]) leafMinSize() int     { return ceilDiv(t.leafMax-1, 2) }
func (t *Tree[K]) internalMinSize() int { return ceilDiv(t.internalMax, 2) }

func (t *Tree[K]) finishNode(pg *page.Page, dirty bool) {
	pg.Latch.Unlock()
	_ = t.bp.UnpinPage(pg.ID(), dirty)
}

func (t *Tree[K]) unlatchAll(pages []*page.Page, dirty bool) {
	for _, pg := range pages {
		t.finishNode(pg, dirty)
	}
}

// searchLeaf finds the insertion point for k among sorted entries, and
// whether k is already present there.
func (t *Tree[K]) searchLeaf(entries []leafEntry[K], k K) (int, bool) {
	idx := sort.Search(len(entries), func(i int) bool { return t.cmp(entries[i].key, k) >= 0 })
	if idx < len(entries) && t.cmp(entries[idx].key, k) == 0 {
		return idx, true
	}
	return idx, false
}

// findChildIndex finds the largest index i>=1 with entries[i].key <= k,
// falling back to 0 (the sentinel child) when k is less than every real key.
func (t *Tree[K]) findChildIndex(entries []internalEntry[K], k K) int {
	lo, hi := 1, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(entries[mid].key, k) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// reparentChild updates a child page's parent pointer. The caller must not
// already hold id's latch.
func (t *Tree[K]) reparentChild(id, parent page.ID) error {
	pg, err := t.bp.FetchPage(id)
	if err != nil {
		return err
	}
	pg.Latch.Lock()
	h := readHeader(pg)
	h.parentID = parent
	writeHeader(pg, h)
	pg.Latch.Unlock()
	return t.bp.UnpinPage(id, true)
}

// descendForRead latch-couples a read-only descent from rootID down to a
// leaf, following the sentinel child if leftmost is set or the child
// indicated by key otherwise.
func (t *Tree[K]) descendForRead(rootID page.ID, key *K, leftmost bool) (*page.Page, error) {
	cur, err := t.bp.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	cur.Latch.RLock()
	for {
		h := readHeader(cur)
		if isLeaf(h) {
			return cur, nil
		}
		entries := t.internalEntries(cur)
		var childID page.ID
		if leftmost {
			childID = entries[0].child
		} else {
			childID = entries[t.findChildIndex(entries, *key)].child
		}
		child, err := t.bp.FetchPage(childID)
		if err != nil {
			cur.Latch.RUnlock()
			_ = t.bp.UnpinPage(cur.ID(), false)
			return nil, err
		}
		child.Latch.RLock()
		cur.Latch.RUnlock()
		_ = t.bp.UnpinPage(cur.ID(), false)
		cur = child
	}
}

// descendForWrite latch-couples a write descent from rootID down to a leaf,
// releasing every ancestor strictly before the most recently visited safe
// node (per safe) as soon as that node is reached, and releasing the
// root-pointer latch (via releaseRoot) at the same moment if it is still
// held. The returned slice is the chain of still write-latched, pinned pages
// from the deepest safe node on the path (or the root, if none was safe)
// down to the leaf.
func (t *Tree[K]) descendForWrite(rootID page.ID, k K, safe func(h nodeHeader) bool, releaseRoot func()) ([]*page.Page, error) {
	cur, err := t.bp.FetchPage(rootID)
	if err != nil {
		return nil, err
	}
	cur.Latch.Lock()
	ancestors := []*page.Page{cur}

	for {
		h := readHeader(cur)
		if safe(h) {
			releaseRoot()
			if n := len(ancestors); n > 1 {
				t.unlatchAll(ancestors[:n-1], false)
				ancestors = ancestors[n-1:]
			}
		}
		if isLeaf(h) {
			return ancestors, nil
		}
		entries := t.internalEntries(cur)
		childID := entries[t.findChildIndex(entries, k)].child
		child, err := t.bp.FetchPage(childID)
		if err != nil {
			t.unlatchAll(ancestors, false)
			return nil, err
		}
		child.Latch.Lock()
		ancestors = append(ancestors, child)
		cur = child
	}
}

// GetValue looks up k, returning its RID and whether it was found.
func (t *Tree[K]) GetValue(k K) (page.RID, bool, error) {
	t.rootMu.RLock()
	rootID := t.rootID
	t.rootMu.RUnlock()
	if rootID == page.Invalid {
		return page.RID{}, false, nil
	}

	leaf, err := t.descendForRead(rootID, &k, false)
	if err != nil {
		return page.RID{}, false, err
	}
	entries := t.leafEntries(leaf)
	idx, found := t.searchLeaf(entries, k)
	var rid page.RID
	if found {
		rid = entries[idx].rid
	}
	leaf.Latch.RUnlock()
	_ = t.bp.UnpinPage(leaf.ID(), false)
	return rid, found, nil
}

// insertSafe reports whether a node can absorb one more entry (the worst
// case of a child split propagating a separator up) without itself needing
// to split. Each node's own header already carries its type's max_size
// (leaf_max for leaves, internal_max for internals, per setLeafEntries/
// setInternalEntries), so no branch on node type is needed here — unlike
// deleteSafe, which must branch because min_size isn't stored per node.
func insertSafe(h nodeHeader) bool { return h.size < h.maxSize-1 }

// Insert adds (k, rid) to the tree. Returns false, nil if k is already
// present; the tree does not support duplicate keys.
func (t *Tree[K]) Insert(k K, rid page.RID) (bool, error) {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()

	if t.rootID == page.Invalid {
		pg, err := t.bp.NewPage()
		if err != nil {
			return false, err
		}
		t.setLeafEntries(pg, []leafEntry[K]{{key: k, rid: rid}}, t.leafMax, page.Invalid, page.Invalid)
		t.rootID = pg.ID()
		_ = t.bp.UnpinPage(pg.ID(), true)
		return true, nil
	}

	ancestors, err := t.descendForWrite(t.rootID, k, insertSafe, releaseRoot)
	if err != nil {
		return false, err
	}

	leaf := ancestors[len(ancestors)-1]
	entries := t.leafEntries(leaf)
	idx, found := t.searchLeaf(entries, k)
	if found {
		t.unlatchAll(ancestors, false)
		return false, nil
	}

	entries = append(entries, leafEntry[K]{})
	copy(entries[idx+1:], entries[idx:len(entries)-1])
	entries[idx] = leafEntry[K]{key: k, rid: rid}

	h := readHeader(leaf)
	if len(entries) < h.maxSize {
		t.setLeafEntries(leaf, entries, h.maxSize, h.parentID, h.nextID)
		t.unlatchAll(ancestors, true)
		return true, nil
	}

	// Overflow: split the leaf, moving the upper floor((max+1)/2) entries to
	// a new right sibling, per spec.md §4.5.2 step 4.
	upperCount := (h.maxSize + 1) / 2
	lowerCount := len(entries) - upperCount
	leftEntries := entries[:lowerCount]
	rightEntries := entries[lowerCount:]

	newLeaf, err := t.bp.NewPage()
	if err != nil {
		t.unlatchAll(ancestors, false)
		return false, err
	}
	newLeaf.Latch.Lock()
	t.setLeafEntries(newLeaf, rightEntries, h.maxSize, h.parentID, h.nextID)
	t.setLeafEntries(leaf, leftEntries, h.maxSize, h.parentID, newLeaf.ID())

	sepKey := rightEntries[0].key
	if err := t.insertInParent(ancestors, leaf, sepKey, newLeaf, releaseRoot); err != nil {
		return false, err
	}
	return true, nil
}

// insertInParent implements BusTub's InsertIntoParent: it walks back up the
// ancestors chain (already write-latched by descendForWrite), inserting a
// new (sepKey, right) separator into left's parent, splitting that parent in
// turn if it overflows, and creating a new root if left had none.
func (t *Tree[K]) insertInParent(ancestors []*page.Page, left *page.Page, sepKey K, right *page.Page, releaseRoot func()) error {
	rightOwned := false

	for {
		n := len(ancestors)
		cur := ancestors[n-1] // cur == left

		if n == 1 {
			newRoot, err := t.bp.NewPage()
			if err != nil {
				t.finishNode(cur, true)
				if rightOwned {
					t.finishNode(right, true)
				}
				return err
			}
			newRoot.Latch.Lock()
			var zero K
			t.setInternalEntries(newRoot, []internalEntry[K]{
				{key: zero, child: cur.ID()},
				{key: sepKey, child: right.ID()},
			}, t.internalMax, page.Invalid)
			t.rootID = newRoot.ID()
			releaseRoot()

			lh := readHeader(cur)
			lh.parentID = newRoot.ID()
			writeHeader(cur, lh)
			rh := readHeader(right)
			rh.parentID = newRoot.ID()
			writeHeader(right, rh)

			t.finishNode(newRoot, true)
			t.finishNode(cur, true)
			t.finishNode(right, true)
			return nil
		}

		parent := ancestors[n-2]

		lh := readHeader(cur)
		lh.parentID = parent.ID()
		writeHeader(cur, lh)
		rh := readHeader(right)
		rh.parentID = parent.ID()
		writeHeader(right, rh)

		leftID, rightID := cur.ID(), right.ID()
		t.finishNode(cur, true)
		t.finishNode(right, true)

		pEntries := t.internalEntries(parent)
		pos := 0
		for i, e := range pEntries {
			if e.child == leftID {
				pos = i
				break
			}
		}
		newEntries := make([]internalEntry[K], 0, len(pEntries)+1)
		newEntries = append(newEntries, pEntries[:pos+1]...)
		newEntries = append(newEntries, internalEntry[K]{key: sepKey, child: rightID})
		newEntries = append(newEntries, pEntries[pos+1:]...)

		ph := readHeader(parent)
		if len(newEntries) < ph.maxSize {
			t.setInternalEntries(parent, newEntries, ph.maxSize, ph.parentID)
			t.unlatchAll(ancestors[:n-1], true)
			return nil
		}

		// Parent overflows too: split around the median and recurse upward.
		total := len(newEntries)
		leftCount := (total + 1) / 2
		leftEntries := newEntries[:leftCount]
		rightEntries := newEntries[leftCount:]
		newSepKey := rightEntries[0].key

		newInternal, err := t.bp.NewPage()
		if err != nil {
			t.unlatchAll(ancestors[:n-1], false)
			return err
		}
		newInternal.Latch.Lock()
		t.setInternalEntries(newInternal, rightEntries, ph.maxSize, ph.parentID)
		t.setInternalEntries(parent, leftEntries, ph.maxSize, ph.parentID)
		for _, e := range rightEntries {
			if err := t.reparentChild(e.child, newInternal.ID()); err != nil {
				newInternal.Latch.Unlock()
				_ = t.bp.UnpinPage(newInternal.ID(), true)
				t.unlatchAll(ancestors[:n-1], true)
				return err
			}
		}

		left = parent
		sepKey = newSepKey
		right = newInternal
		rightOwned = true
		ancestors = ancestors[:n-1]
	}
}

// deleteSafe reports whether a node can lose one entry without underflowing.
// Roots have no min-size constraint, but a root counts as safe only when
// losing one entry cannot collapse it (a leaf root emptying, or an internal
// root left with a single child), because deleteEntry rewrites rootID on
// collapse and must still hold the root-pointer latch then.
func (t *Tree[K]) deleteSafe(h nodeHeader) bool {
	if h.parentID == page.Invalid {
		if isLeaf(h) {
			return h.size > 1
		}
		return h.size > 2
	}
	if isLeaf(h) {
		return h.size-1 >= t.leafMinSize()
	}
	return h.size-1 >= t.internalMinSize()
}

// Remove deletes k from the tree, if present. A missing key is a no-op.
func (t *Tree[K]) Remove(k K) error {
	t.rootMu.Lock()
	rootHeld := true
	releaseRoot := func() {
		if rootHeld {
			t.rootMu.Unlock()
			rootHeld = false
		}
	}
	defer releaseRoot()

	if t.rootID == page.Invalid {
		return nil
	}

	ancestors, err := t.descendForWrite(t.rootID, k, t.deleteSafe, releaseRoot)
	if err != nil {
		return err
	}

	leaf := ancestors[len(ancestors)-1]
	entries := t.leafEntries(leaf)
	idx, found := t.searchLeaf(entries, k)
	if !found {
		t.unlatchAll(ancestors, false)
		return nil
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	h := readHeader(leaf)
	t.setLeafEntries(leaf, entries, h.maxSize, h.parentID, h.nextID)

	return t.deleteEntry(ancestors, releaseRoot)
}

// deleteEntry implements BusTub's DeleteEntry: handle root collapse, return
// early if the last-modified node is still within its min-size bound, or
// otherwise borrow from or merge with a sibling and recurse on the parent.
func (t *Tree[K]) deleteEntry(ancestors []*page.Page, releaseRoot func()) error {
	for {
		n := len(ancestors)
		node := ancestors[n-1]
		h := readHeader(node)

		if h.parentID == page.Invalid {
			if isLeaf(h) {
				if h.size == 0 {
					t.rootID = page.Invalid
					releaseRoot()
					t.finishNode(node, true)
					_ = t.bp.DeletePage(node.ID())
				} else {
					releaseRoot()
					t.finishNode(node, true)
				}
			} else if h.size == 1 {
				entries := t.internalEntries(node)
				onlyChild := entries[0].child
				if err := t.reparentChild(onlyChild, page.Invalid); err != nil {
					t.finishNode(node, true)
					t.unlatchAll(ancestors[:n-1], false)
					return err
				}
				t.rootID = onlyChild
				releaseRoot()
				t.finishNode(node, true)
				_ = t.bp.DeletePage(node.ID())
			} else {
				releaseRoot()
				t.finishNode(node, true)
			}
			t.unlatchAll(ancestors[:n-1], false)
			return nil
		}

		minSize := t.internalMinSize()
		if isLeaf(h) {
			minSize = t.leafMinSize()
		}
		if h.size >= minSize {
			t.finishNode(node, true)
			t.unlatchAll(ancestors[:n-1], false)
			return nil
		}

		parent := ancestors[n-2]
		pEntries := t.internalEntries(parent)
		pos := -1
		for i, e := range pEntries {
			if e.child == node.ID() {
				pos = i
				break
			}
		}

		var siblingID page.ID
		var sepIdx int
		leftIsSibling := pos > 0
		if leftIsSibling {
			siblingID = pEntries[pos-1].child
			sepIdx = pos
		} else {
			siblingID = pEntries[pos+1].child
			sepIdx = pos + 1
		}

		sibling, err := t.bp.FetchPage(siblingID)
		if err != nil {
			t.finishNode(node, false)
			t.unlatchAll(ancestors[:n-1], false)
			return err
		}
		sibling.Latch.Lock()
		sh := readHeader(sibling)

		var leftPg, rightPg *page.Page
		var leftH, rightH nodeHeader
		if leftIsSibling {
			leftPg, rightPg, leftH, rightH = sibling, node, sh, h
		} else {
			leftPg, rightPg, leftH, rightH = node, sibling, h, sh
		}

		if leftH.size+rightH.size <= h.maxSize {
			// Merge right into left, drop the separator from the parent, and
			// continue the underflow check one level up.
			if isLeaf(h) {
				merged := append(t.leafEntries(leftPg), t.leafEntries(rightPg)...)
				t.setLeafEntries(leftPg, merged, leftH.maxSize, leftH.parentID, rightH.nextID)
			} else {
				le := t.internalEntries(leftPg)
				re := t.internalEntries(rightPg)
				re[0] = internalEntry[K]{key: pEntries[sepIdx].key, child: re[0].child}
				merged := append(le, re...)
				t.setInternalEntries(leftPg, merged, leftH.maxSize, leftH.parentID)
				for _, e := range re {
					if err := t.reparentChild(e.child, leftPg.ID()); err != nil {
						t.finishNode(node, true)
						t.finishNode(sibling, true)
						t.unlatchAll(ancestors[:n-1], true)
						return err
					}
				}
			}

			deletedID := rightPg.ID()
			t.finishNode(node, true)
			t.finishNode(sibling, true)
			_ = t.bp.DeletePage(deletedID)

			newPEntries := append(append([]internalEntry[K]{}, pEntries[:sepIdx]...), pEntries[sepIdx+1:]...)
			ph := readHeader(parent)
			t.setInternalEntries(parent, newPEntries, ph.maxSize, ph.parentID)

			ancestors = ancestors[:n-1]
			continue
		}

		// Redistribute: borrow one entry from the richer sibling and fix up
		// the separator key in the parent. No further underflow can result.
		pEntriesCopy := append([]internalEntry[K]{}, pEntries...)
		if isLeaf(h) {
			le := t.leafEntries(leftPg)
			re := t.leafEntries(rightPg)
			if leftIsSibling {
				moved := le[len(le)-1]
				le = le[:len(le)-1]
				re = append([]leafEntry[K]{moved}, re...)
			} else {
				moved := re[0]
				re = re[1:]
				le = append(le, moved)
			}
			t.setLeafEntries(leftPg, le, leftH.maxSize, leftH.parentID, leftH.nextID)
			t.setLeafEntries(rightPg, re, rightH.maxSize, rightH.parentID, rightH.nextID)
			pEntriesCopy[sepIdx].key = re[0].key
		} else {
			le := t.internalEntries(leftPg)
			re := t.internalEntries(rightPg)
			oldSep := pEntriesCopy[sepIdx].key
			if leftIsSibling {
				moved := le[len(le)-1]
				le = le[:len(le)-1]
				re[0] = internalEntry[K]{key: oldSep, child: re[0].child}
				re = append([]internalEntry[K]{{child: moved.child}}, re...)
				pEntriesCopy[sepIdx].key = moved.key
				if err := t.reparentChild(moved.child, rightPg.ID()); err != nil {
					t.finishNode(node, true)
					t.finishNode(sibling, true)
					t.unlatchAll(ancestors[:n-1], true)
					return err
				}
			} else {
				moved := re[0]
				newSep := re[1].key
				re = re[1:]
				le = append(le, internalEntry[K]{key: oldSep, child: moved.child})
				pEntriesCopy[sepIdx].key = newSep
				if err := t.reparentChild(moved.child, leftPg.ID()); err != nil {
					t.finishNode(node, true)
					t.finishNode(sibling, true)
					t.unlatchAll(ancestors[:n-1], true)
					return err
				}
			}
			t.setInternalEntries(leftPg, le, leftH.maxSize, leftH.parentID)
			t.setInternalEntries(rightPg, re, rightH.maxSize, rightH.parentID)
		}

		ph := readHeader(parent)
		t.setInternalEntries(parent, pEntriesCopy, ph.maxSize, ph.parentID)

		t.finishNode(node, true)
		t.finishNode(sibling, true)
		t.unlatchAll(ancestors[:n-1], true)
		return nil
	}
}
