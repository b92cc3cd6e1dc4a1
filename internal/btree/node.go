package btree

import (
	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/page"
)

// Page layout, per spec.md §6: a 24-byte common header followed by a packed
// entry array. Internal pages store (key, child page id) pairs with index 0's
// key ignored (sentinel). Leaf pages store (key, RID) pairs plus a
// next-leaf page id for range scans.
const headerSize = 24

const (
	typeInternal uint32 = 1
	typeLeaf     uint32 = 2
)

type nodeHeader struct {
	pageType uint32
	size     int
	maxSize  int
	parentID page.ID
	pageID   page.ID
	nextID   page.ID // leaves only; page.Invalid for internal nodes
}

func readHeader(pg *page.Page) nodeHeader {
	b := pg.Data()
	return nodeHeader{
		pageType: disk.GetU32(b, 0),
		size:     int(disk.GetU32(b, 4)),
		maxSize:  int(disk.GetU32(b, 8)),
		parentID: page.ID(disk.GetI32(b, 12)),
		pageID:   page.ID(disk.GetI32(b, 16)),
		nextID:   page.ID(disk.GetI32(b, 20)),
	}
}

func writeHeader(pg *page.Page, h nodeHeader) {
	b := pg.Data()
	disk.PutU32(b, 0, h.pageType)
	disk.PutU32(b, 4, uint32(h.size))
	disk.PutU32(b, 8, uint32(h.maxSize))
	disk.PutI32(b, 12, int32(h.parentID))
	disk.PutI32(b, 16, int32(h.pageID))
	disk.PutI32(b, 20, int32(h.nextID))
}

func isLeaf(h nodeHeader) bool { return h.pageType == typeLeaf }

type leafEntry[K any] struct {
	key K
	rid page.RID
}

type internalEntry[K any] struct {
	key   K
	child page.ID
}

func (t *Tree[K]) leafEntrySize() int { return t.codec.Width() + 8 }
func (t *Tree[K]) internalEntrySize() int { return t.codec.Width() + 4 }

func (t *Tree[K]) leafEntries(pg *page.Page) []leafEntry[K] {
	h := readHeader(pg)
	b := pg.Data()
	sz := t.leafEntrySize()
	w := t.codec.Width()
	out := make([]leafEntry[K], h.size)
	for i := 0; i < h.size; i++ {
		off := headerSize + i*sz
		out[i] = leafEntry[K]{
			key: t.codec.Decode(b[off : off+w]),
			rid: page.RID{
				PageID: page.ID(disk.GetI32(b, off+w)),
				Slot:   disk.GetU32(b, off+w+4),
			},
		}
	}
	return out
}

func (t *Tree[K]) setLeafEntries(pg *page.Page, entries []leafEntry[K], maxSize int, parentID, nextID page.ID) {
	writeHeader(pg, nodeHeader{
		pageType: typeLeaf,
		size:     len(entries),
		maxSize:  maxSize,
		parentID: parentID,
		pageID:   pg.ID(),
		nextID:   nextID,
	})
	b := pg.Data()
	sz := t.leafEntrySize()
	w := t.codec.Width()
	for i, e := range entries {
		off := headerSize + i*sz
		t.codec.Encode(e.key, b[off:off+w])
		disk.PutI32(b, off+w, int32(e.rid.PageID))
		disk.PutU32(b, off+w+4, e.rid.Slot)
	}
}

func (t *Tree[K]) internalEntries(pg *page.Page) []internalEntry[K] {
	h := readHeader(pg)
	b := pg.Data()
	sz := t.internalEntrySize()
	w := t.codec.Width()
	out := make([]internalEntry[K], h.size)
	for i := 0; i < h.size; i++ {
		off := headerSize + i*sz
		out[i] = internalEntry[K]{
			key:   t.codec.Decode(b[off : off+w]),
			child: page.ID(disk.GetI32(b, off+w)),
		}
	}
	return out
}

func (t *Tree[K]) setInternalEntries(pg *page.Page, entries []internalEntry[K], maxSize int, parentID page.ID) {
	writeHeader(pg, nodeHeader{
		pageType: typeInternal,
		size:     len(entries),
		maxSize:  maxSize,
		parentID: parentID,
		pageID:   pg.ID(),
		nextID:   page.Invalid,
	})
	b := pg.Data()
	sz := t.internalEntrySize()
	w := t.codec.Width()
	for i, e := range entries {
		off := headerSize + i*sz
		t.codec.Encode(e.key, b[off:off+w])
		disk.PutI32(b, off+w, int32(e.child))
	}
}
