package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/corekv/corekv/internal/page"
)

// SegmentSize bounds how many bytes live in one physical file before the
// manager rolls over to Base.1, Base.2, ... Grounded on the teacher's
// internal/storage/segments.go naming scheme (Base, Base.N).
const SegmentSize = 1 << 30 // 1 GiB

var (
	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("disk: manager is closed")
	// ErrBadPageSize is returned when a buffer handed to Read/WritePage does
	// not exactly match the manager's configured page size.
	ErrBadPageSize = errors.New("disk: buffer size does not match page size")
)

// Manager is the disk collaborator from spec.md §6: blocking read/write of
// fixed-size pages, plus monotonically increasing page-id allocation.
// Pages are stored across a sequence of segment files so that no single
// file grows unbounded, grounded on the teacher's LocalFileSet/
// StorageManager pair in internal/storage/sm.go and segments.go.
type Manager struct {
	mu       sync.Mutex
	dir      string
	base     string
	pageSize int
	perSeg   int32

	segments map[int32]*os.File
	nextID   int32
	closed   bool
}

// NewManager opens (creating if necessary) the segment files for base under
// dir, and recovers the next-page-id counter by scanning existing segments.
func NewManager(dir, base string, pageSize int) (*Manager, error) {
	if pageSize <= 0 {
		pageSize = page.Size
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create dir: %w", err)
	}
	m := &Manager{
		dir:      dir,
		base:     base,
		pageSize: pageSize,
		perSeg:   int32(SegmentSize / pageSize),
		segments: make(map[int32]*os.File),
	}
	n, err := m.countPagesLocked()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Page 0 is reserved as the header page (disk.HeaderPageID); the
		// first allocatable data page is 1.
		n = 1
	}
	m.nextID = n
	return m, nil
}

func (m *Manager) segmentPath(segNo int32) string {
	name := m.base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", m.base, segNo)
	}
	return filepath.Join(m.dir, name)
}

func (m *Manager) openSegmentLocked(segNo int32) (*os.File, error) {
	if f, ok := m.segments[segNo]; ok {
		return f, nil
	}
	f, err := os.OpenFile(m.segmentPath(segNo), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	m.segments[segNo] = f
	return f, nil
}

func (m *Manager) locate(id page.ID) (segNo int32, offset int64) {
	segNo = int32(id) / m.perSeg
	pageInSeg := int32(id) % m.perSeg
	offset = int64(pageInSeg) * int64(m.pageSize)
	return segNo, offset
}

func (m *Manager) countPagesLocked() (int32, error) {
	var total int32
	for segNo := int32(0); ; segNo++ {
		path := m.segmentPath(segNo)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		total += int32(info.Size() / int64(m.pageSize))
	}
	return total, nil
}

// PageSize returns the configured page size.
func (m *Manager) PageSize() int { return m.pageSize }

// ReadPage reads exactly PageSize bytes for id into dst. Reading past the
// current end of file (an allocated-but-never-written page) zero-fills dst
// rather than erroring, matching the teacher's ReadPage semantics for lazily
// initialized pages.
func (m *Manager) ReadPage(id page.ID, dst []byte) error {
	if len(dst) != m.pageSize {
		return ErrBadPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	segNo, off := m.locate(id)
	f, err := m.openSegmentLocked(segNo)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(dst, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly PageSize bytes from src to id's location.
func (m *Manager) WritePage(id page.ID, src []byte) error {
	if len(src) != m.pageSize {
		return ErrBadPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	segNo, off := m.locate(id)
	f, err := m.openSegmentLocked(segNo)
	if err != nil {
		return err
	}
	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != len(src) {
		return io.ErrShortWrite
	}
	return nil
}

// AllocatePage reserves and returns the next monotonically increasing page
// id. The backing bytes are not written until the first WritePage.
func (m *Manager) AllocatePage() page.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := page.ID(m.nextID)
	m.nextID++
	return id
}

// DeallocatePage is a bookkeeping no-op: this disk manager never reclaims
// or compacts page ids, matching spec.md's "no crash recovery/compaction
// protocol is specified" scope note. The id simply becomes logically dead;
// higher layers (buffer pool, B+Tree) are responsible for never fetching it
// again.
func (m *Manager) DeallocatePage(page.ID) {}

// Close flushes and releases all open segment file descriptors.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, f := range m.segments {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
