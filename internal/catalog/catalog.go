// Package catalog implements the minimal name->OID/root-page registry the
// executor contract and the B+Tree index consume, grounded on the
// teacher's internal/catalog/model.go TableMeta shape, trimmed to the
// fields spec.md's out-of-scope executor layer actually needs: an OID for
// lock-manager object identity and, for indexes, the root page persisted
// through the disk manager's header page.
package catalog

import (
	"errors"
	"sort"
	"sync"

	"github.com/corekv/corekv/internal/disk"
	"github.com/corekv/corekv/internal/page"
)

// ErrNotFound is returned when a name has no catalog entry.
var ErrNotFound = errors.New("catalog: not found")

// ErrAlreadyExists is returned by Create when name is already registered.
var ErrAlreadyExists = errors.New("catalog: already exists")

// Entry is one table or index's catalog record.
type Entry struct {
	OID  uint32
	Name string
	Root page.ID // index root page; page.Invalid for plain tables
}

// Catalog is an in-memory name->Entry registry, persisted across restarts
// through the disk manager's header page (the name->root-page-id directory
// spec.md §6 "Persisted state" describes).
type Catalog struct {
	mu     sync.Mutex
	disk   *disk.Manager
	byName map[string]*Entry
	nextID uint32
}

// Open loads the catalog's persisted roots from disk's header page,
// assigning OIDs 1, 2, ... in ascending name order. OIDs themselves are not
// persisted, so an OID handed out by Create may differ after a reopen.
func Open(d *disk.Manager) (*Catalog, error) {
	roots, err := disk.ReadHeader(d)
	if err != nil {
		return nil, err
	}
	c := &Catalog{disk: d, byName: make(map[string]*Entry)}
	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.nextID++
		c.byName[name] = &Entry{OID: c.nextID, Name: name, Root: roots[name]}
	}
	return c, nil
}

// Create registers name with the given index root (page.Invalid for a table
// with no index), returning its freshly assigned OID.
func (c *Catalog) Create(name string, root page.ID) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byName[name]; ok {
		return 0, ErrAlreadyExists
	}
	c.nextID++
	c.byName[name] = &Entry{OID: c.nextID, Name: name, Root: root}
	return c.nextID, nil
}

// Lookup returns name's catalog entry.
func (c *Catalog) Lookup(name string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byName[name]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// SetRoot updates name's persisted index root page, e.g. after the B+Tree
// bootstraps its first page on an empty-tree insert.
func (c *Catalog) SetRoot(name string, root page.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byName[name]
	if !ok {
		return ErrNotFound
	}
	e.Root = root
	return nil
}

// Flush persists the current name->root directory to the disk manager's
// header page.
func (c *Catalog) Flush() error {
	c.mu.Lock()
	roots := make(map[string]page.ID, len(c.byName))
	for name, e := range c.byName {
		roots[name] = e.Root
	}
	c.mu.Unlock()
	return disk.WriteHeader(c.disk, roots)
}
