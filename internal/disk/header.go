package disk

import (
	"encoding/json"

	"github.com/corekv/corekv/internal/page"
)

// HeaderPageID is the reserved page holding the name -> root-page-id
// directory for indexes, per spec.md §6 "Persisted state".
const HeaderPageID page.ID = 0

// headerDoc is the JSON payload stored in the header page. The page is
// fixed-size, so the encoded document must fit within PageSize; for the
// small number of indexes an educational engine manages this is generous.
type headerDoc struct {
	Roots map[string]int32 `json:"roots"`
}

// ReadHeader loads the name -> root page-id directory from the header page.
// A page that has never been written (all zero) decodes to an empty map.
func ReadHeader(m *Manager) (map[string]page.ID, error) {
	buf := make([]byte, m.PageSize())
	if err := m.ReadPage(HeaderPageID, buf); err != nil {
		return nil, err
	}
	length := GetU32(buf, 0)
	out := make(map[string]page.ID)
	if length == 0 || int(length) > len(buf)-4 {
		return out, nil
	}
	var doc headerDoc
	if err := json.Unmarshal(buf[4:4+length], &doc); err != nil {
		return nil, err
	}
	for k, v := range doc.Roots {
		out[k] = page.ID(v)
	}
	return out, nil
}

// WriteHeader persists the name -> root page-id directory to the header
// page, prefixed by a 4-byte length so ReadHeader can distinguish "empty"
// from "uninitialized".
func WriteHeader(m *Manager, roots map[string]page.ID) error {
	doc := headerDoc{Roots: make(map[string]int32, len(roots))}
	for k, v := range roots {
		doc.Roots[k] = int32(v)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	buf := make([]byte, m.PageSize())
	if len(encoded)+4 > len(buf) {
		return ErrBadPageSize
	}
	PutU32(buf, 0, uint32(len(encoded)))
	copy(buf[4:], encoded)
	return m.WritePage(HeaderPageID, buf)
}
