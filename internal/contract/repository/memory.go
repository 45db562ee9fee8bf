package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/procurely/contracting-api/internal/contract"
)

// MemoryRepo is an in-memory repository with the same CAS and listing
// semantics as the Mongo-backed one. Used by unit tests and local runs
// without a database.
type MemoryRepo struct {
	mu    sync.RWMutex
	docs  map[string]*memDoc
	clock func() time.Time
}

type memDoc struct {
	docType      string
	rev          string
	dateModified time.Time
	mode         string
	data         []byte // full contract, JSON-encoded
}

// NewMemoryRepo returns an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{docs: map[string]*memDoc{}, clock: time.Now}
}

// SetClock overrides the time source; tests use it to exercise the
// monotonicity nudge.
func (m *MemoryRepo) SetClock(fn func() time.Time) { m.clock = fn }

// SeedArchived plants a tombstoned legacy document, for Archived-path tests.
func (m *MemoryRepo) SeedArchived(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = &memDoc{docType: contract.DocTypeArchived, data: []byte("{}")}
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	if doc.docType == contract.DocTypeArchived {
		return nil, contract.ErrArchived
	}
	if doc.docType != contract.DocTypeContract {
		return nil, contract.ErrNotFound
	}
	var c contract.Contract
	if err := json.Unmarshal(doc.data, &c); err != nil {
		return nil, err
	}
	c.ID = id
	c.DocType = doc.docType
	c.Rev = doc.rev
	c.DateModified = doc.dateModified
	return &c, nil
}

func (m *MemoryRepo) Insert(ctx context.Context, c *contract.Contract, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[c.ID]; exists {
		return contract.ErrConflict
	}
	c.DocType = contract.DocTypeContract
	c.Rev = ""
	seal(c, map[string]any{}, author, m.clock())
	c.Rev = NewRevToken("")
	m.put(c)
	return nil
}

func (m *MemoryRepo) Save(ctx context.Context, c *contract.Contract, src map[string]any, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[c.ID]
	if !ok {
		return contract.ErrNotFound
	}
	if doc.rev != c.Rev {
		return contract.ErrConflict
	}
	if !seal(c, src, author, m.clock()) {
		return nil // empty diff, nothing to write
	}
	c.Rev = NewRevToken(c.Rev)
	m.put(c)
	return nil
}

func (m *MemoryRepo) put(c *contract.Contract) {
	data, _ := json.Marshal(c)
	m.docs[c.ID] = &memDoc{
		docType:      c.DocType,
		rev:          c.Rev,
		dateModified: c.DateModified,
		mode:         c.Mode,
		data:         data,
	}
}

func (m *MemoryRepo) List(ctx context.Context, opts ListOptions) ([]ListItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]ListItem, 0, len(m.docs))
	for id, doc := range m.docs {
		if doc.docType != contract.DocTypeContract {
			continue
		}
		switch opts.Mode {
		case "test":
			if doc.mode != "test" {
				continue
			}
		case "_all_":
		default:
			if doc.mode == "test" {
				continue
			}
		}
		if opts.Offset != nil {
			if opts.Descending {
				if !doc.dateModified.Before(*opts.Offset) {
					continue
				}
			} else if !doc.dateModified.After(*opts.Offset) {
				continue
			}
		}
		item := ListItem{ID: id, DateModified: doc.dateModified}
		if len(opts.OptFields) > 0 {
			var full map[string]any
			_ = json.Unmarshal(doc.data, &full)
			item.Fields = map[string]any{}
			for _, f := range opts.OptFields {
				if v, ok := full[f]; ok {
					item.Fields[f] = v
				}
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.DateModified.Equal(b.DateModified) {
			if opts.Descending {
				return a.DateModified.After(b.DateModified)
			}
			return a.DateModified.Before(b.DateModified)
		}
		if opts.Descending {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}
