// Package memory provides an in-memory snapshot store used as the default
// backend and as the reference implementation the SQL-backed stores mirror.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"itemcore/pkg/schema"
)

// Compile-time contract assertion ensuring the store satisfies the schema interface.
var _ schema.SnapshotStore = (*Store)(nil)

type record struct {
	value     map[string]any
	updatedAt time.Time
}

// Store keeps flat value documents in process memory, keyed by definition
// path and slot. Documents are deep-copied on both write and read so callers
// cannot alias internal state.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[schema.SlotKey]record
	now  func() time.Time
}

// NewStore constructs an empty in-memory snapshot store.
func NewStore() *Store {
	return &Store{
		docs: map[string]map[schema.SlotKey]record{},
		now:  time.Now,
	}
}

// Save upserts the document for the given definition path and slot.
func (s *Store) Save(_ context.Context, definitionPath string, slot schema.SlotKey, value map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.docs[definitionPath]
	if !ok {
		slots = map[schema.SlotKey]record{}
		s.docs[definitionPath] = slots
	}
	slots[slot] = record{value: cloneDocument(value), updatedAt: s.now()}
	return nil
}

// Load returns a copy of the stored document, reporting presence explicitly.
func (s *Store) Load(_ context.Context, definitionPath string, slot schema.SlotKey) (map[string]any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[definitionPath][slot]
	if !ok {
		return nil, false, nil
	}
	return cloneDocument(rec.value), true, nil
}

// Delete removes the document; deleting an absent document is a no-op.
func (s *Store) Delete(_ context.Context, definitionPath string, slot schema.SlotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.docs[definitionPath]
	if !ok {
		return nil
	}
	delete(slots, slot)
	if len(slots) == 0 {
		delete(s.docs, definitionPath)
	}
	return nil
}

// Slots lists stored slots for a definition, sorted by id then version.
func (s *Store) Slots(_ context.Context, definitionPath string) ([]schema.SlotKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slots := s.docs[definitionPath]
	out := make([]schema.SlotKey, 0, len(slots))
	for slot := range slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// UpdatedAt reports when the document for the given slot was last saved.
func (s *Store) UpdatedAt(definitionPath string, slot schema.SlotKey) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[definitionPath][slot]
	return rec.updatedAt, ok
}

func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneDocument(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
