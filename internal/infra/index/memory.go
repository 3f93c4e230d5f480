package index

import (
	"context"
	"sync"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
)

var _ profile.SearchIndex = (*MemoryIndex)(nil)

// MemoryIndex is an in-memory profile.SearchIndex for tests.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]byte)}
}

func (m *MemoryIndex) UpsertProfile(_ context.Context, ownerID string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := make([]byte, len(body))
	copy(doc, body)
	m.docs[ownerID] = doc
	return nil
}

// Document returns the indexed document for an owner. Test helper.
func (m *MemoryIndex) Document(ownerID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[ownerID]
	return doc, ok
}
