package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory. Used when no database is configured
// and by tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any

	// Writes counts successful create and update calls.
	Writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryStore) CreateCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]map[string]any)
	}
	return nil
}

func (m *MemoryStore) QueryLatest(_ context.Context, name, orderField string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok {
		return nil, nil
	}
	var best *Document
	var bestKey string
	for id, fields := range coll {
		key := fmt.Sprint(fields[orderField])
		if best == nil || key > bestKey {
			best = &Document{Ref: DocumentRef{Collection: name, ID: id}, Fields: maps.Clone(fields)}
			bestKey = key
		}
	}
	return best, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &Document{Ref: DocumentRef{Collection: collection, ID: id}, Fields: maps.Clone(fields)}, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return opErr("create", collection, id, ErrExists)
	}
	coll[id] = maps.Clone(fields)
	m.Writes++
	return nil
}

func (m *MemoryStore) UpdateDocument(_ context.Context, ref DocumentRef, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[ref.Collection][ref.ID]
	if !ok {
		return opErr("update", ref.Collection, ref.ID, fmt.Errorf("document not found"))
	}
	maps.Copy(doc, fields)
	m.Writes++
	return nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	docs := make([]Document, 0, len(coll))
	for id, fields := range coll {
		docs = append(docs, Document{Ref: DocumentRef{Collection: collection, ID: id}, Fields: maps.Clone(fields)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ref.ID < docs[j].Ref.ID })
	return docs, nil
}

func (m *MemoryStore) Close() error { return nil }
