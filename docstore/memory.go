package docstore

import (
	"context"
	"sync"
)

type memoryCollection struct {
	mu   sync.RWMutex
	docs [][]byte
}

var _ Collection = (*memoryCollection)(nil)

// NewMemory returns an empty in-memory Collection.
func NewMemory() Collection {
	return &memoryCollection{}
}

func (m *memoryCollection) Find(ctx context.Context, filter Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Document{}
	for _, buf := range m.docs {
		doc, err := decode(buf)
		if err != nil {
			return nil, err
		}
		if matches(doc, f) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryCollection) InsertOne(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, buf, err := encode(doc)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.docs = append(m.docs, buf)
	m.mu.Unlock()
	return id, nil
}

func (m *memoryCollection) UpdateMany(ctx context.Context, filter Filter, update Update) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var modified int
	for i, buf := range m.docs {
		doc, err := decode(buf)
		if err != nil {
			return modified, err
		}
		if !matches(doc, f) {
			continue
		}
		next, err := apply(doc, update)
		if err != nil {
			return modified, err
		}
		if next != nil {
			m.docs[i] = next
			modified++
		}
	}
	return modified, nil
}

func (m *memoryCollection) Close() error {
	return nil
}
