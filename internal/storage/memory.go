package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process RecordStore for tests and dry runs. The lock
// keeps the maps consistent; it does not make concurrent writers safe at the
// pipeline level.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tables map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Record)}
}

func (m *MemoryStore) Append(ctx context.Context, table string, key Key, fields map[string]string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	r := Record{ID: m.nextID, Key: key, Fields: cloneFields(fields), CreatedAt: now, UpdatedAt: now}
	m.tables[table] = append(m.tables[table], r)
	return copyRecord(r), nil
}

func (m *MemoryStore) ReadAll(ctx context.Context, table string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRecord(r))
	}
	return out, nil
}

func (m *MemoryStore) Find(ctx context.Context, table string, key Key) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.tables[table] {
		if r.Key == key {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, table string, key Key, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	for i := range rows {
		if rows[i].Key != key {
			continue
		}
		for k, v := range fields {
			rows[i].Fields[k] = v
		}
		rows[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return fmt.Errorf("update %s %+v: %w", table, key, ErrNotFound)
}

func (m *MemoryStore) Close() error { return nil }

func copyRecord(r Record) Record {
	r.Fields = cloneFields(r.Fields)
	return r
}
