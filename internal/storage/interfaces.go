// Package storage holds the two persistence surfaces: a record store that is
// the sole source of truth for pipeline state, and an object store for
// rendered artifacts and mirrored text.
//
// The record store offers no transactions and enforces no uniqueness.
// Callers search before they append, and exactly one process may write a
// given store at a time. Running two pipelines against the same store is
// unsupported and loses updates.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Update when no record matches the key.
var ErrNotFound = errors.New("record not found")

// Table names.
const (
	TableUnits       = "units"
	TableCollections = "collections"
	TableItems       = "items"
	TableVotes       = "votes"
)

// Key locates records. Parts a table does not use are zero.
type Key struct {
	CollectionID int
	UnitIndex    int
	ItemIndex    int
}

// Record is one row: a key plus named string fields.
type Record struct {
	ID        int64
	Key       Key
	Fields    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordStore is the structured record store.
type RecordStore interface {
	// Append adds a new record without checking for an existing one.
	Append(ctx context.Context, table string, key Key, fields map[string]string) (Record, error)
	// ReadAll returns every record of table in insertion order.
	ReadAll(ctx context.Context, table string) ([]Record, error)
	// Find returns the records matching key in insertion order.
	Find(ctx context.Context, table string, key Key) ([]Record, error)
	// Update merges fields into the first record matching key.
	Update(ctx context.Context, table string, key Key, fields map[string]string) error
	Close() error
}

// ObjectStore writes named blobs and returns a handle to them. It is never
// consulted for state decisions.
type ObjectStore interface {
	Write(ctx context.Context, name string, data []byte, parent string) (string, error)
	Read(ctx context.Context, handle string) ([]byte, error)
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
