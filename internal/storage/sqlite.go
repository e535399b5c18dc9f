package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a RecordStore backed by a single SQLite table. Fields are
// stored as a JSON object so tables need no schema of their own.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	s, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := s.migrate(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenSQLiteReadOnly opens an existing database without creating or
// migrating anything. A missing file is reported as os.ErrNotExist.
func OpenSQLiteReadOnly(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return openSQLite("file:" + path + "?mode=ro")
}

func openSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database, and the store
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			tbl           TEXT    NOT NULL,
			collection_id INTEGER NOT NULL DEFAULT 0,
			unit_index    INTEGER NOT NULL DEFAULT 0,
			item_index    INTEGER NOT NULL DEFAULT 0,
			fields        TEXT    NOT NULL DEFAULT '{}',
			created_at    TEXT    NOT NULL,
			updated_at    TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_key
			ON records(tbl, collection_id, unit_index, item_index);
	`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, table string, key Key, fields map[string]string) (Record, error) {
	raw, err := json.Marshal(cloneFields(fields))
	if err != nil {
		return Record{}, fmt.Errorf("encode fields: %w", err)
	}
	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (tbl, collection_id, unit_index, item_index, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table, key.CollectionID, key.UnitIndex, key.ItemIndex, string(raw), stamp, stamp)
	if err != nil {
		return Record{}, fmt.Errorf("append %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("append %s: %w", table, err)
	}

	return Record{ID: id, Key: key, Fields: cloneFields(fields), CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, table string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, unit_index, item_index, fields, created_at, updated_at
		 FROM records WHERE tbl = ? ORDER BY id`, table)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return scanRecords(rows)
}

func (s *SQLiteStore) Find(ctx context.Context, table string, key Key) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, unit_index, item_index, fields, created_at, updated_at
		 FROM records
		 WHERE tbl = ? AND collection_id = ? AND unit_index = ? AND item_index = ?
		 ORDER BY id`,
		table, key.CollectionID, key.UnitIndex, key.ItemIndex)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	return scanRecords(rows)
}

func (s *SQLiteStore) Update(ctx context.Context, table string, key Key, fields map[string]string) error {
	matches, err := s.Find(ctx, table, key)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("update %s %+v: %w", table, key, ErrNotFound)
	}

	target := matches[0]
	for k, v := range fields {
		target.Fields[k] = v
	}
	raw, err := json.Marshal(target.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE records SET fields = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC().Format(time.RFC3339Nano), target.ID)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                Record
			raw              string
			created, updated string
		)
		if err := rows.Scan(&r.ID, &r.Key.CollectionID, &r.Key.UnitIndex, &r.Key.ItemIndex, &raw, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Fields = make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", r.ID, err)
		}
		r.CreatedAt = parseStamp(created)
		r.UpdatedAt = parseStamp(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsNotFound reports whether err came from an Update with no matching record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
