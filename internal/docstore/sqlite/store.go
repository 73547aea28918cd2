// Package sqlite stores documents in a single SQLite table as JSON text.
// The change feed is in-process: writers in other processes sharing the file
// are not observed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"terralens/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        TEXT NOT NULL CHECK (json_valid(doc)),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
`

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed document store.
type Store struct {
	db   *sql.DB
	now  func() time.Time
	feed *docstore.Broadcaster
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}
	return &Store{
		db:   db,
		now:  func() time.Time { return time.Now().UTC() },
		feed: docstore.NewBroadcaster(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add inserts a document under a new id.
func (s *Store) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	if collection == "" {
		return "", docstore.ErrEmptyCollection
	}
	if _, err := docstore.ValidateObject(data); err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, doc, created_at, updated_at)
VALUES (?, ?, json(?), ?, ?)`, collection, id, string(data), now, now)
	if err != nil {
		return "", err
	}
	s.feed.Notify(collection)
	return id, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	if _, err := docstore.ValidateObject(data); err != nil {
		return err
	}
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, doc, created_at, updated_at)
VALUES (?, ?, json(?), ?, ?)
ON CONFLICT (collection, id)
DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`, collection, id, string(data), now, now)
	if err != nil {
		return err
	}
	s.feed.Notify(collection)
	return nil
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, doc, created_at, updated_at
FROM documents
WHERE collection = ? AND id = ?`, collection, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Update merges top-level fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	patch, err := docstore.ValidateObject(data)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT doc FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.ErrNotFound
		}
		return err
	}
	base, err := docstore.ValidateObject(json.RawMessage(current))
	if err != nil {
		return err
	}
	merged, err := json.Marshal(docstore.MergeTop(base, patch))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET doc = json(?), updated_at = ?
WHERE collection = ? AND id = ?`, string(merged), s.now().Format(timeLayout), collection, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.feed.Notify(collection)
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.feed.Notify(collection)
	}
	return nil
}

// List returns the collection ordered by a string field, insertion order on ties.
func (s *Store) List(ctx context.Context, collection, orderBy string) ([]docstore.Document, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if err := docstore.ValidateField(orderBy); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, doc, created_at, updated_at
FROM documents
WHERE collection = ? AND json_type(doc, '$.%s') IS NOT NULL
ORDER BY COALESCE(json_extract(doc, '$.%s'), '') COLLATE BINARY, rowid`, orderBy, orderBy)

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Watch opens the in-process change feed of a collection.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan docstore.Change, error) {
	return s.feed.Watch(ctx, collection)
}

// Count returns the number of documents per collection.
func (s *Store) Count(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			name string
			n    int64
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*docstore.Document, error) {
	var (
		doc                  docstore.Document
		data                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.ID, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Data = json.RawMessage(data)
	var err error
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("sqlite store: created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite store: updated_at: %w", err)
	}
	return &doc, nil
}
