// Package postgres stores documents as JSONB rows. Change feeds are driven by
// a row trigger that issues pg_notify on the documents_changed channel with the
// collection name as payload, so writers in other processes are observed too.
// One listener connection per Store fans notifications out to all watchers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"terralens/internal/docstore"
)

const notifyChannel = "documents_changed"

var errStoreClosed = errors.New("postgres: store closed")

// Store is a Postgres-backed document store.
type Store struct {
	pool *pgxpool.Pool
	feed *docstore.Broadcaster

	mu         sync.Mutex
	closed     bool
	stopListen context.CancelFunc
	listenDone chan struct{}
}

// NewStore constructs a store over an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool, feed: docstore.NewBroadcaster()}
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
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (collection, id, doc)
VALUES ($1, $2, $3::jsonb)`, collection, id, string(data))
	if err != nil {
		return "", err
	}
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
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (collection, id, doc)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, id)
DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, collection, id, string(data))
	return err
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
SELECT id, doc::text, created_at, updated_at
FROM documents
WHERE collection = $1 AND id = $2`, collection, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	if _, err := docstore.ValidateObject(data); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE documents
SET doc = doc || $3::jsonb, updated_at = now()
WHERE collection = $1 AND id = $2`, collection, id, string(data))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

// List returns the documents that carry orderBy, sorted by it with insertion
// order on ties.
func (s *Store) List(ctx context.Context, collection, orderBy string) ([]docstore.Document, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if err := docstore.ValidateField(orderBy); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, doc::text, created_at, updated_at
FROM documents
WHERE collection = $1 AND doc ? $2
ORDER BY COALESCE(doc->>$2, '') COLLATE "C", seq`, collection, orderBy)
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

// Watch registers a watcher of collection. The first call opens a dedicated
// LISTEN connection outside the pool that serves every watcher of the store.
// If that connection fails, each open watcher receives a Change with Err set
// before its channel closes, and the next Watch reconnects.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan docstore.Change, error) {
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startListenerLocked(ctx); err != nil {
		return nil, err
	}
	return s.feed.Watch(ctx, collection)
}

func (s *Store) startListenerLocked(ctx context.Context) error {
	if s.closed {
		return errStoreClosed
	}
	if s.stopListen != nil {
		return nil
	}
	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig)
	if err != nil {
		return fmt.Errorf("postgres: listen connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return fmt.Errorf("postgres: listen: %w", err)
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopListen = cancel
	s.listenDone = done
	go s.listen(listenCtx, conn, done)
	return nil
}

func (s *Store) listen(ctx context.Context, conn *pgx.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(cleanup)
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			lost := ctx.Err() == nil
			s.mu.Lock()
			if s.stopListen != nil {
				s.stopListen()
			}
			s.stopListen = nil
			s.listenDone = nil
			if lost {
				s.feed.Fail(err)
			}
			s.mu.Unlock()
			return
		}
		s.feed.Notify(n.Payload)
	}
}

// Close stops the listener connection. The pool is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	stop, done := s.stopListen, s.listenDone
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	<-done
	return nil
}

func scanDocument(row pgx.Row) (*docstore.Document, error) {
	var (
		doc  docstore.Document
		data string
	)
	if err := row.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Data = json.RawMessage(data)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// Count returns the number of documents per collection.
func (s *Store) Count(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
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
