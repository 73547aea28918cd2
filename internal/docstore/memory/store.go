package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"terralens/internal/docstore"
)

type record struct {
	seq       uint64
	fields    map[string]json.RawMessage
	createdAt time.Time
	updatedAt time.Time
}

// Store is an in-memory document store for demo/testing.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record
	seq         uint64
	now         func() time.Time
	newID       func() string
	feed        *docstore.Broadcaster
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides id assignment.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*record),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		feed:        docstore.NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts a document under a new id.
func (s *Store) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if collection == "" {
		return "", docstore.ErrEmptyCollection
	}
	fields, err := docstore.ValidateObject(data)
	if err != nil {
		return "", err
	}
	id := s.newID()

	s.mu.Lock()
	s.put(collection, id, fields)
	s.mu.Unlock()

	s.feed.Notify(collection)
	return id, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	fields, err := docstore.ValidateObject(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if rec := s.collections[collection][id]; rec != nil {
		rec.fields = fields
		rec.updatedAt = s.now()
	} else {
		s.put(collection, id, fields)
	}
	s.mu.Unlock()

	s.feed.Notify(collection)
	return nil
}

func (s *Store) put(collection, id string, fields map[string]json.RawMessage) {
	docs := s.collections[collection]
	if docs == nil {
		docs = make(map[string]*record)
		s.collections[collection] = docs
	}
	s.seq++
	now := s.now()
	docs[id] = &record{seq: s.seq, fields: fields, createdAt: now, updatedAt: now}
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidateKey(collection, id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.collections[collection][id]
	if rec == nil {
		return nil, docstore.ErrNotFound
	}
	return toDocument(id, rec)
}

// Update merges top-level fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	patch, err := docstore.ValidateObject(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rec := s.collections[collection][id]
	if rec == nil {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	rec.fields = docstore.MergeTop(rec.fields, patch)
	rec.updatedAt = s.now()
	s.mu.Unlock()

	s.feed.Notify(collection)
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.feed.Notify(collection)
	}
	return nil
}

// List returns the collection ordered by a string field, insertion order on ties.
func (s *Store) List(ctx context.Context, collection, orderBy string) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, docstore.ErrEmptyCollection
	}
	if err := docstore.ValidateField(orderBy); err != nil {
		return nil, err
	}

	type keyed struct {
		id  string
		key string
		rec *record
	}
	s.mu.RLock()
	rows := make([]keyed, 0, len(s.collections[collection]))
	for id, rec := range s.collections[collection] {
		value, ok := rec.fields[orderBy]
		if !ok {
			continue
		}
		rows = append(rows, keyed{id: id, key: sortKey(value), rec: rec})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		return rows[i].rec.seq < rows[j].rec.seq
	})

	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := toDocument(row.id, row.rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// Watch opens the in-process change feed of a collection.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan docstore.Change, error) {
	return s.feed.Watch(ctx, collection)
}

// Watchers reports open watchers; used by tests to observe release.
func (s *Store) Watchers(collection string) int {
	return s.feed.Watchers(collection)
}

// Count returns the number of documents per collection.
func (s *Store) Count(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64, len(s.collections))
	for name, docs := range s.collections {
		if len(docs) > 0 {
			counts[name] = int64(len(docs))
		}
	}
	return counts, nil
}

func sortKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func toDocument(id string, rec *record) (*docstore.Document, error) {
	data, err := json.Marshal(rec.fields)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{ID: id, Data: data, CreatedAt: rec.createdAt, UpdatedAt: rec.updatedAt}, nil
}
