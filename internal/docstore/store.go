// Package docstore is the boundary to the document database that holds the
// dashboard's collections. Documents are JSON objects keyed by store-assigned
// ids; writes are single-document atomic and every write to a collection is
// announced on that collection's change feed.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidField indicates an order-by field that is not a plain identifier.
	ErrInvalidField = errors.New("docstore: invalid field name")
	// ErrInvalidDocument indicates data that is not a JSON object.
	ErrInvalidDocument = errors.New("docstore: document must be a JSON object")
	// ErrEmptyCollection indicates a missing collection name.
	ErrEmptyCollection = errors.New("docstore: empty collection")
	// ErrEmptyID indicates a missing document id.
	ErrEmptyID = errors.New("docstore: empty id")
)

// Document is one stored record.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Change signals that a collection was written. Err is set when the feed failed;
// the channel is closed right after such a change.
type Change struct {
	Collection string
	Err        error
}

// Store is implemented by every backend.
type Store interface {
	// Add inserts data under a new store-assigned id.
	Add(ctx context.Context, collection string, data json.RawMessage) (string, error)
	// Set creates or fully replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data json.RawMessage) error
	// Get loads one document; ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Update merges the top-level fields of data into the stored document.
	Update(ctx context.Context, collection, id string, data json.RawMessage) error
	// Delete removes a document; a missing id is not an error.
	Delete(ctx context.Context, collection, id string) error
	// List returns the documents that have the field orderBy, ordered by it.
	// Documents without the field are omitted.
	List(ctx context.Context, collection, orderBy string) ([]Document, error)
	// Watch opens the change feed of a collection until ctx is cancelled.
	Watch(ctx context.Context, collection string) (<-chan Change, error)
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateField checks an order-by field name.
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return ErrInvalidField
	}
	return nil
}

// ValidateObject checks that data is a JSON object and returns its fields.
func ValidateObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrInvalidDocument
	}
	return fields, nil
}

// ValidateKey checks collection and id arguments.
func ValidateKey(collection, id string) error {
	if collection == "" {
		return ErrEmptyCollection
	}
	if id == "" {
		return ErrEmptyID
	}
	return nil
}

// MergeTop overlays the top-level fields of patch onto base.
func MergeTop(base, patch map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
