// Package storetest holds the behaviour every docstore backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"terralens/internal/docstore"
)

// Factory returns an empty store and the collection name to exercise.
type Factory func(t *testing.T) (docstore.Store, string)

// Run executes the conformance suite.
func Run(t *testing.T, factory Factory) {
	t.Run("AddGet", func(t *testing.T) { testAddGet(t, factory) })
	t.Run("UpdateMergesTopLevelFields", func(t *testing.T) { testUpdateMerge(t, factory) })
	t.Run("UpdateMissingDocument", func(t *testing.T) { testUpdateMissing(t, factory) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("ListOrdersByField", func(t *testing.T) { testListOrder(t, factory) })
	t.Run("ListRejectsInvalidField", func(t *testing.T) { testListInvalidField(t, factory) })
	t.Run("ListOmitsDocumentsWithoutField", func(t *testing.T) { testListOmitsMissingField(t, factory) })
	t.Run("SetReplaces", func(t *testing.T) { testSetReplaces(t, factory) })
	t.Run("WatchSignalsWrites", func(t *testing.T) { testWatch(t, factory) })
	t.Run("RejectsNonObjects", func(t *testing.T) { testRejectsNonObjects(t, factory) })
}

func testAddGet(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	id, err := store.Add(ctx, coll, json.RawMessage(`{"name":"Alpha","rate":1.5}`))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatalf("expected assigned id")
	}
	doc, err := store.Get(ctx, coll, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fields := decode(t, doc.Data)
	if fields["name"] != "Alpha" || fields["rate"] != 1.5 {
		t.Fatalf("unexpected document: %v", fields)
	}
	if doc.ID != id {
		t.Fatalf("expected id %s, got %s", id, doc.ID)
	}

	if _, err := store.Get(ctx, coll, "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testUpdateMerge(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	id, err := store.Add(ctx, coll, json.RawMessage(`{"name":"Alpha","legacy":"keep","status":"Active"}`))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Update(ctx, coll, id, json.RawMessage(`{"status":"Inactive","nested":{"a":1}}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err := store.Get(ctx, coll, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fields := decode(t, doc.Data)
	if fields["legacy"] != "keep" {
		t.Fatalf("expected untouched field preserved, got %v", fields)
	}
	if fields["status"] != "Inactive" || fields["name"] != "Alpha" {
		t.Fatalf("unexpected merge result: %v", fields)
	}
	nested, ok := fields["nested"].(map[string]any)
	if !ok || nested["a"] != 1.0 {
		t.Fatalf("expected nested object, got %v", fields["nested"])
	}
}

func testUpdateMissing(t *testing.T, factory Factory) {
	store, coll := factory(t)
	err := store.Update(context.Background(), coll, "nope", json.RawMessage(`{"name":"x"}`))
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteIdempotent(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	id, err := store.Add(ctx, coll, json.RawMessage(`{"name":"Alpha"}`))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Delete(ctx, coll, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, coll, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, coll, id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected deleted document to be gone, got %v", err)
	}
}

func testListOrder(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	for _, name := range []string{"Zeta", "Alpha", "Mid", "alpha"} {
		if _, err := store.Add(ctx, coll, json.RawMessage(`{"name":"`+name+`"}`)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	docs, err := store.List(ctx, coll, "name")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, doc := range docs {
		names = append(names, decode(t, doc.Data)["name"].(string))
	}
	want := []string{"Alpha", "Mid", "Zeta", "alpha"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func testListOmitsMissingField(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	for _, raw := range []string{`{"name":"Beta"}`, `{"region":"north"}`, `{"name":null}`, `{"name":"Alpha"}`} {
		if _, err := store.Add(ctx, coll, json.RawMessage(raw)); err != nil {
			t.Fatalf("add %s: %v", raw, err)
		}
	}
	docs, err := store.List(ctx, coll, "name")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents with a name field, got %d", len(docs))
	}
	for _, doc := range docs {
		if _, ok := decode(t, doc.Data)["name"]; !ok {
			t.Fatalf("unexpected document without name: %s", doc.Data)
		}
	}
	if got := decode(t, docs[0].Data)["name"]; got != nil {
		t.Fatalf("expected null name first, got %v", got)
	}
	if got := decode(t, docs[1].Data)["name"]; got != "Alpha" {
		t.Fatalf("expected Alpha second, got %v", got)
	}
}

func testListInvalidField(t *testing.T, factory Factory) {
	store, coll := factory(t)
	_, err := store.List(context.Background(), coll, "name; DROP TABLE documents")
	if !errors.Is(err, docstore.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func testSetReplaces(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx := context.Background()

	if err := store.Set(ctx, coll, "fixed", json.RawMessage(`{"a":1,"b":2}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, coll, "fixed", json.RawMessage(`{"a":3}`)); err != nil {
		t.Fatalf("set again: %v", err)
	}
	doc, err := store.Get(ctx, coll, "fixed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fields := decode(t, doc.Data)
	if _, ok := fields["b"]; ok {
		t.Fatalf("expected full replacement, got %v", fields)
	}
	if fields["a"] != 3.0 {
		t.Fatalf("unexpected document: %v", fields)
	}
}

func testWatch(t *testing.T, factory Factory) {
	store, coll := factory(t)
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := store.Watch(ctx, coll)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := store.Add(context.Background(), coll, json.RawMessage(`{"name":"Alpha"}`)); err != nil {
		t.Fatalf("add: %v", err)
	}
	select {
	case change := <-changes:
		if change.Err != nil {
			t.Fatalf("unexpected feed error: %v", change.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected change signal")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected feed to close after cancel")
		}
	}
}

func testRejectsNonObjects(t *testing.T, factory Factory) {
	store, coll := factory(t)
	if _, err := store.Add(context.Background(), coll, json.RawMessage(`[1,2]`)); !errors.Is(err, docstore.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func decode(t *testing.T, data json.RawMessage) map[string]any {
	t.Helper()
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return fields
}
