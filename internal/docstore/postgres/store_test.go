package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"terralens/internal/docstore"
	"terralens/internal/docstore/storetest"
)

func TestStoreConformance_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()

	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := NewStore(pool)

	storetest.Run(t, func(t *testing.T) (docstore.Store, string) {
		coll := "it-" + uuid.NewString()
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), "DELETE FROM documents WHERE collection = $1", coll)
		})
		return store, coll
	})
}

func TestMigrateIsRepeatable_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()

	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	applied, err := Migrate(ctx, pool)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing to apply, got %v", applied)
	}
}

func TestWatchersDoNotHoldPoolConnections_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()
	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewStore(pool)
	defer store.Close()
	coll := "it-" + uuid.NewString()
	defer func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM documents WHERE collection = $1", coll)
	}()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var feeds []<-chan docstore.Change
	for i := 0; i < int(cfg.MaxConns)+3; i++ {
		ch, err := store.Watch(watchCtx, coll)
		if err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
		feeds = append(feeds, ch)
	}

	addCtx, addCancel := context.WithTimeout(ctx, 5*time.Second)
	defer addCancel()
	if _, err := store.Add(addCtx, coll, json.RawMessage(`{"name":"Alpha"}`)); err != nil {
		t.Fatalf("add with open watchers: %v", err)
	}
	if _, err := store.List(addCtx, coll, "name"); err != nil {
		t.Fatalf("list with open watchers: %v", err)
	}

	for i, ch := range feeds {
		select {
		case change := <-ch:
			if change.Err != nil {
				t.Fatalf("watcher %d: unexpected error %v", i, change.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("watcher %d: expected change signal", i)
		}
	}
}

func TestWatchAfterClose_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()

	store := NewStore(pool)
	if _, err := store.Watch(context.Background(), "sites"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Watch(context.Background(), "sites"); !errors.Is(err, errStoreClosed) {
		t.Fatalf("expected errStoreClosed, got %v", err)
	}
}
