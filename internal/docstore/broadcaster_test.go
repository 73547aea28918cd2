package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBroadcasterFailDeliversErrorAndCloses(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sites, err := b.Watch(ctx, "sites")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	settings, err := b.Watch(ctx, "settings")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	b.Notify("sites")

	cause := errors.New("listener lost")
	b.Fail(cause)

	for name, ch := range map[string]<-chan Change{"sites": sites, "settings": settings} {
		change, ok := <-ch
		if !ok || !errors.Is(change.Err, cause) {
			t.Fatalf("%s: expected error change, got %+v ok=%v", name, change, ok)
		}
		if _, ok := <-ch; ok {
			t.Fatalf("%s: expected channel closed after error", name)
		}
	}
	if n := b.Watchers("sites"); n != 0 {
		t.Fatalf("expected no watchers, got %d", n)
	}

	// cancelling after Fail must not close twice
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestBroadcasterCancelRemovesWatcher(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Watch(ctx, "sites")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher not closed")
	}
	if n := b.Watchers("sites"); n != 0 {
		t.Fatalf("expected no watchers, got %d", n)
	}
}
