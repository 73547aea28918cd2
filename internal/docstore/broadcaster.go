package docstore

import (
	"context"
	"sync"
)

// Broadcaster fans in-process write notifications out to collection watchers.
// Sends never block: each watcher channel holds at most one pending change,
// which is enough because consumers re-query on every signal.
type Broadcaster struct {
	mu       sync.Mutex
	watchers map[string]map[chan Change]struct{}
}

// NewBroadcaster constructs a broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{watchers: make(map[string]map[chan Change]struct{})}
}

// Watch registers a watcher that is removed and closed when ctx is done.
func (b *Broadcaster) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Change, 1)
	b.mu.Lock()
	set := b.watchers[collection]
	if set == nil {
		set = make(map[chan Change]struct{})
		b.watchers[collection] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.watchers[collection][ch]; !ok {
			return
		}
		delete(b.watchers[collection], ch)
		if len(b.watchers[collection]) == 0 {
			delete(b.watchers, collection)
		}
		close(ch)
	}()
	return ch, nil
}

// Notify signals every watcher of collection.
func (b *Broadcaster) Notify(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.watchers[collection] {
		select {
		case ch <- Change{Collection: collection}:
		default:
		}
	}
}

// Watchers returns the number of open watchers of collection.
func (b *Broadcaster) Watchers(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers[collection])
}

// Fail delivers err to every watcher, replacing any pending signal, then closes
// and removes all watchers.
func (b *Broadcaster) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for collection, set := range b.watchers {
		for ch := range set {
			select {
			case <-ch:
			default:
			}
			ch <- Change{Collection: collection, Err: err}
			close(ch)
		}
		delete(b.watchers, collection)
	}
}
