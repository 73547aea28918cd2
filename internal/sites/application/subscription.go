package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"terralens/internal/observability/metrics"
	sites "terralens/internal/sites/domain"
)

var errFeedClosed = errors.New("change feed closed")

// Subscription is a live, name-ordered query over the sites collection.
type Subscription struct {
	repo     *Repository
	cancel   context.CancelFunc
	done     chan struct{}
	onUpdate func([]sites.MiningSite)
	onError  func(error)
}

// Subscribe delivers the complete ordered site list to onUpdate on start and
// after every change to the collection. A store failure is delivered once to
// onError and ends the subscription. Callbacks run serially on one goroutine
// owned by the subscription; cancelling ctx is equivalent to Unsubscribe.
func (r *Repository) Subscribe(ctx context.Context, onUpdate func([]sites.MiningSite), onError func(error)) (*Subscription, error) {
	if onUpdate == nil {
		return nil, errors.New("sites: nil update callback")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		repo:     r,
		cancel:   cancel,
		done:     make(chan struct{}),
		onUpdate: onUpdate,
		onError:  onError,
	}
	metrics.IncSubscriptions()
	go s.run(ctx)
	return s, nil
}

// Unsubscribe stops delivery and releases the change feed. It never blocks and
// may be called any number of times, including from inside a callback.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// Done is closed once the change feed has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer metrics.DecSubscriptions()
	defer s.cancel()

	changes, err := s.repo.store.Watch(ctx, sites.Collection)
	if err != nil {
		s.fail(ctx, "watch", err)
		return
	}
	defer func() {
		s.cancel()
		for range changes {
		}
	}()

	if !s.deliver(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				s.fail(ctx, "watch", errFeedClosed)
				return
			}
			if change.Err != nil {
				s.fail(ctx, "watch", change.Err)
				return
			}
			if !s.deliver(ctx) {
				return
			}
		}
	}
}

func (s *Subscription) deliver(ctx context.Context) bool {
	docs, err := s.repo.store.List(ctx, sites.Collection, sites.OrderField)
	if err != nil {
		s.fail(ctx, "list", err)
		return false
	}
	list := s.repo.decodeAll(docs)
	if ctx.Err() != nil {
		return false
	}
	s.onUpdate(list)
	metrics.IncSnapshot()
	return true
}

func (s *Subscription) fail(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	s.repo.logger.Error("site subscription failed", zap.String("op", op), zap.Error(err))
	if s.onError != nil {
		s.onError(&sites.StoreReadError{Op: op, Err: err})
	}
}
