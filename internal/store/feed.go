package store

import (
	"context"
	"sync"
)

// Snapshot is one emission of a live query: either a fresh view of the
// query's rows, or a terminal error. After an error emission the channel is
// closed and no further snapshots arrive. An empty Rows with a nil Err is a
// normal emission (the query simply matches nothing), never an error.
type Snapshot[T any] struct {
	Rows []T
	Err  error
}

// Sub is a live-query subscription. Receive snapshots from C; the channel
// closes when the subscription ends (Close, context cancellation, or a
// terminal error). Emissions may arrive on a different goroutine than the
// one that subscribed.
type Sub[T any] struct {
	C <-chan Snapshot[T]

	ch     chan Snapshot[T]
	done   chan struct{}
	topic  uint
	load   func() ([]T, error)
	f      *feed[T]
	closed bool
}

// feed fans committed-mutation notifications out to live-query
// subscriptions. Each subscription carries its own load function, so every
// publish re-runs the query in the subscriber's scope and pushes an
// immutable snapshot. All state is guarded by mu; subscriptions therefore
// never race a close against a send.
type feed[T any] struct {
	mu     sync.Mutex
	subs   map[*Sub[T]]struct{}
	failed error
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{subs: make(map[*Sub[T]]struct{})}
}

// Subscribe registers a live query on the given topic and immediately
// delivers the initial snapshot. The subscription ends when ctx is
// cancelled or Close is called. Subscribing to a failed feed yields a
// single error snapshot and an already-closed subscription.
func (f *feed[T]) Subscribe(ctx context.Context, topic uint, load func() ([]T, error)) *Sub[T] {
	ch := make(chan Snapshot[T], 1)
	s := &Sub[T]{C: ch, ch: ch, done: make(chan struct{}), topic: topic, load: load, f: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed != nil {
		s.ch <- Snapshot[T]{Err: f.failed}
		s.closed = true
		close(s.ch)
		close(s.done)
		return s
	}
	f.subs[s] = struct{}{}
	s.emitLocked()
	go s.watch(ctx)
	return s
}

// Publish re-emits a fresh snapshot to every subscription on the topic.
// Called by stores after each committed mutation.
func (f *feed[T]) Publish(topic uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		if s.topic == topic {
			s.emitLocked()
		}
	}
}

// Fail terminates the whole feed: every subscription receives a terminal
// error snapshot and is closed, and later subscribers get the same error.
// Used when the underlying storage goes away for good.
func (f *feed[T]) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed != nil {
		return
	}
	f.failed = err
	for s := range f.subs {
		s.deliverErrLocked(err)
	}
}

// Close ends the subscription and releases its resources. Idempotent; safe
// to call concurrently with publishes.
func (s *Sub[T]) Close() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.closed {
		return
	}
	delete(s.f.subs, s)
	s.closed = true
	close(s.ch)
	close(s.done)
}

func (s *Sub[T]) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

// emitLocked runs the subscription's query and pushes the result. A failing
// query is terminal for this subscription. Caller holds f.mu.
func (s *Sub[T]) emitLocked() {
	rows, err := s.load()
	if err != nil {
		s.deliverErrLocked(err)
		return
	}
	// Latest-wins delivery: a slow consumer skips stale snapshots rather
	// than blocking the writer.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- Snapshot[T]{Rows: rows}
}

// deliverErrLocked pushes a terminal error snapshot and closes the
// subscription. Caller holds f.mu.
func (s *Sub[T]) deliverErrLocked(err error) {
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- Snapshot[T]{Err: err}
	delete(s.f.subs, s)
	s.closed = true
	close(s.ch)
	close(s.done)
}
