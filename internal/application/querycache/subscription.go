package querycache

import (
	"context"
	"time"
)

// Fetcher loads the value for one key. The context is owned by the cache and
// is cancelled only when the cache closes.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Result is a point-in-time view of an entry.
type Result[T any] struct {
	Data    T
	HasData bool
	Err     error
	State   State

	// IsLoading is true while the first fetch is in flight and no data exists.
	IsLoading bool
	// IsFetching is true while any fetch is in flight, including background
	// refetches over existing data.
	IsFetching bool
	UpdatedAt  time.Time
}

// Subscription is a live handle on one cache entry. It must be closed.
type Subscription[T any] struct {
	h *handle
}

type handle struct {
	c      *Cache
	e      *entry
	id     uint64
	notify chan struct{}
}

// Subscribe attaches to the entry for key, creating it if needed, and starts a
// fetch when the entry is absent, errored or stale.
// PRE: c was created with New; fetch is non-nil
// POST: the caller holds one subscription on key and must Close it
func Subscribe[T any](c *Cache, key Key, fetch Fetcher[T], opts Options) *Subscription[T] {
	ff := func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
	return &Subscription[T]{h: c.subscribe(key, ff, opts)}
}

// Result returns the current state of the entry.
func (s *Subscription[T]) Result() Result[T] {
	c, e := s.h.c, s.h.e
	c.mu.Lock()
	defer c.mu.Unlock()

	var r Result[T]
	if e.hasData {
		if v, ok := e.data.(T); ok {
			r.Data = v
			r.HasData = true
		}
	}
	r.Err = e.err
	r.State = e.stateLocked(c.now())
	r.IsFetching = e.fetching
	r.IsLoading = e.fetching && !e.hasData
	r.UpdatedAt = e.updatedAt
	return r
}

// Updates delivers a signal whenever the entry changes. Signals coalesce; read
// Result after each one.
func (s *Subscription[T]) Updates() <-chan struct{} {
	return s.h.notify
}

// Await blocks until no fetch is in flight for the entry or ctx is done.
// PRE: none
// POST: returns nil once the entry has settled, ctx.Err() otherwise
func (s *Subscription[T]) Await(ctx context.Context) error {
	c, e := s.h.c, s.h.e
	for {
		c.mu.Lock()
		if !e.fetching || c.closed {
			c.mu.Unlock()
			return nil
		}
		settled := e.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Refetch starts a fetch now unless one is already in flight.
func (s *Subscription[T]) Refetch() {
	s.h.c.refetch(s.h.e)
}

// Close releases the subscription. Closing twice is a no-op.
func (s *Subscription[T]) Close() {
	s.h.c.unsubscribe(s.h.e, s.h.id)
}

// Query subscribes, waits for the entry to settle and returns its result,
// closing the subscription before returning. It serves one-shot reads such as
// a page render.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) (Result[T], error) {
	sub := Subscribe(c, key, fetch, opts)
	defer sub.Close()
	if err := sub.Await(ctx); err != nil {
		return sub.Result(), err
	}
	return sub.Result(), nil
}
