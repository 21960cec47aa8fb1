// Package querycache is a keyed read cache for remote queries.
//
// Each key owns one entry holding the last result of its fetcher. Callers
// Subscribe to an entry to receive change notifications; the cache fetches
// when an entry is absent or stale, coalesces concurrent fetches for the same
// key, refetches on an interval while interval subscribers exist, and drops
// entries a grace period after their last subscriber leaves. Mutations run
// outside the cache and declare which keys they affect through Invalidate.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultGCTime is how long an entry with no subscribers is kept.
const DefaultGCTime = 5 * time.Minute

// State is the lifecycle state of a cache entry.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateFresh
	StateStale
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Options tune a subscription.
type Options struct {
	// RefetchInterval refetches the entry periodically while at least one
	// subscriber asked for it. Zero disables polling.
	RefetchInterval time.Duration

	// StaleTime is how long a successful result counts as fresh. Zero means
	// stale immediately, so every new subscription revalidates in the
	// background while still seeing the cached data.
	StaleTime time.Duration
}

// Config configures a Cache.
type Config struct {
	// GCTime is how long an unsubscribed entry survives. Zero selects
	// DefaultGCTime; a negative value removes entries immediately.
	GCTime time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Cache maps query keys to entries. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	flights singleflight.Group
	nextSub uint64
	closed  bool

	gcTime time.Duration
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key Key
	id  string

	fetch     fetchFunc
	staleTime time.Duration

	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	invalidated bool
	gen         uint64 // bumped whenever the stored result must not be trusted

	fetching bool
	settled  chan struct{} // closed when the current fetch completes

	subs     map[uint64]*subscriber
	interval time.Duration
	stopTick chan struct{}
	gcTimer  *time.Timer
	removed  bool
}

type subscriber struct {
	interval time.Duration
	notify   chan struct{}
}

// New creates a Cache.
// PRE: none
// POST: Returns an empty cache ready for subscriptions
func New(cfg Config) *Cache {
	gc := cfg.GCTime
	if gc == 0 {
		gc = DefaultGCTime
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries: make(map[string]*entry),
		gcTime:  gc,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Invalidate marks every entry whose key starts with prefix as stale. Entries
// with subscribers refetch immediately. A fetch already in flight is not
// duplicated; its result is discarded when it lands and one follow-up fetch
// replaces it. Returns the number of matching entries.
// PRE: none
// POST: matching entries are stale or loading; no result read before the
// call is marked fresh
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.invalidated = true
		e.gen++
		if len(e.subs) > 0 {
			if !e.fetching {
				c.startFetchLocked(e)
			}
		}
	}
	slog.Debug("query_event", "event", "invalidate", "prefix", prefix.String(), "matched", n)
	return n
}

// Remove discards cached data for every key starting with prefix. Entries
// without subscribers are deleted; entries still subscribed are reset to
// empty and refetched. A fetch in flight during Remove has its result
// discarded, so no previous result survives.
// PRE: none
// POST: no matching entry holds data from before the call
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.data, e.hasData, e.err = nil, false, nil
		e.updatedAt = time.Time{}
		e.gen++
		if len(e.subs) == 0 {
			c.dropLocked(id, e)
			continue
		}
		e.invalidated = true
		if !e.fetching {
			c.startFetchLocked(e)
		} else {
			c.notifyLocked(e)
		}
	}
}

// EntryStats describes one entry for diagnostics.
type EntryStats struct {
	Key         string
	State       string
	Subscribers int
	UpdatedAt   time.Time
}

// Stats returns a snapshot of every entry.
func (c *Cache) Stats() []EntryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := make([]EntryStats, 0, len(c.entries))
	for _, e := range c.entries {
		stats = append(stats, EntryStats{
			Key:         e.key.String(),
			State:       e.stateLocked(now).String(),
			Subscribers: len(e.subs),
			UpdatedAt:   e.updatedAt,
		})
	}
	return stats
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops all interval refetches and garbage-collection timers, cancels
// the context passed to fetchers, and waits for in-flight fetches to return.
// PRE: none
// POST: no cache goroutine is running
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		c.stopTickLocked(e)
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// subscribe registers a subscriber on key, creating the entry if needed, and
// fetches if the entry is absent or stale.
func (c *Cache) subscribe(key Key, fetch fetchFunc, opts Options) *handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			key:  append(Key(nil), key...),
			id:   id,
			subs: make(map[uint64]*subscriber),
		}
		c.entries[id] = e
	}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	e.fetch = fetch
	e.staleTime = opts.StaleTime

	c.nextSub++
	sub := &subscriber{interval: opts.RefetchInterval, notify: make(chan struct{}, 1)}
	e.subs[c.nextSub] = sub
	c.reconcileIntervalLocked(e)

	if !e.fetching && (!e.hasData || e.err != nil || e.isStaleLocked(c.now())) {
		c.startFetchLocked(e)
	}
	return &handle{c: c, e: e, id: c.nextSub, notify: sub.notify}
}

// unsubscribe removes a subscriber and schedules collection when it was the
// last one.
func (c *Cache) unsubscribe(e *entry, subID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := e.subs[subID]; !ok {
		return
	}
	delete(e.subs, subID)
	c.reconcileIntervalLocked(e)
	if len(e.subs) > 0 || e.removed || c.closed {
		return
	}

	if c.gcTime < 0 {
		c.dropLocked(e.id, e)
		return
	}
	e.gcTimer = time.AfterFunc(c.gcTime, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(e.subs) == 0 && c.entries[e.id] == e {
			c.dropLocked(e.id, e)
		}
	})
}

// dropLocked deletes an entry from the map.
// PRE: c.mu is held
func (c *Cache) dropLocked(id string, e *entry) {
	c.stopTickLocked(e)
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	e.removed = true
	delete(c.entries, id)
	slog.Debug("query_event", "event", "gc", "key", e.key.String())
}

// refetch forces a fetch of e unless one is already in flight.
func (c *Cache) refetch(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.invalidated = true
	e.gen++
	if !e.fetching {
		c.startFetchLocked(e)
	}
}

// startFetchLocked launches the entry's fetcher in its own goroutine.
// Fetches for the same key share one call through the singleflight group, so
// an entry recreated while its predecessor is still loading joins that call.
// A result that lands after the entry's generation moved on is dropped and,
// while subscribers remain, one follow-up fetch starts in its place.
// PRE: c.mu is held and e.fetching is false
func (c *Cache) startFetchLocked(e *entry) {
	if c.closed || e.fetch == nil {
		return
	}
	e.fetching = true
	done := make(chan struct{})
	e.settled = done
	fetch := e.fetch
	gen := e.gen
	c.notifyLocked(e)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := c.now()
		v, err, shared := c.flights.Do(e.id, func() (any, error) {
			return fetch(c.ctx)
		})

		c.mu.Lock()
		defer c.mu.Unlock()
		e.fetching = false
		if e.gen != gen {
			slog.Debug("query_event", "event", "fetch_superseded", "key", e.key.String())
			close(done)
			if len(e.subs) > 0 && !e.removed {
				// The follow-up must not join a call that began before the bump.
				c.flights.Forget(e.id)
				c.startFetchLocked(e)
			}
			if !e.fetching {
				c.notifyLocked(e)
			}
			return
		}
		if err != nil {
			e.err = err
			slog.Warn("query_event", "event", "fetch_failed", "key", e.key.String(), "error", err.Error())
		} else {
			e.data, e.hasData, e.err = v, true, nil
			e.updatedAt = c.now()
			e.invalidated = false
			slog.Debug("query_event", "event", "fetch_ok", "key", e.key.String(),
				"shared", shared, "duration_ms", float64(c.now().Sub(start).Microseconds())/1000.0)
		}
		close(done)
		c.notifyLocked(e)
	}()
}

// reconcileIntervalLocked runs one ticker at the smallest interval any
// subscriber requested, or none.
// PRE: c.mu is held
func (c *Cache) reconcileIntervalLocked(e *entry) {
	var want time.Duration
	for _, s := range e.subs {
		if s.interval > 0 && (want == 0 || s.interval < want) {
			want = s.interval
		}
	}
	if want == e.interval {
		return
	}
	c.stopTickLocked(e)
	if want == 0 || c.closed {
		return
	}

	stop := make(chan struct{})
	e.stopTick = stop
	e.interval = want
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(want)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.mu.Lock()
				if len(e.subs) > 0 && !e.removed {
					e.invalidated = true
					if !e.fetching {
						c.startFetchLocked(e)
					}
				}
				c.mu.Unlock()
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// stopTickLocked stops the entry's interval ticker if running.
// PRE: c.mu is held
func (c *Cache) stopTickLocked(e *entry) {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
	e.interval = 0
}

// notifyLocked wakes every subscriber without blocking. Notifications
// coalesce: a subscriber that has not drained the previous one receives a
// single wake-up.
// PRE: c.mu is held
func (c *Cache) notifyLocked(e *entry) {
	for _, s := range e.subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

func (e *entry) isStaleLocked(now time.Time) bool {
	return e.invalidated || now.Sub(e.updatedAt) >= e.staleTime
}

func (e *entry) stateLocked(now time.Time) State {
	switch {
	case e.fetching:
		return StateLoading
	case e.err != nil:
		return StateError
	case !e.hasData:
		return StateEmpty
	case e.isStaleLocked(now):
		return StateStale
	default:
		return StateFresh
	}
}
