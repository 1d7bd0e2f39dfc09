package oncecache

import (
	"context"
	"iter"
	"sync"

	"github.com/unkn0wn-root/oncecache/equality"
	"github.com/unkn0wn-root/oncecache/internal/inflight"
	"github.com/unkn0wn-root/oncecache/internal/keymap"
)

type slotState uint8

const (
	slotPending slotState = iota
	slotReady
	slotFailed
)

// slot is the once-cell for a key. Only the goroutine that published the
// slot writes state and value, and only before closing done; everyone else
// reads them after <-done.
type slot[V any] struct {
	done  chan struct{}
	state slotState
	value V
}

func newSlot[V any]() *slot[V] {
	return &slot[V]{done: make(chan struct{})}
}

func (s *slot[V]) published() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *slot[V]) failed() bool { return s.published() && s.state == slotFailed }

type shard[K, V any] struct {
	mu sync.RWMutex
	m  *keymap.Map[K, *slot[V]]
}

// Concurrent is safe for use by many goroutines. For a given key the factory
// runs at most once at a time and exactly once per successful population;
// callers arriving meanwhile wait for that result.
//
// A waiter whose context is done stops waiting and returns ctx.Err() with
// no value. The running factory is not cancelled; it completes on its
// owner's context and its result is published for later callers.
type Concurrent[K, V any] struct {
	cmp    equality.Comparer[K]
	shards []shard[K, V]
	mask   uint64
	log    Logger
	hooks  Hooks
}

var _ Cache[string, int] = (*Concurrent[string, int])(nil)

// NewConcurrent creates a Concurrent cache comparing keys with ==.
func NewConcurrent[K comparable, V any](opts Options) *Concurrent[K, V] {
	return NewConcurrentWith[K, V](equality.Default[K](), opts)
}

// NewConcurrentWith creates a Concurrent cache comparing keys with cmp.
func NewConcurrentWith[K, V any](cmp equality.Comparer[K], opts Options) *Concurrent[K, V] {
	opts = opts.withDefaults()
	n := pow2(opts.Shards)
	c := &Concurrent[K, V]{
		cmp:    cmp,
		shards: make([]shard[K, V], n),
		mask:   uint64(n - 1),
		log:    opts.Logger,
		hooks:  opts.Hooks,
	}
	for i := range c.shards {
		c.shards[i].m = keymap.New[K, *slot[V]](cmp)
	}
	return c
}

func (c *Concurrent[K, V]) shardFor(h uint64) *shard[K, V] {
	return &c.shards[(h^h>>32)&c.mask]
}

func (c *Concurrent[K, V]) TryGetValue(ctx context.Context, key K) (V, bool, error) {
	h := c.cmp.Hash(key)
	return c.tryGet(ctx, c.shardFor(h), key, h)
}

func (c *Concurrent[K, V]) tryGet(ctx context.Context, sh *shard[K, V], key K, h uint64) (V, bool, error) {
	var zero V
	sh.mu.RLock()
	s, ok := sh.m.Get(key, h)
	sh.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}

	if !s.published() {
		if inflight.Contains(ctx, s) {
			return zero, false, recursive(ctx, key, c.log, c.hooks)
		}
		select {
		case <-s.done:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
	if s.state == slotFailed {
		// the next writer retries; failures are not replayed to readers
		return zero, false, nil
	}
	return s.value, true, nil
}

func (c *Concurrent[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	h := c.cmp.Hash(key)
	sh := c.shardFor(h)
	for {
		v, ok, err := c.tryGet(ctx, sh, key, h)
		if err != nil || ok {
			return v, err
		}

		s := newSlot[V]()
		if c.publish(sh, key, h, s) {
			return c.populate(ctx, sh, key, h, s, factory)
		}
		// lost the race: s was never visible, wait on the winner instead
	}
}

// publish inserts s unless a live slot is already mapped. A failed slot
// still awaiting removal by its owner is replaced.
func (c *Concurrent[K, V]) publish(sh *shard[K, V], key K, h uint64, s *slot[V]) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m.Get(key, h); ok && !cur.failed() {
		return false
	}
	sh.m.Set(key, h, s)
	return true
}

func (c *Concurrent[K, V]) populate(ctx context.Context, sh *shard[K, V], key K, h uint64, s *slot[V], factory Factory[K, V]) (v V, err error) {
	ok := false
	defer func() {
		if ok {
			return
		}
		// error or panic: release waiters, then drop our mapping if it is still ours
		s.state = slotFailed
		close(s.done)
		sh.mu.Lock()
		sh.m.DeleteIf(key, h, func(cur *slot[V]) bool { return cur == s })
		sh.mu.Unlock()
	}()

	v, err = factory(inflight.With(ctx, s), key)
	if err != nil {
		c.log.Debug("factory failed; slot purged", Fields{"key": key, "err": err})
		c.hooks.FactoryFailed(key, err)
		var zero V
		return zero, err
	}

	s.value = v
	s.state = slotReady
	ok = true
	close(s.done)
	return v, nil
}

// Clear empties every shard. Computations already running finish for their
// own callers but are not visible to later lookups.
func (c *Concurrent[K, V]) Clear() {
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		sh.m.Reset()
		sh.mu.Unlock()
	}
}

// Len returns the number of created entries.
func (c *Concurrent[K, V]) Len() int {
	n := 0
	for range c.All() {
		n++
	}
	return n
}

// All yields created entries shard by shard. Each shard is copied under its
// read lock and yielded after the lock is released.
func (c *Concurrent[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		var buf []kv[K, V]
		for i := range c.shards {
			sh := &c.shards[i]
			buf = buf[:0]
			sh.mu.RLock()
			sh.m.Range(func(k K, s *slot[V]) bool {
				if s.published() && s.state == slotReady {
					buf = append(buf, kv[K, V]{k, s.value})
				}
				return true
			})
			sh.mu.RUnlock()
			for _, p := range buf {
				if !yield(p.k, p.v) {
					return
				}
			}
		}
	}
}
