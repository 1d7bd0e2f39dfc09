package oncecache

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/oncecache/equality"
	"github.com/unkn0wn-root/oncecache/internal/inflight"
)

// Locking serializes every operation on an inner cache behind one mutex,
// including factory calls. It is kept for callers of the legacy locking
// mode; Concurrent gives the same guarantees with per-key blocking.
//
// A factory runs with the cache lock held. Calls it makes with the context
// it received, including calls from goroutines it starts with that context,
// are serialized on a lock owned by that factory call instead of the cache
// lock, so they neither deadlock nor run concurrently. Clear and All take
// no context and must not be called from a factory. For the same reason an
// Invalidating cache goes inside Locking, not around it; Build composes it
// that way.
type Locking[K, V any] struct {
	mu    sync.Mutex
	inner Cache[K, V]
}

var _ Cache[string, int] = (*Locking[string, int])(nil)

// NewLocking wraps inner, which is typically a Plain cache.
func NewLocking[K, V any](inner Cache[K, V]) *Locking[K, V] {
	return &Locking[K, V]{inner: inner}
}

// lockFrame is the lock handed down to one running factory. closed is set
// once that factory has returned; later holders of its context fall back to
// the parent frame, and finally to the cache lock.
type lockFrame struct {
	owner  any
	parent *lockFrame
	mu     sync.Mutex
	closed bool
}

// acquire takes the innermost open frame lock recorded in ctx for c, or the
// cache lock. frame is the innermost recorded frame, open or not.
func (c *Locking[K, V]) acquire(ctx context.Context) (release func(), frame *lockFrame) {
	frame, _ = inflight.Last(ctx, func(f *lockFrame) bool { return f.owner == any(c) })
	for f := frame; f != nil; f = f.parent {
		f.mu.Lock()
		if !f.closed {
			return f.mu.Unlock, frame
		}
		f.mu.Unlock()
	}
	c.mu.Lock()
	return c.mu.Unlock, frame
}

func (c *Locking[K, V]) TryGetValue(ctx context.Context, key K) (V, bool, error) {
	release, _ := c.acquire(ctx)
	defer release()
	return c.inner.TryGetValue(ctx, key)
}

func (c *Locking[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	release, parent := c.acquire(ctx)
	defer release()

	f := &lockFrame{owner: c, parent: parent}
	held := false
	defer func() {
		if held {
			f.mu.Unlock()
		}
	}()
	return c.inner.GetOrCreateValue(inflight.With(ctx, f), key, func(fctx context.Context, k K) (V, error) {
		// wait out nested calls still running, then keep them out until the
		// inner cache has recorded the result
		defer func() {
			f.mu.Lock()
			f.closed = true
			held = true
		}()
		return factory(fctx, k)
	})
}

func (c *Locking[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Clear()
}

// All materializes the inner entries under the lock.
func (c *Locking[K, V]) All() iter.Seq2[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var snap []kv[K, V]
	for k, v := range c.inner.All() {
		snap = append(snap, kv[K, V]{k, v})
	}
	return snapshotSeq(snap)
}

// lazy is a per-key cell whose factory runs under sem rather than under the
// cache-wide mutex. value is written once, before done is set.
type lazy[V any] struct {
	sem   chan struct{}
	done  atomic.Bool
	value V
}

func newLazy[V any]() *lazy[V] {
	return &lazy[V]{sem: make(chan struct{}, 1)}
}

func (l *lazy[V]) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lazy[V]) release() { <-l.sem }

// LazyLocking holds its mutex only to find or create the lazy cell for a
// key; the factory runs under that cell's own lock. It backs the legacy
// lazy-locking mode. A failed factory leaves the cell empty and the next
// caller runs the factory again.
type LazyLocking[K, V any] struct {
	mu    sync.Mutex
	cells *Plain[K, *lazy[V]]
	log   Logger
	hooks Hooks
}

var _ Cache[string, int] = (*LazyLocking[string, int])(nil)

func NewLazyLocking[K comparable, V any](opts Options) *LazyLocking[K, V] {
	return NewLazyLockingWith[K, V](equality.Default[K](), opts)
}

func NewLazyLockingWith[K, V any](cmp equality.Comparer[K], opts Options) *LazyLocking[K, V] {
	opts = opts.withDefaults()
	return &LazyLocking[K, V]{
		cells: NewPlainWith[K, *lazy[V]](cmp, Options{}),
		log:   opts.Logger,
		hooks: opts.Hooks,
	}
}

func (c *LazyLocking[K, V]) cell(ctx context.Context, key K) *lazy[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	// the cell factory cannot fail or recurse
	l, _ := c.cells.GetOrCreateValue(ctx, key, func(context.Context, K) (*lazy[V], error) {
		return newLazy[V](), nil
	})
	return l
}

func (c *LazyLocking[K, V]) TryGetValue(ctx context.Context, key K) (V, bool, error) {
	var zero V
	c.mu.Lock()
	l, ok, _ := c.cells.TryGetValue(ctx, key)
	c.mu.Unlock()
	if !ok {
		return zero, false, nil
	}
	if l.done.Load() {
		return l.value, true, nil
	}
	if inflight.Contains(ctx, l) {
		return zero, false, recursive(ctx, key, c.log, c.hooks)
	}
	if err := l.acquire(ctx); err != nil {
		return zero, false, err
	}
	l.release()
	if l.done.Load() {
		return l.value, true, nil
	}
	return zero, false, nil
}

func (c *LazyLocking[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	var zero V
	l := c.cell(ctx, key)
	if l.done.Load() {
		return l.value, nil
	}
	if inflight.Contains(ctx, l) {
		return zero, recursive(ctx, key, c.log, c.hooks)
	}
	if err := l.acquire(ctx); err != nil {
		return zero, err
	}
	defer l.release()
	if l.done.Load() {
		return l.value, nil
	}

	v, err := factory(inflight.With(ctx, l), key)
	if err != nil {
		c.log.Debug("factory failed; lazy cell left empty", Fields{"key": key, "err": err})
		c.hooks.FactoryFailed(key, err)
		return zero, err
	}
	l.value = v
	l.done.Store(true)
	return v, nil
}

func (c *LazyLocking[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells.Clear()
}

func (c *LazyLocking[K, V]) All() iter.Seq2[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var snap []kv[K, V]
	for k, l := range c.cells.All() {
		if l.done.Load() {
			snap = append(snap, kv[K, V]{k, l.value})
		}
	}
	return snapshotSeq(snap)
}

// Len returns the number of created entries.
func (c *LazyLocking[K, V]) Len() int {
	n := 0
	for range c.All() {
		n++
	}
	return n
}
