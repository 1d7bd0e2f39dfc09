package oncecache

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// Invalidating wraps a cache so that every operation first compares the
// token's revision with the last one it cleared at. A newer revision clears
// the inner cache before the operation proceeds.
type Invalidating[K, V any] struct {
	inner Cache[K, V]
	token InvalidationToken
	seen  atomic.Pointer[Revision]
	mu    sync.Mutex
	log   Logger
	hooks Hooks
}

var _ Cache[string, int] = (*Invalidating[string, int])(nil)

// NewInvalidating wraps inner. The inner cache is assumed to hold nothing
// older than token's current revision.
func NewInvalidating[K, V any](inner Cache[K, V], token InvalidationToken, opts Options) *Invalidating[K, V] {
	opts = opts.withDefaults()
	c := &Invalidating[K, V]{inner: inner, token: token, log: opts.Logger, hooks: opts.Hooks}
	r := token.GetCurrent()
	c.seen.Store(&r)
	return c
}

// Token returns the token the cache observes.
func (c *Invalidating[K, V]) Token() InvalidationToken { return c.token }

// CheckRevision reports whether the inner cache was current. A false result
// means the inner cache has just been cleared.
func (c *Invalidating[K, V]) CheckRevision() bool {
	if c.token.IsCurrent(*c.seen.Load()) {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.IsCurrent(*c.seen.Load()) {
		return true
	}
	c.clearLocked()
	return false
}

// clearLocked repeats the clear until no Invalidate lands between taking the
// snapshot and finishing inner.Clear. Callers hold c.mu.
func (c *Invalidating[K, V]) clearLocked() {
	attempts := 0
	for {
		attempts++
		snap := c.token.GetCurrent()
		c.inner.Clear()
		if c.token.IsCurrent(snap) {
			c.seen.Store(&snap)
			break
		}
	}
	c.log.Debug("inner cache cleared for new revision", Fields{"attempts": attempts})
	c.hooks.InvalidationCleared(attempts)
}

func (c *Invalidating[K, V]) TryGetValue(ctx context.Context, key K) (V, bool, error) {
	if !c.CheckRevision() {
		var zero V
		return zero, false, nil
	}
	return c.inner.TryGetValue(ctx, key)
}

func (c *Invalidating[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	c.CheckRevision()
	return c.inner.GetOrCreateValue(ctx, key, factory)
}

func (c *Invalidating[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Invalidating[K, V]) All() iter.Seq2[K, V] {
	c.CheckRevision()
	return c.inner.All()
}
