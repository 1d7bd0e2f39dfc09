package oncecache

import (
	"context"
	"iter"

	"github.com/unkn0wn-root/oncecache/equality"
	"github.com/unkn0wn-root/oncecache/internal/keymap"
)

type plainEntry[V any] struct {
	value       V
	initialized bool // false while the key's factory is running
}

// Plain is a map-backed cache for use by a single goroutine.
// Concurrent use is undefined behavior; see Concurrent.
type Plain[K, V any] struct {
	m     *keymap.Map[K, plainEntry[V]]
	log   Logger
	hooks Hooks
}

var _ Cache[string, int] = (*Plain[string, int])(nil)

// NewPlain creates a Plain cache comparing keys with ==.
func NewPlain[K comparable, V any](opts Options) *Plain[K, V] {
	return NewPlainWith[K, V](equality.Default[K](), opts)
}

// NewPlainWith creates a Plain cache comparing keys with cmp.
func NewPlainWith[K, V any](cmp equality.Comparer[K], opts Options) *Plain[K, V] {
	opts = opts.withDefaults()
	return &Plain[K, V]{
		m:     keymap.New[K, plainEntry[V]](cmp),
		log:   opts.Logger,
		hooks: opts.Hooks,
	}
}

func (c *Plain[K, V]) TryGetValue(ctx context.Context, key K) (V, bool, error) {
	var zero V
	e, ok := c.m.Get(key, c.m.Hash(key))
	if !ok {
		return zero, false, nil
	}
	if !e.initialized {
		return zero, false, recursive(ctx, key, c.log, c.hooks)
	}
	return e.value, true, nil
}

func (c *Plain[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	var zero V
	h := c.m.Hash(key)
	if e, ok := c.m.Get(key, h); ok {
		if !e.initialized {
			return zero, recursive(ctx, key, c.log, c.hooks)
		}
		return e.value, nil
	}

	// placeholder marks the key as in flight until the factory returns
	c.m.Set(key, h, plainEntry[V]{})
	created := false
	defer func() {
		if !created {
			c.m.DeleteIf(key, h, func(e plainEntry[V]) bool { return !e.initialized })
		}
	}()

	v, err := factory(ctx, key)
	if err != nil {
		c.log.Debug("factory failed; key left uncached", Fields{"key": key, "err": err})
		c.hooks.FactoryFailed(key, err)
		return zero, err
	}

	c.m.Delete(key, h)
	c.m.Set(key, h, plainEntry[V]{value: v, initialized: true})
	created = true
	return v, nil
}

func (c *Plain[K, V]) Clear() { c.m.Reset() }

// Len returns the number of created entries.
func (c *Plain[K, V]) Len() int {
	n := 0
	c.m.Range(func(_ K, e plainEntry[V]) bool {
		if e.initialized {
			n++
		}
		return true
	})
	return n
}

// All yields a snapshot, so the loop body may use the cache.
func (c *Plain[K, V]) All() iter.Seq2[K, V] {
	var snap []kv[K, V]
	c.m.Range(func(k K, e plainEntry[V]) bool {
		if e.initialized {
			snap = append(snap, kv[K, V]{k, e.value})
		}
		return true
	})
	return snapshotSeq(snap)
}
