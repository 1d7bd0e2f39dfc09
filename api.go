package oncecache

import (
	"context"
	"iter"
)

// Factory computes the value for key. ctx is derived from the context given
// to GetOrCreateValue and must be passed to any nested cache call; a nested
// call for the same key made with an unrelated context waits on itself.
type Factory[K, V any] func(ctx context.Context, key K) (V, error)

// Cache is the capability set shared by every variant, so they can be
// substituted for one another and stacked as decorators.
type Cache[K, V any] interface {
	// TryGetValue returns a cached value without calling any factory.
	// It fails with ErrRecursiveKeyAccess when called for a key whose
	// factory is running on ctx's call chain.
	TryGetValue(ctx context.Context, key K) (v V, ok bool, err error)

	// GetOrCreateValue returns the cached value for key or runs factory to
	// create it. Factory errors are returned unchanged and nothing is cached.
	GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error)

	// Clear removes all entries.
	Clear()

	// All yields the fully created entries in unspecified order.
	All() iter.Seq2[K, V]
}

// Options tune logging, hooks and sharding. The zero value is usable.
type Options struct {
	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
	Shards int    // Concurrent only; 0 => 16, rounded up to a power of two
}

const defaultShards = 16

func (o Options) withDefaults() Options {
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	o.Shards = coalesce(o.Shards, defaultShards)
	return o
}
