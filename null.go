package oncecache

import (
	"context"
	"iter"
)

// Null satisfies Cache without storing anything: every GetOrCreateValue
// calls the factory and every TryGetValue misses.
type Null[K, V any] struct{}

var _ Cache[string, int] = Null[string, int]{}

func (Null[K, V]) TryGetValue(context.Context, K) (V, bool, error) {
	var zero V
	return zero, false, nil
}

func (Null[K, V]) GetOrCreateValue(ctx context.Context, key K, factory Factory[K, V]) (V, error) {
	return factory(ctx, key)
}

func (Null[K, V]) Clear() {}

func (Null[K, V]) All() iter.Seq2[K, V] {
	return func(func(K, V) bool) {}
}
