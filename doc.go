// Package oncecache implements in-memory key/value caches that run a key's
// factory at most once at a time, detect reentrant access to a key that is
// still being computed, and can be cleared in bulk through a shared
// invalidation token.
//
// Variants (all implement Cache[K, V]):
//   - Plain: map-backed, single goroutine only.
//   - Concurrent: sharded map of per-key once-cells. At most one factory runs
//     per key; other callers for that key wait for its result.
//   - Invalidating: decorator that clears its inner cache once per
//     InvalidationToken revision.
//   - Locking, LazyLocking: legacy whole-cache lock wrappers. Prefer Concurrent.
//   - Null: calls the factory every time and stores nothing.
//
// Build composes these from a Config ("concurrent+invalidation" etc.).
//
// Reentrancy:
//
//	v, err := cache.GetOrCreateValue(ctx, "a", func(ctx context.Context, k string) (int, error) {
//	    // ctx is marked as computing "a"; passing it on lets the cache
//	    // report ErrRecursiveKeyAccess instead of blocking forever.
//	    return cache.GetOrCreateValue(ctx, "a", other)
//	})
//
// Caches are unbounded: entries leave only through Clear, invalidation or a
// failed factory call.
package oncecache
