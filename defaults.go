package oncecache

import "iter"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// pow2 rounds n up to a power of two (minimum 1).
func pow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

type kv[K, V any] struct {
	k K
	v V
}

func snapshotSeq[K, V any](pairs []kv[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, p := range pairs {
			if !yield(p.k, p.v) {
				return
			}
		}
	}
}
