// Package keymap is a hash map whose key equality comes from an
// equality.Comparer instead of the == operator.
//
// Callers pass the key's hash alongside the key so it can be computed once
// and reused (the concurrent cache also selects its shard from it).
// A Map is not safe for concurrent use.
package keymap

import "github.com/unkn0wn-root/oncecache/equality"

type entry[K, V any] struct {
	key   K
	value V
}

type Map[K, V any] struct {
	cmp     equality.Comparer[K]
	buckets map[uint64][]entry[K, V]
	n       int
}

func New[K, V any](cmp equality.Comparer[K]) *Map[K, V] {
	return &Map[K, V]{cmp: cmp, buckets: make(map[uint64][]entry[K, V])}
}

// Hash hashes k with the map's comparer.
func (m *Map[K, V]) Hash(k K) uint64 { return m.cmp.Hash(k) }

func (m *Map[K, V]) Get(k K, h uint64) (V, bool) {
	for _, e := range m.buckets[h] {
		if m.cmp.Equal(e.key, k) {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Set inserts or replaces the value stored for k.
func (m *Map[K, V]) Set(k K, h uint64, v V) {
	b := m.buckets[h]
	for i := range b {
		if m.cmp.Equal(b[i].key, k) {
			b[i].value = v
			return
		}
	}
	m.buckets[h] = append(b, entry[K, V]{key: k, value: v})
	m.n++
}

// Delete removes k and reports whether it was present.
func (m *Map[K, V]) Delete(k K, h uint64) bool {
	return m.DeleteIf(k, h, func(V) bool { return true })
}

// DeleteIf removes k only if pred accepts its current value.
func (m *Map[K, V]) DeleteIf(k K, h uint64, pred func(V) bool) bool {
	b := m.buckets[h]
	for i := range b {
		if !m.cmp.Equal(b[i].key, k) {
			continue
		}
		if !pred(b[i].value) {
			return false
		}
		if len(b) == 1 {
			delete(m.buckets, h)
		} else {
			last := len(b) - 1
			b[i] = b[last]
			b[last] = entry[K, V]{}
			m.buckets[h] = b[:last]
		}
		m.n--
		return true
	}
	return false
}

func (m *Map[K, V]) Len() int { return m.n }

// Range calls fn for every entry until fn returns false.
// fn must not modify the map.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for _, b := range m.buckets {
		for _, e := range b {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// Reset removes all entries.
func (m *Map[K, V]) Reset() {
	clear(m.buckets)
	m.n = 0
}
