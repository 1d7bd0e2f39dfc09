// Package equality defines how cache keys are compared.
//
// A Comparer pairs an equality function with a hash. Keys that are Equal
// must produce the same Hash; unequal keys may collide.
package equality

import (
	"bytes"
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// Comparer compares and hashes keys of type K.
type Comparer[K any] interface {
	Equal(a, b K) bool
	Hash(k K) uint64
}

var seed = maphash.MakeSeed()

type natural[K comparable] struct{}

func (natural[K]) Equal(a, b K) bool { return a == b }
func (natural[K]) Hash(k K) uint64   { return maphash.Comparable(seed, k) }

// Default returns the natural equality of K (the == operator).
func Default[K comparable]() Comparer[K] { return natural[K]{} }

type funcs[K any] struct {
	eq   func(a, b K) bool
	hash func(K) uint64
}

func (f funcs[K]) Equal(a, b K) bool { return f.eq(a, b) }
func (f funcs[K]) Hash(k K) uint64   { return f.hash(k) }

// Func builds a Comparer from two functions. Both must be non-nil.
func Func[K any](eq func(a, b K) bool, hash func(K) uint64) Comparer[K] {
	if eq == nil || hash == nil {
		panic("equality: Func requires both eq and hash")
	}
	return funcs[K]{eq: eq, hash: hash}
}

type byteSlices struct{}

func (byteSlices) Equal(a, b []byte) bool { return bytes.Equal(a, b) }
func (byteSlices) Hash(k []byte) uint64   { return xxhash.Sum64(k) }

// Bytes compares byte slices by content. nil and empty slices are equal.
func Bytes() Comparer[[]byte] { return byteSlices{} }
