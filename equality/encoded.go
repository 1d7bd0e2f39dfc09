package equality

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/unkn0wn-root/oncecache/codec"
)

type encoded[K any] struct {
	enc codec.Encoder[K]
}

// Encoded compares keys by their encoded form. The encoder must be
// canonical: equal keys must encode to identical bytes (see codec.CBOR,
// codec.Msgpack, codec.JSON). This makes structs holding slices or maps
// usable as keys.
//
// Keys that fail to encode are a programming error; Equal and Hash panic.
func Encoded[K any](enc codec.Encoder[K]) Comparer[K] {
	if enc == nil {
		panic("equality: Encoded requires an encoder")
	}
	return encoded[K]{enc: enc}
}

func (e encoded[K]) Equal(a, b K) bool {
	return bytes.Equal(e.mustEncode(a), e.mustEncode(b))
}

func (e encoded[K]) Hash(k K) uint64 {
	return xxhash.Sum64(e.mustEncode(k))
}

func (e encoded[K]) mustEncode(k K) []byte {
	b, err := e.enc.Encode(k)
	if err != nil {
		panic(fmt.Errorf("equality: encode key %v: %w", k, err))
	}
	return b
}
