package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes with fxamacker/cbor using RFC 8949 Core Deterministic
// encoding. The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// Time values are encoded as RFC3339Nano.
type CBOR[V any] struct {
	enc cbor.EncMode
}

var _ Encoder[struct{}] = CBOR[struct{}]{}

// NewCBOR constructs a deterministic CBOR encoder.
func NewCBOR[V any]() (CBOR[V], error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR[V any]() CBOR[V] {
	c, err := NewCBOR[V]()
	if err != nil {
		panic(err)
	}
	return c
}

// Encode encodes v using the deterministic EncMode.
func (c CBOR[V]) Encode(v V) ([]byte, error) {
	return c.enc.Marshal(v)
}
