// Package codec turns keys into canonical bytes.
//
// Encoders here back equality.Encoded: two keys are the same cache key when
// their encodings are byte-for-byte identical, so every encoder must be
// deterministic (stable field and map-key ordering).
package codec

// Encoder encodes values of type V to bytes.
type Encoder[V any] interface {
	Encode(V) ([]byte, error)
}
