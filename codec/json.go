package codec

import "encoding/json"

// JSON encodes with encoding/json, which emits struct fields in declaration
// order and map keys sorted. The zero value is ready to use.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
