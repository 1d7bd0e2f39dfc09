package codec

import "google.golang.org/protobuf/proto"

// Protobuf marshals messages with deterministic map ordering.
// The zero value is ready to use.
type Protobuf[T proto.Message] struct{}

func NewProtobuf[T proto.Message]() Protobuf[T] {
	return Protobuf[T]{}
}

var deterministic = proto.MarshalOptions{Deterministic: true}

func (Protobuf[T]) Encode(v T) ([]byte, error) {
	return deterministic.Marshal(v)
}
