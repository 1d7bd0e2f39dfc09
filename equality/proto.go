package equality

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/proto"

	"github.com/unkn0wn-root/oncecache/codec"
)

type protoMessages[T proto.Message] struct {
	enc codec.Protobuf[T]
}

// Proto compares protobuf messages with proto.Equal and hashes their
// deterministic wire encoding.
func Proto[T proto.Message]() Comparer[T] {
	return protoMessages[T]{enc: codec.NewProtobuf[T]()}
}

func (p protoMessages[T]) Equal(a, b T) bool { return proto.Equal(a, b) }

func (p protoMessages[T]) Hash(k T) uint64 {
	b, err := p.enc.Encode(k)
	if err != nil {
		panic(fmt.Errorf("equality: marshal proto key: %w", err))
	}
	return xxhash.Sum64(b)
}
