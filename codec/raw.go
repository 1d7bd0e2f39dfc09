package codec

// Bytes is an identity encoder for []byte keys.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

// String encodes a Go string as its bytes. No UTF-8 validation is performed.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
