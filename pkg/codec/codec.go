package codec

import "bytes"

// MessageCodec encodes and decodes whole messages.
type MessageCodec interface {
	// Encode converts a Go value to a self-contained payload.
	Encode(value any) ([]byte, error)

	// Decode converts a payload back to a Go value.
	Decode(data []byte) (any, error)
}

// BinaryCodec implements MessageCodec with the wire format. It allocates a
// fresh serializer or deserializer per call, so unlike the long-lived
// instances owned by a runtime it is safe for concurrent use.
type BinaryCodec struct{}

// Encode serializes value with a header.
func (BinaryCodec) Encode(value any) ([]byte, error) {
	s := NewSerializer()
	s.WriteHeader()
	if err := s.WriteValue(value); err != nil {
		return nil, err
	}
	return bytes.Clone(s.Writer().Bytes()), nil
}

// Decode deserializes a payload. An empty payload decodes to nil.
func (BinaryCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	d := NewDeserializer(nil, nil)
	return d.Decode(data, 0, len(data))
}

// DefaultCodec is the codec used by transports and tools.
var DefaultCodec MessageCodec = BinaryCodec{}
