package codec

import (
	"encoding/binary"
	"math"

	"github.com/go-drift/renderbridge/pkg/errors"
)

// HeapReader reads wire primitives from a sub-range of a heap byte slice.
//
// The reader never looks outside [offset, offset+length) of the slice it was
// reset with. It is reused across payloads: Reset rewinds the cursor and
// forgets the previous buffer.
type HeapReader struct {
	buf   []byte
	start int
	pos   int
	end   int
}

// NewHeapReader returns a reader positioned at the start of data.
func NewHeapReader(data []byte) *HeapReader {
	r := &HeapReader{}
	r.buf, r.end = data, len(data)
	return r
}

// Reset points the reader at buf[offset:offset+length] and rewinds it.
func (r *HeapReader) Reset(buf []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset > len(buf) || length > len(buf)-offset {
		r.buf, r.start, r.pos, r.end = nil, 0, 0, 0
		return &errors.CodecError{Op: "codec.Reset", Offset: offset, Err: errors.ErrTruncated}
	}
	r.buf = buf
	r.start = offset
	r.pos = offset
	r.end = offset + length
	return nil
}

// Position returns the cursor relative to the start of the valid region.
func (r *HeapReader) Position() int {
	return r.pos - r.start
}

// Remaining returns the number of unread bytes.
func (r *HeapReader) Remaining() int {
	return r.end - r.pos
}

func (r *HeapReader) truncated(op string) error {
	return &errors.CodecError{Op: op, Offset: r.Position(), Err: errors.ErrTruncated}
}

// ReadByte consumes one byte.
func (r *HeapReader) ReadByte() (byte, error) {
	if r.pos >= r.end {
		return 0, r.truncated("codec.ReadByte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *HeapReader) PeekByte() (byte, error) {
	if r.pos >= r.end {
		return 0, r.truncated("codec.PeekByte")
	}
	return r.buf[r.pos], nil
}

// ReadVarint consumes a base-128 unsigned varint.
func (r *HeapReader) ReadVarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:r.end])
	switch {
	case n == 0:
		return 0, r.truncated("codec.ReadVarint")
	case n < 0:
		return 0, &errors.CodecError{Op: "codec.ReadVarint", Offset: r.Position(), Err: errors.ErrMalformed}
	}
	r.pos += n
	return v, nil
}

// ReadZigZag consumes a zig-zag encoded signed varint.
func (r *HeapReader) ReadZigZag() (int64, error) {
	u, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadDouble consumes a little-endian IEEE 754 double.
func (r *HeapReader) ReadDouble() (float64, error) {
	if r.end-r.pos < 8 {
		return 0, r.truncated("codec.ReadDouble")
	}
	bits := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadBytes consumes n bytes and returns them without copying. The result
// aliases the reader's buffer.
func (r *HeapReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.end-r.pos {
		return nil, r.truncated("codec.ReadBytes")
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}
