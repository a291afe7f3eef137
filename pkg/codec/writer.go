package codec

import (
	"encoding/binary"
	"math"
)

const defaultWriterCapacity = 1024

// HeapWriter appends wire primitives to a growable heap byte slice.
//
// Reset truncates the content but keeps the backing array, so a long-lived
// writer stops allocating once it has seen its largest payload.
type HeapWriter struct {
	buf []byte
}

// NewHeapWriter returns an empty writer with a small initial capacity.
func NewHeapWriter() *HeapWriter {
	return &HeapWriter{buf: make([]byte, 0, defaultWriterCapacity)}
}

// Reset discards the written content.
func (w *HeapWriter) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the number of bytes written since the last Reset.
func (w *HeapWriter) Len() int {
	return len(w.buf)
}

// Bytes returns the written content. The slice aliases the writer's buffer
// and is only valid until the next write or Reset.
func (w *HeapWriter) Bytes() []byte {
	return w.buf
}

// Chunked describes the written region as (buffer, offset, length), the
// shape expected by the native side.
func (w *HeapWriter) Chunked() ([]byte, int, int) {
	return w.buf, 0, len(w.buf)
}

// WriteByte appends one byte.
func (w *HeapWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *HeapWriter) writeTag(t tag) {
	w.buf = append(w.buf, byte(t))
}

// WriteVarint appends a base-128 unsigned varint.
func (w *HeapWriter) WriteVarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteZigZag appends a zig-zag encoded signed varint.
func (w *HeapWriter) WriteZigZag(v int64) {
	w.WriteVarint(uint64(v<<1) ^ uint64(v>>63))
}

// WriteDouble appends a little-endian IEEE 754 double.
func (w *HeapWriter) WriteDouble(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteBytes appends raw bytes.
func (w *HeapWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteString appends the bytes of s.
func (w *HeapWriter) WriteString(s string) {
	w.buf = append(w.buf, s...)
}
