package codec

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"unicode/utf8"

	"github.com/go-drift/renderbridge/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Serializer writes values in wire format to a HeapWriter.
//
// Usage mirrors the native side: SetWriter once, then for every payload
// Reset, WriteHeader and WriteValue.
type Serializer struct {
	w       *HeapWriter
	depth   int
	version uint32

	latin1 *encoding.Encoder
	utf16  *encoding.Encoder
}

// NewSerializer creates a serializer with its own writer.
func NewSerializer() *Serializer {
	return &Serializer{w: NewHeapWriter(), version: Version}
}

// SetVersion selects the header version for later payloads. Only versions
// the deserializer accepts may be written.
func (s *Serializer) SetVersion(v uint32) error {
	if v < MinVersion || v > MaxVersion {
		return &errors.CodecError{Op: "codec.SetVersion", Err: fmt.Errorf("%w: %d", errors.ErrUnsupportedVersion, v)}
	}
	s.version = v
	return nil
}

// SetWriter replaces the destination writer.
func (s *Serializer) SetWriter(w *HeapWriter) {
	s.w = w
}

// Writer returns the destination writer.
func (s *Serializer) Writer() *HeapWriter {
	return s.w
}

// Reset clears the writer and any traversal state.
func (s *Serializer) Reset() {
	s.w.Reset()
	s.depth = 0
}

// WriteHeader writes the version marker.
func (s *Serializer) WriteHeader() {
	s.w.writeTag(tagVersion)
	version := s.version
	if version == 0 {
		version = Version
	}
	s.w.WriteVarint(uint64(version))
}

// WriteValue appends v. On error the writer content is undefined and the
// caller is expected to Reset before reuse.
func (s *Serializer) WriteValue(v any) error {
	switch x := v.(type) {
	case nil:
		s.w.writeTag(tagNull)
	case bool:
		if x {
			s.w.writeTag(tagTrue)
		} else {
			s.w.writeTag(tagFalse)
		}
	case int:
		s.writeInt(int64(x))
	case int8:
		s.writeInt(int64(x))
	case int16:
		s.writeInt(int64(x))
	case int32:
		s.writeInt(int64(x))
	case int64:
		s.writeInt(x)
	case uint:
		s.writeUint(uint64(x))
	case uint8:
		s.writeInt(int64(x))
	case uint16:
		s.writeInt(int64(x))
	case uint32:
		s.writeInt(int64(x))
	case uint64:
		s.writeUint(x)
	case float32:
		s.writeDouble(float64(x))
	case float64:
		s.writeDouble(x)
	case string:
		return s.writeString(x)
	case []any:
		return s.writeDense(len(x), func(i int) any { return x[i] })
	case map[string]any:
		return s.writeObject(x)
	case map[any]any:
		return s.writeMap(x)
	default:
		return s.writeReflect(v)
	}
	return nil
}

func (s *Serializer) writeInt(v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		s.w.writeTag(tagInt32)
		s.w.WriteZigZag(v)
		return
	}
	s.writeBigInt(v < 0, absUint64(v))
}

func (s *Serializer) writeUint(v uint64) {
	switch {
	case v <= math.MaxInt32:
		s.writeInt(int64(v))
	case v <= math.MaxInt64:
		s.writeBigInt(false, v)
	default:
		s.writeDouble(float64(v))
	}
}

func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

// writeBigInt writes a BigInt whose magnitude fits in 64 bits. The bitfield
// carries the sign in bit 0 and the digit byte length above it; digits are
// little-endian and padded to a multiple of 8 bytes.
func (s *Serializer) writeBigInt(negative bool, magnitude uint64) {
	s.w.writeTag(tagBigInt)
	bitfield := uint64(8) << 1
	if negative {
		bitfield |= 1
	}
	s.w.WriteVarint(bitfield)
	for i := 0; i < 8; i++ {
		s.w.WriteByte(byte(magnitude >> (8 * i)))
	}
}

func (s *Serializer) writeDouble(v float64) {
	s.w.writeTag(tagDouble)
	s.w.WriteDouble(v)
}

// writeString picks the narrowest string tag. Invalid UTF-8 cannot be
// transcoded without loss, so it is written as raw UTF-8 bytes.
func (s *Serializer) writeString(v string) error {
	if !utf8.ValidString(v) {
		s.w.writeTag(tagUTF8String)
		s.w.WriteVarint(uint64(len(v)))
		s.w.WriteString(v)
		return nil
	}
	latin1, ascii := true, true
	for _, r := range v {
		if r >= utf8.RuneSelf {
			ascii = false
		}
		if r > 0xFF {
			latin1 = false
			break
		}
	}
	switch {
	case ascii:
		s.w.writeTag(tagOneByteString)
		s.w.WriteVarint(uint64(len(v)))
		s.w.WriteString(v)
		return nil
	case latin1:
		if s.latin1 == nil {
			s.latin1 = charmap.ISO8859_1.NewEncoder()
		}
		out, err := s.latin1.String(v)
		if err != nil {
			return &errors.CodecError{Op: "codec.WriteString", Offset: s.w.Len(), Err: err}
		}
		s.w.writeTag(tagOneByteString)
		s.w.WriteVarint(uint64(len(out)))
		s.w.WriteString(out)
		return nil
	default:
		if s.utf16 == nil {
			s.utf16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
		}
		out, err := s.utf16.String(v)
		if err != nil {
			return &errors.CodecError{Op: "codec.WriteString", Offset: s.w.Len(), Err: err}
		}
		// Two-byte content starts on an even offset.
		if (s.w.Len()+1+varintLen(uint64(len(out))))&1 != 0 {
			s.w.writeTag(tagPadding)
		}
		s.w.writeTag(tagTwoByteString)
		s.w.WriteVarint(uint64(len(out)))
		s.w.WriteString(out)
		return nil
	}
}

func varintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func (s *Serializer) enter() error {
	s.depth++
	if s.depth > MaxDepth {
		return &errors.CodecError{Op: "codec.WriteValue", Offset: s.w.Len(), Err: errors.ErrDepthExceeded}
	}
	return nil
}

func (s *Serializer) leave() {
	s.depth--
}

func (s *Serializer) writeDense(n int, at func(int) any) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()
	s.w.writeTag(tagBeginDense)
	s.w.WriteVarint(uint64(n))
	for i := 0; i < n; i++ {
		if err := s.WriteValue(at(i)); err != nil {
			return err
		}
	}
	s.w.writeTag(tagEndDense)
	s.w.WriteVarint(0)
	s.w.WriteVarint(uint64(n))
	return nil
}

func (s *Serializer) writeObject(m map[string]any) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()
	s.w.writeTag(tagBeginObject)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if err := s.writeString(k); err != nil {
			return err
		}
		if err := s.WriteValue(m[k]); err != nil {
			return err
		}
	}
	s.w.writeTag(tagEndObject)
	s.w.WriteVarint(uint64(len(m)))
	return nil
}

func (s *Serializer) writeMap(m map[any]any) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()
	s.w.writeTag(tagBeginMap)
	for k, v := range m {
		if err := s.WriteValue(k); err != nil {
			return err
		}
		if err := s.WriteValue(v); err != nil {
			return err
		}
	}
	s.w.writeTag(tagEndMap)
	s.w.WriteVarint(uint64(2 * len(m)))
	return nil
}

// writeReflect handles typed slices and maps such as []string or
// map[string]float64.
func (s *Serializer) writeReflect(v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return s.WriteValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s.writeInt(rv.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		s.writeUint(rv.Uint())
		return nil
	case reflect.Float32, reflect.Float64:
		s.writeDouble(rv.Float())
		return nil
	case reflect.String:
		return s.writeString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			s.w.writeTag(tagNull)
			return nil
		}
		return s.writeDense(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.IsNil() {
			s.w.writeTag(tagNull)
			return nil
		}
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return s.writeObject(m)
		}
		m := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().Interface()] = iter.Value().Interface()
		}
		return s.writeMap(m)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			s.w.writeTag(tagNull)
			return nil
		}
		if err := s.enter(); err != nil {
			return err
		}
		defer s.leave()
		return s.WriteValue(rv.Elem().Interface())
	}
	return &errors.CodecError{
		Op:     "codec.WriteValue",
		Offset: s.w.Len(),
		Err:    fmt.Errorf("%w: %T", errors.ErrUnsupportedType, v),
	}
}
