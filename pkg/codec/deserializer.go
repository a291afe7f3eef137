package codec

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-drift/renderbridge/pkg/errors"
)

// maxSparseLength bounds the declared length of sparse arrays, whose entries
// do not have to be present in the payload.
const maxSparseLength = 1 << 20

// Deserializer reconstructs values from a HeapReader.
//
// A deserializer is long-lived: the owner calls Reset before every payload,
// which forgets back-references and traversal state from the previous one.
// Strings go through the attached StringTable, which outlives individual
// payloads.
// ref is a container seen in the current payload. A container stays open
// until its end tag; references to it before then would form a cycle.
type ref struct {
	value any
	open  bool
}

type Deserializer struct {
	r       *HeapReader
	strings *StringTable
	version uint32
	refs    []ref
	depth   int
}

// NewDeserializer creates a deserializer reading from r. The table may be nil,
// in which case strings are never interned.
func NewDeserializer(r *HeapReader, table *StringTable) *Deserializer {
	return &Deserializer{r: r, strings: table}
}

// SetReader replaces the source reader.
func (d *Deserializer) SetReader(r *HeapReader) {
	d.r = r
}

// StringTable returns the attached string table.
func (d *Deserializer) StringTable() *StringTable {
	return d.strings
}

// Version returns the format version read by the last ReadHeader.
func (d *Deserializer) Version() uint32 {
	return d.version
}

// Reset forgets all per-payload state.
func (d *Deserializer) Reset() {
	clear(d.refs)
	d.refs = d.refs[:0]
	d.depth = 0
	d.version = 0
}

// Decode resets the deserializer, points its reader at
// buf[offset:offset+length] and reads the header and one value.
func (d *Deserializer) Decode(buf []byte, offset, length int) (any, error) {
	if d.r == nil {
		d.r = &HeapReader{}
	}
	if err := d.r.Reset(buf, offset, length); err != nil {
		return nil, err
	}
	d.Reset()
	if err := d.ReadHeader(); err != nil {
		return nil, err
	}
	return d.ReadValue()
}

func (d *Deserializer) fail(op string, cause error) error {
	return &errors.CodecError{Op: op, Offset: d.r.Position(), Err: cause}
}

// ReadHeader reads and validates the version marker.
func (d *Deserializer) ReadHeader() error {
	b, err := d.r.PeekByte()
	if err != nil {
		return err
	}
	if tag(b) != tagVersion {
		return d.fail("codec.ReadHeader", errors.ErrUnsupportedVersion)
	}
	d.r.pos++
	v, err := d.r.ReadVarint()
	if err != nil {
		return err
	}
	if v < uint64(MinVersion) || v > uint64(MaxVersion) {
		return d.fail("codec.ReadHeader", fmt.Errorf("%w: %d", errors.ErrUnsupportedVersion, v))
	}
	d.version = uint32(v)
	return nil
}

// readTag consumes the next tag, skipping padding and count verifications.
func (d *Deserializer) readTag() (tag, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch tag(b) {
		case tagPadding:
			continue
		case tagVerifyCount:
			if _, err := d.r.ReadVarint(); err != nil {
				return 0, err
			}
			continue
		}
		return tag(b), nil
	}
}

// peekTag returns the next tag without consuming it. Padding is consumed.
func (d *Deserializer) peekTag() (tag, error) {
	for {
		b, err := d.r.PeekByte()
		if err != nil {
			return 0, err
		}
		if tag(b) != tagPadding {
			return tag(b), nil
		}
		d.r.pos++
	}
}

// ReadValue reads one value.
func (d *Deserializer) ReadValue() (any, error) {
	t, err := d.readTag()
	if err != nil {
		return nil, err
	}
	return d.readValueForTag(t, LocationValue)
}

func (d *Deserializer) readValueForTag(t tag, loc Location) (any, error) {
	switch t {
	case tagUndefined, tagNull, tagTheHole:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagInt32:
		v, err := d.r.ReadZigZag()
		if err != nil {
			return nil, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, d.fail("codec.ReadInt32", errors.ErrMalformed)
		}
		return v, nil
	case tagUint32:
		v, err := d.r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint32 {
			return nil, d.fail("codec.ReadUint32", errors.ErrMalformed)
		}
		return int64(v), nil
	case tagDouble:
		return d.r.ReadDouble()
	case tagBigInt:
		return d.readBigInt()
	case tagUTF8String:
		return d.readString(UTF8, loc)
	case tagOneByteString:
		return d.readString(Latin1, loc)
	case tagTwoByteString:
		return d.readString(UTF16LE, loc)
	case tagObjectRef:
		return d.readReference()
	case tagBeginObject:
		return d.readObject()
	case tagBeginDense:
		return d.readDense()
	case tagBeginSparse:
		return d.readSparse()
	case tagBeginMap:
		return d.readMap()
	case tagBeginSet:
		return d.readSet()
	}
	return nil, &errors.CodecError{
		Op:     "codec.ReadValue",
		Offset: d.r.Position() - 1,
		Err:    fmt.Errorf("%w: 0x%02x", errors.ErrUnknownTag, byte(t)),
	}
}

func (d *Deserializer) readLength(op string) (int, error) {
	n, err := d.r.ReadVarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.r.Remaining()) {
		return 0, d.fail(op, errors.ErrTruncated)
	}
	return int(n), nil
}

func (d *Deserializer) readString(enc StringEncoding, loc Location) (string, error) {
	n, err := d.readLength("codec.ReadString")
	if err != nil {
		return "", err
	}
	raw, err := d.r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	s, err := d.strings.Lookup(raw, enc, loc)
	if err != nil {
		if ce, ok := err.(*errors.CodecError); ok {
			ce.Offset = d.r.Position() - n
		}
		return "", err
	}
	return s, nil
}

func (d *Deserializer) readBigInt() (int64, error) {
	bitfield, err := d.r.ReadVarint()
	if err != nil {
		return 0, err
	}
	n := bitfield >> 1
	if n > uint64(d.r.Remaining()) {
		return 0, d.fail("codec.ReadBigInt", errors.ErrTruncated)
	}
	digits, err := d.r.ReadBytes(int(n))
	if err != nil {
		return 0, err
	}
	var magnitude uint64
	for i, b := range digits {
		if i >= 8 {
			if b != 0 {
				return 0, d.fail("codec.ReadBigInt", errors.ErrUnsupportedType)
			}
			continue
		}
		magnitude |= uint64(b) << (8 * i)
	}
	if bitfield&1 != 0 {
		if magnitude > 1<<63 {
			return 0, d.fail("codec.ReadBigInt", errors.ErrUnsupportedType)
		}
		return -int64(magnitude), nil
	}
	if magnitude > math.MaxInt64 {
		return 0, d.fail("codec.ReadBigInt", errors.ErrUnsupportedType)
	}
	return int64(magnitude), nil
}

func (d *Deserializer) readReference() (any, error) {
	id, err := d.r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if id >= uint64(len(d.refs)) {
		return nil, d.fail("codec.ReadReference", errors.ErrMalformed)
	}
	if d.refs[id].open {
		return nil, d.fail("codec.ReadReference", fmt.Errorf("%w: cyclic reference to object %d", errors.ErrMalformed, id))
	}
	return d.refs[id].value, nil
}

// openRef assigns the next reference id to a container being read.
func (d *Deserializer) openRef(v any) int {
	d.refs = append(d.refs, ref{value: v, open: true})
	return len(d.refs) - 1
}

func (d *Deserializer) closeRef(id int, v any) {
	d.refs[id] = ref{value: v}
}

func (d *Deserializer) enter() error {
	d.depth++
	if d.depth > MaxDepth {
		return d.fail("codec.ReadValue", errors.ErrDepthExceeded)
	}
	return nil
}

func (d *Deserializer) leave() {
	d.depth--
}

// readKey reads a property key. Keys are strings or numbers.
func (d *Deserializer) readKey(loc Location) (any, error) {
	t, err := d.readTag()
	if err != nil {
		return nil, err
	}
	switch t {
	case tagUTF8String, tagOneByteString, tagTwoByteString, tagInt32, tagUint32, tagDouble:
		return d.readValueForTag(t, loc)
	}
	return nil, d.fail("codec.ReadKey", fmt.Errorf("%w: key tag 0x%02x", errors.ErrMalformed, byte(t)))
}

// readProperties reads key/value pairs until the end tag, which it consumes,
// and returns the number of pairs read.
func (d *Deserializer) readProperties(end tag, set func(key, value any)) (uint64, error) {
	var n uint64
	for {
		t, err := d.peekTag()
		if err != nil {
			return 0, err
		}
		if t == end {
			d.r.pos++
			return n, nil
		}
		key, err := d.readKey(LocationObjectKey)
		if err != nil {
			return 0, err
		}
		value, err := d.ReadValue()
		if err != nil {
			return 0, err
		}
		set(key, value)
		n++
	}
}

func (d *Deserializer) verifyCount(op string, want uint64) error {
	got, err := d.r.ReadVarint()
	if err != nil {
		return err
	}
	if got != want {
		return d.fail(op, fmt.Errorf("%w: count %d, expected %d", errors.ErrMalformed, got, want))
	}
	return nil
}

func (d *Deserializer) readObject() (any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()
	obj := make(map[string]any)
	id := d.openRef(obj)
	n, err := d.readProperties(tagEndObject, func(key, value any) {
		obj[keyString(key)] = value
	})
	if err != nil {
		return nil, err
	}
	if err := d.verifyCount("codec.ReadObject", n); err != nil {
		return nil, err
	}
	d.closeRef(id, obj)
	return obj, nil
}

func (d *Deserializer) readDense() (any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()
	length, err := d.readLength("codec.ReadDenseArray")
	if err != nil {
		return nil, err
	}
	arr := make([]any, length)
	id := d.openRef(arr)
	for i := range arr {
		t, err := d.peekTag()
		if err != nil {
			return nil, err
		}
		if t == tagTheHole {
			d.r.pos++
			continue
		}
		if arr[i], err = d.ReadValue(); err != nil {
			return nil, err
		}
	}
	n, err := d.readProperties(tagEndDense, func(key, value any) {
		if i, ok := keyIndex(key, length); ok {
			arr[i] = value
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.verifyCount("codec.ReadDenseArray", n); err != nil {
		return nil, err
	}
	if err := d.verifyCount("codec.ReadDenseArray", uint64(length)); err != nil {
		return nil, err
	}
	d.closeRef(id, arr)
	return arr, nil
}

func (d *Deserializer) readSparse() (any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()
	declared, err := d.r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if declared > maxSparseLength {
		return nil, d.fail("codec.ReadSparseArray", fmt.Errorf("%w: length %d", errors.ErrMalformed, declared))
	}
	length := int(declared)
	arr := make([]any, length)
	id := d.openRef(arr)
	n, err := d.readProperties(tagEndSparse, func(key, value any) {
		if i, ok := keyIndex(key, length); ok {
			arr[i] = value
		}
	})
	if err != nil {
		return nil, err
	}
	if err := d.verifyCount("codec.ReadSparseArray", n); err != nil {
		return nil, err
	}
	if err := d.verifyCount("codec.ReadSparseArray", declared); err != nil {
		return nil, err
	}
	d.closeRef(id, arr)
	return arr, nil
}

func (d *Deserializer) readMap() (any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()
	m := make(map[any]any)
	id := d.openRef(m)
	var n uint64
	for {
		t, err := d.peekTag()
		if err != nil {
			return nil, err
		}
		if t == tagEndMap {
			d.r.pos++
			break
		}
		keyTag, err := d.readTag()
		if err != nil {
			return nil, err
		}
		key, err := d.readValueForTag(keyTag, LocationMapKey)
		if err != nil {
			return nil, err
		}
		if !isScalar(key) {
			return nil, d.fail("codec.ReadMap", fmt.Errorf("%w: map key %T", errors.ErrUnsupportedType, key))
		}
		value, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		m[key] = value
		n += 2
	}
	if err := d.verifyCount("codec.ReadMap", n); err != nil {
		return nil, err
	}
	d.closeRef(id, m)
	return m, nil
}

func (d *Deserializer) readSet() (any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()
	id := d.openRef(nil)
	var items []any
	for {
		t, err := d.peekTag()
		if err != nil {
			return nil, err
		}
		if t == tagEndSet {
			d.r.pos++
			break
		}
		v, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := d.verifyCount("codec.ReadSet", uint64(len(items))); err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	d.closeRef(id, items)
	return items, nil
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	}
	return fmt.Sprint(key)
}

func keyIndex(key any, length int) (int, bool) {
	var i int64
	switch k := key.(type) {
	case int64:
		i = k
	case float64:
		if k != math.Trunc(k) {
			return 0, false
		}
		i = int64(k)
	case string:
		v, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return 0, false
		}
		i = v
	default:
		return 0, false
	}
	if i < 0 || i >= int64(length) {
		return 0, false
	}
	return int(i), true
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return true
	}
	return false
}
