package codec

import (
	"sync/atomic"
	"unicode/utf8"

	"github.com/go-drift/renderbridge/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Location tells the string table where a string was found in the payload.
type Location uint8

const (
	// LocationValue is a string used as a plain value.
	LocationValue Location = iota
	// LocationObjectKey is a property name of an object.
	LocationObjectKey
	// LocationMapKey is a key of a map.
	LocationMapKey
)

// Interning limits.
const (
	DefaultMaxEntries = 4096
	maxKeyLength      = 256
	maxValueLength    = 32
)

// StringTable interns decoded strings so that the property names and short
// enum-like values repeated across DOM payloads are transcoded and allocated
// once per runtime.
//
// A table belongs to one runtime and is used from that runtime's goroutine
// only. Counters may be read concurrently through Stats.
type StringTable struct {
	maxEntries int
	entries    [3]map[string]string

	latin1 *encoding.Decoder
	utf16  *encoding.Decoder

	size     atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	released atomic.Bool
}

// StringTableStats is a snapshot of table counters.
type StringTableStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewStringTable creates a table that stops interning once it holds
// maxEntries strings. A non-positive maxEntries selects DefaultMaxEntries.
func NewStringTable(maxEntries int) *StringTable {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	t := &StringTable{maxEntries: maxEntries}
	t.reset()
	return t
}

func (t *StringTable) reset() {
	for i := range t.entries {
		t.entries[i] = make(map[string]string)
	}
	t.size.Store(0)
}

// Lookup returns the string for raw, decoding it with enc on a miss.
func (t *StringTable) Lookup(raw []byte, enc StringEncoding, loc Location) (string, error) {
	if t == nil || !t.internable(len(raw), loc) {
		return decodeString(raw, enc, nil, nil)
	}
	m := t.entries[enc]
	if s, ok := m[string(raw)]; ok {
		t.hits.Add(1)
		return s, nil
	}
	t.misses.Add(1)
	if t.latin1 == nil {
		t.latin1 = charmap.ISO8859_1.NewDecoder()
		t.utf16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	}
	s, err := decodeString(raw, enc, t.latin1, t.utf16)
	if err != nil {
		return "", err
	}
	if t.size.Load() < int64(t.maxEntries) {
		m[string(raw)] = s
		t.size.Add(1)
	}
	return s, nil
}

func (t *StringTable) internable(n int, loc Location) bool {
	if t.released.Load() {
		return false
	}
	if loc == LocationValue {
		return n <= maxValueLength
	}
	return n <= maxKeyLength
}

// Len returns the number of interned strings.
func (t *StringTable) Len() int {
	return int(t.size.Load())
}

// Stats returns a snapshot of the table counters.
func (t *StringTable) Stats() StringTableStats {
	return StringTableStats{
		Entries: t.size.Load(),
		Hits:    t.hits.Load(),
		Misses:  t.misses.Load(),
	}
}

// Release drops every interned string. Later lookups still decode correctly
// but no longer intern.
func (t *StringTable) Release() {
	t.released.Store(true)
	t.reset()
}

// decodeString transcodes raw wire bytes to a Go string. Nil decoders are
// created on demand.
func decodeString(raw []byte, enc StringEncoding, latin1, utf16 *encoding.Decoder) (string, error) {
	switch enc {
	case Latin1:
		if isASCII(raw) {
			return string(raw), nil
		}
		if latin1 == nil {
			latin1 = charmap.ISO8859_1.NewDecoder()
		}
		out, err := latin1.Bytes(raw)
		if err != nil {
			return "", &errors.CodecError{Op: "codec.ReadString", Err: err}
		}
		return string(out), nil
	case UTF16LE:
		if len(raw)%2 != 0 {
			return "", &errors.CodecError{Op: "codec.ReadString", Err: errors.ErrMalformed}
		}
		if utf16 == nil {
			utf16 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		}
		out, err := utf16.Bytes(raw)
		if err != nil {
			return "", &errors.CodecError{Op: "codec.ReadString", Err: err}
		}
		return string(out), nil
	case UTF8:
		return string(raw), nil
	default:
		return "", &errors.CodecError{Op: "codec.ReadString", Err: errors.ErrUnknownTag}
	}
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
