// Package codec implements the binary value format exchanged with the native
// render manager.
//
// A payload is a header (0xFF followed by a varint format version) and a
// depth-first traversal of one value where every node is prefixed with a
// one-byte tag. The layout is the structured-clone format spoken by the
// scripting engine on the other side of the bridge, restricted to the value
// shapes the DOM protocol uses: null, booleans, numbers, strings, lists and
// key-value mappings.
//
// Reader, writer, [Serializer] and [Deserializer] are designed to be owned by
// a single goroutine and reused across calls; every operation resets the
// cursor it works on, so state never leaks from one payload into the next.
package codec

// Format versions.
const (
	// Version is the version written by Serializer.WriteHeader.
	Version uint32 = 13
	// MinVersion is the oldest version the deserializer accepts.
	MinVersion uint32 = 13
	// MaxVersion is the newest version the deserializer accepts.
	MaxVersion uint32 = 15
)

// MaxDepth bounds container nesting in both directions.
const MaxDepth = 256

// tag identifies the type of the next value in a payload.
type tag byte

const (
	tagVersion       tag = 0xFF
	tagPadding       tag = 0x00
	tagVerifyCount   tag = '?'
	tagTheHole       tag = '-'
	tagUndefined     tag = '_'
	tagNull          tag = '0'
	tagTrue          tag = 'T'
	tagFalse         tag = 'F'
	tagInt32         tag = 'I'
	tagUint32        tag = 'U'
	tagDouble        tag = 'N'
	tagBigInt        tag = 'Z'
	tagUTF8String    tag = 'S'
	tagOneByteString tag = '"'
	tagTwoByteString tag = 'c'
	tagObjectRef     tag = '^'
	tagBeginObject   tag = 'o'
	tagEndObject     tag = '{'
	tagBeginSparse   tag = 'a'
	tagEndSparse     tag = '@'
	tagBeginDense    tag = 'A'
	tagEndDense      tag = '$'
	tagBeginMap      tag = ';'
	tagEndMap        tag = ':'
	tagBeginSet      tag = '\''
	tagEndSet        tag = ','
)

// StringEncoding identifies how string bytes are laid out on the wire.
type StringEncoding uint8

const (
	// Latin1 strings store one byte per code point (tag '"').
	Latin1 StringEncoding = iota
	// UTF16LE strings store two little-endian bytes per code unit (tag 'c').
	UTF16LE
	// UTF8 strings store UTF-8 bytes (tag 'S').
	UTF8
)

func (e StringEncoding) String() string {
	switch e {
	case Latin1:
		return "latin1"
	case UTF16LE:
		return "utf16le"
	case UTF8:
		return "utf8"
	default:
		return "unknown"
	}
}
