package transport

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-drift/renderbridge/pkg/render"
)

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 64 << 20

const frameHeaderSize = 1 + 8

// Reply status bytes.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// AppendCommand appends the frame for cmd addressed to runtimeID.
func AppendCommand(dst []byte, runtimeID int64, cmd *render.Command) []byte {
	dst = append(dst, byte(cmd.Kind))
	dst = binary.BigEndian.AppendUint64(dst, uint64(runtimeID))
	switch cmd.Kind {
	case render.CommandDeleteNode:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(cmd.IDs)))
		for _, id := range cmd.IDs {
			dst = binary.BigEndian.AppendUint32(dst, uint32(id))
		}
	case render.CommandMeasure:
		dst = binary.BigEndian.AppendUint32(dst, uint32(cmd.NodeID))
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(cmd.Width))
		dst = binary.BigEndian.AppendUint32(dst, uint32(cmd.WidthMode))
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(cmd.Height))
		dst = binary.BigEndian.AppendUint32(dst, uint32(cmd.HeightMode))
	case render.CommandStartBatch, render.CommandEndBatch:
	default:
		dst = binary.BigEndian.AppendUint32(dst, uint32(cmd.NodeID))
		dst = appendString(dst, cmd.FunctionName)
		dst = appendString(dst, cmd.CallbackID)
		if cmd.Length > 0 {
			dst = append(dst, cmd.Payload[cmd.Offset:cmd.Offset+cmd.Length]...)
		}
	}
	return dst
}

// ParseCommand decodes a command frame. The payload region of the returned
// command aliases frame.
func ParseCommand(frame []byte) (int64, render.Command, error) {
	r := frameReader{buf: frame}
	kind := render.CommandKind(r.u8())
	runtimeID := r.i64()
	cmd := render.Command{Kind: kind}
	if r.err != nil {
		return 0, cmd, r.err
	}
	if !kind.Valid() {
		// The body layout is unknown; the kind alone goes to the provider,
		// which rejects it as a protocol error.
		return runtimeID, cmd, nil
	}
	switch kind {
	case render.CommandDeleteNode:
		n := int(r.u32())
		if r.err == nil && n > r.remaining()/4 {
			return 0, cmd, fmt.Errorf("%w: %d ids in %d bytes", ErrMalformedFrame, n, r.remaining())
		}
		cmd.IDs = make([]int32, n)
		for i := range cmd.IDs {
			cmd.IDs[i] = int32(r.u32())
		}
	case render.CommandMeasure:
		cmd.NodeID = int32(r.u32())
		cmd.Width = math.Float32frombits(r.u32())
		cmd.WidthMode = render.MeasureMode(r.u32())
		cmd.Height = math.Float32frombits(r.u32())
		cmd.HeightMode = render.MeasureMode(r.u32())
	case render.CommandStartBatch, render.CommandEndBatch:
	default:
		cmd.NodeID = int32(r.u32())
		cmd.FunctionName = r.str()
		cmd.CallbackID = r.str()
		cmd.Payload = frame
		cmd.Offset = r.off
		cmd.Length = r.remaining()
		r.off = len(frame)
	}
	if r.err != nil {
		return 0, cmd, r.err
	}
	if r.remaining() != 0 {
		return 0, cmd, fmt.Errorf("%w: %d trailing bytes after %s", ErrMalformedFrame, r.remaining(), kind)
	}
	return runtimeID, cmd, nil
}

func appendReply(dst []byte, value int64, err error) []byte {
	if err != nil {
		dst = append(dst, statusError)
		return append(dst, err.Error()...)
	}
	dst = append(dst, statusOK)
	return binary.BigEndian.AppendUint64(dst, uint64(value))
}

func parseReply(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, ErrMalformedFrame
	}
	switch b[0] {
	case statusOK:
		if len(b) != 9 {
			return 0, ErrMalformedFrame
		}
		return int64(binary.BigEndian.Uint64(b[1:])), nil
	case statusError:
		return 0, &RemoteError{Message: string(b[1:])}
	default:
		return 0, fmt.Errorf("%w: reply status %d", ErrMalformedFrame, b[0])
	}
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

// frameReader reads big-endian fields and latches the first short read.
type frameReader struct {
	buf []byte
	off int
	err error
}

func (r *frameReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *frameReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedFrame, n, r.off, r.remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *frameReader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *frameReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *frameReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *frameReader) i64() int64 {
	if b := r.take(8); b != nil {
		return int64(binary.BigEndian.Uint64(b))
	}
	return 0
}

func (r *frameReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *frameReader) str() string {
	n := int(r.u16())
	return string(r.take(n))
}

func (r *frameReader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}
