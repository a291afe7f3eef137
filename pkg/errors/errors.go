// Package errors provides structured error handling for the render bridge.
//
// Failures are classified into three domain tiers that mirror where they
// happen on the command path:
//
//   - [CodecError]: a payload could not be decoded or a value could not be
//     encoded (malformed tag, truncated buffer, unsupported version).
//   - [ProtocolError]: the command stream itself is out of sequence
//     (duplicate batch marker, unknown command kind, destroyed runtime).
//   - [DispatchError]: the consuming tree-mutation logic rejected a command.
//
// Errors are never retried. They are wrapped in a [BridgeError] envelope and
// reported to the runtime's exception handler, after which the channel
// continues with the next command.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindCodec indicates a payload decode failure.
	KindCodec
	// KindProtocol indicates an out-of-sequence or unrecognized command.
	KindProtocol
	// KindDispatch indicates a failure in the consuming delegate.
	KindDispatch
	// KindEncode indicates an outbound event or callback could not be encoded.
	KindEncode
	// KindTransport indicates a process-boundary transport failure.
	KindTransport
	// KindInit indicates an initialization error.
	KindInit
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindCodec:
		return "codec"
	case KindProtocol:
		return "protocol"
	case KindDispatch:
		return "dispatch"
	case KindEncode:
		return "encode"
	case KindTransport:
		return "transport"
	case KindInit:
		return "init"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Codec failure causes.
var (
	ErrTruncated          = errors.New("buffer truncated")
	ErrUnknownTag         = errors.New("unknown tag")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrMalformed          = errors.New("malformed payload")
	ErrDepthExceeded      = errors.New("nesting depth exceeded")
	ErrUnsupportedType    = errors.New("unsupported value type")
)

// Protocol failure causes.
var (
	ErrBatchAlreadyStarted = errors.New("batch already started")
	ErrNoActiveBatch       = errors.New("no active batch")
	ErrUnknownCommand      = errors.New("unknown command kind")
	ErrDestroyed           = errors.New("runtime destroyed")
	ErrUnknownRuntime      = errors.New("unknown runtime")
)

// CodecError reports a malformed, truncated or unsupported payload.
type CodecError struct {
	// Op is the codec operation (e.g., "codec.ReadValue").
	Op string
	// Offset is the reader or writer position where the failure was detected.
	Offset int
	// Err is the underlying cause, usually one of the codec sentinels.
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a command that arrived out of sequence or could not
// be routed.
type ProtocolError struct {
	// Command is the boundary method name (e.g., "endBatch").
	Command string
	// Err is the underlying cause.
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on %s: %v", e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DispatchError reports a failure raised by the consuming delegate.
type DispatchError struct {
	// Command is the boundary method name.
	Command string
	// NodeID is the target node, or zero when the command has no single target.
	NodeID int32
	// Err is the error returned by the delegate.
	Err error
}

func (e *DispatchError) Error() string {
	if e.NodeID != 0 {
		return fmt.Sprintf("dispatch %s node=%d: %v", e.Command, e.NodeID, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Command, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// BridgeError is the envelope handed to error handlers.
type BridgeError struct {
	// Op is the operation that failed (e.g., "render.UpdateNode").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// RuntimeID is the runtime instance the error belongs to, if any.
	RuntimeID int64
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *BridgeError) Error() string {
	if e.RuntimeID != 0 {
		return fmt.Sprintf("%s [%s] runtime=%d: %v", e.Op, e.Kind, e.RuntimeID, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// KindOf classifies err by the first domain error found in its chain.
func KindOf(err error) ErrorKind {
	var (
		be *BridgeError
		ce *CodecError
		pe *ProtocolError
		de *DispatchError
		pa *PanicError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &be):
		return be.Kind
	case errors.As(err, &ce):
		return KindCodec
	case errors.As(err, &pe):
		return KindProtocol
	case errors.As(err, &de):
		return KindDispatch
	case errors.As(err, &pa):
		return KindPanic
	default:
		return KindUnknown
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "render.CreateNode").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler receives errors reported by the bridge.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *BridgeError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
