package render

// MeasureMode is the flex measure mode applied to one dimension.
type MeasureMode int32

const (
	// MeasureModeUndefined leaves the dimension unconstrained.
	MeasureModeUndefined MeasureMode = iota
	// MeasureModeExactly requires the node to take exactly the given size.
	MeasureModeExactly
	// MeasureModeAtMost lets the node take up to the given size.
	MeasureModeAtMost
)

func (m MeasureMode) String() string {
	switch m {
	case MeasureModeUndefined:
		return "undefined"
	case MeasureModeExactly:
		return "exactly"
	case MeasureModeAtMost:
		return "atMost"
	default:
		return "unknown"
	}
}

// PromiseCode is the outcome reported with a promise callback.
type PromiseCode int32

const (
	// PromiseResolve resolves the promise with the callback params.
	PromiseResolve PromiseCode = iota
	// PromiseReject rejects the promise with the callback params.
	PromiseReject
)

func (c PromiseCode) String() string {
	switch c {
	case PromiseResolve:
		return "resolve"
	case PromiseReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Delegate consumes decoded commands and applies them to the render tree.
//
// Methods are called on the provider's goroutine. Returned errors and panics
// are wrapped in a DispatchError and passed back to HandleRenderError.
type Delegate interface {
	// CreateNode instantiates the nodes described by args.
	CreateNode(args []any) error
	// UpdateNode mutates existing nodes.
	UpdateNode(args []any) error
	// DeleteNode removes the nodes with the given ids.
	DeleteNode(ids []int32) error
	// UpdateLayout applies computed layout to nodes.
	UpdateLayout(args []any) error
	// UpdateEventListener adds or removes event listeners.
	UpdateEventListener(args []any) error
	// CallUIFunction invokes an imperative function on a node. callbackID is
	// empty when the caller does not expect a promise callback.
	CallUIFunction(nodeID int32, functionName, callbackID string, args []any) error
	// Measure returns the size of a node under the given constraints.
	Measure(nodeID int32, width float32, widthMode MeasureMode, height float32, heightMode MeasureMode) (float32, float32)
	// StartBatch marks the beginning of an atomic group of commands.
	StartBatch()
	// EndBatch marks the end of the group opened by StartBatch.
	EndBatch()
	// HandleRenderError receives every error raised while processing
	// commands, events and callbacks.
	HandleRenderError(err error)
}

// Host is the native side of the bridge.
//
// Payload slices are only valid for the duration of the call; a host that
// keeps them must copy payload[offset:offset+length].
type Host interface {
	// CreateChannel is called once when the provider is created.
	CreateChannel(runtimeID int64, density float32)
	// NotifyRootSizeChanged reports a new root size in dp.
	NotifyRootSizeChanged(runtimeID int64, width, height float32)
	// SendEvent delivers a UI event. An absent params object is sent as a
	// zero-length region.
	SendEvent(runtimeID int64, nodeID int32, eventName string, payload []byte, offset, length int, useCapture, useBubble bool)
	// SendCallback resolves or rejects the promise of a UI function call.
	SendCallback(runtimeID int64, result PromiseCode, functionName, callbackID string, payload []byte, offset, length int)
}
