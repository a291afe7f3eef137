package transport

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/go-drift/renderbridge/pkg/render"
)

// HostKind identifies a notification sent to the native side.
type HostKind uint8

const (
	HostCreateChannel HostKind = 0x20 + iota
	HostRootSize
	HostEvent
	HostCallback
)

func (k HostKind) String() string {
	switch k {
	case HostCreateChannel:
		return "createChannel"
	case HostRootSize:
		return "rootSize"
	case HostEvent:
		return "event"
	case HostCallback:
		return "callback"
	default:
		return fmt.Sprintf("host(%d)", uint8(k))
	}
}

const (
	flagCapture byte = 1 << iota
	flagBubble
)

// HostMessage is one render.Host call in transport-neutral form.
type HostMessage struct {
	Kind      HostKind
	RuntimeID int64

	// Density is set for HostCreateChannel.
	Density float32
	// Width and Height are set for HostRootSize, in dp.
	Width  float32
	Height float32

	// NodeID, Name and the flags describe a HostEvent.
	NodeID     int32
	Name       string
	UseCapture bool
	UseBubble  bool

	// Result and CallbackID complete a HostCallback; Name holds the
	// function name.
	Result     render.PromiseCode
	CallbackID string

	// Payload is the encoded params, empty when absent.
	Payload []byte
}

// Deliver replays m on h.
func (m *HostMessage) Deliver(h render.Host) {
	switch m.Kind {
	case HostCreateChannel:
		h.CreateChannel(m.RuntimeID, m.Density)
	case HostRootSize:
		h.NotifyRootSizeChanged(m.RuntimeID, m.Width, m.Height)
	case HostEvent:
		h.SendEvent(m.RuntimeID, m.NodeID, m.Name, m.Payload, 0, len(m.Payload), m.UseCapture, m.UseBubble)
	case HostCallback:
		h.SendCallback(m.RuntimeID, m.Result, m.Name, m.CallbackID, m.Payload, 0, len(m.Payload))
	}
}

// AppendHostMessage appends the frame for m.
func AppendHostMessage(dst []byte, m *HostMessage) []byte {
	dst = append(dst, byte(m.Kind))
	dst = binary.BigEndian.AppendUint64(dst, uint64(m.RuntimeID))
	switch m.Kind {
	case HostCreateChannel:
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m.Density))
	case HostRootSize:
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m.Width))
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m.Height))
	case HostEvent:
		dst = binary.BigEndian.AppendUint32(dst, uint32(m.NodeID))
		dst = appendString(dst, m.Name)
		var flags byte
		if m.UseCapture {
			flags |= flagCapture
		}
		if m.UseBubble {
			flags |= flagBubble
		}
		dst = append(dst, flags)
		dst = append(dst, m.Payload...)
	case HostCallback:
		dst = append(dst, byte(m.Result))
		dst = appendString(dst, m.Name)
		dst = appendString(dst, m.CallbackID)
		dst = append(dst, m.Payload...)
	}
	return dst
}

// ParseHostMessage decodes a host frame. The payload aliases frame.
func ParseHostMessage(frame []byte) (HostMessage, error) {
	r := frameReader{buf: frame}
	m := HostMessage{Kind: HostKind(r.u8()), RuntimeID: r.i64()}
	switch m.Kind {
	case HostCreateChannel:
		m.Density = r.f32()
	case HostRootSize:
		m.Width = r.f32()
		m.Height = r.f32()
	case HostEvent:
		m.NodeID = int32(r.u32())
		m.Name = r.str()
		flags := r.u8()
		m.UseCapture = flags&flagCapture != 0
		m.UseBubble = flags&flagBubble != 0
		if r.err == nil {
			m.Payload = r.rest()
		}
	case HostCallback:
		m.Result = render.PromiseCode(r.u8())
		m.Name = r.str()
		m.CallbackID = r.str()
		if r.err == nil {
			m.Payload = r.rest()
		}
	default:
		if r.err == nil {
			return m, fmt.Errorf("%w: unknown host kind %d", ErrMalformedFrame, m.Kind)
		}
	}
	if r.err != nil {
		return m, r.err
	}
	if r.remaining() != 0 {
		return m, fmt.Errorf("%w: %d trailing bytes after %s", ErrMalformedFrame, r.remaining(), m.Kind)
	}
	return m, nil
}

// Hub implements render.Host by encoding every call as a host frame and
// fanning it out to subscribers. Slow subscribers lose frames rather than
// stall the provider.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Subscribe returns a channel of host frames and a function that ends the
// subscription.
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) publish(m *HostMessage) {
	frame := AppendHostMessage(nil, m)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
			logging.Logger().Warn("dropping host frame for slow subscriber",
				"kind", m.Kind.String(), "runtime", m.RuntimeID)
		}
	}
}

func (h *Hub) CreateChannel(runtimeID int64, density float32) {
	h.publish(&HostMessage{Kind: HostCreateChannel, RuntimeID: runtimeID, Density: density})
}

func (h *Hub) NotifyRootSizeChanged(runtimeID int64, width, height float32) {
	h.publish(&HostMessage{Kind: HostRootSize, RuntimeID: runtimeID, Width: width, Height: height})
}

func (h *Hub) SendEvent(runtimeID int64, nodeID int32, eventName string, payload []byte, offset, length int, useCapture, useBubble bool) {
	h.publish(&HostMessage{
		Kind:       HostEvent,
		RuntimeID:  runtimeID,
		NodeID:     nodeID,
		Name:       eventName,
		UseCapture: useCapture,
		UseBubble:  useBubble,
		Payload:    payload[offset : offset+length],
	})
}

func (h *Hub) SendCallback(runtimeID int64, result render.PromiseCode, functionName, callbackID string, payload []byte, offset, length int) {
	h.publish(&HostMessage{
		Kind:       HostCallback,
		RuntimeID:  runtimeID,
		Result:     result,
		Name:       functionName,
		CallbackID: callbackID,
		Payload:    payload[offset : offset+length],
	})
}
