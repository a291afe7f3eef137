package render

import (
	"bytes"
	stderrors "errors"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/errors"
)

// --- Test helpers ---

type quietHandler struct{}

func (quietHandler) HandleError(*errors.BridgeError) {}
func (quietHandler) HandlePanic(*errors.PanicError)  {}

// recordingDelegate captures every call for assertions.
type recordingDelegate struct {
	mu     sync.Mutex
	calls  []string
	args   [][]any
	ids    []int32
	ui     []string
	errs   []error
	fail   map[string]error
	panics map[string]bool
	size   [2]float32
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{fail: map[string]error{}, panics: map[string]bool{}}
}

func (d *recordingDelegate) record(name string, args []any) error {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.args = append(d.args, args)
	fail, panics := d.fail[name], d.panics[name]
	d.mu.Unlock()
	if panics {
		panic(name + " exploded")
	}
	return fail
}

func (d *recordingDelegate) CreateNode(args []any) error   { return d.record("createNode", args) }
func (d *recordingDelegate) UpdateNode(args []any) error   { return d.record("updateNode", args) }
func (d *recordingDelegate) UpdateLayout(args []any) error { return d.record("updateLayout", args) }
func (d *recordingDelegate) UpdateEventListener(args []any) error {
	return d.record("updateEventListener", args)
}

func (d *recordingDelegate) DeleteNode(ids []int32) error {
	d.ids = append(d.ids, ids...)
	return d.record("deleteNode", nil)
}

func (d *recordingDelegate) CallUIFunction(nodeID int32, functionName, callbackID string, args []any) error {
	d.ui = append(d.ui, functionName, callbackID)
	return d.record("callUIFunction", args)
}

func (d *recordingDelegate) Measure(nodeID int32, width float32, widthMode MeasureMode, height float32, heightMode MeasureMode) (float32, float32) {
	d.record("measure", []any{nodeID, width, widthMode, height, heightMode})
	return d.size[0], d.size[1]
}

func (d *recordingDelegate) StartBatch() { d.record("startBatch", nil) }
func (d *recordingDelegate) EndBatch()   { d.record("endBatch", nil) }

func (d *recordingDelegate) HandleRenderError(err error) {
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
}

func (d *recordingDelegate) lastErr(t *testing.T) error {
	t.Helper()
	if len(d.errs) == 0 {
		t.Fatal("expected a reported error")
	}
	return d.errs[len(d.errs)-1]
}

type sentEvent struct {
	nodeID   int32
	name     string
	payload  []byte
	capture  bool
	bubble   bool
	callback string
	result   PromiseCode
}

// recordingHost copies every outbound payload.
type recordingHost struct {
	channels  []float32
	sizes     [][2]float32
	events    []sentEvent
	callbacks []sentEvent
}

func (h *recordingHost) CreateChannel(runtimeID int64, density float32) {
	h.channels = append(h.channels, density)
}

func (h *recordingHost) NotifyRootSizeChanged(runtimeID int64, width, height float32) {
	h.sizes = append(h.sizes, [2]float32{width, height})
}

func (h *recordingHost) SendEvent(runtimeID int64, nodeID int32, eventName string, payload []byte, offset, length int, useCapture, useBubble bool) {
	h.events = append(h.events, sentEvent{
		nodeID:  nodeID,
		name:    eventName,
		payload: bytes.Clone(payload[offset : offset+length]),
		capture: useCapture,
		bubble:  useBubble,
	})
}

func (h *recordingHost) SendCallback(runtimeID int64, result PromiseCode, functionName, callbackID string, payload []byte, offset, length int) {
	h.callbacks = append(h.callbacks, sentEvent{
		name:     functionName,
		callback: callbackID,
		result:   result,
		payload:  bytes.Clone(payload[offset : offset+length]),
	})
}

func newTestProvider(t *testing.T, opts ...Option) (*Provider, *recordingDelegate, *recordingHost) {
	t.Helper()
	errors.SetHandler(quietHandler{})
	t.Cleanup(func() { errors.SetHandler(nil) })
	t.Cleanup(ResetForTest)
	d := newRecordingDelegate()
	h := &recordingHost{}
	p := NewProvider(d, h, 7, opts...)
	t.Cleanup(p.Destroy)
	return p, d, h
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	s := codec.NewSerializer()
	s.WriteHeader()
	if err := s.WriteValue(v); err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	return bytes.Clone(s.Writer().Bytes())
}

func decode(t *testing.T, b []byte) any {
	t.Helper()
	v, err := codec.NewDeserializer(codec.NewHeapReader(nil), nil).Decode(b, 0, len(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// --- Command channel ---

func TestNewProviderCreatesChannel(t *testing.T) {
	p, _, h := newTestProvider(t, WithDensity(2.5))
	if !slices.Equal(h.channels, []float32{2.5}) {
		t.Errorf("channels = %v, want [2.5]", h.channels)
	}
	if p.RuntimeID() != 7 || p.Density() != 2.5 {
		t.Errorf("runtime=%d density=%v", p.RuntimeID(), p.Density())
	}
}

func TestPayloadCommandsDecodeArguments(t *testing.T) {
	p, d, _ := newTestProvider(t)
	payload := encode(t, []any{map[string]any{"id": 1, "pId": 0, "name": "View"}})

	p.CreateNode(payload)
	p.UpdateNode(payload)
	p.UpdateLayout(payload)
	p.UpdateEventListener(payload)

	want := []string{"createNode", "updateNode", "updateLayout", "updateEventListener"}
	if !slices.Equal(d.calls, want) {
		t.Fatalf("calls = %v, want %v", d.calls, want)
	}
	for i, args := range d.args {
		if len(args) != 1 {
			t.Fatalf("call %d: got %d args, want 1", i, len(args))
		}
		node := args[0].(map[string]any)
		if node["id"] != int64(1) || node["name"] != "View" {
			t.Errorf("call %d: node = %v", i, node)
		}
	}
	if len(d.errs) != 0 {
		t.Errorf("unexpected errors: %v", d.errs)
	}
}

func TestNonListRootYieldsEmptyArguments(t *testing.T) {
	p, d, _ := newTestProvider(t)
	p.CreateNode(encode(t, map[string]any{"id": 1}))
	p.UpdateNode(encode(t, "just a string"))

	if len(d.args) != 2 {
		t.Fatalf("calls = %v", d.calls)
	}
	for i, args := range d.args {
		if args == nil || len(args) != 0 {
			t.Errorf("call %d: args = %#v, want empty list", i, args)
		}
	}
	if len(d.errs) != 0 {
		t.Errorf("unexpected errors: %v", d.errs)
	}
}

func TestEmptyPayloadYieldsEmptyArguments(t *testing.T) {
	p, d, _ := newTestProvider(t)
	p.CallUIFunction(3, "cb1", "focus", nil)

	if !slices.Equal(d.calls, []string{"callUIFunction"}) {
		t.Fatalf("calls = %v", d.calls)
	}
	if len(d.args[0]) != 0 {
		t.Errorf("args = %v, want empty", d.args[0])
	}
	if !slices.Equal(d.ui, []string{"focus", "cb1"}) {
		t.Errorf("function/callback = %v", d.ui)
	}
}

func TestDecodeFailureIsReportedAndIsolated(t *testing.T) {
	p, d, _ := newTestProvider(t)
	p.CreateNode([]byte{0xFF, 0x0D, 'o', '"'})

	if len(d.calls) != 0 {
		t.Fatalf("delegate called with malformed payload: %v", d.calls)
	}
	err := d.lastErr(t)
	if errors.KindOf(err) != errors.KindCodec {
		t.Errorf("kind = %v, want codec", errors.KindOf(err))
	}
	if !stderrors.Is(err, errors.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}

	p.UpdateNode(encode(t, []any{}))
	if !slices.Equal(d.calls, []string{"updateNode"}) {
		t.Errorf("channel stopped after failure: %v", d.calls)
	}
}

func TestDelegateErrorIsolation(t *testing.T) {
	p, d, _ := newTestProvider(t)
	boom := stderrors.New("boom")
	d.fail["updateNode"] = boom

	p.UpdateNode(encode(t, []any{1}))
	p.UpdateLayout(encode(t, []any{2}))

	err := d.lastErr(t)
	var de *errors.DispatchError
	if !stderrors.As(err, &de) || de.Command != "updateNode" {
		t.Fatalf("err = %v, want DispatchError for updateNode", err)
	}
	if !stderrors.Is(err, boom) {
		t.Errorf("err does not wrap delegate error: %v", err)
	}
	if !slices.Equal(d.calls, []string{"updateNode", "updateLayout"}) {
		t.Errorf("calls = %v", d.calls)
	}
	if got := p.Stats().Errors; got != 1 {
		t.Errorf("Stats().Errors = %d, want 1", got)
	}
}

func TestDelegatePanicRecovered(t *testing.T) {
	p, d, _ := newTestProvider(t)
	d.panics["createNode"] = true

	p.CreateNode(encode(t, []any{}))
	p.DeleteNode([]int32{4})

	err := d.lastErr(t)
	var pe *errors.PanicError
	if !stderrors.As(err, &pe) {
		t.Fatalf("err = %v, want wrapped PanicError", err)
	}
	if pe.Value != "createNode exploded" {
		t.Errorf("panic value = %v", pe.Value)
	}
	if !slices.Equal(d.calls, []string{"createNode", "deleteNode"}) {
		t.Errorf("calls = %v", d.calls)
	}
}

func TestDeleteNodeIDs(t *testing.T) {
	p, d, _ := newTestProvider(t)
	p.DeleteNode([]int32{1, 2, 3})
	if !slices.Equal(d.ids, []int32{1, 2, 3}) {
		t.Errorf("ids = %v", d.ids)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	p, d, _ := newTestProvider(t)
	_, err := p.Dispatch(Command{Kind: 42})
	if !stderrors.Is(err, errors.ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
	if len(d.errs) != 1 {
		t.Errorf("reported %d errors, want 1", len(d.errs))
	}
}

func TestDispatchRegionOutOfRange(t *testing.T) {
	p, d, _ := newTestProvider(t)
	_, err := p.Dispatch(Command{Kind: CommandCreateNode, Payload: []byte{1, 2}, Offset: 1, Length: 4})
	if !stderrors.Is(err, errors.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("calls = %v", d.calls)
	}
}

func TestDispatchSubRegion(t *testing.T) {
	p, d, _ := newTestProvider(t)
	payload := encode(t, []any{"a"})
	framed := append(append([]byte{9, 9, 9}, payload...), 9)
	if _, err := p.Dispatch(Command{Kind: CommandUpdateNode, Payload: framed, Offset: 3, Length: len(payload)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(d.args) != 1 || d.args[0][0] != "a" {
		t.Errorf("args = %v", d.args)
	}
}

// --- Batches ---

func TestBatchBrackets(t *testing.T) {
	p, d, _ := newTestProvider(t)
	p.StartBatch()
	p.CreateNode(encode(t, []any{}))
	p.DeleteNode([]int32{1})
	if !p.Stats().InBatch {
		t.Error("InBatch = false inside batch")
	}
	p.EndBatch()

	want := []string{"startBatch", "createNode", "deleteNode", "endBatch"}
	if !slices.Equal(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
	s := p.Stats()
	if s.InBatch || s.Batches != 1 || s.LastBatchSize != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestBatchIgnoresMeasureAndUICalls(t *testing.T) {
	p, d, _ := newTestProvider(t)
	d.size = [2]float32{10, 20}
	node := encode(t, []any{map[string]any{"id": 1, "pId": 0, "name": "Text"}})

	p.StartBatch()
	p.CreateNode(node)
	if got := p.Measure(1, 100, MeasureModeAtMost, 0, MeasureModeUndefined); got != PackSize(10, 20) {
		t.Errorf("Measure = %#x, want %#x", got, PackSize(10, 20))
	}
	p.CreateNode(node)
	p.Measure(1, 50, MeasureModeExactly, 0, MeasureModeUndefined)
	p.CallUIFunction(1, "", "focus", nil)
	if !p.Stats().InBatch {
		t.Error("InBatch = false after measure inside batch")
	}
	p.EndBatch()

	want := []string{"startBatch", "createNode", "measure", "createNode", "measure", "callUIFunction", "endBatch"}
	if !slices.Equal(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
	s := p.Stats()
	if s.InBatch || s.Batches != 1 || s.LastBatchSize != 2 {
		t.Errorf("stats = %+v, want one closed batch of 2", s)
	}
}

func TestBatchProtocolViolations(t *testing.T) {
	tests := []struct {
		name      string
		run       func(p *Provider)
		wantCalls []string
		wantErr   error
	}{
		{
			name: "duplicate start",
			run: func(p *Provider) {
				p.StartBatch()
				p.StartBatch()
				p.EndBatch()
			},
			wantCalls: []string{"startBatch", "endBatch"},
			wantErr:   errors.ErrBatchAlreadyStarted,
		},
		{
			name: "end without start",
			run: func(p *Provider) {
				p.EndBatch()
				p.StartBatch()
				p.EndBatch()
			},
			wantCalls: []string{"startBatch", "endBatch"},
			wantErr:   errors.ErrNoActiveBatch,
		},
		{
			name: "double end",
			run: func(p *Provider) {
				p.StartBatch()
				p.EndBatch()
				p.EndBatch()
			},
			wantCalls: []string{"startBatch", "endBatch"},
			wantErr:   errors.ErrNoActiveBatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, d, _ := newTestProvider(t)
			tt.run(p)
			if !slices.Equal(d.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", d.calls, tt.wantCalls)
			}
			if len(d.errs) != 1 {
				t.Fatalf("reported %d errors, want 1", len(d.errs))
			}
			if !stderrors.Is(d.errs[0], tt.wantErr) {
				t.Errorf("err = %v, want %v", d.errs[0], tt.wantErr)
			}
			if errors.KindOf(d.errs[0]) != errors.KindProtocol {
				t.Errorf("kind = %v, want protocol", errors.KindOf(d.errs[0]))
			}
		})
	}
}

// --- Measure ---

func TestPackSize(t *testing.T) {
	tests := []struct {
		width, height float32
	}{
		{0, 0},
		{100.5, 20},
		{1, -1},
		{float32(math.Inf(1)), 3.25},
		{math.MaxFloat32, math.SmallestNonzeroFloat32},
	}
	for _, tt := range tests {
		packed := PackSize(tt.width, tt.height)
		want := int64(uint64(math.Float32bits(tt.width))<<32 | uint64(math.Float32bits(tt.height)))
		if packed != want {
			t.Errorf("PackSize(%v, %v) = %#x, want %#x", tt.width, tt.height, packed, want)
		}
		w, h := UnpackSize(packed)
		if w != tt.width || h != tt.height {
			t.Errorf("UnpackSize(%#x) = %v, %v", packed, w, h)
		}
	}
}

func TestMeasure(t *testing.T) {
	p, d, _ := newTestProvider(t)
	d.size = [2]float32{100.5, 20}

	packed := p.Measure(5, 300, MeasureModeAtMost, 0, MeasureModeUndefined)

	w, h := UnpackSize(packed)
	if w != 100.5 || h != 20 {
		t.Errorf("size = %v x %v, want 100.5 x 20", w, h)
	}
	got := d.args[0]
	if got[0] != int32(5) || got[1] != float32(300) || got[2] != MeasureModeAtMost || got[4] != MeasureModeUndefined {
		t.Errorf("measure args = %v", got)
	}
}

func TestMeasurePanicReturnsZero(t *testing.T) {
	p, d, _ := newTestProvider(t)
	d.size = [2]float32{10, 10}
	d.panics["measure"] = true

	if got := p.Measure(1, 0, MeasureModeUndefined, 0, MeasureModeUndefined); got != 0 {
		t.Errorf("Measure = %#x, want 0", got)
	}
	if errors.KindOf(d.lastErr(t)) != errors.KindDispatch {
		t.Errorf("kind = %v", errors.KindOf(d.lastErr(t)))
	}
}

func TestMeasureModeString(t *testing.T) {
	for mode, want := range map[MeasureMode]string{
		MeasureModeUndefined: "undefined",
		MeasureModeExactly:   "exactly",
		MeasureModeAtMost:    "atMost",
		9:                    "unknown",
	} {
		if got := mode.String(); got != want {
			t.Errorf("MeasureMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}

// --- Events and callbacks ---

func TestDispatchEvent(t *testing.T) {
	p, _, h := newTestProvider(t)
	p.DispatchEvent(12, "onClick", map[string]any{"x": 1.5}, false, true)

	if len(h.events) != 1 {
		t.Fatalf("events = %v", h.events)
	}
	ev := h.events[0]
	if ev.nodeID != 12 || ev.name != "onClick" || ev.capture || !ev.bubble {
		t.Errorf("event = %+v", ev)
	}
	got := decode(t, ev.payload).(map[string]any)
	if got["x"] != 1.5 {
		t.Errorf("params = %v", got)
	}
	if p.Stats().Events != 1 {
		t.Errorf("Stats().Events = %d", p.Stats().Events)
	}
}

func TestAbsentParamsSendEmptyRegion(t *testing.T) {
	p, _, h := newTestProvider(t)
	var nilMap map[string]any
	p.DispatchEvent(1, "onLayout", nil, true, false)
	p.DispatchEvent(1, "onLayout", nilMap, true, false)
	p.DoPromiseCallback(PromiseResolve, "focus", "cb", nil)

	for _, ev := range append(h.events, h.callbacks...) {
		if len(ev.payload) != 0 {
			t.Errorf("%s: payload = %x, want empty", ev.name, ev.payload)
		}
	}
}

func TestDoPromiseCallback(t *testing.T) {
	p, _, h := newTestProvider(t)
	p.DoPromiseCallback(PromiseReject, "getValue", "cb9", []any{"denied"})

	if len(h.callbacks) != 1 {
		t.Fatalf("callbacks = %v", h.callbacks)
	}
	cb := h.callbacks[0]
	if cb.result != PromiseReject || cb.name != "getValue" || cb.callback != "cb9" {
		t.Errorf("callback = %+v", cb)
	}
	got := decode(t, cb.payload).([]any)
	if len(got) != 1 || got[0] != "denied" {
		t.Errorf("params = %v", got)
	}
}

func TestEncodeFailureSendsEmptyRegion(t *testing.T) {
	p, d, h := newTestProvider(t)
	p.DispatchEvent(1, "onChange", map[string]any{"ch": make(chan int)}, false, false)

	if len(h.events) != 1 || len(h.events[0].payload) != 0 {
		t.Fatalf("events = %+v", h.events)
	}
	if errors.KindOf(d.lastErr(t)) != errors.KindEncode {
		t.Errorf("kind = %v, want encode", errors.KindOf(d.lastErr(t)))
	}

	p.DispatchEvent(1, "onChange", []any{true}, false, false)
	if len(h.events[1].payload) == 0 {
		t.Error("writer not reusable after failure")
	}
}

func TestOnSizeChanged(t *testing.T) {
	p, _, h := newTestProvider(t, WithDensity(2))
	p.OnSizeChanged(1080, 1920)
	if len(h.sizes) != 1 || h.sizes[0] != [2]float32{540, 960} {
		t.Errorf("sizes = %v", h.sizes)
	}
}

// --- Lifecycle ---

func TestCommandsAfterDestroy(t *testing.T) {
	p, d, h := newTestProvider(t)
	if err := Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p.Destroy()
	p.Destroy()

	p.CreateNode(encode(t, []any{}))
	p.DispatchEvent(1, "onClick", nil, false, false)
	p.OnSizeChanged(10, 10)

	if len(d.calls) != 0 {
		t.Errorf("calls after destroy: %v", d.calls)
	}
	if len(h.events) != 0 || len(h.sizes) != 0 {
		t.Errorf("host reached after destroy: %+v", h)
	}
	if !stderrors.Is(d.lastErr(t), errors.ErrDestroyed) {
		t.Errorf("err = %v, want ErrDestroyed", d.lastErr(t))
	}
	if Find(7) != nil {
		t.Error("destroyed runtime still registered")
	}
	if !p.Stats().Destroyed {
		t.Error("Stats().Destroyed = false")
	}
}

func TestStringTableInterningAcrossCommands(t *testing.T) {
	p, _, _ := newTestProvider(t)
	payload := encode(t, []any{map[string]any{"id": 1, "name": "Text"}})
	p.CreateNode(payload)
	p.CreateNode(payload)

	s := p.Stats().Strings
	if s.Entries == 0 || s.Hits == 0 {
		t.Errorf("string stats = %+v, want interning", s)
	}
}

func TestCommandKindString(t *testing.T) {
	for _, k := range CommandKinds() {
		got, ok := ParseCommandKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseCommandKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if got := CommandKind(0).String(); got != "command(0)" {
		t.Errorf("CommandKind(0).String() = %q", got)
	}
	if _, ok := ParseCommandKind("render"); ok {
		t.Error("ParseCommandKind accepted unknown name")
	}
	if len(CommandKinds()) != 9 {
		t.Errorf("len(CommandKinds()) = %d, want 9", len(CommandKinds()))
	}
}

func TestWireVersionOption(t *testing.T) {
	p, _, h := newTestProvider(t, WithWireVersion(14))
	p.DispatchEvent(1, "onClick", true, false, false)
	if got := h.events[0].payload; len(got) < 2 || got[0] != 0xFF || got[1] != 14 {
		t.Errorf("payload = %x, want version 14 header", got)
	}
}
