package transport

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/errors"
	"github.com/go-drift/renderbridge/pkg/render"
)

type quietHandler struct{}

func (quietHandler) HandleError(*errors.BridgeError) {}
func (quietHandler) HandlePanic(*errors.PanicError)  {}

// syncDelegate records calls made from the runtime executor.
type syncDelegate struct {
	render.NopDelegate
	mu    sync.Mutex
	calls []string
	errs  []error
	size  [2]float32
}

func (d *syncDelegate) record(name string) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
}

func (d *syncDelegate) CreateNode([]any) error   { d.record("createNode"); return nil }
func (d *syncDelegate) DeleteNode([]int32) error { d.record("deleteNode"); return nil }
func (d *syncDelegate) StartBatch()              { d.record("startBatch") }
func (d *syncDelegate) EndBatch()                { d.record("endBatch") }

func (d *syncDelegate) Measure(int32, float32, render.MeasureMode, float32, render.MeasureMode) (float32, float32) {
	d.record("measure")
	return d.size[0], d.size[1]
}

func (d *syncDelegate) HandleRenderError(err error) {
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
}

func (d *syncDelegate) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func startRuntime(t *testing.T, runtimeID int64, host render.Host) (*render.Provider, *syncDelegate) {
	t.Helper()
	errors.SetHandler(quietHandler{})
	t.Cleanup(func() { errors.SetHandler(nil) })
	t.Cleanup(render.ResetForTest)

	d := &syncDelegate{}
	p := render.NewProvider(d, host, runtimeID)
	if err := render.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p, d
}

func encodeArgs(t *testing.T, v any) []byte {
	t.Helper()
	s := codec.NewSerializer()
	s.WriteHeader()
	if err := s.WriteValue(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return bytes.Clone(s.Writer().Bytes())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan HostMessage) HostMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for host message")
	}
	return HostMessage{}
}
