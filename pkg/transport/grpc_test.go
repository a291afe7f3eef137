package transport

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"testing"

	"github.com/go-drift/renderbridge/pkg/render"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startGRPC(t *testing.T, hub *Hub) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterGRPC(s, hub)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewGRPCClient(conn)
}

func TestGRPCDispatch(t *testing.T) {
	hub := NewHub()
	_, d := startRuntime(t, 21, hub)
	d.size = [2]float32{8, 9}
	c := startGRPC(t, hub)
	ctx := context.Background()

	if _, err := c.Send(ctx, 21, render.PayloadCommand(render.CommandCreateNode, encodeArgs(t, []any{}))); err != nil {
		t.Fatalf("Send(createNode): %v", err)
	}
	packed, err := c.Send(ctx, 21, render.Command{Kind: render.CommandMeasure, NodeID: 2})
	if err != nil {
		t.Fatalf("Send(measure): %v", err)
	}
	if w, h := render.UnpackSize(packed); w != 8 || h != 9 {
		t.Errorf("measure = %v x %v", w, h)
	}

	_, err = c.Send(ctx, 22, render.Command{Kind: render.CommandStartBatch})
	var remote *RemoteError
	if !stderrors.As(err, &remote) || !strings.Contains(remote.Message, "unknown runtime") {
		t.Errorf("unknown runtime = %v", err)
	}

	if got := d.snapshot(); len(got) != 2 || got[0] != "createNode" || got[1] != "measure" {
		t.Errorf("calls = %v", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on borrowed conn: %v", err)
	}
}

func TestGRPCSubscribe(t *testing.T) {
	hub := NewHub()
	p, _ := startRuntime(t, 21, hub)
	c := startGRPC(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "grpc subscription", func() bool { return hub.Subscribers() == 1 })

	err = p.Executor().Run(ctx, func() {
		p.DoPromiseCallback(render.PromiseResolve, "getText", "cb-1", []any{"hello"})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	m := receive(t, msgs)
	if m.Kind != HostCallback || m.Name != "getText" || m.CallbackID != "cb-1" || m.Result != render.PromiseResolve {
		t.Errorf("callback = %+v", m)
	}
	if len(m.Payload) == 0 {
		t.Error("callback payload missing")
	}

	cancel()
	waitFor(t, "unsubscribe", func() bool { return hub.Subscribers() == 0 })
}

func TestFrameCodec(t *testing.T) {
	var c frameCodec
	if c.Name() != frameCodecName {
		t.Errorf("Name = %q", c.Name())
	}
	b := []byte{1, 2}
	for _, v := range []any{b, &b} {
		out, err := c.Marshal(v)
		if err != nil || len(out) != 2 {
			t.Errorf("Marshal(%T) = %v, %v", v, out, err)
		}
	}
	if _, err := c.Marshal("frame"); err == nil {
		t.Error("Marshal accepted a string")
	}

	var dst []byte
	src := []byte{3, 4}
	if err := c.Unmarshal(src, &dst); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	src[0] = 0
	if dst[0] != 3 {
		t.Error("Unmarshal aliased its input")
	}
	if err := c.Unmarshal(src, &struct{}{}); err == nil {
		t.Error("Unmarshal accepted a struct")
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	frames, cancel := hub.Subscribe(1)
	hub.CreateChannel(1, 1)
	hub.CreateChannel(2, 1)

	m, err := ParseHostMessage(<-frames)
	if err != nil || m.RuntimeID != 1 {
		t.Errorf("first frame = %+v, %v", m, err)
	}
	select {
	case f := <-frames:
		t.Errorf("unexpected frame %x", f)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-frames; ok {
		t.Error("channel open after cancel")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers = %d", hub.Subscribers())
	}
}

func TestHostMessageDeliver(t *testing.T) {
	hub := NewHub()
	frames, cancel := hub.Subscribe(4)
	defer cancel()

	in := []HostMessage{
		{Kind: HostCreateChannel, RuntimeID: 1, Density: 3},
		{Kind: HostRootSize, RuntimeID: 1, Width: 10, Height: 20},
		{Kind: HostEvent, RuntimeID: 1, NodeID: 2, Name: "onScroll", UseCapture: true, Payload: []byte{9}},
		{Kind: HostCallback, RuntimeID: 1, Result: render.PromiseReject, Name: "f", CallbackID: "c", Payload: []byte{8}},
	}
	for i := range in {
		in[i].Deliver(hub)
	}
	for i := range in {
		got, err := ParseHostMessage(<-frames)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.Kind != in[i].Kind || got.Name != in[i].Name || string(got.Payload) != string(in[i].Payload) {
			t.Errorf("frame %d = %+v, want %+v", i, got, in[i])
		}
	}
}
