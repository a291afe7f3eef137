package transport

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"slices"
	"testing"

	"github.com/go-drift/renderbridge/pkg/render"
)

func TestCommandFrameRoundTrip(t *testing.T) {
	payload := []byte{0xFF, 0x0D, 'A', 0x00, '$', 0x00, 0x00}
	tests := []struct {
		name string
		cmd  render.Command
	}{
		{"createNode", render.PayloadCommand(render.CommandCreateNode, payload)},
		{"updateNode empty", render.Command{Kind: render.CommandUpdateNode}},
		{"deleteNode", render.Command{Kind: render.CommandDeleteNode, IDs: []int32{1, -2, 300}}},
		{"deleteNode none", render.Command{Kind: render.CommandDeleteNode, IDs: []int32{}}},
		{"measure", render.Command{
			Kind: render.CommandMeasure, NodeID: 9,
			Width: 120.5, WidthMode: render.MeasureModeAtMost,
			Height: 0, HeightMode: render.MeasureModeUndefined,
		}},
		{"callUIFunction", render.Command{
			Kind: render.CommandCallUIFunction, NodeID: 3,
			FunctionName: "scrollTo", CallbackID: "cb-17",
			Payload: append([]byte{0, 0}, payload...), Offset: 2, Length: len(payload),
		}},
		{"startBatch", render.Command{Kind: render.CommandStartBatch}},
		{"endBatch", render.Command{Kind: render.CommandEndBatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := AppendCommand(nil, -42, &tt.cmd)
			runtimeID, got, err := ParseCommand(frame)
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if runtimeID != -42 {
				t.Errorf("runtimeID = %d, want -42", runtimeID)
			}
			want := tt.cmd
			if got.Kind != want.Kind || got.NodeID != want.NodeID ||
				got.FunctionName != want.FunctionName || got.CallbackID != want.CallbackID ||
				got.Width != want.Width || got.WidthMode != want.WidthMode ||
				got.Height != want.Height || got.HeightMode != want.HeightMode {
				t.Errorf("got %+v, want %+v", got, want)
			}
			if len(want.IDs) > 0 && !slices.Equal(got.IDs, want.IDs) {
				t.Errorf("ids = %v, want %v", got.IDs, want.IDs)
			}
			gotPayload := got.Payload[got.Offset : got.Offset+got.Length]
			wantPayload := want.Payload[want.Offset : want.Offset+want.Length]
			if !bytes.Equal(gotPayload, wantPayload) {
				t.Errorf("payload = %x, want %x", gotPayload, wantPayload)
			}
		})
	}
}

func TestParseCommandMalformed(t *testing.T) {
	measure := render.Command{Kind: render.CommandMeasure}
	full := AppendCommand(nil, 1, &measure)
	del := render.Command{Kind: render.CommandDeleteNode, IDs: []int32{1}}
	delFrame := AppendCommand(nil, 1, &del)

	tests := map[string][]byte{
		"empty":           nil,
		"short header":    {byte(render.CommandStartBatch), 0, 0},
		"short measure":   full[:len(full)-1],
		"trailing batch":  append(AppendCommand(nil, 1, &render.Command{Kind: render.CommandEndBatch}), 0),
		"overlong delete": append(delFrame[:9], 0xFF, 0xFF, 0xFF, 0xFF),
		"short name":      append(AppendCommand(nil, 1, &render.Command{Kind: render.CommandCreateNode})[:13], 0, 9, 'x'),
	}
	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseCommand(frame); !stderrors.Is(err, ErrMalformedFrame) {
				t.Errorf("ParseCommand = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestParseCommandUnknownKind(t *testing.T) {
	frame := append([]byte{0x7F, 0, 0, 0, 0, 0, 0, 0, 4}, 1, 2, 3)
	runtimeID, cmd, err := ParseCommand(frame)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if runtimeID != 4 || cmd.Kind != 0x7F || cmd.Kind.Valid() {
		t.Errorf("ParseCommand = %d, %+v", runtimeID, cmd)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	packed := render.PackSize(10, 20)
	v, err := parseReply(appendReply(nil, packed, nil))
	if err != nil || v != packed {
		t.Errorf("ok reply = %d, %v", v, err)
	}

	_, err = parseReply(appendReply(nil, 0, stderrors.New("boom")))
	var remote *RemoteError
	if !stderrors.As(err, &remote) || remote.Message != "boom" {
		t.Errorf("error reply = %v", err)
	}

	for _, bad := range [][]byte{nil, {statusOK, 1}, {9}} {
		if _, err := parseReply(bad); !stderrors.Is(err, ErrMalformedFrame) {
			t.Errorf("parseReply(%x) = %v, want ErrMalformedFrame", bad, err)
		}
	}
}

func TestHostMessageRoundTrip(t *testing.T) {
	tests := []HostMessage{
		{Kind: HostCreateChannel, RuntimeID: 5, Density: 2.75},
		{Kind: HostRootSize, RuntimeID: 5, Width: 360, Height: 640},
		{Kind: HostEvent, RuntimeID: 5, NodeID: 12, Name: "onClick", UseBubble: true, Payload: []byte{1, 2, 3}},
		{Kind: HostEvent, RuntimeID: 5, NodeID: 12, Name: "onTouchDown", UseCapture: true, Payload: []byte{}},
		{Kind: HostCallback, RuntimeID: 5, Result: render.PromiseReject, Name: "measureInWindow", CallbackID: "7", Payload: []byte{4}},
	}
	for _, want := range tests {
		t.Run(want.Kind.String(), func(t *testing.T) {
			got, err := ParseHostMessage(AppendHostMessage(nil, &want))
			if err != nil {
				t.Fatalf("ParseHostMessage: %v", err)
			}
			if !bytes.Equal(got.Payload, want.Payload) {
				t.Errorf("payload = %x, want %x", got.Payload, want.Payload)
			}
			got.Payload, want.Payload = nil, nil
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}

	if _, err := ParseHostMessage([]byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0}); !stderrors.Is(err, ErrMalformedFrame) {
		t.Errorf("unknown host kind = %v", err)
	}
	if _, err := ParseHostMessage([]byte{byte(HostRootSize), 0}); !stderrors.Is(err, ErrMalformedFrame) {
		t.Errorf("short host frame = %v", err)
	}
}
