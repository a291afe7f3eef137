package inspect

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/errors"
	"github.com/go-drift/renderbridge/pkg/render"
)

// BridgeService implements the Bridge JSON-RPC methods.
type BridgeService struct{}

// RuntimesArgs is empty.
type RuntimesArgs struct{}

// RuntimesReply lists registered runtimes.
type RuntimesReply struct {
	Runtimes []int64 `json:"runtimes"`
}

// Runtimes lists the registered runtime ids.
func (*BridgeService) Runtimes(r *http.Request, args *RuntimesArgs, reply *RuntimesReply) error {
	reply.Runtimes = render.Runtimes()
	return nil
}

// StatsArgs selects a runtime.
type StatsArgs struct {
	RuntimeID int64 `json:"runtimeId"`
}

// Stats returns the counters of one runtime.
func (*BridgeService) Stats(r *http.Request, args *StatsArgs, reply *render.Stats) error {
	p := render.Find(args.RuntimeID)
	if p == nil {
		return fmt.Errorf("%w: %d", errors.ErrUnknownRuntime, args.RuntimeID)
	}
	*reply = p.Stats()
	return nil
}

// PayloadArgs carries a base64 encoded payload.
type PayloadArgs struct {
	Payload string `json:"payload"`
}

// ValueReply carries a decoded value in JSON-safe form.
type ValueReply struct {
	Value any `json:"value"`
}

// Decode decodes a payload into JSON-safe values.
func (*BridgeService) Decode(r *http.Request, args *PayloadArgs, reply *ValueReply) error {
	raw, err := base64.StdEncoding.DecodeString(args.Payload)
	if err != nil {
		return fmt.Errorf("payload is not base64: %w", err)
	}
	v, err := codec.DefaultCodec.Decode(raw)
	if err != nil {
		return err
	}
	reply.Value = JSONSafe(v)
	return nil
}

// ValueArgs carries a JSON value to encode.
type ValueArgs struct {
	Value any `json:"value"`
}

// PayloadReply carries a base64 encoded payload.
type PayloadReply struct {
	Payload string `json:"payload"`
	Length  int    `json:"length"`
}

// Encode encodes a JSON value into a payload.
func (*BridgeService) Encode(r *http.Request, args *ValueArgs, reply *PayloadReply) error {
	raw, err := codec.DefaultCodec.Encode(args.Value)
	if err != nil {
		return err
	}
	reply.Payload = base64.StdEncoding.EncodeToString(raw)
	reply.Length = len(raw)
	return nil
}
