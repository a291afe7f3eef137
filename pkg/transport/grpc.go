package transport

import (
	"context"
	"fmt"

	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/go-drift/renderbridge/pkg/render"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// Codec name negotiated as the gRPC content subtype.
const frameCodecName = "rbframe"

// Fully qualified method names of the Bridge service.
const (
	ServiceName      = "renderbridge.Bridge"
	dispatchMethod   = "/" + ServiceName + "/Dispatch"
	subscribeMethod  = "/" + ServiceName + "/Subscribe"
	subscribeBacklog = 256
)

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// frameCodec passes frames through unchanged.
type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("transport: cannot marshal %T as frame", v)
	}
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("transport: cannot unmarshal frame into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (frameCodec) Name() string {
	return frameCodecName
}

// bridgeServer is the gRPC implementation of the Bridge service.
type bridgeServer struct {
	hub *Hub
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var frame []byte
	if err := dec(&frame); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		reply := HandleFrame(ctx, *req.(*[]byte))
		return &reply, nil
	}
	if interceptor == nil {
		return handle(ctx, &frame)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: dispatchMethod}
	return interceptor(ctx, &frame, info, handle)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	hub := srv.(*bridgeServer).hub
	if hub == nil {
		return nil
	}
	frames, cancel := hub.Subscribe(subscribeBacklog)
	defer cancel()
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&frame); err != nil {
				return err
			}
		}
	}
}

// RegisterGRPC adds the Bridge service to s. hub may be nil when no
// notifications are streamed.
func RegisterGRPC(s *grpc.Server, hub *Hub) {
	s.RegisterService(&bridgeServiceDesc, &bridgeServer{hub: hub})
}

// GRPCClient calls the Bridge service.
type GRPCClient struct {
	conn *grpc.ClientConn
	own  bool
}

// DialGRPC connects to a Bridge service without transport security.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, own: true}, nil
}

// NewGRPCClient uses an existing connection. Close leaves it open.
func NewGRPCClient(conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Send applies cmd to runtimeID remotely and returns the reply value.
func (c *GRPCClient) Send(ctx context.Context, runtimeID int64, cmd render.Command) (int64, error) {
	req := AppendCommand(nil, runtimeID, &cmd)
	var reply []byte
	if err := c.conn.Invoke(ctx, dispatchMethod, &req, &reply, grpc.CallContentSubtype(frameCodecName)); err != nil {
		return 0, err
	}
	return parseReply(reply)
}

// Subscribe streams host messages until ctx is done or the stream fails.
// The returned channel is closed when the stream ends.
func (c *GRPCClient) Subscribe(ctx context.Context) (<-chan HostMessage, error) {
	stream, err := c.conn.NewStream(ctx, &bridgeServiceDesc.Streams[0], subscribeMethod, grpc.CallContentSubtype(frameCodecName))
	if err != nil {
		return nil, err
	}
	req := []byte{}
	if err := stream.SendMsg(&req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan HostMessage, subscribeBacklog)
	go func() {
		defer close(out)
		for {
			var frame []byte
			if err := stream.RecvMsg(&frame); err != nil {
				return
			}
			m, err := ParseHostMessage(frame)
			if err != nil {
				logging.Logger().Warn("bad host frame", "err", err)
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the connection if the client opened it.
func (c *GRPCClient) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}
