package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-drift/renderbridge/internal/config"
	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/inspect"
	"github.com/go-drift/renderbridge/pkg/transport"
)

func init() {
	RegisterCommand(&Command{
		Name:  "watch",
		Short: "Print events and callbacks sent to the host",
		Long: `Connect to a serving runtime and print every host notification until
interrupted. Payloads are decoded and printed as JSON.

Flags:
  --addr ADDR      Server address (default ` + config.DefaultAddr + `)
  --network NAME   stream or grpc (default stream)`,
		Usage: "renderbridge watch [--addr ADDR] [--network NAME]",
		Run:   runWatch,
	})
}

func runWatch(args []string) error {
	f, err := parseFlags(args, []string{"--addr", "--network"}, nil)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := f.value("--addr", config.DefaultAddr)
	var messages <-chan transport.HostMessage
	switch network := f.value("--network", config.NetworkStream); network {
	case config.NetworkGRPC:
		client, err := transport.DialGRPC(addr)
		if err != nil {
			return err
		}
		defer client.Close()
		if messages, err = client.Subscribe(ctx); err != nil {
			return err
		}
	case config.NetworkStream:
		client, err := transport.Dial(ctx, addr)
		if err != nil {
			return err
		}
		defer client.Close()
		messages = client.Notifications()
	default:
		return fmt.Errorf("unknown network %q (use %s or %s)", network, config.NetworkStream, config.NetworkGRPC)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			printHostMessage(stdout, &m)
		}
	}
}

func printHostMessage(w io.Writer, m *transport.HostMessage) {
	switch m.Kind {
	case transport.HostCreateChannel:
		fmt.Fprintf(w, "[%d] createChannel density=%g\n", m.RuntimeID, m.Density)
	case transport.HostRootSize:
		fmt.Fprintf(w, "[%d] rootSize %g x %g\n", m.RuntimeID, m.Width, m.Height)
	case transport.HostEvent:
		fmt.Fprintf(w, "[%d] event node=%d name=%s capture=%t bubble=%t params=%s\n",
			m.RuntimeID, m.NodeID, m.Name, m.UseCapture, m.UseBubble, formatPayload(m.Payload))
	case transport.HostCallback:
		fmt.Fprintf(w, "[%d] callback %s function=%s id=%s params=%s\n",
			m.RuntimeID, m.Result, m.Name, m.CallbackID, formatPayload(m.Payload))
	default:
		fmt.Fprintf(w, "[%d] %s\n", m.RuntimeID, m.Kind)
	}
}

func formatPayload(payload []byte) string {
	if len(payload) == 0 {
		return "null"
	}
	value, err := codec.DefaultCodec.Decode(payload)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return compactJSON(inspect.JSONSafe(value))
}
