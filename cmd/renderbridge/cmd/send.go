package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-drift/renderbridge/internal/config"
	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/render"
	"github.com/go-drift/renderbridge/pkg/transport"
)

const sendTimeout = 10 * time.Second

func init() {
	RegisterCommand(&Command{
		Name:  "send",
		Short: "Send one command to a serving runtime",
		Long: `Send one command to a runtime served by "renderbridge serve".

COMMAND is a boundary method name: createNode, updateNode, deleteNode,
updateLayout, updateEventListener, measure, callUIFunction, startBatch or
endBatch. deleteNode takes the node ids as further arguments.

The argument list of payload commands comes from --json (inline JSON) or
--payload FILE (raw bytes, or base64 with --base64).

Flags:
  --addr ADDR              Server address (default ` + config.DefaultAddr + `)
  --network NAME           stream or grpc (default stream)
  --runtime ID             Target runtime id (default 1)
  --json VALUE             Argument list as JSON
  --payload FILE           Encoded argument list
  --base64                 --payload holds base64 text
  --node ID                Node id for measure and callUIFunction
  --function NAME          Function name for callUIFunction
  --callback ID            Callback id for callUIFunction
  --width W --width-mode M     Measure width and mode
  --height H --height-mode M   Measure height and mode
                           Modes: undefined, exactly, atMost`,
		Usage: "renderbridge send [flags] COMMAND [IDS...]",
		Run:   runSend,
	})
}

// remote is the client side of either transport.
type remote interface {
	Send(ctx context.Context, runtimeID int64, cmd render.Command) (int64, error)
	Close() error
}

func dialRemote(ctx context.Context, network, addr string) (remote, error) {
	switch network {
	case config.NetworkGRPC:
		c, err := transport.DialGRPC(addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.NetworkStream, "":
		c, err := transport.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown network %q (use %s or %s)", network, config.NetworkStream, config.NetworkGRPC)
	}
}

func runSend(args []string) error {
	f, err := parseFlags(args,
		[]string{"--addr", "--network", "--runtime", "--json", "--payload", "--node", "--function",
			"--callback", "--width", "--width-mode", "--height", "--height-mode"},
		[]string{"--base64"})
	if err != nil {
		return err
	}
	if len(f.args) == 0 {
		return fmt.Errorf("missing command name")
	}
	cmd, err := buildCommand(f)
	if err != nil {
		return err
	}
	runtimeID, err := strconv.ParseInt(f.value("--runtime", "1"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid --runtime: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	client, err := dialRemote(ctx, f.value("--network", config.NetworkStream), f.value("--addr", config.DefaultAddr))
	if err != nil {
		return err
	}
	defer client.Close()

	value, err := client.Send(ctx, runtimeID, cmd)
	if err != nil {
		return err
	}
	if cmd.Kind == render.CommandMeasure {
		w, h := render.UnpackSize(value)
		_, err = fmt.Fprintf(stdout, "%g x %g\n", w, h)
		return err
	}
	_, err = fmt.Fprintln(stdout, "ok")
	return err
}

// buildCommand turns parsed flags into a command.
func buildCommand(f *flags) (render.Command, error) {
	kind, ok := render.ParseCommandKind(f.args[0])
	if !ok {
		return render.Command{}, fmt.Errorf("unknown command %q", f.args[0])
	}
	cmd := render.Command{Kind: kind}

	switch kind {
	case render.CommandDeleteNode:
		for _, arg := range f.args[1:] {
			id, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				return cmd, fmt.Errorf("invalid node id %q", arg)
			}
			cmd.IDs = append(cmd.IDs, int32(id))
		}
		return cmd, nil
	case render.CommandStartBatch, render.CommandEndBatch:
		return cmd, nil
	}

	if kind == render.CommandMeasure || kind == render.CommandCallUIFunction {
		id, err := strconv.ParseInt(f.value("--node", "0"), 10, 32)
		if err != nil {
			return cmd, fmt.Errorf("invalid --node: %w", err)
		}
		cmd.NodeID = int32(id)
	}
	if kind == render.CommandMeasure {
		var err error
		if cmd.Width, cmd.WidthMode, err = parseDimension(f, "--width"); err != nil {
			return cmd, err
		}
		if cmd.Height, cmd.HeightMode, err = parseDimension(f, "--height"); err != nil {
			return cmd, err
		}
		return cmd, nil
	}
	if kind == render.CommandCallUIFunction {
		cmd.FunctionName = f.value("--function", "")
		cmd.CallbackID = f.value("--callback", "")
	}

	payload, err := readPayload(f)
	if err != nil {
		return cmd, err
	}
	cmd.Payload = payload
	cmd.Length = len(payload)
	return cmd, nil
}

func parseDimension(f *flags, name string) (float32, render.MeasureMode, error) {
	size, err := strconv.ParseFloat(f.value(name, "0"), 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	mode, err := parseMeasureMode(f.value(name+"-mode", "undefined"))
	if err != nil {
		return 0, 0, err
	}
	return float32(size), mode, nil
}

func parseMeasureMode(name string) (render.MeasureMode, error) {
	for _, m := range []render.MeasureMode{render.MeasureModeUndefined, render.MeasureModeExactly, render.MeasureModeAtMost} {
		if strings.EqualFold(m.String(), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown measure mode %q", name)
}

// readPayload returns the encoded argument list named by --json or
// --payload. Neither yields an empty region.
func readPayload(f *flags) ([]byte, error) {
	if text, ok := f.values["--json"]; ok {
		value, err := parseValue([]byte(text), "json")
		if err != nil {
			return nil, err
		}
		return codec.DefaultCodec.Encode(value)
	}
	path := f.value("--payload", "")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f.set["--base64"] {
		return base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	}
	return data, nil
}
