package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-drift/renderbridge/internal/config"
	"github.com/go-drift/renderbridge/pkg/errors"
	"github.com/go-drift/renderbridge/pkg/inspect"
	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/go-drift/renderbridge/pkg/render"
	"github.com/go-drift/renderbridge/pkg/textmeasure"
	"github.com/go-drift/renderbridge/pkg/transport"
	"google.golang.org/grpc"
)

func init() {
	RegisterCommand(&Command{
		Name:  "serve",
		Short: "Serve a runtime over the stream or gRPC transport",
		Long: `Serve one runtime instance and apply the commands sent to it.

Settings come from renderbridge.yaml in the config directory (default: the
nearest parent directory holding one). Text nodes are measured with the
built-in font; every other command is logged.

Flags:
  --config DIR         Directory holding renderbridge.yaml
  --addr ADDR          Transport listen address
  --network NAME       stream or grpc
  --inspect ADDR       Serve the JSON-RPC inspector on ADDR
  --log-level LEVEL    debug, info, warn or error
  --verbose            Include stack traces in error logs`,
		Usage: "renderbridge serve [flags]",
		Run:   runServe,
	})
}

func loadServeConfig(args []string) (*config.Resolved, error) {
	f, err := parseFlags(args,
		[]string{"--config", "--addr", "--network", "--inspect", "--log-level"},
		[]string{"--verbose"})
	if err != nil {
		return nil, err
	}
	if len(f.args) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", f.args[0])
	}

	dir := f.value("--config", "")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = config.FindRoot(wd)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	cfg.Transport.Addr = f.value("--addr", cfg.Transport.Addr)
	cfg.Transport.Network = f.value("--network", cfg.Transport.Network)
	cfg.Inspect.Addr = f.value("--inspect", cfg.Inspect.Addr)
	cfg.Log.Level = f.value("--log-level", cfg.Log.Level)
	cfg.Log.Verbose = cfg.Log.Verbose || f.set["--verbose"]
	return cfg.Resolve()
}

func runServe(args []string) error {
	cfg, err := loadServeConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logging.SetLogger(logger)
	errors.SetHandler(errors.NewLogHandler(cfg.Verbose))

	measurer, err := textmeasure.New()
	if err != nil {
		return err
	}
	hub := transport.NewHub()
	delegate := textmeasure.NewDelegate(&logDelegate{logger: logger}, measurer)
	provider := render.NewProvider(delegate, hub, cfg.RuntimeID,
		render.WithDensity(cfg.Density),
		render.WithStringTableSize(cfg.MaxStrings),
		render.WithWireVersion(cfg.WireVersion),
	)
	if err := render.Register(provider); err != nil {
		return err
	}
	defer provider.Destroy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InspectAddr != "" {
		inspector, err := inspect.Start(cfg.InspectAddr)
		if err != nil {
			return err
		}
		defer inspector.Close()
	}

	switch cfg.Network {
	case config.NetworkGRPC:
		return serveGRPC(ctx, cfg.Addr, hub)
	default:
		srv, err := transport.Listen(cfg.Addr, hub)
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	}
}

func serveGRPC(ctx context.Context, addr string, hub *transport.Hub) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	s := grpc.NewServer()
	transport.RegisterGRPC(s, hub)
	stop := context.AfterFunc(ctx, s.GracefulStop)
	defer stop()

	logging.Logger().Info("grpc transport listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

// logDelegate logs every command it receives.
type logDelegate struct {
	logger *slog.Logger
}

func (d *logDelegate) CreateNode(args []any) error {
	for _, n := range render.ParseNodeDescriptors(args) {
		d.logger.Info("create node", "id", n.ID, "parent", n.ParentID, "index", n.Index, "name", n.Name)
	}
	return nil
}

func (d *logDelegate) UpdateNode(args []any) error {
	for _, n := range render.ParseNodeDescriptors(args) {
		d.logger.Info("update node", "id", n.ID, "props", len(n.Props))
	}
	return nil
}

func (d *logDelegate) DeleteNode(ids []int32) error {
	d.logger.Info("delete nodes", "ids", ids)
	return nil
}

func (d *logDelegate) UpdateLayout(args []any) error {
	for _, l := range render.ParseLayoutDescriptors(args) {
		d.logger.Info("layout", "id", l.ID, "left", l.Left, "top", l.Top, "width", l.Width, "height", l.Height)
	}
	return nil
}

func (d *logDelegate) UpdateEventListener(args []any) error {
	for _, l := range render.ParseListenerDescriptors(args) {
		d.logger.Info("listeners", "id", l.ID, "events", l.Events)
	}
	return nil
}

func (d *logDelegate) CallUIFunction(nodeID int32, functionName, callbackID string, args []any) error {
	d.logger.Info("call ui function", "node", nodeID, "function", functionName, "callback", callbackID, "args", len(args))
	return nil
}

func (d *logDelegate) Measure(nodeID int32, width float32, widthMode render.MeasureMode, height float32, heightMode render.MeasureMode) (float32, float32) {
	d.logger.Debug("measure without text", "node", nodeID, "widthMode", widthMode.String(), "heightMode", heightMode.String())
	return 0, 0
}

func (d *logDelegate) StartBatch() { d.logger.Debug("batch start") }
func (d *logDelegate) EndBatch()   { d.logger.Debug("batch end") }

func (d *logDelegate) HandleRenderError(err error) {
	d.logger.Warn("render error", "err", err)
}
