package render

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/errors"
	"github.com/go-drift/renderbridge/pkg/logging"
)

// DefaultDensity is used when no screen density is configured.
const DefaultDensity float32 = 1

type options struct {
	density         float32
	maxStrings      int
	executorBacklog int
	wireVersion     uint32
}

// Option configures a Provider.
type Option func(*options)

// WithDensity sets the screen density used to convert pixel sizes to dp.
func WithDensity(density float32) Option {
	return func(o *options) {
		if density > 0 {
			o.density = density
		}
	}
}

// WithStringTableSize caps the number of interned strings.
func WithStringTableSize(n int) Option {
	return func(o *options) { o.maxStrings = n }
}

// WithWireVersion selects the header version of outbound payloads.
func WithWireVersion(v uint32) Option {
	return func(o *options) { o.wireVersion = v }
}

// WithExecutorBacklog presizes the executor queue.
func WithExecutorBacklog(n int) Option {
	return func(o *options) { o.executorBacklog = n }
}

type commandHandler func(p *Provider, cmd *Command) (int64, error)

// handlers routes every command kind. deleteNode and measure carry no
// payload; the rest decode one before reaching the delegate.
var handlers = [commandKindCount]commandHandler{
	CommandCreateNode: func(p *Provider, cmd *Command) (int64, error) {
		return 0, p.withArgs(cmd, p.delegate.CreateNode)
	},
	CommandUpdateNode: func(p *Provider, cmd *Command) (int64, error) {
		return 0, p.withArgs(cmd, p.delegate.UpdateNode)
	},
	CommandDeleteNode: func(p *Provider, cmd *Command) (int64, error) {
		p.batch.record()
		return 0, p.invoke(cmd, func() error { return p.delegate.DeleteNode(cmd.IDs) })
	},
	CommandUpdateLayout: func(p *Provider, cmd *Command) (int64, error) {
		return 0, p.withArgs(cmd, p.delegate.UpdateLayout)
	},
	CommandUpdateEventListener: func(p *Provider, cmd *Command) (int64, error) {
		return 0, p.withArgs(cmd, p.delegate.UpdateEventListener)
	},
	CommandMeasure: (*Provider).measure,
	CommandCallUIFunction: func(p *Provider, cmd *Command) (int64, error) {
		return 0, p.withArgs(cmd, func(args []any) error {
			return p.delegate.CallUIFunction(cmd.NodeID, cmd.FunctionName, cmd.CallbackID, args)
		})
	},
	CommandStartBatch: (*Provider).startBatch,
	CommandEndBatch:   (*Provider).endBatch,
}

// Provider is the bridge endpoint for one runtime instance.
//
// Boundary methods are not safe for concurrent use; see the package
// documentation. Stats and Destroyed may be called from any goroutine.
type Provider struct {
	runtimeID int64
	density   float32
	delegate  Delegate
	host      Host

	writer       *codec.HeapWriter
	serializer   *codec.Serializer
	deserializer *codec.Deserializer
	strings      *codec.StringTable

	batch    batchCoordinator
	counters counters

	execOnce sync.Once
	exec     atomic.Pointer[Executor]
	backlog  int

	destroyed atomic.Bool
}

// NewProvider creates the provider for runtimeID and opens the native
// channel through host.CreateChannel.
func NewProvider(delegate Delegate, host Host, runtimeID int64, opts ...Option) *Provider {
	o := options{density: DefaultDensity}
	for _, opt := range opts {
		opt(&o)
	}

	strings := codec.NewStringTable(o.maxStrings)
	writer := codec.NewHeapWriter()
	serializer := codec.NewSerializer()
	serializer.SetWriter(writer)
	if o.wireVersion != 0 {
		if err := serializer.SetVersion(o.wireVersion); err != nil {
			logging.Logger().Warn("keeping default wire version", "runtime", runtimeID, "err", err)
		}
	}

	p := &Provider{
		runtimeID:    runtimeID,
		density:      o.density,
		delegate:     delegate,
		host:         host,
		writer:       writer,
		serializer:   serializer,
		deserializer: codec.NewDeserializer(codec.NewHeapReader(nil), strings),
		strings:      strings,
		backlog:      o.executorBacklog,
	}
	p.logger().Info("runtime created", "density", p.density)
	host.CreateChannel(runtimeID, p.density)
	return p
}

// RuntimeID returns the runtime instance this provider serves.
func (p *Provider) RuntimeID() int64 {
	return p.runtimeID
}

// Density returns the configured screen density.
func (p *Provider) Density() float32 {
	return p.density
}

// Delegate returns the consuming render delegate.
func (p *Provider) Delegate() Delegate {
	return p.delegate
}

// Executor returns the goroutine that owns this provider, starting it on
// first use.
func (p *Provider) Executor() *Executor {
	p.execOnce.Do(func() {
		p.exec.Store(NewExecutor(p.backlog))
	})
	return p.exec.Load()
}

func (p *Provider) logger() *slog.Logger {
	return logging.Logger().With("runtime", p.runtimeID)
}

// Dispatch routes cmd to its handler. It returns the packed size for measure
// and zero otherwise. A non-nil error has already been handed to the
// delegate's HandleRenderError; callers may use it for diagnostics only.
func (p *Provider) Dispatch(cmd Command) (int64, error) {
	if !cmd.Kind.Valid() {
		return 0, p.report(cmd.Kind.String(), &errors.ProtocolError{
			Command: cmd.Kind.String(),
			Err:     errors.ErrUnknownCommand,
		})
	}
	p.counters.commands[cmd.Kind].Add(1)
	if p.destroyed.Load() {
		return 0, p.report(cmd.Kind.String(), &errors.ProtocolError{
			Command: cmd.Kind.String(),
			Err:     errors.ErrDestroyed,
		})
	}
	if cmd.Kind.carriesPayload() {
		if cmd.Offset < 0 || cmd.Length < 0 || cmd.Offset+cmd.Length > len(cmd.Payload) {
			return 0, p.report(cmd.Kind.String(), &errors.CodecError{
				Op:     "codec.Decode",
				Offset: cmd.Offset,
				Err:    errors.ErrTruncated,
			})
		}
	}
	if logger := p.logger(); logger.Enabled(context.Background(), slog.LevelDebug) {
		logger.Debug("command", "kind", cmd.Kind.String(), "node", cmd.NodeID, "bytes", cmd.Length)
	}
	return handlers[cmd.Kind](p, &cmd)
}

// CreateNode instantiates the nodes encoded in buffer.
func (p *Provider) CreateNode(buffer []byte) {
	p.Dispatch(PayloadCommand(CommandCreateNode, buffer))
}

// UpdateNode mutates the nodes encoded in buffer.
func (p *Provider) UpdateNode(buffer []byte) {
	p.Dispatch(PayloadCommand(CommandUpdateNode, buffer))
}

// DeleteNode removes the nodes with the given ids.
func (p *Provider) DeleteNode(ids []int32) {
	p.Dispatch(Command{Kind: CommandDeleteNode, IDs: ids})
}

// UpdateLayout applies the layout encoded in buffer.
func (p *Provider) UpdateLayout(buffer []byte) {
	p.Dispatch(PayloadCommand(CommandUpdateLayout, buffer))
}

// UpdateEventListener applies the listener changes encoded in buffer.
func (p *Provider) UpdateEventListener(buffer []byte) {
	p.Dispatch(PayloadCommand(CommandUpdateEventListener, buffer))
}

// Measure asks the delegate for the size of a node and returns it packed
// with PackSize.
func (p *Provider) Measure(nodeID int32, width float32, widthMode MeasureMode, height float32, heightMode MeasureMode) int64 {
	packed, _ := p.Dispatch(Command{
		Kind:       CommandMeasure,
		NodeID:     nodeID,
		Width:      width,
		WidthMode:  widthMode,
		Height:     height,
		HeightMode: heightMode,
	})
	return packed
}

// CallUIFunction invokes functionName on a node with the arguments encoded
// in buffer.
func (p *Provider) CallUIFunction(nodeID int32, callbackID, functionName string, buffer []byte) {
	cmd := PayloadCommand(CommandCallUIFunction, buffer)
	cmd.NodeID = nodeID
	cmd.CallbackID = callbackID
	cmd.FunctionName = functionName
	p.Dispatch(cmd)
}

// StartBatch opens an atomic group of commands.
func (p *Provider) StartBatch() {
	p.Dispatch(Command{Kind: CommandStartBatch})
}

// EndBatch closes the group opened by StartBatch.
func (p *Provider) EndBatch() {
	p.Dispatch(Command{Kind: CommandEndBatch})
}

func (p *Provider) startBatch(cmd *Command) (int64, error) {
	if err := p.batch.start(); err != nil {
		p.logger().Warn("ignoring startBatch", "err", err, "batch", p.batch.seq)
		return 0, p.report(cmd.Kind.String(), &errors.ProtocolError{Command: cmd.Kind.String(), Err: err})
	}
	p.counters.inBatch.Store(true)
	p.logger().Debug("batch started", "batch", p.batch.seq)
	return 0, p.invoke(cmd, func() error {
		p.delegate.StartBatch()
		return nil
	})
}

func (p *Provider) endBatch(cmd *Command) (int64, error) {
	n, err := p.batch.end()
	if err != nil {
		p.logger().Warn("ignoring endBatch", "err", err)
		return 0, p.report(cmd.Kind.String(), &errors.ProtocolError{Command: cmd.Kind.String(), Err: err})
	}
	p.counters.inBatch.Store(false)
	p.counters.batches.Add(1)
	p.counters.lastBatchSize.Store(n)
	p.logger().Debug("batch ended", "batch", p.batch.seq, "commands", n)
	return 0, p.invoke(cmd, func() error {
		p.delegate.EndBatch()
		return nil
	})
}

func (p *Provider) measure(cmd *Command) (int64, error) {
	var width, height float32
	err := p.invoke(cmd, func() error {
		width, height = p.delegate.Measure(cmd.NodeID, cmd.Width, cmd.WidthMode, cmd.Height, cmd.HeightMode)
		return nil
	})
	if err != nil {
		return PackSize(0, 0), err
	}
	return PackSize(width, height), nil
}

// withArgs decodes the command payload and hands the argument list to fn.
func (p *Provider) withArgs(cmd *Command, fn func(args []any) error) error {
	if cmd.Kind.mutatesTree() {
		p.batch.record()
	}
	args, err := p.bytesToArguments(cmd)
	if err != nil {
		return p.report(cmd.Kind.String(), err)
	}
	return p.invoke(cmd, func() error { return fn(args) })
}

// bytesToArguments decodes a payload region into an argument list. An empty
// region yields an empty list, and so does a root value that is not a list.
func (p *Provider) bytesToArguments(cmd *Command) ([]any, error) {
	if cmd.Length == 0 {
		return []any{}, nil
	}
	v, err := p.deserializer.Decode(cmd.Payload, cmd.Offset, cmd.Length)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	p.logger().Debug("payload root is not a list", "kind", cmd.Kind.String(), "type", fmt.Sprintf("%T", v))
	return []any{}, nil
}

// invoke calls into the delegate, turning a returned error or a panic into a
// reported DispatchError.
func (p *Provider) invoke(cmd *Command, fn func() error) (err error) {
	op := cmd.Kind.String()
	defer func() {
		if r := recover(); r != nil {
			perr := &errors.PanicError{
				Op:         "render." + op,
				Value:      r,
				StackTrace: errors.CaptureStack(),
				Timestamp:  time.Now(),
			}
			errors.ReportPanic(perr)
			err = p.report(op, &errors.DispatchError{Command: op, NodeID: cmd.NodeID, Err: perr})
		}
	}()
	if e := fn(); e != nil {
		return p.report(op, &errors.DispatchError{Command: op, NodeID: cmd.NodeID, Err: e})
	}
	return nil
}

// report wraps err for the error handlers, forwards it to the delegate and
// returns the wrapped error.
func (p *Provider) report(op string, err error) error {
	return p.reportKind(op, errors.KindOf(err), err)
}

func (p *Provider) reportKind(op string, kind errors.ErrorKind, err error) error {
	be := &errors.BridgeError{
		Op:        "render." + op,
		Kind:      kind,
		Err:       err,
		RuntimeID: p.runtimeID,
		Timestamp: time.Now(),
	}
	p.counters.errors.Add(1)
	errors.Report(be)
	func() {
		defer errors.Recover("render.HandleRenderError")
		p.delegate.HandleRenderError(be)
	}()
	return be
}

// OnSizeChanged reports a new root size in pixels. The host receives it in
// dp.
func (p *Provider) OnSizeChanged(width, height int) {
	if p.destroyed.Load() {
		return
	}
	w, h := p.pxToDp(float32(width)), p.pxToDp(float32(height))
	p.logger().Debug("root size changed", "width", w, "height", h)
	p.host.NotifyRootSizeChanged(p.runtimeID, w, h)
}

func (p *Provider) pxToDp(px float32) float32 {
	return px / p.density
}

// DoPromiseCallback resolves or rejects the promise of a callUIFunction.
// params may be nil.
func (p *Provider) DoPromiseCallback(result PromiseCode, functionName, callbackID string, params any) {
	const op = "doPromiseCallback"
	if p.destroyed.Load() {
		p.report(op, &errors.ProtocolError{Command: op, Err: errors.ErrDestroyed})
		return
	}
	p.counters.callbacks.Add(1)
	payload, offset, length := p.argumentsToBytes(op, params)
	p.host.SendCallback(p.runtimeID, result, functionName, callbackID, payload, offset, length)
}

// DispatchEvent delivers a UI event to the scripting side. params may be
// nil.
func (p *Provider) DispatchEvent(nodeID int32, eventName string, params any, useCapture, useBubble bool) {
	const op = "dispatchEvent"
	if p.destroyed.Load() {
		p.report(op, &errors.ProtocolError{Command: op, Err: errors.ErrDestroyed})
		return
	}
	p.counters.events.Add(1)
	payload, offset, length := p.argumentsToBytes(op, params)
	p.host.SendEvent(p.runtimeID, nodeID, eventName, payload, offset, length, useCapture, useBubble)
}

// argumentsToBytes encodes params with the shared writer. Absent params and
// encoding failures both produce an empty region; failures are reported.
func (p *Provider) argumentsToBytes(op string, params any) ([]byte, int, int) {
	if isNil(params) {
		return nil, 0, 0
	}
	p.serializer.Reset()
	p.serializer.WriteHeader()
	if err := p.serializer.WriteValue(params); err != nil {
		p.serializer.Reset()
		p.reportKind(op, errors.KindEncode, err)
		return nil, 0, 0
	}
	return p.writer.Chunked()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Destroy rejects later commands with ErrDestroyed and unregisters the
// runtime. The string table is released on the executor after commands
// already queued there, and the executor then stops; wait on
// Executor().Done() to observe it. Destroy is idempotent and may be called
// from any goroutine, including the executor.
func (p *Provider) Destroy() {
	if !p.destroyed.CompareAndSwap(false, true) {
		return
	}
	Unregister(p)
	exec := p.Executor()
	if !exec.Post(p.release) {
		p.release()
	}
	exec.Close()
}

func (p *Provider) release() {
	p.strings.Release()
	p.logger().Info("runtime destroyed")
}

// Destroyed reports whether Destroy has been called.
func (p *Provider) Destroyed() bool {
	return p.destroyed.Load()
}

// Stats returns a snapshot of the provider counters.
func (p *Provider) Stats() Stats {
	s := p.counters.snapshot()
	s.RuntimeID = p.runtimeID
	s.Density = p.density
	s.Strings = p.strings.Stats()
	s.Destroyed = p.destroyed.Load()
	return s
}
