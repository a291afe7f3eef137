package errors

import (
	"log/slog"

	"github.com/go-drift/renderbridge/pkg/logging"
)

// LogHandler is an ErrorHandler that writes errors through slog.
type LogHandler struct {
	// Logger receives the records. When nil, slog.Default() is used so that
	// errors stay visible even while the bridge logger is silent.
	Logger *slog.Logger
	// Verbose enables detailed output including stack traces.
	Verbose bool
}

func (h *LogHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HandleError logs a BridgeError at error level.
func (h *LogHandler) HandleError(err *BridgeError) {
	if err == nil {
		return
	}
	attrs := []any{
		slog.String("op", err.Op),
		slog.String("kind", err.Kind.String()),
		slog.Any("err", err.Err),
	}
	if err.RuntimeID != 0 {
		attrs = append(attrs, slog.Int64("runtime", err.RuntimeID))
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	h.logger().Error("bridge error", attrs...)
}

// HandlePanic logs a PanicError at error level.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []any{slog.Any("value", err.Value)}
	if err.Op != "" {
		attrs = append(attrs, slog.String("op", err.Op))
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	h.logger().Error("bridge panic", attrs...)
}

// NewLogHandler returns a LogHandler bound to the bridge logger.
func NewLogHandler(verbose bool) *LogHandler {
	return &LogHandler{Logger: logging.Logger(), Verbose: verbose}
}
