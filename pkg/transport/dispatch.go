package transport

import (
	"context"
	"fmt"

	"github.com/go-drift/renderbridge/pkg/errors"
	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/go-drift/renderbridge/pkg/render"
)

// HandleFrame applies one command frame to its registered runtime and
// returns the reply frame. The command runs on the runtime's executor, so
// concurrent connections never touch a provider at the same time.
func HandleFrame(ctx context.Context, frame []byte) []byte {
	value, err := handleFrame(ctx, frame)
	return appendReply(nil, value, err)
}

func handleFrame(ctx context.Context, frame []byte) (int64, error) {
	runtimeID, cmd, err := ParseCommand(frame)
	if err != nil {
		errors.Report(&errors.BridgeError{
			Op:   "transport.ParseCommand",
			Kind: errors.KindTransport,
			Err:  err,
		})
		return 0, err
	}
	p := render.Find(runtimeID)
	if p == nil {
		err := fmt.Errorf("%w: %d", errors.ErrUnknownRuntime, runtimeID)
		errors.Report(&errors.BridgeError{
			Op:        "transport.HandleFrame",
			Kind:      errors.KindTransport,
			Err:       err,
			RuntimeID: runtimeID,
		})
		return 0, err
	}

	var value int64
	var dispatchErr error
	if err := p.Executor().Run(ctx, func() {
		value, dispatchErr = p.Dispatch(cmd)
	}); err != nil {
		return 0, err
	}
	logging.Logger().Debug("frame handled", "runtime", runtimeID, "kind", cmd.Kind.String(), "err", dispatchErr)
	return value, dispatchErr
}
