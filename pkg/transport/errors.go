package transport

import "errors"

var (
	// ErrMalformedFrame is returned for frames that cannot be parsed.
	ErrMalformedFrame = errors.New("transport: malformed frame")
	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame too large")
	// ErrClosed is returned by operations on a closed client or server.
	ErrClosed = errors.New("transport: connection closed")
)

// RemoteError carries an error message returned by the remote side.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}
