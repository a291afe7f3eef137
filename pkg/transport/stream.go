package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/go-drift/renderbridge/pkg/render"
)

// MessageType identifies a stream protocol message.
type MessageType uint8

const (
	MsgRequest  MessageType = 0x01
	MsgResponse MessageType = 0x02
	MsgError    MessageType = 0x03
	MsgNotify   MessageType = 0x04
)

// Stream messages are [4 len][1 type][4 reqID][body]; len counts everything
// after itself.
const messageHeaderSize = 1 + 4

const notifyBuffer = 256

func writeMessage(w io.Writer, mu *sync.Mutex, typ MessageType, reqID uint32, body []byte) error {
	n := messageHeaderSize + len(body)
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf := make([]byte, 4+n)
	binary.BigEndian.PutUint32(buf[0:4], uint32(n))
	buf[4] = byte(typ)
	binary.BigEndian.PutUint32(buf[5:9], reqID)
	copy(buf[9:], body)

	mu.Lock()
	defer mu.Unlock()
	_, err := w.Write(buf)
	return err
}

func readMessage(r io.Reader, header []byte) (MessageType, uint32, []byte, error) {
	if _, err := io.ReadFull(r, header[:4]); err != nil {
		return 0, 0, nil, err
	}
	n := binary.BigEndian.Uint32(header[:4])
	if n < messageHeaderSize {
		return 0, 0, nil, fmt.Errorf("%w: message length %d", ErrMalformedFrame, n)
	}
	if n > MaxFrameSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, 0, nil, err
	}
	return MessageType(msg[0]), binary.BigEndian.Uint32(msg[1:5]), msg[5:], nil
}

// Server accepts stream connections, applies their command frames and
// forwards hub notifications to every connection.
type Server struct {
	listener net.Listener
	hub      *Hub
	conns    sync.Map // net.Conn -> struct{}
	closed   atomic.Bool
}

// Listen opens a TCP listener for a stream server.
func Listen(addr string, hub *Hub) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport listen: %w", err)
	}
	return NewServer(l, hub), nil
}

// NewServer serves on an existing listener. hub may be nil when no
// notifications are forwarded.
func NewServer(l net.Listener, hub *Hub) *Server {
	return &Server{listener: l, hub: hub}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	logging.Logger().Info("stream transport listening", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return fmt.Errorf("transport accept: %w", err)
		}
		s.conns.Store(conn, struct{}{})
		if s.closed.Load() {
			conn.Close()
			return nil
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		s.conns.Delete(conn)
		conn.Close()
	}()
	logger := logging.Logger().With("remote", conn.RemoteAddr().String())
	logger.Debug("stream connection opened")

	var writeMu sync.Mutex
	if s.hub != nil {
		frames, cancel := s.hub.Subscribe(notifyBuffer)
		defer cancel()
		go func() {
			for frame := range frames {
				if err := writeMessage(conn, &writeMu, MsgNotify, 0, frame); err != nil {
					return
				}
			}
		}()
	}

	header := make([]byte, 4)
	for {
		typ, reqID, body, err := readMessage(conn, header)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				logger.Warn("stream connection failed", "err", err)
			}
			return
		}
		if typ != MsgRequest {
			continue
		}
		value, err := handleFrame(ctx, body)
		if err != nil {
			err = writeMessage(conn, &writeMu, MsgError, reqID, []byte(err.Error()))
		} else {
			err = writeMessage(conn, &writeMu, MsgResponse, reqID, appendReply(nil, value, nil))
		}
		if err != nil {
			return
		}
	}
}

// Close stops accepting and closes open connections.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.listener.Close()
	s.conns.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
	return err
}

type response struct {
	value int64
	err   error
}

// Client sends command frames over a stream connection. Host notifications
// pushed by the server are available from Notifications.
type Client struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // reqID -> chan response
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
	notify   chan HostMessage
}

// Dial connects to a stream server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport dial: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:     conn,
		readDone: make(chan struct{}),
		notify:   make(chan HostMessage, notifyBuffer),
	}
	go c.readLoop()
	return c
}

// Send applies cmd to runtimeID remotely and returns the reply value.
func (c *Client) Send(ctx context.Context, runtimeID int64, cmd render.Command) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	reqID := c.nextID.Add(1)
	respCh := make(chan response, 1)
	c.pending.Store(reqID, respCh)
	defer c.pending.Delete(reqID)

	if err := writeMessage(c.conn, &c.writeMu, MsgRequest, reqID, AppendCommand(nil, runtimeID, &cmd)); err != nil {
		return 0, fmt.Errorf("transport write: %w", err)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case resp := <-respCh:
		return resp.value, resp.err
	case <-c.readDone:
		return 0, ErrClosed
	}
}

// Notifications returns host messages pushed by the server. The channel is
// closed when the connection ends.
func (c *Client) Notifications() <-chan HostMessage {
	return c.notify
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.notify)

	header := make([]byte, 4)
	for {
		typ, reqID, body, err := readMessage(c.conn, header)
		if err != nil {
			return
		}
		switch typ {
		case MsgNotify:
			m, err := ParseHostMessage(body)
			if err != nil {
				logging.Logger().Warn("bad host frame", "err", err)
				continue
			}
			select {
			case c.notify <- m:
			default:
				logging.Logger().Warn("dropping host message", "kind", m.Kind.String())
			}
		case MsgResponse, MsgError:
			ch, ok := c.pending.Load(reqID)
			if !ok {
				continue
			}
			var resp response
			if typ == MsgError {
				resp.err = &RemoteError{Message: string(body)}
			} else {
				resp.value, resp.err = parseReply(body)
			}
			ch.(chan response) <- resp
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}
