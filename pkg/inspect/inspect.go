// Package inspect serves a JSON-RPC 2.0 debug endpoint for running bridges.
//
// Methods, all under the "Bridge" service at /rpc:
//
//	Bridge.Runtimes  registered runtime ids
//	Bridge.Stats     counters of one runtime
//	Bridge.Decode    base64 payload to JSON
//	Bridge.Encode    JSON value to base64 payload
package inspect

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-drift/renderbridge/pkg/logging"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// Server is the inspector HTTP server.
type Server struct {
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Handler returns the inspector routes without starting a server.
func Handler() http.Handler {
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(new(BridgeService), "Bridge"); err != nil {
		panic(fmt.Sprintf("inspect: register service: %v", err))
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", rpcServer)
	mux.HandleFunc("/health", handleHealth)
	return mux
}

// Start listens on addr and serves the inspector in the background. Use
// port 0 for an ephemeral port and read it back with Addr.
func Start(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("inspect listen: %w", err)
	}
	s := &Server{
		server:   &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
	}
	logging.Logger().Info("inspector listening", "addr", listener.Addr().String())
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Logger().Error("inspector stopped", "err", err)
		}
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
