// Package server exposes the managed consoles over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/headlessctl/headlessctl/internal/console"
	"github.com/headlessctl/headlessctl/internal/network"
	"github.com/headlessctl/headlessctl/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Origins decides which browser origins may open a websocket. Nil only
	// accepts same-origin requests.
	Origins *network.Policy
	// HeadlessConfig is the path of the headless server's config file. Empty
	// disables /api/config.
	HeadlessConfig   string
	SubscriberBuffer int
	Logger           *slog.Logger
}

// Server serves the REST API and the console websocket.
type Server struct {
	registry *session.Registry
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// New creates a server over registry.
func New(registry *session.Registry, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Origins == nil {
		opts.Origins = network.Parse(nil)
	}
	if opts.SubscriberBuffer < 1 {
		opts.SubscriberBuffer = console.DefaultSubscriberBuffer
	}

	return &Server{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.Origins.CheckOrigin,
		},
		clients: make(map[*Client]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/containers", s.handleListContainers)
	mux.HandleFunc("GET /api/containers/{name}/status", s.handleStatus)
	mux.HandleFunc("POST /api/containers/{name}/exec", s.handleExec)
	mux.HandleFunc("POST /api/containers/{name}/{action}", s.handleLifecycle)
	mux.HandleFunc("GET /api/containers/{name}/worlds", s.handleWorlds)
	mux.HandleFunc("GET /api/containers/{name}/users", s.handleUsers)
	mux.HandleFunc("GET /api/containers/{name}/bans", s.handleBans)
	mux.HandleFunc("GET /api/containers/{name}/history", s.handleHistory)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handlePostConfig)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// and disconnects every websocket client.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	s.closeClients()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
