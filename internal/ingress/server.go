// Package ingress accepts WebSocket control connections and feeds parsed frames to a handler.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ws2osc/internal/config"
	"ws2osc/internal/logger"
	"ws2osc/internal/metrics"
	"ws2osc/internal/parser"
)

var (
	ErrAlreadyStarted = errors.New("ingress server already started")
	ErrNilHandler     = errors.New("ingress handler must not be nil")
)

// Handler receives the non-empty result of parsing one frame.
type Handler func(parser.Commands) error

// Config bounds resource use per connection.
type Config struct {
	Host         string // empty listens on all interfaces
	Port         int
	Path         string
	MaxFrameSize int64
	MaxQueue     int
	PingInterval time.Duration
	PingTimeout  time.Duration
	CloseTimeout time.Duration
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c config.WebSocketConf) Config {
	return Config{
		Port:         c.Port,
		Path:         c.Path,
		MaxFrameSize: c.MaxFrameSize,
		MaxQueue:     c.MaxQueue,
		PingInterval: c.PingInterval.Duration,
		PingTimeout:  c.PingTimeout.Duration,
		CloseTimeout: c.CloseTimeout.Duration,
	}
}

// Server is the WebSocket ingress. It sends nothing back to clients except control frames.
type Server struct {
	cfg      Config
	handler  Handler
	logger   logger.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	lifecycleMu sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
	serveDone   chan struct{}

	clientsMu sync.RWMutex
	clients   map[*client]struct{}
	closing   bool
	wg        sync.WaitGroup
}

type client struct {
	conn   *websocket.Conn
	remote string
}

// NewServer конструктор. The handler is fixed for the lifetime of the server.
func NewServer(cfg Config, handler Handler, log logger.Logger, m *metrics.Metrics) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 1
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = time.Second
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  log,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}, nil
}

// Start binds the listening socket. A bind failure is returned to the caller.
func (s *Server) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.clientsMu.Lock()
	s.closing = false
	s.clientsMu.Unlock()

	s.listener = ln
	s.serveDone = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Errorf("websocket server stopped: %v", err)
		}
	}(s.httpServer, s.serveDone)

	s.log().Infof("websocket server listening on %s%s", ln.Addr(), s.cfg.Path)
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, waits until the port is released, then closes every
// connection. Connections get CloseTimeout to finish the closing handshake.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.listener == nil {
		return nil
	}

	// hijacked websocket connections are not tracked by http.Server
	err := s.httpServer.Shutdown(ctx)
	<-s.serveDone
	s.listener = nil
	s.httpServer = nil

	s.clientsMu.Lock()
	s.closing = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	deadline := time.Now().Add(s.cfg.CloseTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
	for _, c := range clients {
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			_ = c.conn.Close()
		}
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		s.forceClose()
		<-drained
	case <-ctx.Done():
		s.forceClose()
		<-drained
	}

	s.log().Info("websocket server stopped")
	return err
}

func (s *Server) forceClose() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.Path {
		s.log().Warnf("invalid path %q from %s", r.URL.Path, r.RemoteAddr)
		reject(w)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := &client{conn: conn, remote: r.RemoteAddr}
	if !s.register(c) {
		_ = conn.Close()
		return
	}
	defer s.unregister(c)

	s.serve(c)
}

// reject drops the connection without writing a response.
func reject(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

func (s *Server) register(c *client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.metrics.ConnectionOpened()
	s.log().With(logger.Fields{"remote": c.remote}).Infof("client connected, %d active", len(s.clients))
	return true
}

func (s *Server) unregister(c *client) {
	_ = c.conn.Close()

	s.clientsMu.Lock()
	s.metrics.ConnectionClosed()
	delete(s.clients, c)
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.log().With(logger.Fields{"remote": c.remote}).Infof("client disconnected, %d active", n)
	s.wg.Done()
}

func (s *Server) log() *logger.Log {
	return s.logger.With(logger.Fields{"module": "websocket"})
}
