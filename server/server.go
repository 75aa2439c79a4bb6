package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Server accepts TCP connections and serves a Type on each of them.
//
// Each connection runs in its own goroutine with its own Conn; connections
// never share state.
//
// Lifecycle:
//  1. Declare a Type and create the server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Server runs until Shutdown() is called or the listener fails
//
// Basic example:
//
//	console := server.NewType("console", nil)
//	console.HasCommand(server.Literal("ping"), server.Do(func(c *server.Conn, _ []string) error {
//	    return c.SendOutput("pong")
//	}))
//	s, err := server.NewServer(":2323", console)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on.
	addr string

	// typ is served on every connection.
	typ *Type

	logger           *slog.Logger
	metricsCollector MetricsCollector

	// maxIdleTime is the maximum time a connection can be idle before being closed.
	// Defaults to 5 minutes.
	maxIdleTime time.Duration

	// readTimeout is the deadline for read operations on connections.
	// If 0, no timeout is applied.
	readTimeout time.Duration

	// writeTimeout is the deadline for write operations on connections.
	// If 0, no timeout is applied.
	writeTimeout time.Duration

	// maxConnections is the maximum number of simultaneous connections.
	// If 0, there is no limit.
	maxConnections int

	// maxConnectionsPerIP is the maximum number of simultaneous connections per IP.
	// If 0, there is no per-IP limit.
	maxConnectionsPerIP int

	// outputRateLimit throttles writes to each connection, in bytes per second.
	outputRateLimit int64

	// activeConns tracks the number of currently active connections.
	activeConns atomic.Int32

	// connsByIP tracks the number of active connections per IP address.
	connsByIP   map[string]int32
	connsByIPMu sync.Mutex

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
	wg         sync.WaitGroup
}

// ErrServerClosed is returned by Serve and ListenAndServe after a call to
// Shutdown.
var ErrServerClosed = errors.New("telnet: Server closed")

// NewServer creates a server for t. An empty addr listens on localhost at
// the port option of t.
//
// Default values:
//   - Logger: slog.Default()
//   - MaxIdleTime: 5 minutes
//   - MaxConnections: 0 (unlimited)
//   - OutputRateLimit: 0 (unlimited)
func NewServer(addr string, t *Type, options ...Option) (*Server, error) {
	if t == nil {
		return nil, fmt.Errorf("type is required")
	}
	if addr == "" {
		addr = net.JoinHostPort("localhost", t.StringOption(OptionPort))
	}

	s := &Server{
		addr:        addr,
		typ:         t,
		logger:      slog.Default(),
		maxIdleTime: 5 * time.Minute,
		conns:       make(map[net.Conn]struct{}),
		connsByIP:   make(map[string]int32),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Addr returns the address the server was configured with.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("server listening", "addr", ln.Addr().String(), "type", s.typ.Name())
	return s.Serve(ln)
}

// Shutdown stops the server.
//
// It closes the listener, closes all active connections and waits for
// their goroutines to finish or ctx to be done, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	for conn := range maps.Keys(conns) {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or Shutdown is called.
//
// For graceful shutdown, call Shutdown from another goroutine:
//
//	ln, _ := net.Listen("tcp", ":2323")
//	go func() {
//	    <-ctx.Done()
//	    s.Shutdown(context.Background())
//	}()
//	s.Serve(ln)
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		s.mu.Lock()
		if s.inShutdown.Load() {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection handles a new client connection.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		return
	}
	defer s.trackConnection(conn, false)

	ip := remoteIP(conn)
	if reason, ok := s.admit(ip); !ok {
		s.logger.Warn("connection_rejected",
			"remote_ip", ip,
			"reason", reason,
		)
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, reason)
		}
		fmt.Fprint(conn, "Too many connections.\n")
		conn.Close()
		return
	}
	defer s.release(ip)

	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	newSession(s, conn).serve()
}

// admit reserves a connection slot for ip, or returns why it can't.
func (s *Server) admit(ip string) (string, bool) {
	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		return "global_limit_reached", false
	}

	s.connsByIPMu.Lock()
	defer s.connsByIPMu.Unlock()
	if s.maxConnectionsPerIP > 0 && s.connsByIP[ip] >= int32(s.maxConnectionsPerIP) {
		return "per_ip_limit_reached", false
	}
	s.connsByIP[ip]++
	s.activeConns.Add(1)
	return "", true
}

func (s *Server) release(ip string) {
	s.activeConns.Add(-1)

	s.connsByIPMu.Lock()
	defer s.connsByIPMu.Unlock()
	s.connsByIP[ip]--
	if s.connsByIP[ip] <= 0 {
		delete(s.connsByIP, ip)
	}
}

// trackConnection returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.inShutdown.Load() {
			conn.Close()
			return false
		}
		s.conns[conn] = struct{}{}
		return true
	}
	delete(s.conns, conn)
	return true
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return int(s.activeConns.Load())
}

func remoteIP(conn net.Conn) string {
	remoteAddr := conn.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}
