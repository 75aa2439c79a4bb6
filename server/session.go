package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gonzalop/telnet/internal/ratelimit"
)

// readChunkSize is the largest chunk handed to Conn.Receive at once.
const readChunkSize = 4096

// session is the network side of one accepted connection. It implements
// Transport for its Conn and runs the read loop that feeds it.
type session struct {
	server *Server
	conn   net.Conn
	mu     sync.Mutex // Protects writer
	writer *bufio.Writer
	out    io.Writer

	sessionID string
	remoteIP  string

	tc *Conn
}

// newSession creates a new session.
func newSession(server *Server, conn net.Conn) *session {
	s := &session{
		server:    server,
		conn:      conn,
		sessionID: uuid.NewString(),
		remoteIP:  remoteIP(conn),
	}

	s.out = ratelimit.NewWriter(conn, ratelimit.New(server.outputRateLimit))
	s.writer = bufio.NewWriter(s.out)

	s.tc = NewConn(server.typ, s,
		WithConnID(s.sessionID),
		WithConnMetrics(server.metricsCollector),
		WithConnLogger(server.logger.With("remote_ip", s.remoteIP)),
	)
	return s
}

// Send implements Transport.
func (s *session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Close implements Transport.
func (s *session) Close() error {
	return s.conn.Close()
}

// serve runs the connection until the peer hangs up, a deadline expires, a
// handler closes it or dispatch fails.
//
// The read loop owns the connection: it hands every chunk it reads to the
// Conn, which processes complete lines synchronously. Deferred callbacks
// registered with Conn.After run on timer goroutines but take the same
// Conn lock, so handlers of one connection never overlap.
func (s *session) serve() {
	defer s.close()

	s.server.logger.Info("session_started",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
	)

	if err := s.tc.Connected(); err != nil {
		s.tc.fail(err)
		return
	}

	buf := make([]byte, readChunkSize)
	for {
		s.setReadDeadline()

		n, err := s.conn.Read(buf)
		if n > 0 {
			if derr := s.tc.Receive(buf[:n]); derr != nil {
				s.tc.fail(derr)
				return
			}
		}
		if err != nil {
			s.logReadError(err)
			return
		}
	}
}

func (s *session) setReadDeadline() {
	switch {
	case s.server.readTimeout > 0:
		_ = s.conn.SetReadDeadline(time.Now().Add(s.server.readTimeout))
	case s.server.maxIdleTime > 0:
		_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
	}
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.server.logger.Info("session_idle_timeout",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
		)
	default:
		s.server.logger.Warn("read error",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.tc.EnteredUsername(),
			"error", err,
		)
	}
}

// close closes the connection and runs the disconnect hook.
func (s *session) close() {
	s.conn.Close()
	s.tc.Disconnected()

	s.server.logger.Debug("session_closed",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.tc.EnteredUsername(),
	)
}
