package telnet

import (
	"net"
	"time"
)

// deadlineConn wraps a net.Conn and sets a deadline before every operation.
//
// Writes get a fresh timeout each time. Reads issued between startWait and
// endWait share a single deadline, so one wait for a prompt is bounded as a
// whole rather than per read.
type deadlineConn struct {
	net.Conn
	timeout  time.Duration
	deadline time.Time
}

func (c *deadlineConn) startWait() {
	if c.timeout > 0 {
		c.deadline = time.Now().Add(c.timeout)
	}
}

func (c *deadlineConn) endWait() {
	c.deadline = time.Time{}
}

func (c *deadlineConn) Read(b []byte) (n int, err error) {
	deadline := c.deadline
	if deadline.IsZero() && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if !deadline.IsZero() {
		if err := c.Conn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
