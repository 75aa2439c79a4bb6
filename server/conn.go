package server

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is what a Conn needs from the network layer: a way to write
// outbound text and a way to hang up. Server provides one per accepted TCP
// connection; tests and other transports can provide their own.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// CustomHandler receives the complete content of one buffer flush.
type CustomHandler func(c *Conn, buffer string) error

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithConnLogger sets the logger used for connection events.
func WithConnLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithConnMetrics sets the collector that receives command and login
// metrics.
func WithConnMetrics(m MetricsCollector) ConnOption {
	return func(c *Conn) {
		c.metrics = m
	}
}

// WithConnID sets the identifier used in logs.
func WithConnID(id string) ConnOption {
	return func(c *Conn) {
		c.id = id
	}
}

// Conn is the state of one client connection: its input buffer, login
// progress and pending custom handler. All input processing of a Conn is
// serialized, so handlers never run concurrently for the same connection.
//
// The transport drives a Conn by calling Connected once, Receive for every
// chunk of bytes that arrives, and Disconnected when the peer is gone.
type Conn struct {
	typ       *Type
	transport Transport
	logger    *slog.Logger
	metrics   MetricsCollector
	id        string

	// mu serializes Connected, Receive, Disconnected and After callbacks.
	mu             sync.Mutex
	buffer         LineBuffer
	login          loginMachine
	customHandler  CustomHandler
	currentCommand string
	values         map[string]any

	closed   atomic.Bool
	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// NewConn returns the state for a new connection of type t that writes
// through transport.
func NewConn(t *Type, transport Transport, options ...ConnOption) *Conn {
	c := &Conn{
		typ:       t,
		transport: transport,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		values:    make(map[string]any),
		timers:    make(map[*time.Timer]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Connected starts the login sequence if the type requires one, otherwise
// it authorizes the connection right away.
func (c *Conn) Connected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.typ.LoginRequired() {
		return c.login.start(c)
	}
	return c.authorize()
}

// Receive appends chunk to the input buffer and processes the buffer if it
// ends with a newline. Unknown commands are handled here; any error returned
// comes from a handler or an invalid action and should end the connection.
func (c *Conn) Receive(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	if c.metrics != nil {
		c.metrics.RecordBytes("in", len(chunk))
	}

	c.buffer.Append(chunk)
	if !c.buffer.Ready() {
		return nil
	}
	return c.processBuffer()
}

// Disconnected cancels pending callbacks and runs the disconnect hook.
func (c *Conn) Disconnected() {
	c.closed.Store(true)
	c.stopTimers()

	c.mu.Lock()
	defer c.mu.Unlock()

	if fn, ok := lookup(c.typ, func(x *Type) (func(*Conn), bool) {
		return x.onDisconnect, x.onDisconnect != nil
	}); ok {
		fn(c)
	}
}

// Close hangs up. Buffered input that has not been processed is discarded
// and pending After callbacks never run.
func (c *Conn) Close() error {
	c.closed.Store(true)
	c.stopTimers()
	return c.transport.Close()
}

// Closed reports whether Close or Disconnected has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Send writes s as is.
func (c *Conn) Send(s string) error {
	if c.metrics != nil {
		c.metrics.RecordBytes("out", len(s))
	}
	return c.transport.Send([]byte(s))
}

// SendOutput writes s followed by the command prompt. A newline is added to
// s unless it is empty or already ends with one.
func (c *Conn) SendOutput(s string) error {
	if s != "" && s[len(s)-1] != '\n' {
		s += "\n"
	}
	if err := c.Send(s); err != nil {
		return err
	}
	return c.SendCommandPrompt()
}

// SendCommandPrompt writes the command_prompt option.
func (c *Conn) SendCommandPrompt() error {
	return c.Send(c.typ.StringOption(OptionCommandPrompt))
}

// SetCustomHandler makes fn receive the next buffer flush instead of the
// login sequence or the command table. It is used once and then removed; a
// handler that wants more input installs itself again.
func (c *Conn) SetCustomHandler(fn CustomHandler) {
	c.customHandler = fn
}

// CustomHandler returns the pending custom handler, if any.
func (c *Conn) CustomHandler() CustomHandler {
	return c.customHandler
}

// Phase returns the login phase.
func (c *Conn) Phase() Phase { return c.login.phase }

// Authorized reports whether commands are being dispatched.
func (c *Conn) Authorized() bool { return c.login.phase == PhaseAuthorized }

// EnteredUsername returns the username typed at the login prompt. It is set
// before the password is checked, so it does not imply authorization.
func (c *Conn) EnteredUsername() string { return c.login.username }

// EnteredPassword returns the password typed at the password prompt.
func (c *Conn) EnteredPassword() string { return c.login.password }

// AuthorizedRole returns the role of the login that was accepted.
func (c *Conn) AuthorizedRole() Role { return c.login.role }

// CurrentCommand returns the line being, or last, dispatched.
func (c *Conn) CurrentCommand() string { return c.currentCommand }

// Type returns the connection's type.
func (c *Conn) Type() *Type { return c.typ }

// Option returns the resolved option key of the connection's type.
func (c *Conn) Option(key string) (any, bool) { return c.typ.Option(key) }

// ID returns the connection identifier used in logs.
func (c *Conn) ID() string { return c.id }

// Logger returns the connection's logger.
func (c *Conn) Logger() *slog.Logger { return c.logger }

// Set stores a per-connection value for handlers.
func (c *Conn) Set(key string, value any) { c.values[key] = value }

// Value returns a value stored with Set.
func (c *Conn) Value(key string) any { return c.values[key] }

// After runs fn once d has elapsed, serialized with the connection's input
// processing. It returns immediately. fn does not run if the connection is
// closed first. An error from fn is logged and closes the connection.
func (c *Conn) After(d time.Duration, fn func(c *Conn) error) {
	if c.closed.Load() {
		return
	}

	var t *time.Timer
	c.timersMu.Lock()
	t = time.AfterFunc(d, func() {
		c.timersMu.Lock()
		delete(c.timers, t)
		c.timersMu.Unlock()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed.Load() {
			return
		}
		if err := fn(c); err != nil {
			c.fail(err)
		}
	})
	c.timers[t] = struct{}{}
	c.timersMu.Unlock()
}

func (c *Conn) stopTimers() {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	for t := range c.timers {
		t.Stop()
		delete(c.timers, t)
	}
}

// fail logs an error that ends the connection and closes it.
func (c *Conn) fail(err error) {
	c.logger.Error("dispatch_error",
		"session_id", c.id,
		"user", c.login.username,
		"command", c.currentCommand,
		"error", err,
	)
	_ = c.Close()
}
