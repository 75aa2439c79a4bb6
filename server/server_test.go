package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/telnet"
)

// startServer serves typ on a random local port until the test ends.
func startServer(t *testing.T, typ *Type, opts ...Option) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s, err := NewServer(addr, typ, opts...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Logf("Shutdown failed: %v", err)
		}
		if err := <-done; !errors.Is(err, ErrServerClosed) {
			t.Logf("Serve returned %v", err)
		}
	})
	return s, addr
}

// prompt compiles a prompt expression for the test client.
func prompt(expr string) *regexp.Regexp { return regexp.MustCompile(expr) }

func dial(t *testing.T, addr string, opts ...telnet.Option) *telnet.Client {
	t.Helper()
	opts = append([]telnet.Option{telnet.WithTimeout(2 * time.Second)}, opts...)
	c, err := telnet.Dial(addr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	_, err := NewServer(":0", nil)
	assert.Error(t, err, "a type is required")

	s, err := NewServer("", NewType("default", nil))
	require.NoError(t, err)
	assert.Equal(t, "localhost:10023", s.Addr())

	typ := NewType("custom", nil)
	typ.HasOption(OptionPort, 2323)
	s, err = NewServer("", typ)
	require.NoError(t, err)
	assert.Equal(t, "localhost:2323", s.Addr())

	_, err = NewServer(":0", typ, WithLogger(nil))
	assert.Error(t, err)
}

func TestServer_Echo(t *testing.T) {
	t.Parallel()
	_, addr := startServer(t, echoType())
	c := dial(t, addr)

	_, err := c.WaitFor(prompt(`\$ $`))
	require.NoError(t, err)

	out, err := c.Cmd("echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = c.Cmd("nope")
	require.NoError(t, err)
	assert.Equal(t, "Command \"nope\" is not known.\n", out)
}

func TestServer_Login(t *testing.T) {
	t.Parallel()
	_, addr := startServer(t, loginType())

	c := dial(t, addr)
	require.NoError(t, c.Login("alice", "secret"))
	out, err := c.Cmd("echo logged in")
	require.NoError(t, err)
	assert.Equal(t, "logged in\n", out)

	bad := dial(t, addr)
	err = bad.Login("alice", "wrong")
	var loginErr *telnet.LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "Sorry, please try again.\n", loginErr.Message)

	// The server asks again, so a second attempt on the same connection works.
	// Each answer must be its own flush.
	_, err = bad.CmdPrompt("bob", prompt(`password: $`))
	require.NoError(t, err)
	_, err = bad.Cmd("hunter2")
	require.NoError(t, err)
}

func TestServer_HandlerErrorClosesConnection(t *testing.T) {
	t.Parallel()
	typ := NewType("failing", echoType())
	typ.HasCommand(Literal("fail"), Do(func(*Conn, []string) error { return errors.New("boom") }))
	_, addr := startServer(t, typ)

	c := dial(t, addr)
	_, err := c.WaitFor(prompt(`\$ $`))
	require.NoError(t, err)

	_, err = c.Cmd("fail")
	require.Error(t, err)
	var timeoutErr *telnet.TimeoutError
	assert.False(t, errors.As(err, &timeoutErr), "the server hangs up instead of stalling")
}

func TestServer_IdleTimeout(t *testing.T) {
	t.Parallel()
	_, addr := startServer(t, echoType(), WithMaxIdleTime(100*time.Millisecond))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(conn)
	require.NoError(t, err, "the server closes the connection")
	assert.Equal(t, "$ ", string(data))
}

func TestServer_OutputRateLimit(t *testing.T) {
	t.Parallel()
	_, addr := startServer(t, echoType(), WithOutputRateLimit(1<<20))
	c := dial(t, addr)

	_, err := c.WaitFor(prompt(`\$ $`))
	require.NoError(t, err)
	out, err := c.Cmd("echo throttled")
	require.NoError(t, err)
	assert.Equal(t, "throttled\n", out)
}

func TestServer_DisconnectHook(t *testing.T) {
	t.Parallel()
	typ := NewType("hooks", echoType())
	gone := make(chan string, 1)
	typ.OnDisconnect(func(c *Conn) { gone <- c.ID() })
	_, addr := startServer(t, typ)

	c := dial(t, addr)
	_, err := c.WaitFor(prompt(`\$ $`))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case id := <-gone:
		assert.NotEmpty(t, id, "sessions get an id")
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook did not run")
	}
}

func TestServer_ConnectionsAreIndependent(t *testing.T) {
	t.Parallel()
	typ := NewType("counter", echoType())
	typ.HasCommand(Literal("inc"), Do(func(c *Conn, _ []string) error {
		n, _ := c.Value("n").(int)
		n++
		c.Set("n", n)
		return c.SendOutput(string(rune('0' + n)))
	}))
	_, addr := startServer(t, typ)

	a, b := dial(t, addr), dial(t, addr)
	for _, c := range []*telnet.Client{a, b} {
		_, err := c.WaitFor(prompt(`\$ $`))
		require.NoError(t, err)
	}

	out, _ := a.Cmd("inc")
	assert.Equal(t, "1\n", out)
	out, _ = a.Cmd("inc")
	assert.Equal(t, "2\n", out)
	out, _ = b.Cmd("inc")
	assert.Equal(t, "1\n", out)
}

// readRejection reads what the server sends to a connection over the limit.
func readRejection(t *testing.T, addr string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, _ := bufio.NewReader(conn).ReadString('\n')
	return line
}
