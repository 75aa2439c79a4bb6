package telnet

import (
	"bufio"
	"errors"
	"net"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer accepts a single connection and runs script on it.
type mockServer struct {
	listener net.Listener
	addr     string
	// lines records every line the client sent
	lines chan string
	done  chan struct{}
}

func newMockServer(t *testing.T, script func(conn net.Conn, s *mockServer, r *bufio.Reader)) *mockServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &mockServer{
		listener: l,
		addr:     l.Addr().String(),
		lines:    make(chan string, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, s, bufio.NewReader(conn))
	}()
	t.Cleanup(func() {
		l.Close()
		<-s.done
	})
	return s
}

// readLine reads one line from the client and records it.
func (s *mockServer) readLine(r *bufio.Reader) (string, bool) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	s.lines <- line
	return line, true
}

func loginScript(accept func(user, pass string) bool) func(net.Conn, *mockServer, *bufio.Reader) {
	return func(conn net.Conn, s *mockServer, r *bufio.Reader) {
		for {
			conn.Write([]byte("login: "))
			user, ok := s.readLine(r)
			if !ok {
				return
			}
			conn.Write([]byte("password: "))
			pass, ok := s.readLine(r)
			if !ok {
				return
			}
			if accept(user, pass) {
				break
			}
			conn.Write([]byte("Sorry, please try again.\n"))
		}
		conn.Write([]byte("$ "))
		for {
			line, ok := s.readLine(r)
			if !ok {
				return
			}
			switch {
			case strings.HasPrefix(line, "echo "):
				conn.Write([]byte(strings.TrimPrefix(line, "echo ") + "\n$ "))
			case line == "more":
				conn.Write([]byte("more> "))
			case line == "stall":
				conn.Write([]byte("working"))
			default:
				conn.Write([]byte("$ "))
			}
		}
	}
}

func TestDial_InvalidAddress(t *testing.T) {
	t.Parallel()
	_, err := Dial("no-port-here")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestDial_InvalidOption(t *testing.T) {
	t.Parallel()
	_, err := Dial("127.0.0.1:1", WithPrompt("("))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt")
}

func TestLoginAndCmd(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, loginScript(func(user, pass string) bool {
		return user == "alice" && pass == "secret"
	}))

	c, err := Dial(s.addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Login("alice", "secret"))
	assert.Equal(t, "alice", <-s.lines)
	assert.Equal(t, "secret", <-s.lines)

	out, err := c.Cmd("echo hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}

func TestLogin_Rejected(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, loginScript(func(string, string) bool { return false }))

	c, err := Dial(s.addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	err = c.Login("alice", "wrong")
	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "alice", loginErr.User)
	assert.Equal(t, "Sorry, please try again.\n", loginErr.Message)
	assert.Contains(t, err.Error(), "Sorry, please try again.")
}

func TestCmdPrompt(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, loginScript(func(string, string) bool { return true }))

	c, err := Dial(s.addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Login("u", "p"))

	out, err := c.CmdPrompt("more", regexp.MustCompile(`more> $`))
	require.NoError(t, err)
	assert.Equal(t, "", out)

	out, err = c.Cmd("")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestCmd_Timeout(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, loginScript(func(string, string) bool { return true }))

	c, err := Dial(s.addr, WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Login("u", "p"))

	_, err = c.Cmd("stall")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "working", timeoutErr.Output)
	assert.Equal(t, DefaultPrompt, timeoutErr.Prompt)
	assert.True(t, timeoutErr.Timeout())
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestWaitFor_NoLogin(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, func(conn net.Conn, s *mockServer, r *bufio.Reader) {
		conn.Write([]byte("Welcome\nbox$ "))
		if line, ok := s.readLine(r); ok {
			conn.Write([]byte("got " + line + "\nbox$ "))
		}
		s.readLine(r)
	})

	c, err := Dial(s.addr, WithTimeout(2*time.Second), WithPrompt(`box\$ $`))
	require.NoError(t, err)
	defer c.Close()

	out, err := c.WaitFor(c.prompt)
	require.NoError(t, err)
	assert.Equal(t, "Welcome\n", out)

	require.NoError(t, c.Write("x\n"))
	out, err = c.WaitFor(c.prompt)
	require.NoError(t, err)
	assert.Equal(t, "got x\n", out)
}

func TestWaitFor_ConnectionClosed(t *testing.T) {
	t.Parallel()
	s := newMockServer(t, func(conn net.Conn, _ *mockServer, _ *bufio.Reader) {
		conn.Write([]byte("bye\n"))
	})

	c, err := Dial(s.addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.WaitFor(c.prompt)
	require.Error(t, err)
	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestOptions_Validation(t *testing.T) {
	t.Parallel()
	c := &Client{}

	tests := []struct {
		name string
		opt  Option
	}{
		{"negative timeout", WithTimeout(-time.Second)},
		{"bad prompt", WithPrompt("[")},
		{"bad login prompt", WithLoginPrompt("[")},
		{"bad password prompt", WithPasswordPrompt("[")},
		{"nil logger", WithLogger(nil)},
		{"nil dialer", WithDialer(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.opt(c))
		})
	}

	require.NoError(t, WithLoginPrompt(`user: $`)(c))
	assert.Equal(t, `user: $`, c.loginPrompt.String())
}
