package telnet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"time"
)

// Client is a connection to a line-oriented console server.
//
// A Client is safe for concurrent use, but the conversation is sequential:
// each call sends a line and reads until a prompt, so concurrent calls are
// serialized.
type Client struct {
	// conn is the underlying network connection
	conn *deadlineConn

	// reader is a buffered reader over conn
	reader *bufio.Reader

	// timeout bounds the dial, each write, and each wait for a prompt
	timeout time.Duration

	// prompt, loginPrompt and passwordPrompt are matched against the output
	// accumulated since the last line was sent
	prompt         *regexp.Regexp
	loginPrompt    *regexp.Regexp
	passwordPrompt *regexp.Regexp

	// logger is used for debug logging
	logger *slog.Logger

	// dialer is used to establish connections
	dialer *net.Dialer

	mu sync.Mutex
}

// Default prompt expressions. They match the default prompts of the server
// package at the end of the output.
const (
	DefaultPrompt         = `[$%#>] $`
	DefaultLoginPrompt    = `(?i)login: ?$`
	DefaultPasswordPrompt = `(?i)password: ?$`
)

// Dial connects to a console server at the given address.
// The address should be in the form "host:port".
//
// Dial does not read anything: call Login for servers that require it, or
// WaitFor to consume the first prompt.
//
// Example:
//
//	client, err := telnet.Dial("localhost:10023")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Login("alice", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := client.Cmd("echo hello")
func Dial(addr string, options ...Option) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Client{
		timeout:        10 * time.Second,
		prompt:         regexp.MustCompile(DefaultPrompt),
		loginPrompt:    regexp.MustCompile(DefaultLoginPrompt),
		passwordPrompt: regexp.MustCompile(DefaultPasswordPrompt),
		dialer:         &net.Dialer{},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)), // No-op logger by default
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	c.dialer.Timeout = c.timeout

	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = &deadlineConn{Conn: conn, timeout: c.timeout}
	c.reader = bufio.NewReader(c.conn)

	c.logger.Debug("connected", "addr", addr)
	return c, nil
}

// Login waits for the login prompt, sends user, waits for the password
// prompt and sends pass. It returns once the command prompt arrives.
//
// If the server asks for the login again, the credentials were rejected and
// Login returns a *LoginError carrying the server's message.
func (c *Client) Login(user, pass string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, _, err := c.waitFor(c.loginPrompt); err != nil {
		return err
	}
	if err := c.writeLine(user); err != nil {
		return err
	}
	if _, _, err := c.waitFor(c.passwordPrompt); err != nil {
		return err
	}
	if err := c.writeLine(pass); err != nil {
		return err
	}

	out, idx, err := c.waitFor(c.prompt, c.loginPrompt)
	if err != nil {
		return err
	}
	if idx == 1 {
		c.logger.Debug("login rejected", "user", user)
		return &LoginError{User: user, Message: out}
	}
	c.logger.Debug("logged in", "user", user)
	return nil
}

// Cmd sends line followed by a newline and returns the output that precedes
// the next command prompt.
func (c *Client) Cmd(line string) (string, error) {
	return c.CmdPrompt(line, c.prompt)
}

// CmdPrompt is like Cmd but waits for prompt instead of the command prompt.
func (c *Client) CmdPrompt(line string, prompt *regexp.Regexp) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLine(line); err != nil {
		return "", err
	}
	out, _, err := c.waitFor(prompt)
	return out, err
}

// WaitFor reads until prompt matches the output read so far and returns the
// output that precedes the match.
func (c *Client) WaitFor(prompt *regexp.Regexp) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, _, err := c.waitFor(prompt)
	return out, err
}

// Write sends s verbatim, without appending a newline and without waiting
// for output.
func (c *Client) Write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.write(s)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) writeLine(line string) error {
	return c.write(line + "\n")
}

func (c *Client) write(s string) error {
	c.logger.Debug("sent", "data", s)
	if _, err := io.WriteString(c.conn, s); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

// waitFor reads byte by byte until one of prompts matches the accumulated
// output. It returns the output before the match and the index of the
// matching prompt.
func (c *Client) waitFor(prompts ...*regexp.Regexp) (string, int, error) {
	c.conn.startWait()
	defer c.conn.endWait()

	var out []byte
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return "", -1, &TimeoutError{Prompt: promptString(prompts), Output: string(out)}
			}
			return "", -1, fmt.Errorf("failed to read: %w", err)
		}
		out = append(out, b)

		for i, p := range prompts {
			if loc := p.FindIndex(out); loc != nil {
				s := string(out[:loc[0]])
				c.logger.Debug("received", "data", string(out))
				return s, i, nil
			}
		}
	}
}

func promptString(prompts []*regexp.Regexp) string {
	if len(prompts) == 1 {
		return prompts[0].String()
	}
	return fmt.Sprint(prompts)
}
