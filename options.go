package telnet

import (
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithTimeout sets the timeout for connection and operations.
// It bounds the dial, every write and every wait for a prompt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must be non-negative")
		}
		c.timeout = timeout
		return nil
	}
}

// WithPrompt sets the expression that recognizes the command prompt.
// It is matched against the output accumulated since the last line was
// sent, so it should usually be anchored at the end with $.
//
// Example:
//
//	client, _ := telnet.Dial("localhost:10023",
//	    telnet.WithPrompt(`demo\$ $`),
//	)
func WithPrompt(expr string) Option {
	return func(c *Client) error {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid prompt: %w", err)
		}
		c.prompt = re
		return nil
	}
}

// WithLoginPrompt sets the expression that recognizes the login prompt.
func WithLoginPrompt(expr string) Option {
	return func(c *Client) error {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid login prompt: %w", err)
		}
		c.loginPrompt = re
		return nil
	}
}

// WithPasswordPrompt sets the expression that recognizes the password prompt.
func WithPasswordPrompt(expr string) Option {
	return func(c *Client) error {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid password prompt: %w", err)
		}
		c.passwordPrompt = re
		return nil
	}
}

// WithLogger enables debug logging using the provided logger.
// Everything sent and received is logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer for establishing connections.
// This can be used to configure source addresses, keep-alive settings, etc.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		c.dialer = dialer
		return nil
	}
}
