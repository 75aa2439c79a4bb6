package telnet

import (
	"fmt"
	"os"
	"strings"
)

// TimeoutError is returned when the expected prompt did not arrive in time.
// It keeps whatever output was read before the deadline, which usually
// shows what the server was doing instead.
type TimeoutError struct {
	// Prompt is the expression that was being waited for
	Prompt string

	// Output is the partial output read before the deadline
	Output string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("telnet: timed out waiting for prompt %s after %d bytes", e.Prompt, len(e.Output))
}

// Timeout reports true; TimeoutError satisfies net.Error's Timeout method.
func (e *TimeoutError) Timeout() bool { return true }

// Unwrap lets errors.Is(err, os.ErrDeadlineExceeded) match.
func (e *TimeoutError) Unwrap() error { return os.ErrDeadlineExceeded }

// LoginError is returned by Login when the server rejects the credentials
// and asks for a login again.
type LoginError struct {
	User string

	// Message is what the server sent before prompting again
	Message string
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("telnet: login failed for %q", e.User)
	}
	return fmt.Sprintf("telnet: login failed for %q: %s", e.User, msg)
}
