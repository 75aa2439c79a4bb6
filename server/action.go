package server

import (
	"errors"
	"fmt"
)

// HandlerFunc handles a matched command. args holds the capture groups of a
// regexp pattern and is nil for literal patterns.
//
// Returning an error produced by UnknownCommand makes the dispatcher treat the
// line as unknown. Any other error is fatal for the connection.
type HandlerFunc func(c *Conn, args []string) error

// Action is what a command runs when its pattern matches. It is either a
// named method (Call) or a closure (Do). A nil Action accepts the line
// without doing anything.
type Action interface {
	// String describes the action for listings and errors.
	String() string

	resolve(t *Type) (HandlerFunc, error)
}

type methodAction string

// Call returns an action that invokes the method registered under name with
// Type.HasMethod, looked up on the connection's type when the command runs.
func Call(name string) Action {
	return methodAction(name)
}

func (a methodAction) String() string { return "method " + string(a) }

func (a methodAction) resolve(t *Type) (HandlerFunc, error) {
	fn, ok := t.Method(string(a))
	if !ok || fn == nil {
		return nil, &InvalidActionError{Action: a.String(), Reason: "no such method"}
	}
	return fn, nil
}

type funcAction HandlerFunc

// Do returns an action that invokes fn.
func Do(fn HandlerFunc) Action {
	return funcAction(fn)
}

func (a funcAction) String() string { return "func" }

func (a funcAction) resolve(*Type) (HandlerFunc, error) {
	if a == nil {
		return nil, &InvalidActionError{Action: a.String(), Reason: "nil function"}
	}
	return HandlerFunc(a), nil
}

// ErrInvalidAction is matched by every *InvalidActionError.
var ErrInvalidAction = errors.New("telnet: invalid action")

// InvalidActionError reports a command whose action cannot be invoked. It
// indicates a mistake in the type declaration, not bad user input, and ends
// the connection that hit it.
type InvalidActionError struct {
	Action string
	Reason string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("telnet: invalid action %s: %s", e.Action, e.Reason)
}

func (e *InvalidActionError) Is(target error) bool {
	return target == ErrInvalidAction
}

// UnknownCommandError reports a line that no command handles.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("telnet: command %q is not known", e.Command)
}

// UnknownCommand returns the error a handler uses to reject the line it was
// given, typically from a catch-all pattern.
func UnknownCommand(command string) error {
	return &UnknownCommandError{Command: command}
}
