package server

import (
	"errors"
	"fmt"
	"time"
)

// matchResult is the outcome of looking a line up in the command table.
type matchResult struct {
	command Command
	args    []string
	matched bool
}

// match returns the first command, in resolved order, whose pattern matches
// line.
func (t *Type) match(line string) matchResult {
	for _, cmd := range t.resolved().commands {
		if args, ok := cmd.Pattern.Match(line); ok {
			return matchResult{command: cmd, args: args, matched: true}
		}
	}
	return matchResult{}
}

// processBuffer handles one complete flush. The buffer is always empty
// afterwards, whatever the outcome.
func (c *Conn) processBuffer() error {
	buffer := c.buffer.TakeAll()

	if h := c.customHandler; h != nil {
		c.customHandler = nil
		return h(c, buffer)
	}

	switch {
	case c.login.phase == PhaseAuthorized:
		return c.runCommands(buffer)
	case c.login.waiting():
		return c.login.handle(c, buffer)
	default:
		return c.processSpam(buffer)
	}
}

// runCommands dispatches every line of buffer in order. The first unknown
// line stops the flush: later lines of the same buffer are dropped and the
// not-known hook runs once. Lines after a handler closed the connection are
// dropped too.
func (c *Conn) runCommands(buffer string) error {
	for _, line := range splitLines(buffer) {
		if c.closed.Load() {
			return nil
		}
		c.currentCommand = line
		c.logger.Debug("command_received",
			"session_id", c.id,
			"user", c.login.username,
			"command", line,
		)

		start := time.Now()
		res := c.typ.match(line)
		if !res.matched {
			c.recordCommand("", false, start)
			return c.commandNotKnown(line)
		}

		err := c.invoke(res)
		var unknown *UnknownCommandError
		if errors.As(err, &unknown) {
			c.recordCommand(res.command.Pattern.String(), false, start)
			return c.commandNotKnown(unknown.Command)
		}
		c.recordCommand(res.command.Pattern.String(), true, start)
		if err != nil {
			return fmt.Errorf("command %q: %w", line, err)
		}
	}
	return nil
}

// invoke runs the action of a matched command. A nil action accepts the
// line without doing anything.
func (c *Conn) invoke(res matchResult) error {
	if res.command.Action == nil {
		return nil
	}
	fn, err := res.command.Action.resolve(c.typ)
	if err != nil {
		return err
	}
	return fn(c, res.args)
}

// commandNotKnown runs the type's not-known hook, or reports the command
// and sends the prompt.
func (c *Conn) commandNotKnown(command string) error {
	c.logger.Debug("command_not_known",
		"session_id", c.id,
		"user", c.login.username,
		"command", command,
	)
	if fn, ok := lookup(c.typ, func(x *Type) (func(*Conn, string) error, bool) {
		return x.onUnknown, x.onUnknown != nil
	}); ok {
		return fn(c, command)
	}
	return c.SendOutput(fmt.Sprintf("Command %q is not known.", command))
}

// processSpam handles input that arrives before authorization and is not
// part of the login sequence. It is ignored unless the type sets OnSpam.
func (c *Conn) processSpam(buffer string) error {
	if fn, ok := lookup(c.typ, func(x *Type) (func(*Conn, string) error, bool) {
		return x.onSpam, x.onSpam != nil
	}); ok {
		return fn(c, buffer)
	}
	return nil
}

func (c *Conn) recordCommand(pattern string, known bool, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCommand(pattern, known, time.Since(start))
	}
}
