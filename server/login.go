package server

import (
	"strings"
)

// Phase is a connection's position in the login sequence.
//
// Phases only move forward, Unauthenticated → WaitingUsername →
// WaitingPassword → Authorized, except that a rejected password goes back to
// WaitingUsername. Authorized is final.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseWaitingUsername
	PhaseWaitingPassword
	PhaseAuthorized
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseWaitingUsername:
		return "waiting_username"
	case PhaseWaitingPassword:
		return "waiting_password"
	case PhaseAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// loginFailedMessage is sent before the login prompt after a rejected login.
const loginFailedMessage = "Sorry, please try again.\n"

// loginMachine holds the login progress of one connection.
type loginMachine struct {
	phase    Phase
	username string
	password string
	role     Role
}

// waiting reports whether the next flush belongs to the login sequence.
func (m *loginMachine) waiting() bool {
	return m.phase == PhaseWaitingUsername || m.phase == PhaseWaitingPassword
}

// start asks for the username.
func (m *loginMachine) start(c *Conn) error {
	m.phase = PhaseWaitingUsername
	return c.Send(c.typ.StringOption(OptionLoginPrompt))
}

// handle consumes one flush as the username or the password.
func (m *loginMachine) handle(c *Conn, buffer string) error {
	switch m.phase {
	case PhaseWaitingUsername:
		m.username = strings.TrimSpace(buffer)
		if err := c.Send(c.typ.StringOption(OptionPasswordPrompt)); err != nil {
			return err
		}
		m.phase = PhaseWaitingPassword
		return nil

	case PhaseWaitingPassword:
		m.password = chomp(buffer)
		role, ok := c.typ.Authenticate(m.username, m.password)
		if c.metrics != nil {
			c.metrics.RecordAuthentication(ok, m.username)
		}
		if ok {
			c.logger.Info("authentication_success",
				"session_id", c.id,
				"user", m.username,
				"role", string(role),
			)
			m.role = role
			return c.authorize()
		}

		c.logger.Warn("authentication_failed",
			"session_id", c.id,
			"user", m.username,
		)
		m.phase = PhaseWaitingUsername
		m.username, m.password = "", ""
		if err := c.Send(loginFailedMessage); err != nil {
			return err
		}
		return c.Send(c.typ.StringOption(OptionLoginPrompt))
	}
	return nil
}

// authorize enables command dispatch, runs the authorization hook and sends
// the first command prompt.
func (c *Conn) authorize() error {
	c.login.phase = PhaseAuthorized
	if fn, ok := lookup(c.typ, func(x *Type) (func(*Conn) error, bool) {
		return x.onAuthorization, x.onAuthorization != nil
	}); ok {
		if err := fn(c); err != nil {
			return err
		}
	}
	return c.SendCommandPrompt()
}
