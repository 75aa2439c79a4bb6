// Package server implements line-oriented console servers, the kind of
// telnet-style administrative interface where a client types a command per
// line and reads text back.
//
// # Overview
//
// A server is described by a Type: an ordered table of commands, a set of
// options (prompts, port, logins) and a few hooks. Types form a hierarchy:
// a subtype sees everything its parent declares, may add commands of its
// own, and may redeclare a parent's command pattern to replace its action.
// The parent is never affected by what its subtypes declare.
//
//	base := server.NewType("base", nil)
//	base.HasOption(server.OptionCommandPrompt, "box$ ")
//	base.HasCommand(server.Regexp(`^\s*echo (.*)`), server.Do(func(c *server.Conn, args []string) error {
//	    return c.SendOutput(args[0])
//	}))
//	base.HasCommand(server.Regexp(`^\s*$`), server.Call("prompt"))
//	base.HasMethod("prompt", func(c *server.Conn, _ []string) error {
//	    return c.SendCommandPrompt()
//	})
//
//	secure := server.NewType("secure", base)
//	secure.RequireLogin(true)
//	secure.HasLogin("operator", "s3cret", server.RoleUser)
//	secure.HasLogin("root", "t0psecret", "admin")
//
// # Input processing
//
// Bytes received from a client are buffered until the buffer ends with a
// newline; partial lines wait for the rest. Each complete buffer (a flush)
// goes to exactly one of:
//
//   - the pending custom handler, if one was installed with
//     Conn.SetCustomHandler;
//   - the login sequence, while the connection waits for a username or a
//     password;
//   - the command table, once the connection is authorized: every line is
//     matched against the commands in order and the first match runs;
//   - the spam hook otherwise.
//
// A line that matches no command triggers the not-known hook, which by
// default replies "Command "..." is not known." and sends the prompt. The
// rest of that flush is dropped.
//
// # Login
//
// Types that call RequireLogin(true) send the login_prompt option when a
// client connects, read a username, send password_prompt, read a password
// and check the pair. A rejected pair sends "Sorry, please try again." and
// starts over, without a limit on attempts. Other types authorize every
// connection immediately.
//
// # Serving
//
// Server accepts TCP connections and serves a Type on each one:
//
//	s, err := server.NewServer(":2323", secure,
//	    server.WithMaxConnections(100, 10),
//	    server.WithMaxIdleTime(10*time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// Other transports can drive a Conn directly through NewConn, Connected,
// Receive and Disconnected.
//
// The stream is plain text: there is no telnet option negotiation, no
// encoding negotiation and no TLS.
package server
