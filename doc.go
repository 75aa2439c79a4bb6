// Package telnet implements a client for line-oriented console servers,
// such as the ones built with the server subpackage.
//
// # Overview
//
// The client talks to the server the way a person at a terminal would: it
// sends a line, then reads until a prompt shows up. Prompts are regular
// expressions matched against the output read since the last line was
// sent.
//
// # Basic Usage
//
//	client, err := telnet.Dial("localhost:10023",
//	    telnet.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Login("alice", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := client.Cmd("echo hello")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(out) // "hello\n"
//
// For servers that do not require a login, consume the first prompt with
// WaitFor before sending commands.
//
// # Errors
//
// A prompt that does not arrive before the timeout yields a *TimeoutError
// holding the partial output. Rejected credentials yield a *LoginError.
// Network failures are wrapped with %w and can be inspected with errors.Is.
package telnet
