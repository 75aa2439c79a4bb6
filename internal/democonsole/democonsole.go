// Package democonsole declares the demo console served by telnetd. It shows
// off what a console Type can do: login with roles, a greeting, commands
// backed by functions and by named methods, deferred output, custom prompts,
// custom handlers and a catch-all that turns words into method calls.
package democonsole

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/gonzalop/telnet/server"
)

// Demo logins.
const (
	User          = "demouser"
	UserPassword  = "demopass"
	Root          = "demoroot"
	RootPassword  = "demorootpass"
	RoleAdmin     = server.Role("admin")
	CommandPrompt = "demo$ "
)

// slowCommandDelay is how long "slow command" takes to answer.
var slowCommandDelay = 3 * time.Second

// counterKey stores the per-connection "count up" total.
const counterKey = "count_up_number"

// NewType declares the demo console.
func NewType() *server.Type {
	t := server.NewType("demo", nil)

	t.RequireLogin(true)
	t.HasOption(server.OptionCommandPrompt, CommandPrompt)
	t.HasOption(server.OptionLoginPrompt, "\ndemologin: ")
	t.HasOption(server.OptionPasswordPrompt, "\ndemopassword: ")

	t.HasLogin(User, UserPassword, server.RoleUser)
	t.HasLogin(Root, RootPassword, RoleAdmin)

	t.OnAuthorization(func(c *server.Conn) error {
		return c.Send(fmt.Sprintf("Hello %s! You're authorized now.\n", c.EnteredUsername()))
	})

	t.HasCommand(server.Regexp(`^\s*echo (.*)`), server.Do(func(c *server.Conn, args []string) error {
		return c.SendOutput(args[0])
	}))

	t.HasCommand(server.Regexp(`^\s*$`), server.Call("send_command_prompt"))
	t.HasMethod("send_command_prompt", func(c *server.Conn, _ []string) error {
		return c.SendCommandPrompt()
	})

	t.HasCommand(server.Regexp(`^count up(?:\s+(\d+))?\s*$`), server.Call("count_up"))
	t.HasMethod("count_up", countUp)

	t.HasCommand(server.Regexp(`^sleep\s+(\d+(?:\.\d+)?)\s*$`), server.Do(func(c *server.Conn, args []string) error {
		seconds, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		c.After(time.Duration(seconds*float64(time.Second)), func(c *server.Conn) error {
			return c.SendOutput("This is the output.")
		})
		return nil
	}))

	// Ends in its own prompt instead of the command prompt.
	t.HasCommand(server.Regexp(`^weird\s*$`), server.Do(func(c *server.Conn, _ []string) error {
		return c.Send("some\noutput\nweird-prompt| ")
	}))

	t.HasCommand(server.Regexp(`^bye\s*$`), server.Do(func(c *server.Conn, _ []string) error {
		return c.Close()
	}))

	t.HasCommand(server.Regexp(`^help\s*$`), server.Do(help))

	// The next flush goes to the custom handler, whatever it contains.
	t.HasCommand(server.Regexp(`^press key\s*$`), server.Do(func(c *server.Conn, _ []string) error {
		c.SetCustomHandler(func(c *server.Conn, buffer string) error {
			return c.SendOutput(fmt.Sprintf("You pressed %q.", strings.TrimRight(buffer, "\r\n")))
		})
		return c.Send("Press any key and return: ")
	}))

	t.HasMethod("slow_command", func(c *server.Conn, _ []string) error {
		c.After(slowCommandDelay, func(c *server.Conn) error {
			return c.SendOutput("This is the output.")
		})
		return nil
	})
	t.HasMethod("foo", func(c *server.Conn, _ []string) error {
		return c.SendOutput("bar")
	})

	// Catch-all: "slow command" calls the method slow_command, if there is one.
	t.HasCommand(server.Regexp(`^([\w ]+)$`), server.Do(func(c *server.Conn, args []string) error {
		name := strings.ReplaceAll(strings.TrimSpace(args[0]), " ", "_")
		fn, ok := c.Type().Method(name)
		if !ok {
			return server.UnknownCommand(args[0])
		}
		return fn(c, nil)
	}))

	return t
}

func countUp(c *server.Conn, args []string) error {
	step := 1
	if len(args) > 0 && args[0] != "" {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		step = n
	}
	total, _ := c.Value(counterKey).(int)
	total += step
	c.Set(counterKey, total)
	return c.SendOutput(fmt.Sprintf("The new number is %d.", total))
}

// help lists the declared commands, including inherited ones.
func help(c *server.Conn, _ []string) error {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"Pattern", "Action"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, cmd := range c.Type().Commands() {
		action := "none"
		if cmd.Action != nil {
			action = cmd.Action.String()
		}
		table.Append([]string{cmd.Pattern.String(), action})
	}
	table.Render()

	return c.SendOutput(sb.String())
}
