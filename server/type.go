package server

import (
	"fmt"
	"maps"
	"sync"
)

// Option keys with a built-in meaning. Any other key is stored as is and can
// be read back by handlers.
const (
	OptionPort             = "port"
	OptionCommandPrompt    = "command_prompt"
	OptionLoginPrompt      = "login_prompt"
	OptionPasswordPrompt   = "password_prompt"
	OptionLoginCredentials = "login_credentials"
)

// DefaultOptions returns the options every type starts from.
func DefaultOptions() map[string]any {
	return map[string]any{
		OptionPort:           10023,
		OptionCommandPrompt:  "$ ",
		OptionLoginPrompt:    "login: ",
		OptionPasswordPrompt: "password: ",
	}
}

// defaultOptionOrder fixes the position of the defaults in resolved tables.
var defaultOptionOrder = []string{
	OptionPort,
	OptionCommandPrompt,
	OptionLoginPrompt,
	OptionPasswordPrompt,
}

// Role names the kind of login a credential grants.
type Role string

// RoleUser is the role HasLogin callers conventionally use when they don't
// need several roles.
const RoleUser Role = "user"

// Credential is a username and password pair granting Role.
type Credential struct {
	Role     Role
	Username string
	Password string
}

// CredentialList is the value of the login_credentials option.
type CredentialList []Credential

// Command binds a pattern to the action it runs.
type Command struct {
	Pattern Pattern
	Action  Action
}

// Authenticator checks entered login credentials.
type Authenticator interface {
	// Authenticate returns the role granted to username/password, if any.
	Authenticate(username, password string) (Role, bool)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(username, password string) (Role, bool)

// Authenticate calls f(username, password).
func (f AuthenticatorFunc) Authenticate(username, password string) (Role, bool) {
	return f(username, password)
}

// typesMu guards the declarations and resolution caches of every Type.
// Declarations bump generation, which invalidates all caches at once: a
// subtype's cache depends on its ancestors' declarations.
var (
	typesMu    sync.RWMutex
	generation uint64
)

// Type describes one kind of server: its commands, options, logins, methods
// and hooks. A Type inherits everything from its parent and may add to or
// override it without affecting the parent.
//
// Types are meant to be declared up front, before connections are accepted.
// Resolved tables are computed on first use and cached; declaring something
// later is allowed and makes the next lookup recompute them.
//
//	base := server.NewType("base", nil)
//	base.HasCommand(server.Regexp(`^echo (.*)$`), server.Do(func(c *server.Conn, args []string) error {
//	    return c.SendOutput(args[0])
//	}))
//
//	admin := server.NewType("admin", base)
//	admin.RequireLogin(true)
//	admin.HasLogin("root", "secret", "admin")
type Type struct {
	name   string
	parent *Type

	commands    *orderedTable[string, Command]
	options     *orderedTable[string, any]
	credentials *orderedTable[Role, Credential]
	methods     map[string]HandlerFunc

	requireLogin    *bool
	authenticator   Authenticator
	onAuthorization func(c *Conn) error
	onUnknown       func(c *Conn, command string) error
	onSpam          func(c *Conn, data string) error
	onDisconnect    func(c *Conn)

	cache *resolvedType
}

type resolvedType struct {
	generation  uint64
	commands    []Command
	options     map[string]any
	credentials []Credential
}

// NewType returns a type inheriting from parent. A nil parent starts from
// DefaultOptions and no commands.
func NewType(name string, parent *Type) *Type {
	return &Type{
		name:        name,
		parent:      parent,
		commands:    newOrderedTable[string, Command](),
		options:     newOrderedTable[string, any](),
		credentials: newOrderedTable[Role, Credential](),
		methods:     make(map[string]HandlerFunc),
	}
}

// Name returns the name given to NewType.
func (t *Type) Name() string { return t.name }

// Parent returns the type t inherits from, or nil.
func (t *Type) Parent() *Type { return t.parent }

func (t *Type) String() string {
	if t.parent == nil {
		return t.name
	}
	return fmt.Sprintf("%s < %s", t.name, t.parent)
}

// declare runs fn with the declaration lock held and invalidates caches.
func (t *Type) declare(fn func()) {
	typesMu.Lock()
	defer typesMu.Unlock()
	fn()
	generation++
}

// HasCommand registers action for lines matching pattern. Redeclaring a
// pattern (also one inherited from a parent) replaces its action and keeps
// its position; new patterns are tried after all existing ones.
func (t *Type) HasCommand(pattern Pattern, action Action) {
	t.declare(func() {
		t.commands.set(pattern.key(), Command{Pattern: pattern, Action: action})
	})
}

// HasOption sets option key to value.
func (t *Type) HasOption(key string, value any) {
	t.declare(func() {
		t.options.set(key, value)
	})
}

// HasLogin adds a login for role. Declaring the same role again replaces
// its credentials.
func (t *Type) HasLogin(username, password string, role Role) {
	t.declare(func() {
		t.credentials.set(role, Credential{Role: role, Username: username, Password: password})
	})
}

// HasMethod registers fn under name for commands declared with Call(name).
func (t *Type) HasMethod(name string, fn HandlerFunc) {
	t.declare(func() {
		t.methods[name] = fn
	})
}

// RequireLogin sets whether connections have to log in before running
// commands. Types inherit the setting; the default is false.
func (t *Type) RequireLogin(required bool) {
	t.declare(func() {
		t.requireLogin = &required
	})
}

// SetAuthenticator replaces the credential check. By default the entered
// pair is compared with the logins declared with HasLogin.
func (t *Type) SetAuthenticator(a Authenticator) {
	t.declare(func() {
		t.authenticator = a
	})
}

// OnAuthorization sets the hook run right after a connection is authorized,
// before the first command prompt is sent.
func (t *Type) OnAuthorization(fn func(c *Conn) error) {
	t.declare(func() {
		t.onAuthorization = fn
	})
}

// OnUnknownCommand sets the hook run when a line matches no command.
func (t *Type) OnUnknownCommand(fn func(c *Conn, command string) error) {
	t.declare(func() {
		t.onUnknown = fn
	})
}

// OnSpam sets the hook run for input received before authorization that the
// login sequence does not consume.
func (t *Type) OnSpam(fn func(c *Conn, data string) error) {
	t.declare(func() {
		t.onSpam = fn
	})
}

// OnDisconnect sets the hook run after the connection has been closed.
func (t *Type) OnDisconnect(fn func(c *Conn)) {
	t.declare(func() {
		t.onDisconnect = fn
	})
}

// resolved returns the cached tables, computing them if a declaration
// happened since they were built.
func (t *Type) resolved() *resolvedType {
	typesMu.RLock()
	r := t.cache
	if r != nil && r.generation == generation {
		typesMu.RUnlock()
		return r
	}
	typesMu.RUnlock()

	typesMu.Lock()
	defer typesMu.Unlock()
	if t.cache != nil && t.cache.generation == generation {
		return t.cache
	}

	r = &resolvedType{generation: generation}

	commands := resolveChain(t, func(x *Type) *orderedTable[string, Command] { return x.commands })
	r.commands = make([]Command, 0, commands.len())
	commands.each(func(_ string, c Command) bool {
		r.commands = append(r.commands, c)
		return true
	})

	credentials := resolveChain(t, func(x *Type) *orderedTable[Role, Credential] { return x.credentials })
	credentials.each(func(_ Role, c Credential) bool {
		r.credentials = append(r.credentials, c)
		return true
	})

	defaults := newOrderedTable[string, any]()
	for _, k := range defaultOptionOrder {
		defaults.set(k, DefaultOptions()[k])
	}
	defaults.merge(resolveChain(t, func(x *Type) *orderedTable[string, any] { return x.options }))
	r.options = make(map[string]any, defaults.len()+1)
	defaults.each(func(k string, v any) bool {
		r.options[k] = v
		return true
	})
	if len(r.credentials) > 0 {
		r.options[OptionLoginCredentials] = CredentialList(r.credentials)
	}

	t.cache = r
	return r
}

// Commands returns the resolved commands in matching order.
func (t *Type) Commands() []Command {
	cmds := t.resolved().commands
	out := make([]Command, len(cmds))
	copy(out, cmds)
	return out
}

// Options returns a copy of the resolved options.
func (t *Type) Options() map[string]any {
	return maps.Clone(t.resolved().options)
}

// Option returns the resolved value of key.
func (t *Type) Option(key string) (any, bool) {
	v, ok := t.resolved().options[key]
	return v, ok
}

// StringOption returns the resolved value of key formatted as a string, or
// "" if it is not set.
func (t *Type) StringOption(key string) string {
	v, ok := t.Option(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Credentials returns the resolved logins in declaration order.
func (t *Type) Credentials() []Credential {
	creds := t.resolved().credentials
	out := make([]Credential, len(creds))
	copy(out, creds)
	return out
}

// Method returns the nearest method registered under name.
func (t *Type) Method(name string) (HandlerFunc, bool) {
	return lookup(t, func(x *Type) (HandlerFunc, bool) {
		fn, ok := x.methods[name]
		return fn, ok
	})
}

// LoginRequired reports whether connections of this type have to log in.
func (t *Type) LoginRequired() bool {
	required, _ := lookup(t, func(x *Type) (bool, bool) {
		if x.requireLogin == nil {
			return false, false
		}
		return *x.requireLogin, true
	})
	return required
}

// Authenticate checks username and password with the type's Authenticator,
// or against the declared logins. The first login, in declaration order,
// whose pair equals the entered one wins.
func (t *Type) Authenticate(username, password string) (Role, bool) {
	a, ok := lookup(t, func(x *Type) (Authenticator, bool) {
		return x.authenticator, x.authenticator != nil
	})
	if ok {
		return a.Authenticate(username, password)
	}
	for _, c := range t.resolved().credentials {
		if c.Username == username && c.Password == password {
			return c.Role, true
		}
	}
	return "", false
}

// lookup returns the value declared closest to t, walking up the chain.
func lookup[V any](t *Type, get func(*Type) (V, bool)) (V, bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	for cur := t; cur != nil; cur = cur.parent {
		if v, ok := get(cur); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}
