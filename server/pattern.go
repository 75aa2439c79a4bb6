package server

import (
	"regexp"
)

// Pattern selects the lines a command handles.
//
// A literal pattern matches only a line that is exactly equal to it. A regexp
// pattern matches when the expression finds a match anywhere in the line (add
// ^ and $ anchors to match whole lines) and exposes its capture groups as the
// handler's arguments.
//
// Two patterns with the same kind and source text are the same pattern: a
// subtype declaring one of its parent's patterns again replaces the parent's
// action instead of adding a second entry.
type Pattern interface {
	// Match reports whether line matches and returns the captured arguments.
	Match(line string) (args []string, ok bool)

	// String returns the source text of the pattern.
	String() string

	// key is the identity used to detect overrides.
	key() string
}

type literalPattern string

// Literal returns a pattern that matches exactly s.
func Literal(s string) Pattern {
	return literalPattern(s)
}

func (p literalPattern) Match(line string) ([]string, bool) {
	return nil, string(p) == line
}

func (p literalPattern) String() string { return string(p) }

func (p literalPattern) key() string { return "s:" + string(p) }

type regexpPattern struct {
	re *regexp.Regexp
}

// Regexp compiles expr and returns a pattern for it. It panics if expr does
// not compile, like regexp.MustCompile; it is meant for type declarations.
func Regexp(expr string) Pattern {
	return regexpPattern{re: regexp.MustCompile(expr)}
}

// MatchRegexp returns a pattern for an already compiled expression.
func MatchRegexp(re *regexp.Regexp) Pattern {
	return regexpPattern{re: re}
}

// Match returns every capture group of the leftmost match. Optional groups
// that did not participate in the match are returned as "".
func (p regexpPattern) Match(line string) ([]string, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

func (p regexpPattern) String() string { return "/" + p.re.String() + "/" }

func (p regexpPattern) key() string { return "r:" + p.re.String() }
