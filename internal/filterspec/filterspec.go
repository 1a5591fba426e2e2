// Package filterspec implements the filter predicate FF evaluates against
// each line IF delivers: case-sensitive substring, case-insensitive
// substring, or regular expression. This mirrors the tagged-variant design
// of the include/exclude filters an agent-conversation WebSocket bridge
// compiles per subscriber, and a CloudWatch-style log forwarder's
// include/exclude LogFilter, collapsed here into a single
// `Matches(line) bool` entry point.
package filterspec

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how Pattern is interpreted.
type Mode int

const (
	CaseSensitive Mode = iota
	CaseInsensitive
	Regex
)

func (m Mode) String() string {
	switch m {
	case CaseSensitive:
		return "sensitive"
	case CaseInsensitive:
		return "insensitive"
	case Regex:
		return "regex"
	default:
		return "unknown"
	}
}

// Spec is an immutable filter predicate. The zero value is not valid;
// construct with New.
type Spec struct {
	mode    Mode
	pattern string
	re      *regexp.Regexp
}

// New compiles a Spec. Regex patterns are compiled immediately so an
// invalid pattern is reported as a user-visible error at filter-install
// time, never discovered lazily while filtering lines.
func New(mode Mode, pattern string) (Spec, error) {
	s := Spec{mode: mode, pattern: pattern}
	if mode == Regex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid filter regex %q: %w", pattern, err)
		}
		s.re = re
	}
	return s, nil
}

// Matches reports whether line satisfies the predicate, evaluated against
// the raw line content as delivered by IF.
func (s Spec) Matches(line string) bool {
	switch s.mode {
	case CaseSensitive:
		return strings.Contains(line, s.pattern)
	case CaseInsensitive:
		return strings.Contains(strings.ToLower(line), strings.ToLower(s.pattern))
	case Regex:
		if s.re == nil {
			return false
		}
		return s.re.MatchString(line)
	default:
		return false
	}
}

// Equal reports value equality by mode and pattern — used by FF's SetFilter
// no-op check: a filter equal to the one already installed is a no-op.
func (s Spec) Equal(other Spec) bool {
	return s.mode == other.mode && s.pattern == other.pattern
}

// Mode returns the filter's match mode.
func (s Spec) Mode() Mode { return s.mode }

// Pattern returns the filter's source pattern.
func (s Spec) Pattern() string { return s.pattern }

// Render gives a human-readable description, e.g. for a filter-status line.
func (s Spec) Render() string {
	return fmt.Sprintf("%q (%s)", s.pattern, s.mode)
}
