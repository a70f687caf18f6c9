package topic

import (
	"regexp"
	"strings"
)

// Matcher is a compiled topic pattern.
// Matching is a pure predicate with no shared state, so a single Matcher
// may be used concurrently from any number of goroutines.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// doubleStarToken stands in for an escaped "**" so the single-star
// substitution cannot swallow half of the token.
const doubleStarToken = "\x00DOUBLE_STAR\x00"

// Compile builds a Matcher from a pattern.
//
// Substitution order matters: "**" is rewritten before "*", and the result
// is anchored at both ends. "**" becomes ".+" (one or more characters to
// the end of the topic), "*" becomes "[^/]+" (one non-empty segment).
func Compile(pattern string) *Matcher {
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*\*`, doubleStarToken)
	expr = strings.ReplaceAll(expr, `\*`, `[^/]+`)
	expr = strings.ReplaceAll(expr, doubleStarToken, `.+`)

	// QuoteMeta leaves no unbalanced metacharacters behind, so the
	// expression always compiles.
	return &Matcher{
		pattern: pattern,
		re:      regexp.MustCompile("^" + expr + "$"),
	}
}

// Matches reports whether the whole topic matches the compiled pattern.
func (m *Matcher) Matches(topic string) bool {
	return m.re.MatchString(topic)
}

// Pattern returns the source pattern the Matcher was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Matches is a convenience helper that compiles pattern and tests topic
// in one call. Callers on a hot path should compile once and reuse.
func Matches(topic, pattern string) bool {
	return Compile(pattern).Matches(topic)
}
