package topic

import "strings"

// Separator delimits topic segments.
const Separator = "/"

// Wildcard segments recognized by Compile.
const (
	WildcardSingle = "*"
	WildcardMulti  = "**"
)

// Split breaks a topic into its segments.
func Split(topic string) []string {
	if topic == "" {
		return nil
	}
	return strings.Split(topic, Separator)
}

// Join assembles segments into a topic string.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// HasWildcard reports whether the pattern contains any wildcard segment.
// Exact topics (no wildcards) match only themselves.
func HasWildcard(pattern string) bool {
	return strings.Contains(pattern, WildcardSingle)
}
