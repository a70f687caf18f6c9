// Package topic provides hierarchical topic pattern compilation and matching.
//
// Topics are /-delimited segment strings ("orders/created"). Patterns are
// topics that may contain wildcards:
//   - "*" matches exactly one non-empty segment
//   - "**" matches one or more trailing segments
//
// A compiled Matcher is anchored: it accepts a topic only when the whole
// topic matches, never a prefix or suffix. Matchers hold no mutable state
// and are safe to share across goroutines.
package topic
