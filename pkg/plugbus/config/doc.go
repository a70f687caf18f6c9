// Package config provides typed access to loosely structured host
// configuration, loaded from YAML or JSON files. Accessors never fail:
// a missing or mistyped key yields the caller's default.
package config
