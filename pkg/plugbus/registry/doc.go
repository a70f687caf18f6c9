// Package registry provides a typed, versioned service directory.
//
// Modules publish a capability (an abstract contract) under an explicit,
// stable Key and other modules look it up without any compile-time
// dependency on the concrete implementation. Each key holds at most one
// live entry; re-registering replaces the prior entry. The registry holds
// a non-owning reference: the registering module keeps the instance alive.
//
// Lookups are version gated. A consumer asks for a minimum capability
// version and gets "not found" when the registered version is older.
// Absence is an expected, recoverable condition and is reported through
// the ok result, never an error.
//
// All operations are safe for concurrent use. The internal lock covers map
// access only; notification callbacks and the caller's capability
// assertion run outside it, so a callback may safely re-enter the
// registry.
package registry
