// Package event provides the in-process publish/subscribe event bus.
//
// The bus lets independently built modules exchange messages by topic
// without compile-time dependencies on each other. Subscriptions carry a
// hierarchical pattern ("orders/*", "orders/**") compiled eagerly via the
// topic package, a priority, and a delivery mode:
//
//   - Synchronous subscriptions run on the publishing goroutine.
//   - Asynchronous subscriptions (the default) are handed to the bus's
//     single executor goroutine, which drains deferred work serially, so
//     async handlers never run concurrently with each other.
//
// Within one publish, matched handlers run in priority-descending order
// with ties broken by subscription insertion order. A handler panic is
// recovered per invocation and never prevents delivery to the remaining
// handlers. Publishers that are also subscribers are skipped unless the
// subscription opted into receiving its own events.
//
// A request/response extension layers at-most-one-handler-per-exact-topic
// dispatch on the same lock; see Bus.RegisterHandler and Bus.Request.
//
// All bus state lives behind one mutex that is held only across map
// access, never across a handler or notification callback. Synchronously
// re-entering PublishSync from inside a handler it triggered is a caller
// error and will deadlock.
package event
