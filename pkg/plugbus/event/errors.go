package event

import "errors"

// ErrNoHandler indicates a request targeted a topic with no registered
// handler. Request reports this as ok=false; the sentinel exists for
// span and log annotation.
var ErrNoHandler = errors.New("no request handler for topic")
