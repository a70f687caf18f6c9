package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modkit/plugbus/pkg/plugbus/observability"
)

// requestHandlerEntry is the stored record for one request handler.
type requestHandlerEntry struct {
	topic     string
	handlerID string
	handler   RequestHandler
}

// RegisterHandler installs the request handler for an exact topic (no
// wildcard matching for requests). It returns false, leaving the existing
// handler untouched, when the topic is already occupied or handler is nil.
func (b *Bus) RegisterHandler(topicStr, handlerID string, handler RequestHandler) bool {
	if handler == nil {
		return false
	}

	b.mu.Lock()
	if _, occupied := b.handlers[topicStr]; occupied {
		b.mu.Unlock()
		b.cfg.Logger.Warn("request handler already registered",
			slog.String("topic", topicStr),
			slog.String("handler_id", handlerID),
		)
		return false
	}
	b.handlers[topicStr] = requestHandlerEntry{
		topic:     topicStr,
		handlerID: handlerID,
		handler:   handler,
	}
	b.mu.Unlock()

	b.cfg.Logger.Debug("request handler registered",
		slog.String("topic", topicStr),
		slog.String("handler_id", handlerID),
	)
	return true
}

// UnregisterHandler removes the handler for an exact topic.
// It returns false when the topic has no handler.
func (b *Bus) UnregisterHandler(topicStr string) bool {
	b.mu.Lock()
	_, ok := b.handlers[topicStr]
	if ok {
		delete(b.handlers, topicStr)
	}
	b.mu.Unlock()

	if ok {
		b.cfg.Logger.Debug("request handler unregistered",
			slog.String("topic", topicStr))
	}
	return ok
}

// UnregisterAllHandlers removes every request handler owned by handlerID.
// A module being unloaded uses this for bulk cleanup.
func (b *Bus) UnregisterAllHandlers(handlerID string) {
	b.mu.Lock()
	var removed []string
	for topicStr, entry := range b.handlers {
		if entry.handlerID == handlerID {
			removed = append(removed, topicStr)
			delete(b.handlers, topicStr)
		}
	}
	b.mu.Unlock()

	if len(removed) > 0 {
		b.cfg.Logger.Debug("request handlers unregistered",
			slog.String("handler_id", handlerID),
			slog.Int("count", len(removed)),
		)
	}
}

// HasHandler reports whether an exact topic has a request handler.
func (b *Bus) HasHandler(topicStr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topicStr]
	return ok
}

// Request invokes the single handler registered for the exact topic and
// returns its response. ok is false when no handler is registered, the
// handler returns an error or panics, or ctx expires first; the caller
// cannot distinguish these cases.
//
// The context deadline bounds how long the caller waits. The handler
// itself is not cancelled; on timeout its eventual result is discarded.
func (b *Bus) Request(ctx context.Context, topicStr string, data map[string]any, senderID string) (map[string]any, bool) {
	start := time.Now()

	ctx, span := observability.StartRequestSpan(ctx, topicStr, senderID)

	b.mu.Lock()
	entry, found := b.handlers[topicStr]
	b.mu.Unlock()

	if !found {
		b.cfg.Logger.Debug("no handler for request topic",
			slog.String("topic", topicStr))
		b.cfg.Metrics.RecordRequest(ctx, topicStr, time.Since(start), false)
		observability.EndSpanWithError(span, ErrNoHandler)
		return nil, false
	}

	evt := NewEvent(topicStr, data, senderID)

	type result struct {
		response map[string]any
		err      error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("request handler panicked: %v", r)}
			}
		}()
		response, err := entry.handler(evt.withClonedData())
		resultCh <- result{response: response, err: err}
	}()

	select {
	case res := <-resultCh:
		observability.AddSpanEvent(ctx, "handler completed")
		if res.err != nil {
			observability.LogRequestFailed(b.cfg.Logger, topicStr, res.err)
			b.cfg.Metrics.RecordRequest(ctx, topicStr, time.Since(start), false)
			observability.EndSpanWithError(span, res.err)
			return nil, false
		}
		b.cfg.Metrics.RecordRequest(ctx, topicStr, time.Since(start), true)
		observability.EndSpanWithError(span, nil)
		return res.response, true

	case <-ctx.Done():
		observability.LogRequestFailed(b.cfg.Logger, topicStr, ctx.Err())
		b.cfg.Metrics.RecordRequest(ctx, topicStr, time.Since(start), false)
		observability.EndSpanWithError(span, ctx.Err())
		return nil, false
	}
}
