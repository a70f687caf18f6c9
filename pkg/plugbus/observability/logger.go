// Package observability provides structured logging, metrics, and tracing
// helpers for plugbus.
//
// Logging uses slog (Go stdlib); metrics and tracing use OpenTelemetry
// through the global providers, with no-op implementations when disabled.
package observability

import "log/slog"

// LogSubscribed logs a new subscription.
func LogSubscribed(logger *slog.Logger, subscriberID, pattern, subscriptionID string) {
	if logger == nil {
		return
	}
	logger.Debug("subscribed",
		slog.String("subscriber_id", subscriberID),
		slog.String("pattern", pattern),
		slog.String("subscription_id", subscriptionID),
	)
}

// LogUnsubscribed logs a subscription removal.
func LogUnsubscribed(logger *slog.Logger, subscriptionID string) {
	if logger == nil {
		return
	}
	logger.Debug("unsubscribed",
		slog.String("subscription_id", subscriptionID),
	)
}

// LogPublished logs an event publish and its fan-out size.
func LogPublished(logger *slog.Logger, topic, senderID string, notified int, sync bool) {
	if logger == nil {
		return
	}
	logger.Debug("event published",
		slog.String("topic", topic),
		slog.String("sender_id", senderID),
		slog.Int("notified", notified),
		slog.Bool("sync", sync),
	)
}

// LogDropped logs a deferred delivery discarded because the queue was full.
func LogDropped(logger *slog.Logger, topic, subscriberID string) {
	if logger == nil {
		return
	}
	logger.Warn("async delivery dropped",
		slog.String("topic", topic),
		slog.String("subscriber_id", subscriberID),
	)
}

// LogHandlerPanic logs a recovered handler panic.
func LogHandlerPanic(logger *slog.Logger, topic, subscriberID string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("handler panicked",
		slog.String("topic", topic),
		slog.String("subscriber_id", subscriberID),
		slog.Any("panic", recovered),
	)
}

// LogRequestFailed logs a request that produced no response.
func LogRequestFailed(logger *slog.Logger, topic string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("request failed",
		slog.String("topic", topic),
		slog.String("error", err.Error()),
	)
}
