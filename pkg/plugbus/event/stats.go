package event

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/modkit/plugbus/pkg/plugbus/statstore"
)

// TopicStats is a point-in-time view of one exact topic.
// A record exists for every exact topic that has ever been published to;
// records are never deleted.
type TopicStats struct {
	// Topic is the exact topic string (not a pattern).
	Topic string

	// SubscriberCount is the number of active subscriptions whose
	// pattern matches the topic, computed on demand.
	SubscriberCount int

	// EventCount is the number of publishes to the topic, monotonic.
	EventCount int64

	// LastEventTime is the timestamp of the most recent publish.
	LastEventTime time.Time
}

// topicRecord is the mutable per-topic counter, guarded by the bus lock.
type topicRecord struct {
	eventCount    int64
	lastEventTime time.Time
}

// Stats returns the stats for one exact topic. Topics never published to
// report a zero EventCount; SubscriberCount still reflects matching
// subscriptions.
func (b *Bus) Stats(topic string) TopicStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := TopicStats{Topic: topic}
	for _, sub := range b.subs {
		if sub.matcher.Matches(topic) {
			stats.SubscriberCount++
		}
	}
	if rec, ok := b.stats[topic]; ok {
		stats.EventCount = rec.eventCount
		stats.LastEventTime = rec.lastEventTime
	}
	return stats
}

// FlushStats writes every topic record to the configured stats store.
// It is a no-op without a store.
func (b *Bus) FlushStats() error {
	if b.cfg.StatsStore == nil {
		return nil
	}

	b.mu.Lock()
	snapshot := make([]statstore.Stats, 0, len(b.stats))
	for topic, rec := range b.stats {
		snapshot = append(snapshot, statstore.Stats{
			Topic:         topic,
			EventCount:    rec.eventCount,
			LastEventTime: rec.lastEventTime,
		})
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		if err := b.cfg.StatsStore.Save(s); err != nil {
			return fmt.Errorf("flush stats for %s: %w", s.Topic, err)
		}
	}
	return nil
}

// seedStats loads persisted topic counters so EventCount stays monotonic
// across restarts. Called once from NewBus, before the bus is shared.
func (b *Bus) seedStats() {
	if b.cfg.StatsStore == nil {
		return
	}

	persisted, err := b.cfg.StatsStore.List()
	if err != nil {
		b.cfg.Logger.Warn("loading persisted topic stats failed",
			slog.String("error", err.Error()))
		return
	}
	for _, s := range persisted {
		b.stats[s.Topic] = &topicRecord{
			eventCount:    s.EventCount,
			lastEventTime: s.LastEventTime,
		}
	}
}
