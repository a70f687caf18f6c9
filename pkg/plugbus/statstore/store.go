// Package statstore persists per-topic event counters across process
// restarts. The bus's in-memory stats are authoritative while running;
// a Store is a diagnostics write-behind, flushed on demand and on Close.
package statstore

import (
	"errors"
	"time"
)

// Stats is one exact topic's persisted counters.
type Stats struct {
	Topic         string
	EventCount    int64
	LastEventTime time.Time
}

// Store persists topic stats.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores stats for a topic, overwriting any prior record.
	Save(s Stats) error

	// Load retrieves the record for a topic.
	// Returns ErrNotFound if the topic has never been saved.
	Load(topic string) (Stats, error)

	// List returns every record, ordered by topic.
	// Returns an empty slice (not an error) when the store is empty.
	List() ([]Stats, error)

	// Delete removes a topic's record. Returns nil if absent.
	Delete(topic string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a topic has no persisted record.
	ErrNotFound = errors.New("topic stats not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("stats store closed")
)
