package statstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists topic stats to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite stats store.
// The path should be a file path (e.g., "./plugbus-stats.db") or ":memory:"
// for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS topic_stats (
			topic TEXT NOT NULL PRIMARY KEY,
			event_count INTEGER NOT NULL,
			last_event_time TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(stats Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO topic_stats (topic, event_count, last_event_time)
		VALUES (?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET
			event_count = excluded.event_count,
			last_event_time = excluded.last_event_time
	`, stats.Topic, stats.EventCount, stats.LastEventTime.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("save topic stats: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(topic string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, ErrStoreClosed
	}

	var stats Stats
	var lastEvent string
	err := s.db.QueryRow(`
		SELECT topic, event_count, last_event_time FROM topic_stats
		WHERE topic = ?
	`, topic).Scan(&stats.Topic, &stats.EventCount, &lastEvent)

	if err == sql.ErrNoRows {
		return Stats{}, ErrNotFound
	}
	if err != nil {
		return Stats{}, fmt.Errorf("load topic stats: %w", err)
	}

	stats.LastEventTime, err = time.Parse(time.RFC3339Nano, lastEvent)
	if err != nil {
		return Stats{}, fmt.Errorf("parse last event time: %w", err)
	}
	return stats, nil
}

// List implements Store.
func (s *SQLiteStore) List() ([]Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT topic, event_count, last_event_time FROM topic_stats
		ORDER BY topic
	`)
	if err != nil {
		return nil, fmt.Errorf("list topic stats: %w", err)
	}
	defer rows.Close()

	var all []Stats
	for rows.Next() {
		var stats Stats
		var lastEvent string
		if err := rows.Scan(&stats.Topic, &stats.EventCount, &lastEvent); err != nil {
			return nil, fmt.Errorf("scan topic stats: %w", err)
		}
		stats.LastEventTime, err = time.Parse(time.RFC3339Nano, lastEvent)
		if err != nil {
			return nil, fmt.Errorf("parse last event time: %w", err)
		}
		all = append(all, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic stats: %w", err)
	}
	if all == nil {
		all = []Stats{}
	}
	return all, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM topic_stats WHERE topic = ?`, topic); err != nil {
		return fmt.Errorf("delete topic stats: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
