// Package ledger records which provider event ids have already produced a
// durable sheet row. It is a write-dedup marker, not a mirror of event
// state: records are created once and never mutated or deleted.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot is the event state captured alongside the dedup marker.
type Snapshot struct {
	SubjectID   string
	CalendarID  string
	Summary     string
	StartMarker string
	EndMarker   string
}

// Store is the Redis-backed processed-event ledger.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func recordKey(eventID string) string {
	return "processed:" + eventID
}

// AlreadyProcessed reports whether the event id has a dedup marker.
func (s *Store) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, recordKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check processed marker for %s: %w", eventID, err)
	}
	return n > 0, nil
}

// MarkProcessed records the marker. Concurrent or retried deliveries may
// mark the same id; the last write simply overwrites.
func (s *Store) MarkProcessed(ctx context.Context, eventID string, snap Snapshot) error {
	fields := map[string]interface{}{
		"subject_id":   snap.SubjectID,
		"calendar_id":  snap.CalendarID,
		"summary":      snap.Summary,
		"start":        snap.StartMarker,
		"end":          snap.EndMarker,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.client.HSet(ctx, recordKey(eventID), fields).Err(); err != nil {
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return nil
}
