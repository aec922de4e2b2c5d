// Package lease owns per-subject watch-channel state: which push channel is
// registered for whom, when it expires, and the sync cursor to resume from.
package lease

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// WatchLease is the persistent record for one monitored subject's push
// channel. Leases are overwritten on renewal, never deleted.
type WatchLease struct {
	SubjectID    string
	ChannelID    string
	ResourceID   string
	CalendarID   string
	ExpirationMs int64
	SyncToken    string
}

// Store persists leases in Redis: one hash per subject plus a reverse key
// mapping channel id back to subject for notification routing.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func leaseKey(subjectID string) string {
	return "watch:" + subjectID
}

func channelKey(channelID string) string {
	return "watch_channel:" + channelID
}

// Get returns the lease for a subject, or nil when none exists.
func (s *Store) Get(ctx context.Context, subjectID string) (*WatchLease, error) {
	data, err := s.client.HGetAll(ctx, leaseKey(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read lease for %s: %w", subjectID, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return leaseFromHash(subjectID, data), nil
}

// Save overwrites the subject's lease and repoints the channel reverse
// lookup. The previous channel's reverse key is removed so redeliveries on
// the dead channel resolve to not-found.
func (s *Store) Save(ctx context.Context, l *WatchLease) error {
	prev, err := s.Get(ctx, l.SubjectID)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"subject_id":  l.SubjectID,
		"channel_id":  l.ChannelID,
		"resource_id": l.ResourceID,
		"calendar_id": l.CalendarID,
		"expiration":  l.ExpirationMs,
		"sync_token":  l.SyncToken,
	}
	if err := s.client.HSet(ctx, leaseKey(l.SubjectID), fields).Err(); err != nil {
		return fmt.Errorf("store lease for %s: %w", l.SubjectID, err)
	}

	if err := s.client.Set(ctx, channelKey(l.ChannelID), l.SubjectID, 0).Err(); err != nil {
		return fmt.Errorf("store channel lookup for %s: %w", l.ChannelID, err)
	}

	if prev != nil && prev.ChannelID != "" && prev.ChannelID != l.ChannelID {
		if err := s.client.Del(ctx, channelKey(prev.ChannelID)).Err(); err != nil {
			return fmt.Errorf("drop stale channel lookup %s: %w", prev.ChannelID, err)
		}
	}
	return nil
}

// GetByChannel resolves an inbound channel id to its lease. Unknown channels
// return nil without error; redelivery after channel replacement is normal.
func (s *Store) GetByChannel(ctx context.Context, channelID string) (*WatchLease, error) {
	subjectID, err := s.client.Get(ctx, channelKey(channelID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", channelID, err)
	}

	l, err := s.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if l == nil || l.ChannelID != channelID {
		// Dangling reverse key from a replaced channel.
		return nil, nil
	}
	return l, nil
}

// UpdateSyncToken persists a new cursor on an existing lease.
func (s *Store) UpdateSyncToken(ctx context.Context, subjectID, token string) error {
	if err := s.client.HSet(ctx, leaseKey(subjectID), "sync_token", token).Err(); err != nil {
		return fmt.Errorf("update sync token for %s: %w", subjectID, err)
	}
	return nil
}

func leaseFromHash(subjectID string, data map[string]string) *WatchLease {
	expiration, _ := strconv.ParseInt(data["expiration"], 10, 64)
	return &WatchLease{
		SubjectID:    subjectID,
		ChannelID:    data["channel_id"],
		ResourceID:   data["resource_id"],
		CalendarID:   data["calendar_id"],
		ExpirationMs: expiration,
		SyncToken:    data["sync_token"],
	}
}
