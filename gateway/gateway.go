// Package gateway wraps the Google Calendar API behind a small typed surface
// so the sync engine and conflict aggregator never touch provider payloads
// directly. Only the event fields the pipeline consumes are carried.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrCursorExpired signals that the provider rejected the sync token as too
// old. Callers recover by bootstrapping a fresh token and retrying once.
var ErrCursorExpired = errors.New("calendar sync cursor expired")

// EventTime is the start/end marker of an event: exactly one of Date
// (all-day, "2006-01-02") or DateTime (RFC3339) is set on well-formed events.
type EventTime struct {
	Date     string
	DateTime string
}

// IsZero reports whether neither marker is present.
func (t EventTime) IsZero() bool {
	return t.Date == "" && t.DateTime == ""
}

// Marker returns whichever representation the provider supplied.
func (t EventTime) Marker() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// Event is the subset of a provider event the pipeline consumes.
type Event struct {
	ID       string
	Status   string
	Summary  string
	Start    EventTime
	End      EventTime
	HTMLLink string
}

// PageQuery selects one page of events. Exactly one of SyncToken or the
// TimeMin/TimeMax window should be set; PageToken continues a prior page.
type PageQuery struct {
	SyncToken   string
	PageToken   string
	TimeMin     time.Time
	TimeMax     time.Time
	ShowDeleted bool
}

// EventPage is one page of results. NextSyncToken is only present on the
// final page (when NextPageToken is empty).
type EventPage struct {
	Items         []Event
	NextPageToken string
	NextSyncToken string
}

// WatchChannel describes a registered push-notification channel.
type WatchChannel struct {
	ChannelID  string
	ResourceID string
	Expiration time.Time
}

// Gateway is the capability contract for the calendar provider. The API is
// page-level so callers own the pagination loop.
type Gateway interface {
	// ListPage fetches a single page of events for the subject's calendar.
	// An expired sync token is reported as ErrCursorExpired.
	ListPage(ctx context.Context, subjectID, calendarID string, q PageQuery) (*EventPage, error)

	// RegisterWatch registers a push channel delivering to address and
	// returns the provider-assigned channel identity and expiration.
	RegisterWatch(ctx context.Context, subjectID, calendarID, address string, ttl time.Duration) (*WatchChannel, error)
}
