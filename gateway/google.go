package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const listPageSize = 250

// CalendarServices builds an authenticated calendar service acting as the
// given subject. Implemented by security.Provider.
type CalendarServices interface {
	Calendar(ctx context.Context, subjectID string) (*calendar.Service, error)
}

// GoogleGateway implements Gateway on the Google Calendar v3 API.
type GoogleGateway struct {
	services CalendarServices
}

// NewGoogleGateway creates a gateway backed by the given credential provider.
func NewGoogleGateway(services CalendarServices) *GoogleGateway {
	return &GoogleGateway{services: services}
}

func (g *GoogleGateway) ListPage(ctx context.Context, subjectID, calendarID string, q PageQuery) (*EventPage, error) {
	svc, err := g.services.Calendar(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("calendar service for %s: %w", subjectID, err)
	}

	call := svc.Events.List(calendarID).
		SingleEvents(true).
		ShowDeleted(q.ShowDeleted).
		MaxResults(listPageSize)

	if q.SyncToken != "" {
		call = call.SyncToken(q.SyncToken)
	} else {
		if !q.TimeMin.IsZero() {
			call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
		}
		if !q.TimeMax.IsZero() {
			call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
		}
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == http.StatusGone {
			return nil, ErrCursorExpired
		}
		return nil, fmt.Errorf("list events for %s: %w", subjectID, err)
	}

	page := &EventPage{
		Items:         make([]Event, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, item := range resp.Items {
		page.Items = append(page.Items, fromAPIEvent(item))
	}
	return page, nil
}

func (g *GoogleGateway) RegisterWatch(ctx context.Context, subjectID, calendarID, address string, ttl time.Duration) (*WatchChannel, error) {
	svc, err := g.services.Calendar(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("calendar service for %s: %w", subjectID, err)
	}

	channel := &calendar.Channel{
		Id:      uuid.New().String(),
		Type:    "web_hook",
		Address: address,
		Token:   subjectID,
		Params:  map[string]string{"ttl": strconv.FormatInt(int64(ttl.Seconds()), 10)},
	}

	resp, err := svc.Events.Watch(calendarID, channel).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("register watch for %s: %w", subjectID, err)
	}

	return &WatchChannel{
		ChannelID:  resp.Id,
		ResourceID: resp.ResourceId,
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

// fromAPIEvent copies the consumed subset; absent optional fields default to
// zero values rather than failing.
func fromAPIEvent(ev *calendar.Event) Event {
	out := Event{
		ID:       ev.Id,
		Status:   ev.Status,
		Summary:  ev.Summary,
		HTMLLink: ev.HtmlLink,
	}
	if ev.Start != nil {
		out.Start = EventTime{Date: ev.Start.Date, DateTime: ev.Start.DateTime}
	}
	if ev.End != nil {
		out.End = EventTime{Date: ev.End.Date, DateTime: ev.End.DateTime}
	}
	return out
}
