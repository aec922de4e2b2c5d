package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ooo-sentinel/conflict"
	"ooo-sentinel/gateway"
	"ooo-sentinel/lease"
	"ooo-sentinel/ledger"
	"ooo-sentinel/streams"
	"ooo-sentinel/syncer"
)

// scriptedGateway dispatches on the query shape: sync-token queries return
// scripted delta pages, bounded-window queries return per-subject day events
// (the conflict aggregator's view), and lookback-only queries act as the
// bootstrap listing.
type scriptedGateway struct {
	mu             sync.Mutex
	deltas         map[string]*gateway.EventPage
	expired        map[string]bool
	windowEvents   map[string][]gateway.Event
	bootstrapToken string
	bootstraps     int
}

func (g *scriptedGateway) ListPage(ctx context.Context, subjectID, calendarID string, q gateway.PageQuery) (*gateway.EventPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if q.SyncToken != "" {
		if g.expired[q.SyncToken] {
			return nil, gateway.ErrCursorExpired
		}
		page, ok := g.deltas[q.SyncToken]
		if !ok {
			return &gateway.EventPage{NextSyncToken: q.SyncToken}, nil
		}
		return page, nil
	}

	if !q.TimeMax.IsZero() {
		return &gateway.EventPage{Items: g.windowEvents[subjectID]}, nil
	}

	g.bootstraps++
	return &gateway.EventPage{NextSyncToken: g.bootstrapToken}, nil
}

func (g *scriptedGateway) RegisterWatch(ctx context.Context, subjectID, calendarID, address string, ttl time.Duration) (*gateway.WatchChannel, error) {
	return &gateway.WatchChannel{
		ChannelID:  "chan-" + subjectID,
		ResourceID: "res-" + subjectID,
		Expiration: time.Now().Add(7 * 24 * time.Hour),
	}, nil
}

func (g *scriptedGateway) bootstrapCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bootstraps
}

type recordingRowSink struct {
	rows [][]string
}

func (s *recordingRowSink) AppendRow(ctx context.Context, fields []string) error {
	s.rows = append(s.rows, fields)
	return nil
}

type recordingPoster struct {
	messages []string
}

func (p *recordingPoster) Post(ctx context.Context, text string) error {
	p.messages = append(p.messages, text)
	return nil
}

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		server.Close()
	}

	return client, cleanup
}

type webhookFixture struct {
	handler *WebhookHandler
	gw      *scriptedGateway
	store   *lease.Store
	rows    *recordingRowSink
	poster  *recordingPoster
}

func newWebhookFixture(t *testing.T, client *redis.Client, subjects []string, threshold int) *webhookFixture {
	t.Helper()

	gw := &scriptedGateway{
		deltas:       make(map[string]*gateway.EventPage),
		expired:      make(map[string]bool),
		windowEvents: make(map[string][]gateway.Event),
	}
	engine := syncer.NewEngine(gw)
	store := lease.NewStore(client)
	mgr := lease.NewManager(store, gw, engine, subjects, "https://cb.example.com", 7*24*time.Hour, time.Hour)

	rows := &recordingRowSink{}
	poster := &recordingPoster{}
	agg := conflict.NewAggregator(gw, conflict.NewAlertStore(client), poster, conflict.Options{
		Subjects:  subjects,
		Threshold: threshold,
		Location:  time.UTC,
		SheetName: "OOO",
	})

	handler := NewWebhookHandler(mgr, engine, ledger.NewStore(client), agg, rows, streams.NewAuditTrail(client), time.UTC, nil)

	return &webhookFixture{handler: handler, gw: gw, store: store, rows: rows, poster: poster}
}

func notify(t *testing.T, h *WebhookHandler, channelID, state string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/calendar/webhook/notification", nil)
	if channelID != "" {
		req.Header.Set("X-Goog-Channel-ID", channelID)
	}
	if state != "" {
		req.Header.Set("X-Goog-Resource-State", state)
	}

	rr := httptest.NewRecorder()
	h.handleNotification(rr, req)
	return rr
}

func seedLease(t *testing.T, store *lease.Store, subject, channel, token string) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), &lease.WatchLease{
		SubjectID:    subject,
		ChannelID:    channel,
		ResourceID:   "res-" + channel,
		CalendarID:   "primary",
		ExpirationMs: time.Now().Add(24 * time.Hour).UnixMilli(),
		SyncToken:    token,
	}))
}

func TestNotificationRequiresChannelHeader(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	rr := notify(t, fx.handler, "", "exists")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotificationUnknownChannelAcknowledged(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	rr := notify(t, fx.handler, "never-registered", "exists")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Ignored unknown channel")
	assert.Empty(t, fx.rows.rows)
}

func TestNotificationSyncHandshake(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	seedLease(t, fx.store, "alice@example.com", "chan-a", "cur-1")

	rr := notify(t, fx.handler, "chan-a", "sync")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "SYNC", rr.Body.String())
	assert.Equal(t, 0, fx.gw.bootstrapCount())
}

func TestNotificationProcessesEventsOnce(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	seedLease(t, fx.store, "alice@example.com", "chan-a", "cur-1")

	oooEvent := gateway.Event{
		ID:      "evt-1",
		Summary: "OOO - ALICE",
		Start:   gateway.EventTime{Date: "2025-03-10"},
		End:     gateway.EventTime{Date: "2025-03-12"},
	}
	fx.gw.deltas["cur-1"] = &gateway.EventPage{
		Items: []gateway.Event{
			oooEvent,
			{ID: "evt-2", Summary: "Team standup"},
			{ID: "evt-3", Status: "cancelled", Summary: "OOO - GONE"},
		},
		NextSyncToken: "cur-2",
	}

	rr := notify(t, fx.handler, "chan-a", "exists")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Processed, 1)
	assert.Equal(t, "evt-1", resp.Processed[0].EventID)

	require.Len(t, fx.rows.rows, 1)
	assert.Equal(t, []string{"alice@example.com", "OOO - ALICE", "2025-03-10", "2025-03-12", ""}, fx.rows.rows[0])

	l, err := fx.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cur-2", l.SyncToken)

	// The same event redelivered under the next cursor: conflict dates are
	// re-evaluated but no second row is written.
	fx.gw.deltas["cur-2"] = &gateway.EventPage{
		Items:         []gateway.Event{oooEvent},
		NextSyncToken: "cur-3",
	}
	rr = notify(t, fx.handler, "chan-a", "exists")
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Processed)
	assert.Len(t, fx.rows.rows, 1)

	l, err = fx.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cur-3", l.SyncToken)
}

func TestNotificationPersistsTokenWithoutQualifyingEvents(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	seedLease(t, fx.store, "alice@example.com", "chan-a", "cur-1")

	fx.gw.deltas["cur-1"] = &gateway.EventPage{
		Items:         []gateway.Event{{ID: "evt-2", Summary: "Team standup"}},
		NextSyncToken: "cur-2",
	}

	rr := notify(t, fx.handler, "chan-a", "exists")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, fx.rows.rows)

	l, err := fx.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cur-2", l.SyncToken)
}

func TestNotificationRecoversExpiredCursorOnce(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	seedLease(t, fx.store, "alice@example.com", "chan-a", "stale")

	fx.gw.expired["stale"] = true
	fx.gw.bootstrapToken = "fresh"
	fx.gw.deltas["fresh"] = &gateway.EventPage{
		Items: []gateway.Event{{
			ID:      "evt-9",
			Summary: "OOO - ALICE",
			Start:   gateway.EventTime{Date: "2025-03-10"},
			End:     gateway.EventTime{Date: "2025-03-11"},
		}},
		NextSyncToken: "cur-after",
	}

	rr := notify(t, fx.handler, "chan-a", "exists")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, fx.gw.bootstrapCount())
	assert.Len(t, fx.rows.rows, 1)

	l, err := fx.store.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cur-after", l.SyncToken)
}

func TestNotificationFailsWhenRetryAlsoExpires(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	fx := newWebhookFixture(t, client, []string{"alice@example.com"}, 3)
	seedLease(t, fx.store, "alice@example.com", "chan-a", "stale")

	fx.gw.expired["stale"] = true
	fx.gw.bootstrapToken = "also-stale"
	fx.gw.expired["also-stale"] = true

	rr := notify(t, fx.handler, "chan-a", "exists")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, fx.rows.rows)
}

func TestNotificationTriggersConflictAlert(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	subjects := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	fx := newWebhookFixture(t, client, subjects, 3)
	seedLease(t, fx.store, "d@example.com", "chan-d", "cur-1")

	for _, s := range subjects {
		fx.gw.windowEvents[s] = []gateway.Event{{
			ID:      "day-" + s,
			Summary: "OOO - " + s,
		}}
	}

	fx.gw.deltas["cur-1"] = &gateway.EventPage{
		Items: []gateway.Event{{
			ID:      "evt-d",
			Summary: "OOO - DANA",
			Start:   gateway.EventTime{Date: "2025-03-10"},
			End:     gateway.EventTime{Date: "2025-03-11"},
		}},
		NextSyncToken: "cur-2",
	}

	rr := notify(t, fx.handler, "chan-d", "exists")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 1)
	assert.True(t, resp.Alerts[0].Sent)
	assert.Equal(t, 4, resp.Alerts[0].Count)
	assert.Equal(t, "2025-03-10", resp.Alerts[0].Day)

	require.Len(t, fx.poster.messages, 1)
	assert.Contains(t, fx.poster.messages[0], "Last Member Edited: DANA")

	// Redelivery with no change in the off-count sends nothing new.
	fx.gw.deltas["cur-2"] = &gateway.EventPage{
		Items:         fx.gw.deltas["cur-1"].Items,
		NextSyncToken: "cur-3",
	}
	rr = notify(t, fx.handler, "chan-d", "exists")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, fx.poster.messages, 1)
}
