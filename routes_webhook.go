package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ooo-sentinel/classify"
	"ooo-sentinel/conflict"
	"ooo-sentinel/gateway"
	"ooo-sentinel/lease"
	"ooo-sentinel/ledger"
	"ooo-sentinel/sink"
	"ooo-sentinel/streams"
	"ooo-sentinel/syncer"
)

// WebhookHandler receives Google Calendar push notifications and drives the
// incremental sync pipeline for the lease the channel resolves to.
type WebhookHandler struct {
	leases    *lease.Manager
	engine    *syncer.Engine
	processed *ledger.Store
	conflicts *conflict.Aggregator
	rows      sink.RowSink
	audit     *streams.AuditTrail
	loc       *time.Location
	labels    map[string]string
}

func NewWebhookHandler(leases *lease.Manager, engine *syncer.Engine, processed *ledger.Store, conflicts *conflict.Aggregator, rows sink.RowSink, audit *streams.AuditTrail, loc *time.Location, labels map[string]string) *WebhookHandler {
	return &WebhookHandler{
		leases:    leases,
		engine:    engine,
		processed: processed,
		conflicts: conflicts,
		rows:      rows,
		audit:     audit,
		loc:       loc,
		labels:    labels,
	}
}

// RegisterRoutes registers the notification endpoint.
func (h *WebhookHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/calendar/webhook/notification", h.handleNotification).Methods("POST")
}

// ProcessedEntry acknowledges one durable row write.
type ProcessedEntry struct {
	EventID string `json:"event_id"`
	Summary string `json:"summary"`
}

// NotificationResponse is the structured acknowledgment returned upstream.
type NotificationResponse struct {
	Processed []ProcessedEntry   `json:"processed"`
	Alerts    []conflict.Outcome `json:"alerts,omitempty"`
}

func (h *WebhookHandler) handleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channelID := r.Header.Get("X-Goog-Channel-ID")
	resourceState := r.Header.Get("X-Goog-Resource-State")

	if channelID == "" {
		http.Error(w, "Missing X-Goog-Channel-ID header", http.StatusBadRequest)
		return
	}

	l, err := h.leases.ResolveByChannel(ctx, channelID)
	if err != nil {
		log.Printf("Failed resolving channel %s: %v", channelID, err)
		http.Error(w, "Lease lookup failed", http.StatusInternalServerError)
		return
	}
	if l == nil {
		// Redeliveries on replaced channels are expected; acknowledge so the
		// provider does not disable the subscription.
		log.Printf("Received notification for unknown channel %s", channelID)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ignored unknown channel"))
		return
	}

	if resourceState == "sync" {
		log.Printf("Sync handshake for %s acknowledged", channelID)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNC"))
		return
	}

	syncToken := l.SyncToken
	if syncToken == "" {
		syncToken, err = h.engine.BootstrapToken(ctx, l.SubjectID, l.CalendarID)
		if err != nil {
			log.Printf("Bootstrap failed for %s: %v", l.SubjectID, err)
			http.Error(w, "Calendar API error", http.StatusInternalServerError)
			return
		}
		if err := h.leases.UpdateSyncToken(ctx, l.SubjectID, syncToken); err != nil {
			log.Printf("Warning: failed to persist bootstrapped sync token: %v", err)
		}
	}

	events, nextToken, err := h.engine.FetchIncremental(ctx, l.SubjectID, syncToken, l.CalendarID)
	if errors.Is(err, gateway.ErrCursorExpired) {
		// Recover exactly once with a fresh cursor; a second failure aborts
		// and relies on redelivery.
		log.Printf("Sync token expired for %s; bootstrapping a new token", l.SubjectID)
		syncToken, err = h.engine.BootstrapToken(ctx, l.SubjectID, l.CalendarID)
		if err == nil {
			events, nextToken, err = h.engine.FetchIncremental(ctx, l.SubjectID, syncToken, l.CalendarID)
		}
	}
	if err != nil {
		log.Printf("Calendar API error while fetching events for %s: %v", l.SubjectID, err)
		http.Error(w, "Calendar API error", http.StatusInternalServerError)
		return
	}

	appended, alerts := h.processEvents(ctx, l, events)

	if nextToken != "" {
		if err := h.leases.UpdateSyncToken(ctx, l.SubjectID, nextToken); err != nil {
			log.Printf("Failed persisting sync token for %s: %v", l.SubjectID, err)
			http.Error(w, "State store error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NotificationResponse{Processed: appended, Alerts: alerts})
}

// processEvents runs the per-event loop: date-impact bookkeeping happens for
// every OOO event regardless of the ledger, because an edit to an
// already-recorded event must still re-trigger conflict evaluation. The
// ledger only gates the durable row write.
func (h *WebhookHandler) processEvents(ctx context.Context, l *lease.WatchLease, events []gateway.Event) ([]ProcessedEntry, []conflict.Outcome) {
	appended := make([]ProcessedEntry, 0)
	datesToCheck := make(map[time.Time]string)

	for _, ev := range events {
		if ev.Status == "cancelled" {
			log.Printf("Skipping cancelled event %s", ev.ID)
			continue
		}
		if !classify.IsOOO(ev) {
			continue
		}

		summary := strings.TrimSpace(ev.Summary)
		editor := classify.PersonLabel(l.SubjectID, summary, h.labels)
		for _, d := range classify.ActiveLocalDates(ev, h.loc) {
			datesToCheck[d] = editor
		}

		if ev.ID == "" {
			continue
		}
		done, err := h.processed.AlreadyProcessed(ctx, ev.ID)
		if err != nil {
			log.Printf("Ledger lookup failed for %s: %v", ev.ID, err)
			continue
		}
		if done {
			continue
		}

		start := pickMarker(ev.Start)
		end := pickMarker(ev.End)
		row := []string{l.SubjectID, ev.Summary, start, end, ev.HTMLLink}
		if err := h.rows.AppendRow(ctx, row); err != nil {
			// This event's row failed; later events still get their shot.
			log.Printf("Failed appending row for event %s: %v", ev.ID, err)
			continue
		}

		if err := h.processed.MarkProcessed(ctx, ev.ID, ledger.Snapshot{
			SubjectID:   l.SubjectID,
			CalendarID:  l.CalendarID,
			Summary:     summary,
			StartMarker: start,
			EndMarker:   end,
		}); err != nil {
			log.Printf("Failed marking event %s processed: %v", ev.ID, err)
			continue
		}

		if h.audit != nil {
			if _, err := h.audit.AppendProcessed(ctx, l.SubjectID, ev.ID, summary); err != nil {
				log.Printf("Warning: failed to append audit entry for %s: %v", ev.ID, err)
			}
		}

		appended = append(appended, ProcessedEntry{EventID: ev.ID, Summary: summary})
	}

	// Conflict checks run once per unique date touched in this batch, in
	// ascending order; one bad date never blocks another.
	days := make([]time.Time, 0, len(datesToCheck))
	for d := range datesToCheck {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	alerts := make([]conflict.Outcome, 0, len(days))
	for _, d := range days {
		outcome, err := h.conflicts.MaybeAlert(ctx, d, datesToCheck[d])
		if err != nil {
			log.Printf("Failed sending conflict alert for %s: %v", d.Format("2006-01-02"), err)
			continue
		}
		alerts = append(alerts, *outcome)
	}

	return appended, alerts
}

func pickMarker(t gateway.EventTime) string {
	if m := t.Marker(); m != "" {
		return m
	}
	return time.Now().UTC().Format(time.RFC3339)
}
