// Package conflict computes how many people are out of office on a date and
// raises a deduplicated alert when the count crosses the configured
// threshold. Alerts escalate monotonically: a date re-alerts only when the
// count grows past the last alerted count.
package conflict

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"ooo-sentinel/classify"
	"ooo-sentinel/gateway"
)

const dateLayout = "2006-01-02"

// Poster delivers an alert message. Implemented by sink.SlackPoster.
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Outcome reports what MaybeAlert decided for one date.
type Outcome struct {
	Day     string `json:"day"`
	Sent    bool   `json:"sent"`
	Deduped bool   `json:"deduped,omitempty"`
	Count   int    `json:"count"`
}

// Options carries the static alert configuration.
type Options struct {
	Subjects   []string
	Overrides  map[string]string
	Threshold  int
	Location   *time.Location
	SheetName  string
	Mentions   string
	CCMentions string
}

// Aggregator evaluates per-date conflicts against live calendar state.
type Aggregator struct {
	gw     gateway.Gateway
	store  *AlertStore
	poster Poster
	opts   Options
}

func NewAggregator(gw gateway.Gateway, store *AlertStore, poster Poster, opts Options) *Aggregator {
	return &Aggregator{gw: gw, store: store, poster: poster, opts: opts}
}

// PeopleOffOn returns the sorted labels of subjects with an OOO event
// overlapping the 24-hour local window of day. Each subject counts at most
// once (first qualifying event wins). A subject whose listing fails is
// logged and excluded; partial results beat failing the whole computation.
func (a *Aggregator) PeopleOffOn(ctx context.Context, day time.Time) []string {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.opts.Location)
	dayEnd := dayStart.Add(24 * time.Hour)

	people := make(map[string]struct{})
	for _, subject := range a.opts.Subjects {
		page, err := a.gw.ListPage(ctx, subject, "primary", gateway.PageQuery{
			TimeMin: dayStart,
			TimeMax: dayEnd,
		})
		if err != nil {
			log.Printf("Failed listing events for %s on %s: %v", subject, day.Format(dateLayout), err)
			continue
		}
		for _, ev := range page.Items {
			if !classify.IsOOO(ev) {
				continue
			}
			label := classify.PersonLabel(subject, strings.TrimSpace(ev.Summary), a.opts.Overrides)
			people[label] = struct{}{}
			break // one person counts once per day
		}
	}

	labels := make([]string, 0, len(people))
	for label := range people {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// MaybeAlert recomputes the off-count for day and sends an alert when it
// exceeds the threshold and strictly exceeds the last alerted count for that
// date. Delivery failures propagate to the caller for this date only.
func (a *Aggregator) MaybeAlert(ctx context.Context, day time.Time, editorLabel string) (*Outcome, error) {
	dayISO := day.Format(dateLayout)
	peopleOff := a.PeopleOffOn(ctx, day)
	count := len(peopleOff)

	if count <= a.opts.Threshold {
		return &Outcome{Day: dayISO, Sent: false, Count: count}, nil
	}

	existing, err := a.store.Get(ctx, dayISO)
	if err != nil {
		return nil, err
	}
	lastCount := 0
	if existing != nil {
		lastCount = existing.LastAlertCount
	}
	if lastCount >= count {
		return &Outcome{Day: dayISO, Sent: false, Deduped: true, Count: count}, nil
	}

	message := a.formatMessage(day, editorLabel, peopleOff)
	if err := a.poster.Post(ctx, message); err != nil {
		return nil, fmt.Errorf("send conflict alert for %s: %w", dayISO, err)
	}

	if err := a.store.Save(ctx, &Record{
		Day:            dayISO,
		LastAlertCount: count,
		Threshold:      a.opts.Threshold,
		LastMember:     editorLabel,
		PeopleOff:      peopleOff,
	}); err != nil {
		return nil, err
	}

	return &Outcome{Day: dayISO, Sent: true, Count: count}, nil
}

func (a *Aggregator) formatMessage(day time.Time, editorLabel string, peopleOff []string) string {
	weekday := day.Weekday().String()
	lines := []string{
		strings.TrimRight(fmt.Sprintf(":rotating_light: %s TIME-OFF CONFLICT ALERT:", a.opts.Mentions), " "),
		fmt.Sprintf("Threshold: %d maximum off", a.opts.Threshold),
		fmt.Sprintf("Last Member Edited: %s", editorLabel),
		fmt.Sprintf("Sheet: %s", a.opts.SheetName),
		fmt.Sprintf("Date: %s (%s)", day.Format(dateLayout), weekday),
		fmt.Sprintf("Conflict Count: %d people off (Limit: %d)", len(peopleOff), a.opts.Threshold),
		fmt.Sprintf("Day/Event: %s", weekday),
		fmt.Sprintf("People Off: %s", strings.Join(peopleOff, ", ")),
	}
	if a.opts.CCMentions != "" {
		lines = append(lines, fmt.Sprintf("CC: %s", a.opts.CCMentions))
	}
	return strings.Join(lines, "\n")
}
