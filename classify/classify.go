// Package classify turns raw calendar events into the facts the pipeline
// acts on: whether an event is an out-of-office entry, which local calendar
// dates it covers, and the label of the person it belongs to.
package classify

import (
	"strings"
	"time"

	"ooo-sentinel/gateway"
)

const (
	oooPrefix    = "OOO"
	unknownLabel = "UNKNOWN"
	dateLayout   = "2006-01-02"
)

// IsOOO reports whether the event should be treated as an out-of-office
// entry. Cancelled events never qualify.
func IsOOO(ev gateway.Event) bool {
	if ev.Status == "cancelled" {
		return false
	}
	summary := strings.TrimSpace(ev.Summary)
	return strings.HasPrefix(strings.ToUpper(summary), oooPrefix)
}

// ActiveLocalDates returns the local calendar dates the event covers, in
// ascending order. The end boundary is exclusive in both event shapes:
// all-day events carry an exclusive end date, timed events an exclusive end
// instant (an event ending exactly at local midnight does not occupy that
// day). Dates are returned as midnight-UTC time.Time values used purely as
// calendar dates.
func ActiveLocalDates(ev gateway.Event, loc *time.Location) []time.Time {
	if ev.Start.Date != "" && ev.End.Date != "" {
		start, errS := time.Parse(dateLayout, ev.Start.Date)
		end, errE := time.Parse(dateLayout, ev.End.Date)
		if errS == nil && errE == nil {
			var days []time.Time
			for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, 1) {
				days = append(days, cur)
			}
			return days
		}
	}

	if ev.Start.DateTime != "" && ev.End.DateTime != "" {
		start, errS := time.Parse(time.RFC3339, ev.Start.DateTime)
		end, errE := time.Parse(time.RFC3339, ev.End.DateTime)
		if errS == nil && errE == nil {
			start = start.In(loc)
			end = end.In(loc)
			if !end.After(start) {
				return []time.Time{dateOf(start)}
			}
			last := dateOf(end.Add(-time.Nanosecond).In(loc))
			var days []time.Time
			for cur := dateOf(start); !cur.After(last); cur = cur.AddDate(0, 0, 1) {
				days = append(days, cur)
			}
			return days
		}
	}

	// Malformed payload: count today rather than failing the batch.
	return []time.Time{dateOf(time.Now().UTC())}
}

// PersonLabel resolves the display label for an OOO entry. An explicit
// override for the subject wins; otherwise the label is parsed from the
// summary ("OOO - ROHAN (APAC)" -> "ROHAN (APAC)"), falling back to the
// subject's mailbox local-part.
func PersonLabel(subjectID, summary string, overrides map[string]string) string {
	if label, ok := overrides[subjectID]; ok {
		return strings.TrimSpace(label)
	}

	s := strings.TrimSpace(summary)
	if s == "" {
		return labelFromSubject(subjectID)
	}

	if strings.HasPrefix(strings.ToUpper(s), oooPrefix) {
		s = strings.TrimSpace(s[len(oooPrefix):])
		for _, sep := range []string{":", "-", "–", "—", "|"} {
			if strings.HasPrefix(s, sep) {
				s = strings.TrimSpace(s[len(sep):])
				break
			}
		}
	}
	if s == "" {
		return labelFromSubject(subjectID)
	}
	return s
}

func labelFromSubject(subjectID string) string {
	local := subjectID
	if at := strings.Index(subjectID, "@"); at >= 0 {
		local = subjectID[:at]
	}
	local = strings.TrimSpace(local)
	if local == "" {
		return unknownLabel
	}
	local = strings.ReplaceAll(local, ".", " ")
	local = strings.ReplaceAll(local, "_", " ")
	return strings.ToUpper(local)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
