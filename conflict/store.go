package conflict

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the durable memory of the last alert sent for a date. A new
// alert is only warranted when the off-count strictly exceeds LastAlertCount.
type Record struct {
	Day            string
	LastAlertCount int
	Threshold      int
	LastMember     string
	PeopleOff      []string
}

// AlertStore keeps one record per alerted calendar date. Records are never
// pruned; past dates are never revisited.
type AlertStore struct {
	client *redis.Client
}

func NewAlertStore(client *redis.Client) *AlertStore {
	return &AlertStore{client: client}
}

func alertKey(dayISO string) string {
	return "alert:" + dayISO
}

// Get returns the record for a date, or nil when nothing has alerted yet.
func (s *AlertStore) Get(ctx context.Context, dayISO string) (*Record, error) {
	data, err := s.client.HGetAll(ctx, alertKey(dayISO)).Result()
	if err != nil {
		return nil, fmt.Errorf("read alert record for %s: %w", dayISO, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	lastCount, _ := strconv.Atoi(data["last_alert_count"])
	threshold, _ := strconv.Atoi(data["threshold"])
	var people []string
	if data["people_off"] != "" {
		people = strings.Split(data["people_off"], ",")
	}
	return &Record{
		Day:            dayISO,
		LastAlertCount: lastCount,
		Threshold:      threshold,
		LastMember:     data["last_member"],
		PeopleOff:      people,
	}, nil
}

// Save upserts the record for a date.
func (s *AlertStore) Save(ctx context.Context, rec *Record) error {
	fields := map[string]interface{}{
		"day":              rec.Day,
		"last_alert_count": rec.LastAlertCount,
		"threshold":        rec.Threshold,
		"last_member":      rec.LastMember,
		"people_off":       strings.Join(rec.PeopleOff, ","),
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.client.HSet(ctx, alertKey(rec.Day), fields).Err(); err != nil {
		return fmt.Errorf("store alert record for %s: %w", rec.Day, err)
	}
	return nil
}
