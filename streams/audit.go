// Package streams appends an audit trail of durable writes to a Redis
// stream so downstream consumers (or operators) can replay what the pipeline
// recorded without touching the spreadsheet.
package streams

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedStream = "ooo:processed"

// AuditTrail writes processed-event entries to a Redis stream.
type AuditTrail struct {
	client *redis.Client
}

func NewAuditTrail(client *redis.Client) *AuditTrail {
	return &AuditTrail{client: client}
}

// AppendProcessed records one durable write. Failures are the caller's to
// log; the audit trail never gates event processing.
func (a *AuditTrail) AppendProcessed(ctx context.Context, subjectID, eventID, summary string) (string, error) {
	return a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: processedStream,
		Values: map[string]interface{}{
			"subject_id":   subjectID,
			"event_id":     eventID,
			"summary":      summary,
			"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
}
