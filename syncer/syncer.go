// Package syncer drives paginated incremental fetches against the calendar
// gateway: bootstrapping a sync cursor and accumulating changes since one.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"ooo-sentinel/gateway"
)

// bootstrapLookback bounds the initial full listing used to obtain a cursor.
const bootstrapLookback = 30 * 24 * time.Hour

// BootstrapError means the provider completed pagination without issuing a
// sync cursor. Callers treat it as fatal for the subject rather than retrying.
type BootstrapError struct {
	SubjectID string
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("unable to bootstrap sync token for %s: provider returned no cursor", e.SubjectID)
}

// Engine fetches event deltas through a gateway.
type Engine struct {
	gw gateway.Gateway

	now func() time.Time
}

func NewEngine(gw gateway.Gateway) *Engine {
	return &Engine{gw: gw, now: time.Now}
}

// BootstrapToken pages through the lookback window, discarding events, and
// returns the cursor from the final page.
func (e *Engine) BootstrapToken(ctx context.Context, subjectID, calendarID string) (string, error) {
	timeMin := e.now().UTC().Add(-bootstrapLookback)
	var pageToken string

	for {
		page, err := e.gw.ListPage(ctx, subjectID, calendarID, gateway.PageQuery{
			TimeMin:   timeMin,
			PageToken: pageToken,
		})
		if err != nil {
			return "", fmt.Errorf("bootstrap listing for %s: %w", subjectID, err)
		}
		if page.NextPageToken != "" {
			pageToken = page.NextPageToken
			continue
		}
		if page.NextSyncToken == "" {
			return "", &BootstrapError{SubjectID: subjectID}
		}
		log.Printf("Bootstrap sync token generated for %s", subjectID)
		return page.NextSyncToken, nil
	}
}

// FetchIncremental accumulates every change since syncToken (deletions
// included) and returns the accumulated events plus the next cursor. An
// expired cursor surfaces as gateway.ErrCursorExpired for the caller to
// recover; any other error aborts the fetch.
func (e *Engine) FetchIncremental(ctx context.Context, subjectID, syncToken, calendarID string) ([]gateway.Event, string, error) {
	var (
		events    []gateway.Event
		pageToken string
	)

	for {
		page, err := e.gw.ListPage(ctx, subjectID, calendarID, gateway.PageQuery{
			SyncToken:   syncToken,
			PageToken:   pageToken,
			ShowDeleted: true,
		})
		if err != nil {
			return nil, "", err
		}

		events = append(events, page.Items...)

		if page.NextPageToken != "" {
			pageToken = page.NextPageToken
			continue
		}
		return events, page.NextSyncToken, nil
	}
}
