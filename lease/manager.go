package lease

import (
	"context"
	"log"
	"sync"
	"time"

	"ooo-sentinel/gateway"
)

const defaultCalendarID = "primary"

// Bootstrapper produces a fresh sync cursor for a subject. Implemented by
// syncer.Engine.
type Bootstrapper interface {
	BootstrapToken(ctx context.Context, subjectID, calendarID string) (string, error)
}

// Result reports the outcome of one subject's health check.
type Result struct {
	SubjectID  string `json:"subject"`
	Status     string `json:"status"`
	Expiration int64  `json:"expiration,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusRefreshed = "refreshed"
	StatusError     = "error"
)

// Manager decides when a subject's push channel needs (re)registration and
// performs it: fresh channel, bootstrapped cursor, persisted lease.
type Manager struct {
	store       *Store
	gw          gateway.Gateway
	bootstrap   Bootstrapper
	subjects    []string
	callbackURL string
	watchTTL    time.Duration
	minLease    time.Duration

	now func() time.Time
}

func NewManager(store *Store, gw gateway.Gateway, bootstrap Bootstrapper, subjects []string, callbackURL string, watchTTL, minLease time.Duration) *Manager {
	return &Manager{
		store:       store,
		gw:          gw,
		bootstrap:   bootstrap,
		subjects:    subjects,
		callbackURL: callbackURL,
		watchTTL:    watchTTL,
		minLease:    minLease,
		now:         time.Now,
	}
}

// EnsureHealthy registers a new push channel for the subject unless the
// existing lease still has more than the minimum remaining time. Re-running
// against a healthy lease is a no-op.
func (m *Manager) EnsureHealthy(ctx context.Context, subjectID string) (*Result, error) {
	existing, err := m.store.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	nowMs := m.now().UnixMilli()
	if existing != nil && existing.ExpirationMs-nowMs > m.minLease.Milliseconds() {
		return &Result{SubjectID: subjectID, Status: StatusHealthy, Expiration: existing.ExpirationMs}, nil
	}

	log.Printf("Registering watch channel for %s", subjectID)
	channel, err := m.gw.RegisterWatch(ctx, subjectID, defaultCalendarID, m.callbackURL, m.watchTTL)
	if err != nil {
		return nil, err
	}

	token, err := m.bootstrap.BootstrapToken(ctx, subjectID, defaultCalendarID)
	if err != nil {
		return nil, err
	}

	l := &WatchLease{
		SubjectID:    subjectID,
		ChannelID:    channel.ChannelID,
		ResourceID:   channel.ResourceID,
		CalendarID:   defaultCalendarID,
		ExpirationMs: channel.Expiration.UnixMilli(),
		SyncToken:    token,
	}
	if err := m.store.Save(ctx, l); err != nil {
		return nil, err
	}

	return &Result{SubjectID: subjectID, Status: StatusRefreshed, Expiration: l.ExpirationMs}, nil
}

// EnsureAll runs EnsureHealthy for every configured subject. Subjects are
// independent, so they are checked in parallel; one subject's failure never
// blocks another's registration.
func (m *Manager) EnsureAll(ctx context.Context) []Result {
	results := make([]Result, len(m.subjects))
	var wg sync.WaitGroup
	for i, subject := range m.subjects {
		wg.Add(1)
		go func(i int, subject string) {
			defer wg.Done()
			res, err := m.EnsureHealthy(ctx, subject)
			if err != nil {
				log.Printf("Ensure watch for %s failed: %v", subject, err)
				results[i] = Result{SubjectID: subject, Status: StatusError, Error: err.Error()}
				return
			}
			results[i] = *res
		}(i, subject)
	}
	wg.Wait()
	return results
}

// ResolveByChannel routes an inbound notification to its lease; unknown
// channels resolve to nil.
func (m *Manager) ResolveByChannel(ctx context.Context, channelID string) (*WatchLease, error) {
	return m.store.GetByChannel(ctx, channelID)
}

// UpdateSyncToken persists a new cursor on the subject's lease so the next
// notification resumes from the right point.
func (m *Manager) UpdateSyncToken(ctx context.Context, subjectID, token string) error {
	return m.store.UpdateSyncToken(ctx, subjectID, token)
}
