// Package security resolves Google API credentials. A single service account
// key is loaded once per process; calendar services impersonate individual
// subjects via domain-wide delegation, the sheets service runs as the
// service account itself.
package security

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

var CalendarScopes = []string{
	calendar.CalendarScope,
	calendar.CalendarReadonlyScope,
	calendar.CalendarEventsReadonlyScope,
}

var SheetsScopes = []string{sheets.SpreadsheetsScope}

// Provider hands out authenticated Google service handles. Handles are
// lazily constructed and cached for the process lifetime.
type Provider struct {
	keyJSON []byte

	mu        sync.Mutex
	calendars map[string]*calendar.Service
	sheets    *sheets.Service
}

// NewProvider loads the service account key from inline JSON or, when that
// is empty, from the given file path.
func NewProvider(credentialsJSON, credentialsFile string) (*Provider, error) {
	data := []byte(credentialsJSON)
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account key: %w", err)
		}
	}

	// Validate eagerly so a bad key fails at startup, not on first use.
	if _, err := google.JWTConfigFromJSON(data, CalendarScopes...); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	return &Provider{
		keyJSON:   data,
		calendars: make(map[string]*calendar.Service),
	}, nil
}

// Calendar returns a calendar service acting on behalf of subjectID.
func (p *Provider) Calendar(ctx context.Context, subjectID string) (*calendar.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if svc, ok := p.calendars[subjectID]; ok {
		return svc, nil
	}

	cfg, err := google.JWTConfigFromJSON(p.keyJSON, CalendarScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	cfg.Subject = subjectID

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service for %s: %w", subjectID, err)
	}

	p.calendars[subjectID] = svc
	return svc, nil
}

// Sheets returns the shared spreadsheet service.
func (p *Provider) Sheets(ctx context.Context) (*sheets.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sheets != nil {
		return p.sheets, nil
	}

	cfg, err := google.JWTConfigFromJSON(p.keyJSON, SheetsScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	p.sheets = svc
	return p.sheets, nil
}
