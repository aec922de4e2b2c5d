// Package sink holds the downstream write adapters: the spreadsheet row
// appender and the chat alert poster. Both are append-only, fire-and-forget
// surfaces; neither updates or deletes anything.
package sink

import (
	"context"
	"fmt"

	sheets "google.golang.org/api/sheets/v4"
)

// RowSink appends one ordered row of string fields.
type RowSink interface {
	AppendRow(ctx context.Context, fields []string) error
}

// SheetServices supplies the authenticated sheets handle. Implemented by
// security.Provider.
type SheetServices interface {
	Sheets(ctx context.Context) (*sheets.Service, error)
}

// SheetAppender appends rows to a fixed range of one spreadsheet.
type SheetAppender struct {
	services   SheetServices
	sheetID    string
	writeRange string
}

func NewSheetAppender(services SheetServices, sheetID, writeRange string) *SheetAppender {
	return &SheetAppender{services: services, sheetID: sheetID, writeRange: writeRange}
}

func (s *SheetAppender) AppendRow(ctx context.Context, fields []string) error {
	svc, err := s.services.Sheets(ctx)
	if err != nil {
		return err
	}

	row := make([]interface{}, len(fields))
	for i, f := range fields {
		row[i] = f
	}

	_, err = svc.Spreadsheets.Values.Append(s.sheetID, s.writeRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	return nil
}
