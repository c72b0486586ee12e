package history

import "context"

// RowAdder adds a single row to a remote table. Implemented by client.AppSheetClient.
type RowAdder interface {
	AddRow(ctx context.Context, row interface{}) error
}

// AppSheetSink saves records as AppSheet rows.
type AppSheetSink struct {
	client RowAdder
}

func NewAppSheetSink(client RowAdder) *AppSheetSink {
	return &AppSheetSink{client: client}
}

func (s *AppSheetSink) Name() string { return "appsheet" }

func (s *AppSheetSink) Save(ctx context.Context, rec Record) error {
	return s.client.AddRow(ctx, rec)
}

func (s *AppSheetSink) Close() error { return nil }
