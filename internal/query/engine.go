package query

import "context"

// Engine fetches records from the remote authority.
// remote.Client is the production implementation; querytest.MockEngine is
// used by tests.
type Engine interface {
	// ListRecords returns record summaries matching filter, ordered by the
	// authority (newest first).
	ListRecords(ctx context.Context, filter FilterState) ([]RecordSummary, error)

	// GetRecord returns a single record with its commitments and actions.
	GetRecord(ctx context.Context, id int64) (*RecordDetail, error)
}
