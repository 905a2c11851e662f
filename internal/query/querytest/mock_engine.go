// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wesm/minutes/internal/query"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned data is returned.
type MockEngine struct {
	Records []query.RecordSummary
	Details map[int64]*query.RecordDetail

	// Optional overrides, set per test.
	ListRecordsFunc func(context.Context, query.FilterState) ([]query.RecordSummary, error)
	GetRecordFunc   func(context.Context, int64) (*query.RecordDetail, error)

	mu    sync.Mutex
	calls []query.FilterState
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) ListRecords(ctx context.Context, filter query.FilterState) ([]query.RecordSummary, error) {
	m.mu.Lock()
	m.calls = append(m.calls, filter)
	m.mu.Unlock()
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, filter)
	}
	return m.Records, nil
}

func (m *MockEngine) GetRecord(ctx context.Context, id int64) (*query.RecordDetail, error) {
	if m.GetRecordFunc != nil {
		return m.GetRecordFunc(ctx, id)
	}
	if d, ok := m.Details[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("record %d not found", id)
}

// ListCalls returns the filters passed to ListRecords, in call order.
func (m *MockEngine) ListCalls() []query.FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.FilterState(nil), m.calls...)
}
