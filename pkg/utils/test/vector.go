package testutils

import (
	"context"

	"github.com/engramhq/engram/pkg/vector"
)

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	Documents []vector.Document
	Results   []vector.QueryResult

	// ResetCount counts Reset calls.
	ResetCount int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Documents: make([]vector.Document, 0),
		Results:   make([]vector.QueryResult, 0),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.Documents = append(m.Documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	if len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, _ []string) ([]vector.Document, error) {
	return m.Documents, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := m.Documents[:0]
	for _, doc := range m.Documents {
		if !remove[doc.ID] {
			kept = append(kept, doc)
		}
	}
	m.Documents = kept

	return nil
}

func (m *MockVectorDriver) Reset(_ context.Context) error {
	m.Documents = m.Documents[:0]
	m.ResetCount++
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
