// Package inmemory provides a map-backed record store for tests and
// ephemeral development servers.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/engramhq/engram/pkg/memory"
)

// Store implements memory.Store using an in-memory map.
type Store struct {
	// mu is a read write sync mutex for locking the mapping of records
	mu sync.RWMutex

	// records is the in memory map of records keyed by id
	records map[string]*memory.Record
}

// NewStore creates a new in-memory record store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*memory.Record),
	}
}

// Add persists a new record. The map insert is atomic under the lock, so the
// record and its embedding are stored together or not at all.
func (s *Store) Add(_ context.Context, record *memory.Record) error {
	if record == nil {
		return errors.New("cannot store nil record")
	}
	if record.ID == "" {
		return memory.ValidationError{Field: "id", Reason: "must be assigned before Add"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return memory.ConflictError{ID: record.ID, Reason: "id already exists"}
	}

	s.records[record.ID] = record.Clone()
	return nil
}

// Get retrieves a record by its id.
func (s *Store) Get(_ context.Context, id string) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, memory.NotFoundError{ID: id}
	}

	return record.Clone(), nil
}

// Update replaces a stored record.
func (s *Store) Update(_ context.Context, record *memory.Record) error {
	if record == nil {
		return errors.New("cannot store nil record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return memory.NotFoundError{ID: record.ID}
	}

	s.records[record.ID] = record.Clone()
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return memory.NotFoundError{ID: id}
	}

	delete(s.records, id)
	return nil
}

// List returns one page of records ordered by date descending then id.
func (s *Store) List(_ context.Context, opts memory.ListOptions) ([]*memory.Record, int, error) {
	s.mu.RLock()
	all := s.snapshot(opts.IncludeArchived)
	s.mu.RUnlock()

	sortRecords(all)
	total := len(all)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = memory.DefaultPageSize
	}
	if size > memory.MaxPageSize {
		size = memory.MaxPageSize
	}

	start := (page - 1) * size
	if start >= total {
		return []*memory.Record{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}

	return all[start:end], total, nil
}

// All returns every record for curation scans and index rebuilds.
func (s *Store) All(_ context.Context, includeArchived bool) ([]*memory.Record, error) {
	s.mu.RLock()
	all := s.snapshot(includeArchived)
	s.mu.RUnlock()

	sortRecords(all)
	return all, nil
}

// Count returns the number of non-archived records.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.records {
		if !r.Archived {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// snapshot copies matching records; callers must hold at least a read lock.
func (s *Store) snapshot(includeArchived bool) []*memory.Record {
	out := make([]*memory.Record, 0, len(s.records))
	for _, r := range s.records {
		if !includeArchived && r.Archived {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

func sortRecords(records []*memory.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].ID < records[j].ID
	})
}
