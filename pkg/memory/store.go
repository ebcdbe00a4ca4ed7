package memory

import "context"

// ListOptions controls pagination and archived-record visibility for List.
type ListOptions struct {
	// Page is 1-based. Zero is treated as page 1.
	Page int

	// PageSize is capped at MaxPageSize; zero means DefaultPageSize.
	PageSize int

	// IncludeArchived makes archived records visible. Archived records are
	// always retrievable; archival only changes default visibility.
	IncludeArchived bool
}

// Store defines the interface for persisting and retrieving memory records.
// Implementations must persist a record and its embedding atomically: after a
// successful Add either both are durable or neither is.
//
// Implementations are safe for concurrent use; the engine layers a store-wide
// curation lock on top, so stores only need per-call consistency.
type Store interface {
	// Add persists a new record. The record must already carry an ID.
	Add(ctx context.Context, record *Record) error

	// Get retrieves a record by id, archived or not.
	// Returns NotFoundError when the id is unknown.
	Get(ctx context.Context, id string) (*Record, error)

	// Update replaces a stored record. Only curation mutates records.
	// Returns NotFoundError when the id is unknown.
	Update(ctx context.Context, record *Record) error

	// Delete removes a record. Returns NotFoundError when the id is unknown;
	// callers running batches treat that as a per-item outcome, not an abort.
	Delete(ctx context.Context, id string) error

	// List returns one page of records plus the total count for the
	// requested visibility. Ordering is newest date first, then id, so
	// pagination is stable.
	List(ctx context.Context, opts ListOptions) ([]*Record, int, error)

	// All returns every record, used by curation scans and index rebuilds.
	All(ctx context.Context, includeArchived bool) ([]*Record, error)

	// Count returns the number of non-archived records.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
