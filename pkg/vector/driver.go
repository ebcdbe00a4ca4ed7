// Package vector provides interfaces and implementations for vector storage
// used by the similarity index.
//
// The index is a cache over the record store: every document can be
// re-derived from a record's persisted embedding, so drivers may be wiped and
// rebuilt at any time without data loss.
package vector

import "context"

// Document represents a stored item with its embedding.
type Document struct {
	// ID is the record id the embedding belongs to.
	ID string

	// Embedding is the vector representation of the record content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the similarity score in [0, 1] (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should
	// update the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Reset clears the index ahead of a full rebuild. Queries running
	// concurrently with a rebuild must observe either the pre- or
	// post-rebuild state, never a partial one.
	Reset(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}
