// Package inmemory provides a brute-force in-process vector driver.
//
// It holds every embedding in a map and scans all of them per query. That is
// plenty for the collection sizes a single assistant installation produces,
// and it needs no cgo or external service.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/engramhq/engram/pkg/vector"
)

// Driver is an in-memory implementation of vector.Driver.
type Driver struct {
	mu   sync.RWMutex
	docs map[string][]float32
}

// NewDriver creates a new empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{
		docs: make(map[string][]float32),
	}
}

// Add stores documents, replacing any existing entries with the same id.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		emb := make([]float32, len(doc.Embedding))
		copy(emb, doc.Embedding)
		d.docs[doc.ID] = emb
	}

	return nil
}

// Query scans every stored embedding and returns the topK most similar
// documents by cosine similarity, most similar first.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK < 1 {
		return nil, vector.ErrInvalidTopK
	}

	d.mu.RLock()
	results := make([]vector.QueryResult, 0, len(d.docs))
	for id, emb := range d.docs {
		results = append(results, vector.QueryResult{
			Document: vector.Document{ID: id, Embedding: emb},
			Score:    cosineSimilarity(embedding, emb),
		})
	}
	d.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Get retrieves documents by id. Unknown ids are skipped.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		emb, ok := d.docs[id]
		if !ok {
			continue
		}
		docs = append(docs, vector.Document{ID: id, Embedding: emb})
	}

	return docs, nil
}

// Delete removes documents by id. Unknown ids are ignored.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}

	return nil
}

// Reset clears the index by swapping in a fresh map, so concurrent readers
// never observe a half-cleared state.
func (d *Driver) Reset(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.docs = make(map[string][]float32)
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// cosineSimilarity returns the cosine similarity of a and b clamped to
// [0, 1]. Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	} else if sim > 1 {
		sim = 1
	}

	return float32(sim)
}
