package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/engramhq/engram/pkg/embeddings"
	"github.com/engramhq/engram/pkg/eventstream"
	"github.com/engramhq/engram/pkg/vector"
)

const (
	// DefaultMaxConcurrent is the default number of simultaneous shared
	// operations the service admits.
	DefaultMaxConcurrent = 64

	// DefaultWriteTimeout bounds how long an add waits for admission while
	// a curation pass holds the exclusive lock.
	DefaultWriteTimeout = 5 * time.Second
)

// Scored pairs a record with its raw similarity to a query embedding.
type Scored struct {
	Record     *Record
	Similarity float32
}

// Service coordinates the record store, the similarity index, and the
// embedder behind a store-wide admission lock.
//
// Reads, adds, and deletes run concurrently; curation acquires the lock
// exclusively so it observes and mutates a frozen store. The vector index is
// treated as a cache over the records' persisted embeddings and can be
// rebuilt at any time with Reindex.
type Service struct {
	store     Store
	index     vector.Driver
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	logger    *zap.Logger

	sem           *semaphore.Weighted
	maxConcurrent int64
	writeTimeout  time.Duration
	nowFunc       func() time.Time
}

// ServiceConfig holds the dependencies and tunables for a Service.
type ServiceConfig struct {
	Store     Store
	Index     vector.Driver
	Embedder  embeddings.Embedder
	Publisher eventstream.Publisher
	Logger    *zap.Logger

	// MaxConcurrent caps simultaneous shared operations.
	// Defaults to DefaultMaxConcurrent if zero.
	MaxConcurrent int64

	// WriteTimeout bounds add admission. Defaults to DefaultWriteTimeout
	// if zero.
	WriteTimeout time.Duration
}

// NewService creates a Service from its dependencies.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	return &Service{
		store:         cfg.Store,
		index:         cfg.Index,
		embedder:      cfg.Embedder,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		sem:           semaphore.NewWeighted(maxConcurrent),
		maxConcurrent: maxConcurrent,
		writeTimeout:  writeTimeout,
		nowFunc:       time.Now,
	}, nil
}

// acquireShared admits one shared operation, respecting ctx cancellation.
func (s *Service) acquireShared(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring store access: %w", err)
	}
	return nil
}

// ExclusiveLock blocks new operations, waits for in-flight ones to drain,
// and returns a release func. Curation runs between the two.
func (s *Service) ExclusiveLock(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, s.maxConcurrent); err != nil {
		return nil, fmt.Errorf("acquiring exclusive store access: %w", err)
	}
	return func() { s.sem.Release(s.maxConcurrent) }, nil
}

// Add validates, enriches, embeds, and persists a new record.
//
// Missing title, technologies, and complexity are derived from content, the
// date defaults to today, and the quality score is computed before the
// record is stored. The record and its embedding are persisted atomically;
// the similarity index is updated best-effort since it can be rebuilt.
func (s *Service) Add(ctx context.Context, record *Record) (*Record, error) {
	admitCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.acquireShared(admitCtx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	r := record.Clone()
	Enrich(r, s.nowFunc().UTC())

	if err := r.Validate(); err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, r.Content)
	if err != nil {
		return nil, fmt.Errorf("embedding record content: %w", err)
	}
	r.Embedding = embedding

	if err := s.store.Add(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting record: %w", err)
	}

	if err := s.index.Add(ctx, []vector.Document{{ID: r.ID, Embedding: r.Embedding}}); err != nil {
		s.logger.Warn("failed to index record, reindex will repair",
			zap.String("record_id", r.ID),
			zap.Error(err),
		)
	}

	s.publish(ctx, &eventstream.MemoryEvent{
		EventType: eventstream.EventTypeRecordStored,
		Project:   r.Project,
		Record: &eventstream.RecordMeta{
			ID:           r.ID,
			Title:        r.Title,
			Source:       r.Source,
			Technologies: r.Technologies,
			QualityScore: r.QualityScore,
		},
	})

	s.logger.Info("record stored",
		zap.String("record_id", r.ID),
		zap.String("source", r.Source),
		zap.Float64("quality_score", r.QualityScore),
	)

	return r, nil
}

// Get retrieves a record by id, archived or not.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if err := s.acquireShared(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	return s.store.Get(ctx, id)
}

// List returns one page of records plus the total count.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Record, int, error) {
	if err := s.acquireShared(ctx); err != nil {
		return nil, 0, err
	}
	defer s.sem.Release(1)

	return s.store.List(ctx, opts)
}

// Count returns the number of non-archived records.
func (s *Service) Count(ctx context.Context) (int, error) {
	if err := s.acquireShared(ctx); err != nil {
		return 0, err
	}
	defer s.sem.Release(1)

	return s.store.Count(ctx)
}

// Delete permanently removes a record and its index entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.acquireShared(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.index.Delete(ctx, []string{id}); err != nil {
		s.logger.Warn("failed to remove record from index, reindex will repair",
			zap.String("record_id", id),
			zap.Error(err),
		)
	}

	s.publish(ctx, &eventstream.MemoryEvent{
		EventType: eventstream.EventTypeRecordDeleted,
		Project:   record.Project,
		Record:    &eventstream.RecordMeta{ID: id, Title: record.Title},
	})

	s.logger.Info("record deleted", zap.String("record_id", id))

	return nil
}

// Similar embeds the query and returns up to topK non-archived records with
// their raw similarity, most similar first. Ranking beyond raw similarity is
// the caller's concern.
func (s *Service) Similar(ctx context.Context, query string, topK int) ([]Scored, error) {
	if err := s.acquireShared(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.index.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	scored := make([]Scored, 0, len(results))
	for _, res := range results {
		record, err := s.store.Get(ctx, res.ID)
		if err != nil {
			// Index entries can outlive their records between deletes
			// and the next reindex.
			continue
		}
		if record.Archived {
			continue
		}
		scored = append(scored, Scored{Record: record, Similarity: res.Score})
	}

	return scored, nil
}

// Reindex rebuilds the similarity index from the store's persisted
// embeddings, skipping archived records. Callers must hold the exclusive
// lock or run before the service is shared.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	records, err := s.store.All(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("loading records: %w", err)
	}

	if err := s.index.Reset(ctx); err != nil {
		return 0, fmt.Errorf("resetting index: %w", err)
	}

	docs := make([]vector.Document, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		docs = append(docs, vector.Document{ID: r.ID, Embedding: r.Embedding})
	}

	if err := s.index.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("rebuilding index: %w", err)
	}

	s.logger.Info("index rebuilt", zap.Int("documents", len(docs)))

	return len(docs), nil
}

// Store exposes the underlying record store for curation running under
// ExclusiveLock.
func (s *Service) Store() Store {
	return s.store
}

// Embedder exposes the embedder for curation running under ExclusiveLock.
func (s *Service) Embedder() embeddings.Embedder {
	return s.embedder
}

// PublishCuration emits a curation-completed event.
func (s *Service) PublishCuration(ctx context.Context, operation string, affectedIDs []string, duration time.Duration) {
	s.publish(ctx, &eventstream.MemoryEvent{
		EventType: eventstream.EventTypeCurationCompleted,
		Curation: &eventstream.CurationMeta{
			Operation:   operation,
			AffectedIDs: affectedIDs,
			DurationMs:  duration.Milliseconds(),
		},
	})
}

// publish fills in envelope fields and emits the event best-effort.
func (s *Service) publish(ctx context.Context, event *eventstream.MemoryEvent) {
	event.SchemaVersion = eventstream.SchemaVersionV1
	event.EventID = uuid.NewString()
	event.EmittedAt = s.nowFunc().UTC()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish memory event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close releases the service's resources.
func (s *Service) Close() error {
	var firstErr error
	for _, c := range []func() error{
		s.publisher.Close,
		s.index.Close,
		s.embedder.Close,
		s.store.Close,
	} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
