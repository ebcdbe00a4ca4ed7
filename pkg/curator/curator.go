// Package curator implements batch maintenance over the memory corpus:
// deduplication, consolidation, archival, enhancement, and a read-only
// health report.
//
// Every operation runs under the service's exclusive lock so it observes and
// mutates a frozen store, then rebuilds the similarity index before
// releasing. Operations that support dry runs report the changes they would
// make without touching the store.
package curator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
)

const (
	// DefaultDuplicateThreshold is the lexical similarity above which two
	// records count as near-duplicates.
	DefaultDuplicateThreshold = 0.85

	// DefaultArchiveDays is the age beyond which records are archived.
	DefaultArchiveDays = 90

	// dedupSnippetLength bounds how much content feeds the lexical
	// similarity comparison.
	dedupSnippetLength = 500
)

// Operation names used in summaries and curation events.
const (
	OpDeduplicate = "deduplicate"
	OpConsolidate = "consolidate"
	OpArchive     = "archive"
	OpEnhance     = "enhance"
	OpAutoCurate  = "auto-curate"
)

// Config holds curation policy tunables.
type Config struct {
	// DuplicateThreshold overrides DefaultDuplicateThreshold when > 0.
	DuplicateThreshold float64

	// ArchiveDays overrides DefaultArchiveDays when > 0.
	ArchiveDays int
}

// Curator runs curation operations over a memory service.
type Curator struct {
	svc       *memory.Service
	threshold float64
	days      int
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewCurator creates a Curator over the given service.
func NewCurator(svc *memory.Service, cfg Config, logger *zap.Logger) *Curator {
	threshold := cfg.DuplicateThreshold
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}

	days := cfg.ArchiveDays
	if days <= 0 {
		days = DefaultArchiveDays
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Curator{
		svc:       svc,
		threshold: threshold,
		days:      days,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// ArchiveDays reports the configured archive age policy.
func (c *Curator) ArchiveDays() int {
	return c.days
}

// run executes op under the exclusive lock. When op reports it mutated the
// store, the similarity index is rebuilt before the lock is released and a
// curation event is emitted.
func (c *Curator) run(ctx context.Context, name string, op func(ctx context.Context) ([]string, error)) error {
	release, err := c.svc.ExclusiveLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	start := c.nowFunc()

	affected, err := op(ctx)
	if err != nil {
		return err
	}

	if len(affected) > 0 {
		if _, err := c.svc.Reindex(ctx); err != nil {
			return err
		}
		c.svc.PublishCuration(ctx, name, affected, c.nowFunc().Sub(start))
	}

	c.logger.Info("curation operation finished",
		zap.String("operation", name),
		zap.Int("affected", len(affected)),
		zap.Duration("elapsed", c.nowFunc().Sub(start)),
	)

	return nil
}
