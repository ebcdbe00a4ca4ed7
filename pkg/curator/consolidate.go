package curator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/pkg/memory"
)

// Metadata keys written on consolidated records.
const (
	MetadataConsolidatedFrom = "consolidated_from"
	MetadataConsolidatedAt   = "consolidated_at"
)

// ConsolidateResult summarizes one consolidation.
type ConsolidateResult struct {
	// ConsolidatedID is the id of the merged record.
	ConsolidatedID string `json:"consolidated_id"`

	// SourceIDs are the originals that were merged and deleted.
	SourceIDs []string `json:"source_ids"`

	Title string `json:"title"`
}

// Consolidate merges the named records into one new record carrying every
// original's content under a provenance header, plus the union of their
// technologies and file paths. The originals are deleted only after the
// merged record has been persisted, so a failure mid-way never loses
// content.
func (c *Curator) Consolidate(ctx context.Context, ids []string, title string) (*ConsolidateResult, error) {
	if len(ids) < 2 {
		return nil, memory.ValidationError{Field: "ids", Reason: "consolidation needs at least two records"}
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, memory.ValidationError{Field: "ids", Reason: "duplicate id " + id}
		}
		seen[id] = true
	}

	var result *ConsolidateResult
	err := c.run(ctx, OpConsolidate, func(ctx context.Context) ([]string, error) {
		var err error
		result, err = c.consolidateLocked(ctx, ids, title)
		if err != nil {
			return nil, err
		}
		return append([]string{result.ConsolidatedID}, ids...), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Curator) consolidateLocked(ctx context.Context, ids []string, title string) (*ConsolidateResult, error) {
	store := c.svc.Store()

	records := make([]*memory.Record, 0, len(ids))
	for _, id := range ids {
		r, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Archived {
			return nil, memory.ConflictError{ID: id, Reason: "archived records cannot be consolidated"}
		}
		records = append(records, r)
	}

	// Chronological sections read naturally in the merged record.
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].ID < records[j].ID
	})

	sections := make([]string, 0, len(records))
	techSet := make(map[string]bool)
	pathSet := make(map[string]bool)
	for _, r := range records {
		sections = append(sections, fmt.Sprintf("## %s (%s)\n%s\n", r.Title, r.Date, r.Content))
		for _, t := range r.Technologies {
			techSet[t] = true
		}
		for _, p := range r.FilePaths {
			pathSet[p] = true
		}
	}

	if title == "" {
		title = fmt.Sprintf("Consolidated Memory (%d memories)", len(records))
	}

	now := c.nowFunc().UTC()
	merged := &memory.Record{
		Content:      strings.Join(sections, "\n---\n"),
		Title:        title,
		Date:         now.Format(memory.DateLayout),
		Source:       memory.SourceConsolidation,
		Technologies: sortedKeys(techSet),
		FilePaths:    sortedKeys(pathSet),
		Complexity:   memory.ComplexityHigh,
		Project:      records[0].Project,
		Metadata: map[string]string{
			MetadataConsolidatedFrom: strings.Join(ids, ","),
			MetadataConsolidatedAt:   now.Format(time.RFC3339),
		},
	}
	memory.Enrich(merged, now)

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	embedding, err := c.svc.Embedder().Embed(ctx, merged.Content)
	if err != nil {
		return nil, fmt.Errorf("embedding consolidated record: %w", err)
	}
	merged.Embedding = embedding

	if err := store.Add(ctx, merged); err != nil {
		return nil, fmt.Errorf("persisting consolidated record: %w", err)
	}

	// Originals go only after the merged record is durable.
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("deleting consolidated original %s: %w", id, err)
		}
	}

	return &ConsolidateResult{
		ConsolidatedID: merged.ID,
		SourceIDs:      ids,
		Title:          merged.Title,
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
