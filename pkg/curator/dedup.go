package curator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"go.uber.org/zap"
)

// DedupResult summarizes one deduplication pass.
type DedupResult struct {
	DryRun bool `json:"dry_run"`

	// Clusters is the number of duplicate groups found.
	Clusters int `json:"clusters"`

	// Kept holds the surviving record id per cluster.
	Kept []string `json:"kept,omitempty"`

	// Removed holds ids deleted, or that would be deleted under dry run.
	Removed []string `json:"removed,omitempty"`
}

// Deduplicate clusters exact and near-duplicate records and keeps only the
// highest-quality record per cluster. It is idempotent: a second run with no
// intervening adds finds nothing to remove.
func (c *Curator) Deduplicate(ctx context.Context, dryRun bool) (*DedupResult, error) {
	var result *DedupResult
	err := c.run(ctx, OpDeduplicate, func(ctx context.Context) ([]string, error) {
		var err error
		result, err = c.deduplicateLocked(ctx, dryRun)
		if err != nil {
			return nil, err
		}
		if dryRun {
			return nil, nil
		}
		return result.Removed, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deduplicateLocked does the clustering and (unless dryRun) the deletes.
// Caller holds the exclusive lock.
func (c *Curator) deduplicateLocked(ctx context.Context, dryRun bool) (*DedupResult, error) {
	records, err := c.svc.Store().All(ctx, false)
	if err != nil {
		return nil, err
	}

	result := &DedupResult{DryRun: dryRun}
	if len(records) < 2 {
		return result, nil
	}

	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}

	// Exact duplicates by content hash.
	byHash := make(map[string]int)
	for i, r := range records {
		sum := sha256.Sum256([]byte(r.Content))
		key := hex.EncodeToString(sum[:])
		if first, ok := byHash[key]; ok {
			union(i, first)
		} else {
			byHash[key] = i
		}
	}

	// Near-duplicates by lexical similarity over a content snippet.
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = snippet(r.Content)
	}
	vectors := lexicalVectors(texts)
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if vectors[i].cosine(vectors[j]) >= c.threshold {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]int)
	for i := range records {
		root := find(i)
		clusters[root] = append(clusters[root], i)
	}

	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}

		// Keep the highest quality record; break ties toward the newest,
		// then the smallest id, so repeat runs make the same choice.
		sort.Slice(members, func(a, b int) bool {
			ra, rb := records[members[a]], records[members[b]]
			if ra.QualityScore != rb.QualityScore {
				return ra.QualityScore > rb.QualityScore
			}
			if ra.Date != rb.Date {
				return ra.Date > rb.Date
			}
			return ra.ID < rb.ID
		})

		result.Clusters++
		result.Kept = append(result.Kept, records[members[0]].ID)
		for _, m := range members[1:] {
			result.Removed = append(result.Removed, records[m].ID)
		}
	}

	if dryRun {
		return result, nil
	}

	for _, id := range result.Removed {
		if err := c.svc.Store().Delete(ctx, id); err != nil {
			c.logger.Error("failed to delete duplicate record",
				zap.String("record_id", id),
				zap.Error(err),
			)
			return nil, err
		}
	}

	return result, nil
}
