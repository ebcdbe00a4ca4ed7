package curator

import (
	"context"
	"fmt"

	"github.com/engramhq/engram/pkg/memory"
)

// lowQualityThreshold selects records for enhancement during auto-curation.
const lowQualityThreshold = 0.5

// AutoCurateResult is the combined summary of one auto-curation pass.
type AutoCurateResult struct {
	DryRun bool `json:"dry_run"`

	Dedup *DedupResult `json:"dedup"`

	// ConsolidationCandidates are groups worth merging. Consolidation runs
	// only on explicit ids, so candidates are reported, never applied.
	ConsolidationCandidates []ConsolidationOpportunity `json:"consolidation_candidates,omitempty"`

	Archive *ArchiveResult `json:"archive"`

	// Enhanced holds ids of low-quality records that were enhanced, or
	// would be under dry run.
	Enhanced []string `json:"enhanced,omitempty"`

	// Actions is a human-readable summary line per sub-operation.
	Actions []string `json:"actions"`
}

// AutoCurate runs deduplicate, consolidation-candidate detection, archive,
// and enhance in that fixed order under one lock, so each step sees the
// previous step's output. A single dryRun flag covers every step.
func (c *Curator) AutoCurate(ctx context.Context, dryRun bool) (*AutoCurateResult, error) {
	var result *AutoCurateResult
	err := c.run(ctx, OpAutoCurate, func(ctx context.Context) ([]string, error) {
		var err error
		result, err = c.autoCurateLocked(ctx, dryRun)
		if err != nil {
			return nil, err
		}
		if dryRun {
			return nil, nil
		}

		var affected []string
		affected = append(affected, result.Dedup.Removed...)
		for _, a := range result.Archive.Archived {
			affected = append(affected, a.ID)
		}
		affected = append(affected, result.Enhanced...)
		return affected, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Curator) autoCurateLocked(ctx context.Context, dryRun bool) (*AutoCurateResult, error) {
	result := &AutoCurateResult{DryRun: dryRun}

	dedup, err := c.deduplicateLocked(ctx, dryRun)
	if err != nil {
		return nil, err
	}
	result.Dedup = dedup
	if len(dedup.Removed) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("%s %d duplicate records", verb(dryRun, "remove"), len(dedup.Removed)))
	}

	records, err := c.svc.Store().All(ctx, false)
	if err != nil {
		return nil, err
	}

	result.ConsolidationCandidates = findConsolidationOpportunities(records)
	if len(result.ConsolidationCandidates) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("found %d consolidation candidates", len(result.ConsolidationCandidates)))
	}

	archive, err := c.archiveLocked(ctx, c.days, dryRun)
	if err != nil {
		return nil, err
	}
	result.Archive = archive
	if len(archive.Archived) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("%s %d records older than %d days", verb(dryRun, "archive"), len(archive.Archived), archive.Days))
	}

	// Enhancement runs last so it only touches survivors.
	survivors, err := c.svc.Store().All(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, r := range survivors {
		if r.QualityScore >= lowQualityThreshold {
			continue
		}
		if !wouldEnhance(r) {
			continue
		}
		result.Enhanced = append(result.Enhanced, r.ID)
		if dryRun {
			continue
		}
		if _, err := c.enhanceLocked(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	if len(result.Enhanced) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("%s %d low-quality records", verb(dryRun, "enhance"), len(result.Enhanced)))
	}

	return result, nil
}

// wouldEnhance reports whether enhancement has anything to backfill.
func wouldEnhance(r *memory.Record) bool {
	if r.Title == "" || r.Title == memory.DefaultTitle {
		if memory.DeriveTitle(r.Content) != memory.DefaultTitle {
			return true
		}
	}
	if len(r.Technologies) == 0 && len(memory.DetectTechnologies(r.Content)) > 0 {
		return true
	}
	return r.Complexity == ""
}

func verb(dryRun bool, action string) string {
	if dryRun {
		return "would " + action
	}
	switch action {
	case "remove":
		return "removed"
	case "archive":
		return "archived"
	case "enhance":
		return "enhanced"
	}
	return action + "d"
}
