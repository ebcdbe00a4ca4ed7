package curator

import (
	"context"
)

// ArchivedRecord identifies one record an archive pass touched.
type ArchivedRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// ArchiveResult summarizes one archive pass.
type ArchiveResult struct {
	DryRun bool `json:"dry_run"`

	// Days is the age threshold the pass used.
	Days int `json:"days"`

	// Archived holds the records flagged, or that would be flagged under
	// dry run.
	Archived []ArchivedRecord `json:"archived,omitempty"`
}

// Archive flags records older than days as archived. Zero or negative days
// falls back to the configured policy. Archival only changes visibility:
// records stay retrievable by Get and by List with the include-archived
// flag.
func (c *Curator) Archive(ctx context.Context, days int, dryRun bool) (*ArchiveResult, error) {
	if days <= 0 {
		days = c.days
	}

	var result *ArchiveResult
	err := c.run(ctx, OpArchive, func(ctx context.Context) ([]string, error) {
		var err error
		result, err = c.archiveLocked(ctx, days, dryRun)
		if err != nil {
			return nil, err
		}
		if dryRun {
			return nil, nil
		}
		affected := make([]string, 0, len(result.Archived))
		for _, a := range result.Archived {
			affected = append(affected, a.ID)
		}
		return affected, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Curator) archiveLocked(ctx context.Context, days int, dryRun bool) (*ArchiveResult, error) {
	records, err := c.svc.Store().All(ctx, false)
	if err != nil {
		return nil, err
	}

	now := c.nowFunc().UTC()
	result := &ArchiveResult{DryRun: dryRun, Days: days}

	for _, r := range records {
		if r.AgeDays(now) <= days {
			continue
		}

		result.Archived = append(result.Archived, ArchivedRecord{
			ID:    r.ID,
			Title: r.Title,
			Date:  r.Date,
		})

		if dryRun {
			continue
		}

		r.Archived = true
		if err := c.svc.Store().Update(ctx, r); err != nil {
			return nil, err
		}
	}

	return result, nil
}
