package curator

import (
	"context"
	"time"

	"github.com/engramhq/engram/pkg/memory"
)

// MetadataEnhancedAt records when a record was last enhanced.
const MetadataEnhancedAt = "enhanced_at"

// EnhanceResult summarizes the enhancement of one record.
type EnhanceResult struct {
	ID string `json:"id"`

	TitleAdded        bool `json:"title_added"`
	TechnologiesAdded bool `json:"technologies_added"`
	ComplexityAdded   bool `json:"complexity_added"`

	QualityBefore float64 `json:"quality_before"`
	QualityAfter  float64 `json:"quality_after"`
}

// Enhance backfills missing title, technologies, and complexity from content
// heuristics and recomputes the quality score. Content itself is never
// modified, so the embedding stays valid.
func (c *Curator) Enhance(ctx context.Context, id string) (*EnhanceResult, error) {
	var result *EnhanceResult
	err := c.run(ctx, OpEnhance, func(ctx context.Context) ([]string, error) {
		var err error
		result, err = c.enhanceLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		// Metadata-only change, the index needs no rebuild.
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Curator) enhanceLocked(ctx context.Context, id string) (*EnhanceResult, error) {
	r, err := c.svc.Store().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &EnhanceResult{ID: id, QualityBefore: r.QualityScore}

	if r.Title == "" || r.Title == memory.DefaultTitle {
		if derived := memory.DeriveTitle(r.Content); derived != memory.DefaultTitle {
			r.Title = derived
			result.TitleAdded = true
		}
	}

	if len(r.Technologies) == 0 {
		if found := memory.DetectTechnologies(r.Content); len(found) > 0 {
			r.Technologies = found
			result.TechnologiesAdded = true
		}
	}

	if r.Complexity == "" {
		r.Complexity = memory.AssessComplexity(r.Content)
		result.ComplexityAdded = true
	}

	r.QualityScore = memory.ScoreQuality(r)
	result.QualityAfter = r.QualityScore

	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[MetadataEnhancedAt] = c.nowFunc().UTC().Format(time.RFC3339)

	if err := c.svc.Store().Update(ctx, r); err != nil {
		return nil, err
	}

	return result, nil
}
