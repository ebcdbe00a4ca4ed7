package curator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/engramhq/engram/pkg/memory"
)

// Quality bucket boundaries for the health report.
const (
	qualityHighThreshold   = 0.8
	qualityMediumThreshold = 0.5
)

// NearDuplicate is one suspiciously similar record pair.
type NearDuplicate struct {
	RecordA    string  `json:"record_a"`
	RecordB    string  `json:"record_b"`
	Similarity float64 `json:"similarity"`
}

// DuplicateReport lists exact and near duplicates found during analysis.
type DuplicateReport struct {
	// Exact groups record ids sharing identical content.
	Exact [][]string `json:"exact,omitempty"`

	// Near lists the top similar-but-not-identical pairs.
	Near []NearDuplicate `json:"near,omitempty"`
}

// StaleRecord is a record past the archive age that is still active.
type StaleRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// ErrorPatternReport aggregates records tagged as classified errors.
type ErrorPatternReport struct {
	Total     int            `json:"total"`
	Kinds     map[string]int `json:"kinds,omitempty"`
	ErrorRate float64        `json:"error_rate"`
}

// ConsolidationOpportunity is a group of records that look mergeable.
type ConsolidationOpportunity struct {
	// Kind is "similar_title" or "same_date".
	Kind      string   `json:"kind"`
	Sample    string   `json:"sample"`
	RecordIDs []string `json:"record_ids"`
}

// HealthReport is the read-only corpus analysis.
type HealthReport struct {
	TotalRecords    int `json:"total_records"`
	ArchivedRecords int `json:"archived_records"`

	Duplicates DuplicateReport `json:"duplicates"`

	// Stale lists active records past the archive age, capped at 20.
	Stale []StaleRecord `json:"stale,omitempty"`

	ErrorPatterns ErrorPatternReport `json:"error_patterns"`

	// TechnologyDistribution holds the ten most-tagged technologies.
	TechnologyDistribution map[string]int `json:"technology_distribution,omitempty"`

	// QualityDistribution buckets records into high/medium/low.
	QualityDistribution map[string]int `json:"quality_distribution"`

	// AgeDistribution buckets records by age.
	AgeDistribution map[string]int `json:"age_distribution"`

	ConsolidationOpportunities []ConsolidationOpportunity `json:"consolidation_opportunities,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
}

// Health scans the full corpus and returns an aggregate report. It never
// mutates anything; the lock only guarantees a consistent snapshot.
func (c *Curator) Health(ctx context.Context) (*HealthReport, error) {
	release, err := c.svc.ExclusiveLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	all, err := c.svc.Store().All(ctx, true)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		QualityDistribution: map[string]int{"high": 0, "medium": 0, "low": 0},
		AgeDistribution: map[string]int{
			"today": 0, "this_week": 0, "this_month": 0, "this_quarter": 0, "older": 0,
		},
	}

	var active []*memory.Record
	for _, r := range all {
		if r.Archived {
			report.ArchivedRecords++
			continue
		}
		active = append(active, r)
	}
	report.TotalRecords = len(all)

	report.Duplicates = c.findDuplicates(active)
	report.Stale = c.findStale(active)
	report.ErrorPatterns = analyzeErrorPatterns(active)
	report.TechnologyDistribution = technologyDistribution(active)
	report.ConsolidationOpportunities = findConsolidationOpportunities(active)

	now := c.nowFunc().UTC()
	for _, r := range active {
		switch {
		case r.QualityScore >= qualityHighThreshold:
			report.QualityDistribution["high"]++
		case r.QualityScore >= qualityMediumThreshold:
			report.QualityDistribution["medium"]++
		default:
			report.QualityDistribution["low"]++
		}

		switch age := r.AgeDays(now); {
		case age <= 0:
			report.AgeDistribution["today"]++
		case age <= 7:
			report.AgeDistribution["this_week"]++
		case age <= 30:
			report.AgeDistribution["this_month"]++
		case age <= 90:
			report.AgeDistribution["this_quarter"]++
		default:
			report.AgeDistribution["older"]++
		}
	}

	report.Recommendations = recommendations(report, len(active))

	return report, nil
}

func (c *Curator) findDuplicates(records []*memory.Record) DuplicateReport {
	var report DuplicateReport

	byContent := make(map[string][]string)
	for _, r := range records {
		byContent[r.Content] = append(byContent[r.Content], r.ID)
	}
	for _, ids := range byContent {
		if len(ids) > 1 {
			sort.Strings(ids)
			report.Exact = append(report.Exact, ids)
		}
	}
	sort.Slice(report.Exact, func(i, j int) bool {
		return report.Exact[i][0] < report.Exact[j][0]
	})

	if len(records) > 1 {
		texts := make([]string, len(records))
		for i, r := range records {
			texts[i] = snippet(r.Content)
		}
		vectors := lexicalVectors(texts)

		for i := 0; i < len(records); i++ {
			for j := i + 1; j < len(records); j++ {
				if records[i].Content == records[j].Content {
					continue
				}
				if sim := vectors[i].cosine(vectors[j]); sim >= c.threshold {
					report.Near = append(report.Near, NearDuplicate{
						RecordA:    records[i].ID,
						RecordB:    records[j].ID,
						Similarity: sim,
					})
				}
			}
		}

		sort.Slice(report.Near, func(i, j int) bool {
			return report.Near[i].Similarity > report.Near[j].Similarity
		})
		if len(report.Near) > 10 {
			report.Near = report.Near[:10]
		}
	}

	return report
}

func (c *Curator) findStale(records []*memory.Record) []StaleRecord {
	now := c.nowFunc().UTC()

	var stale []StaleRecord
	for _, r := range records {
		if r.AgeDays(now) > c.days {
			stale = append(stale, StaleRecord{ID: r.ID, Title: r.Title, Date: r.Date})
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Date != stale[j].Date {
			return stale[i].Date < stale[j].Date
		}
		return stale[i].ID < stale[j].ID
	})
	if len(stale) > 20 {
		stale = stale[:20]
	}
	return stale
}

func analyzeErrorPatterns(records []*memory.Record) ErrorPatternReport {
	report := ErrorPatternReport{Kinds: make(map[string]int)}

	for _, r := range records {
		if !r.IsErrorRecord() {
			continue
		}
		report.Total++
		report.Kinds[r.Metadata[memory.MetadataErrorKind]]++
	}

	if len(records) > 0 {
		report.ErrorRate = float64(report.Total) / float64(len(records))
	}
	return report
}

func technologyDistribution(records []*memory.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		for _, t := range r.Technologies {
			counts[t]++
		}
	}

	if len(counts) <= 10 {
		return counts
	}

	type entry struct {
		tech  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for t, n := range counts {
		entries = append(entries, entry{t, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].tech < entries[j].tech
	})

	top := make(map[string]int, 10)
	for _, e := range entries[:10] {
		top[e.tech] = e.count
	}
	return top
}

var titleKeyRe = regexp.MustCompile(`[^a-z0-9]+`)

func findConsolidationOpportunities(records []*memory.Record) []ConsolidationOpportunity {
	byTitle := make(map[string][]*memory.Record)
	byDate := make(map[string][]*memory.Record)

	for _, r := range records {
		if r.Title != "" && r.Title != memory.DefaultTitle {
			key := titleKeyRe.ReplaceAllString(strings.ToLower(r.Title), "")
			if len(key) > 20 {
				key = key[:20]
			}
			if key != "" {
				byTitle[key] = append(byTitle[key], r)
			}
		}
		byDate[r.Date] = append(byDate[r.Date], r)
	}

	var opportunities []ConsolidationOpportunity
	appendGroup := func(kind, sample string, group []*memory.Record, minSize int) {
		if len(group) <= minSize {
			return
		}
		ids := make([]string, 0, len(group))
		for _, r := range group {
			ids = append(ids, r.ID)
			if len(ids) == 5 {
				break
			}
		}
		sort.Strings(ids)
		opportunities = append(opportunities, ConsolidationOpportunity{
			Kind:      kind,
			Sample:    sample,
			RecordIDs: ids,
		})
	}

	for _, group := range byTitle {
		appendGroup("similar_title", group[0].Title, group, 2)
	}
	for date, group := range byDate {
		appendGroup("same_date", date, group, 3)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].Kind != opportunities[j].Kind {
			return opportunities[i].Kind < opportunities[j].Kind
		}
		return opportunities[i].Sample < opportunities[j].Sample
	})
	if len(opportunities) > 10 {
		opportunities = opportunities[:10]
	}
	return opportunities
}

func recommendations(report *HealthReport, active int) []string {
	var recs []string

	if n := len(report.Duplicates.Exact); n > 0 {
		recs = append(recs, fmt.Sprintf("remove %d exact duplicate groups", n))
	}
	if n := len(report.Duplicates.Near); n > 0 {
		recs = append(recs, fmt.Sprintf("review %d near-duplicate pairs for consolidation", n))
	}
	if n := len(report.Stale); n > 10 {
		recs = append(recs, fmt.Sprintf("archive %d stale records", n))
	}
	if report.QualityDistribution["low"] > report.QualityDistribution["high"] {
		recs = append(recs, "improve record quality by adding titles, technologies, and structure")
	}
	if report.ErrorPatterns.ErrorRate > 0.3 {
		recs = append(recs, "high error rate detected, review recurring error patterns")
	}
	if n := len(report.ConsolidationOpportunities); n > 0 {
		recs = append(recs, fmt.Sprintf("found %d consolidation opportunities", n))
	}
	if active > 500 {
		recs = append(recs, "large corpus, consider a tighter archive policy")
	} else if active < 10 && active > 0 {
		recs = append(recs, "sparse corpus, ensure sessions are being captured")
	}

	return recs
}
