package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enrich fills derived fields on a new record ahead of validation: id,
// source, date, title, technologies, complexity, quality score, and the
// indexing timestamp. Caller-provided values are never overwritten.
func Enrich(r *Record, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	if r.Date == "" {
		r.Date = now.Format(DateLayout)
	}
	if r.Title == "" {
		r.Title = DeriveTitle(r.Content)
	}
	if len(r.Technologies) == 0 {
		r.Technologies = DetectTechnologies(r.Content)
	}
	if r.Complexity == "" {
		r.Complexity = AssessComplexity(r.Content)
	}
	r.QualityScore = ScoreQuality(r)
	r.IndexedAt = now
}

// techKeywords are scanned (lowercased, whole-word) to backfill the
// technologies field from content.
var techKeywords = []string{
	"python", "javascript", "typescript", "react", "flask",
	"sql", "html", "css", "node", "npm", "git", "docker",
	"go", "rust", "java", "kubernetes", "postgres", "sqlite", "redis",
}

// DeriveTitle extracts the first meaningful line of content as a title.
// Falls back to DefaultTitle when nothing usable is found.
func DeriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if len(line) > 10 && len(line) < 100 {
			if len(line) > 80 {
				line = line[:80]
			}
			return line
		}
	}
	return DefaultTitle
}

// DetectTechnologies scans content for known technology keywords.
func DetectTechnologies(content string) []string {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = struct{}{}
	}

	var found []string
	for _, tech := range techKeywords {
		if _, ok := words[tech]; ok {
			found = append(found, tech)
		}
	}
	return found
}

// ScoreQuality rates a record's usefulness for retrieval on a 0.0 to 1.0
// scale. Longer content, a real title, and richer metadata each add weight;
// code fences count extra because worked examples recall well.
func ScoreQuality(r *Record) float64 {
	score := 0.0

	switch {
	case len(r.Content) > 500:
		score += 0.2
	case len(r.Content) > 200:
		score += 0.1
	}

	if r.Title != "" && r.Title != DefaultTitle {
		score += 0.2
	}
	if len(r.Technologies) > 0 {
		score += 0.15
	}
	if r.Complexity != "" {
		score += 0.1
	}
	if r.Date != "" {
		score += 0.1
	}
	if r.Source != "" {
		score += 0.1
	}
	if strings.Contains(r.Content, "```") {
		score += 0.15
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// AssessComplexity rates content by length and the presence of code fences.
func AssessComplexity(content string) Complexity {
	switch {
	case len(content) > 1000 || strings.Contains(content, "```"):
		return ComplexityHigh
	case len(content) > 500:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}
