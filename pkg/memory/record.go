// Package memory defines the memory record model and the record store
// contract for the engram system.
//
// A Record is a durable, curated unit of knowledge distilled from a coding
// session: a free-text summary plus the metadata needed to rank, curate and
// recall it later. Records are created by an add operation, mutated only by
// curation, and destroyed only by an explicit delete; archival is a
// visibility flag, never deletion.
package memory

import (
	"fmt"
	"regexp"
	"time"
)

// Complexity describes how involved the work captured by a record was.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Source tags identify which interface produced a record.
const (
	SourceInteractiveSession = "interactive-session"
	SourceManual             = "manual"
	SourceDesktopClient      = "desktop-client"
	SourceConsolidation      = "consolidation"
	SourceMCP                = "mcp"
)

// Limits enforced at the validation boundary.
const (
	MaxContentLength  = 50000
	MaxTitleLength    = 200
	MaxProjectLength  = 100
	MaxTechnologies   = 20
	MaxFilePaths      = 50
	MaxSearchResults  = 10
	MaxPageSize       = 50
	DefaultPageSize   = 10
	DefaultTitle      = "Untitled Memory"
	DateLayout        = "2006-01-02"
)

// MetadataErrorKind is the metadata key that marks a record as an error
// record; its value is the classified error kind.
const MetadataErrorKind = "error_kind"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Record is a single memory document with its embedding vector.
type Record struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	Title        string            `json:"title"`
	Date         string            `json:"date"`
	Source       string            `json:"source"`
	Technologies []string          `json:"technologies"`
	FilePaths    []string          `json:"file_paths"`
	Complexity   Complexity        `json:"complexity"`
	Project      string            `json:"project,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Embedding    []float32         `json:"-"`
	QualityScore float64           `json:"quality_score"`
	Archived     bool              `json:"archived"`
	IndexedAt    time.Time         `json:"indexed_at"`
}

// Validate checks the record against the model constraints. An empty ID is
// allowed; the store assigns one at Add.
func (r *Record) Validate() error {
	if r.Content == "" {
		return ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(r.Content) > MaxContentLength {
		return ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d characters", MaxContentLength)}
	}
	if len(r.Title) > MaxTitleLength {
		return ValidationError{Field: "title", Reason: fmt.Sprintf("exceeds %d characters", MaxTitleLength)}
	}
	if len(r.Project) > MaxProjectLength {
		return ValidationError{Field: "project", Reason: fmt.Sprintf("exceeds %d characters", MaxProjectLength)}
	}
	if len(r.Technologies) > MaxTechnologies {
		return ValidationError{Field: "technologies", Reason: fmt.Sprintf("more than %d entries", MaxTechnologies)}
	}
	if len(r.FilePaths) > MaxFilePaths {
		return ValidationError{Field: "file_paths", Reason: fmt.Sprintf("more than %d entries", MaxFilePaths)}
	}
	if !ValidSource(r.Source) {
		return ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", r.Source)}
	}
	switch r.Complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		return ValidationError{Field: "complexity", Reason: fmt.Sprintf("unknown complexity %q", r.Complexity)}
	}
	if !dateRe.MatchString(r.Date) {
		return ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return ValidationError{Field: "date", Reason: "invalid calendar date"}
	}
	return nil
}

// ValidSource reports whether s is one of the known source tags.
func ValidSource(s string) bool {
	switch s {
	case SourceInteractiveSession, SourceManual, SourceDesktopClient, SourceConsolidation, SourceMCP:
		return true
	}
	return false
}

// IsErrorRecord reports whether the record was stored as a classified error.
func (r *Record) IsErrorRecord() bool {
	if r.Metadata == nil {
		return false
	}
	_, ok := r.Metadata[MetadataErrorKind]
	return ok
}

// ParsedDate returns the record's creation date, or the zero time when the
// date field is malformed (validated records never are).
func (r *Record) ParsedDate() time.Time {
	t, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AgeDays returns the whole days elapsed between the record's date and now.
func (r *Record) AgeDays(now time.Time) int {
	d := r.ParsedDate()
	if d.IsZero() {
		return 0
	}
	return int(now.Sub(d).Hours() / 24)
}

// Clone returns a deep copy so curation can stage mutations without aliasing
// store-owned state.
func (r *Record) Clone() *Record {
	out := *r
	out.Technologies = append([]string(nil), r.Technologies...)
	out.FilePaths = append([]string(nil), r.FilePaths...)
	out.Embedding = append([]float32(nil), r.Embedding...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
