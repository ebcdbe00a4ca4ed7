package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordStored is emitted after a memory record is persisted.
	EventTypeRecordStored = "engram.record.stored"

	// EventTypeRecordDeleted is emitted after a memory record is deleted.
	EventTypeRecordDeleted = "engram.record.deleted"

	// EventTypeCurationCompleted is emitted after a curation operation
	// finishes applying changes. Dry runs do not emit events.
	EventTypeCurationCompleted = "engram.curation.completed"
)

// MemoryEvent is a transport-neutral event payload for memory store activity.
type MemoryEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Project       string        `json:"project,omitempty"`
	Record        *RecordMeta   `json:"record,omitempty"`
	Curation      *CurationMeta `json:"curation,omitempty"`
}

// RecordMeta captures record metadata for stored and deleted events.
type RecordMeta struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Source       string   `json:"source,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	QualityScore float64  `json:"quality_score,omitempty"`
}

// CurationMeta captures the outcome of a curation operation.
type CurationMeta struct {
	Operation   string   `json:"operation"`
	AffectedIDs []string `json:"affected_ids,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}
