// Package hooks bridges external tool lifecycles and the memory engine.
// Events arrive at session start, before and after actions, and at session
// end; the Dispatcher turns them into context updates, advisories, and
// stored records. Advisory lookups are fail-open: an engine error never
// blocks the action the hook wraps.
package hooks

import (
	"github.com/engramhq/engram/pkg/memory"
)

// EventType discriminates the hook event union.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventPreAction    EventType = "pre_action"
	EventPostAction   EventType = "post_action"
	EventSessionEnd   EventType = "session_end"
)

// Event is one lifecycle notification. Which fields are required depends on
// the Type; Validate enforces the per-variant contract at the boundary.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`

	// Project names the project being worked on. Session start only.
	Project string `json:"project,omitempty"`

	// Action names the operation being performed, e.g. "edit" or "run".
	// Pre and post action.
	Action string `json:"action,omitempty"`

	// FilePath is the subject of the action, when it has one.
	FilePath string `json:"file_path,omitempty"`

	// Output is the captured output of a completed action. Post action.
	Output string `json:"output,omitempty"`

	// Failed marks a post-action outcome as a failure.
	Failed bool `json:"failed,omitempty"`
}

// Validate checks the variant-specific required fields.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return memory.ValidationError{Field: "session_id", Reason: "cannot be empty"}
	}
	switch e.Type {
	case EventSessionStart, EventSessionEnd:
		return nil
	case EventPreAction:
		if e.FilePath == "" && e.Action == "" {
			return memory.ValidationError{Field: "file_path", Reason: "pre-action event needs a file path or an action"}
		}
		return nil
	case EventPostAction:
		if e.Action == "" {
			return memory.ValidationError{Field: "action", Reason: "cannot be empty"}
		}
		return nil
	default:
		return memory.ValidationError{Field: "type", Reason: "unknown event type"}
	}
}
