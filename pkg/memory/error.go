package memory

import "fmt"

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "record not found"
	}
	return "record not found: " + e.ID
}

// ValidationError is returned when a record or request field violates the
// model constraints.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when an operation references records in a state
// that makes the operation meaningless, e.g. consolidating an archived record.
type ConflictError struct {
	ID     string
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on record %s: %s", e.ID, e.Reason)
}
