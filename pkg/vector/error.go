package vector

import (
	"errors"
	"fmt"
)

// ErrInvalidTopK is returned when a query is made with topK < 1.
var ErrInvalidTopK = errors.New("topK must be at least 1")

// ErrEmbedding is returned when generating an embedding fails.
var ErrEmbedding = errors.New("embedding generation failed")

// DimensionMismatchError is returned when an embedding's dimension does not
// match the dimension the index was created with.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}
