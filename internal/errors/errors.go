package errors

import "fmt"

// ErrMalformedNode is returned when a search result node is missing a field
// the crawler cannot proceed without.
type ErrMalformedNode struct {
	Field string
}

func (e *ErrMalformedNode) Error() string {
	return fmt.Sprintf("search node is missing required field %q", e.Field)
}

// ErrRetriesExhausted is returned when a request kept failing with transient
// errors until the retry budget ran out.
type ErrRetriesExhausted struct {
	Attempts   int
	LastStatus int
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("request failed after %d attempts, last status %d", e.Attempts, e.LastStatus)
}
