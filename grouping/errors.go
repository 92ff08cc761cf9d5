package grouping

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRoster is returned when there are no students to partition.
	ErrEmptyRoster = errors.New("roster is empty")
	// ErrInvalidGroupCount is returned for a group count outside 1..MaxGroupCount.
	ErrInvalidGroupCount = errors.New("group count must be between 1 and 100")
	// ErrNotFound is returned by the store for an unknown grouping id.
	ErrNotFound = errors.New("grouping not found")
	// ErrReshuffleNotConfirmed guards the destructive reshuffle action.
	ErrReshuffleNotConfirmed = errors.New("reshuffle discards the current arrangement and must be confirmed")
)

// PersistenceError reports that the backing store was unreachable or rejected a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s grouping: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError carries the per-field messages of rejected grouping metadata.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid grouping metadata: %v", e.Fields)
}
