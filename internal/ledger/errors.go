package ledger

import (
	"errors"
	"fmt"
)

// Recoverable failures returned (never panicked) by ledger operations. A
// rejected operation leaves the ledger unchanged.
var (
	// ErrFrozen is returned for any mutation after the work item reached a
	// terminal status.
	ErrFrozen = errors.New("work item is frozen")

	// ErrNotAssigned is returned when unassigning an already-open chair.
	// Callers may treat it as a no-op.
	ErrNotAssigned = errors.New("chair is not assigned")

	// ErrChairOccupied is returned when assigning into a filled chair.
	// Reassignment requires an explicit unassign first.
	ErrChairOccupied = errors.New("chair is already assigned; unassign first")

	// ErrNoAssignments is returned when completing a work item with zero
	// filled chairs.
	ErrNoAssignments = errors.New("no assignments recorded")
)

// DuplicatePersonError reports where a person already holds a chair.
type DuplicatePersonError struct {
	PersonID string
	TeamName string
	RoleName string
}

func (e DuplicatePersonError) Error() string {
	return fmt.Sprintf("person %s is already assigned to %s - %s", e.PersonID, e.TeamName, e.RoleName)
}

// InvalidJustificationError reports a partial-completion justification outside
// the allowed length range.
type InvalidJustificationError struct {
	Length int
}

func (e InvalidJustificationError) Error() string {
	return fmt.Sprintf("justification must be %d-%d characters, got %d", JustificationMinLen, JustificationMaxLen, e.Length)
}
