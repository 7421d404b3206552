package ledger

import (
	"strings"
	"unicode/utf8"
)

// Justification length bounds for partial completion, in characters.
const (
	JustificationMinLen = 10
	JustificationMaxLen = 500
)

// State is the derived assignment progress of a work item.
type State string

const (
	StateNotStarted      State = "not_started"
	StateInProgress      State = "in_progress"
	StateFullyAssignable State = "fully_assignable"
)

// Outcome is the terminal result of a successful completion attempt.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomePartiallyCompleted Outcome = "partially_completed"
)

// Progress aggregates fill counts over the whole tree. Full completion needs
// every role's primary chair (index 0) filled; secondary chairs are optional.
type Progress struct {
	FilledChairs  int   `json:"filled_chairs"`
	TotalChairs   int   `json:"total_chairs"`
	PrimaryFilled int   `json:"primary_filled"`
	PrimaryTotal  int   `json:"primary_total"`
	State         State `json:"state"`
}

// Progress recomputes aggregate fill state from the ledger.
func (l *Ledger) Progress() Progress {
	var p Progress
	for _, team := range l.teams {
		for _, role := range team.Roles {
			p.PrimaryTotal++
			for _, chair := range role.Chairs {
				p.TotalChairs++
				if chair.Filled() {
					p.FilledChairs++
					if chair.Index == 0 {
						p.PrimaryFilled++
					}
				}
			}
		}
	}
	switch {
	case p.FilledChairs == 0:
		p.State = StateNotStarted
	case p.PrimaryFilled == p.PrimaryTotal:
		p.State = StateFullyAssignable
	default:
		p.State = StateInProgress
	}
	return p
}

// AttemptComplete gates the terminal transition. With every primary chair
// filled the outcome is Completed and no justification is needed; otherwise a
// justification of JustificationMinLen..JustificationMaxLen characters yields
// PartiallyCompleted. A successful attempt freezes the ledger.
func (l *Ledger) AttemptComplete(justification string) (Outcome, error) {
	if l.frozen {
		return "", ErrFrozen
	}
	progress := l.Progress()
	if progress.FilledChairs == 0 {
		return "", ErrNoAssignments
	}
	if progress.PrimaryFilled == progress.PrimaryTotal {
		l.Freeze()
		return OutcomeCompleted, nil
	}
	length := utf8.RuneCountInString(strings.TrimSpace(justification))
	if length < JustificationMinLen || length > JustificationMaxLen {
		return "", InvalidJustificationError{Length: length}
	}
	l.Freeze()
	return OutcomePartiallyCompleted, nil
}

// Cancel freezes the ledger unconditionally from any non-terminal state.
func (l *Ledger) Cancel() error {
	if l.frozen {
		return ErrFrozen
	}
	l.Freeze()
	return nil
}
