// Package ledger holds the role-chair assignment core for a single work item:
// the mutable chair ledger with its invariants, the duplicate guard, and the
// completion evaluator. It is pure in-memory state; persistence and event
// logging live in the engine.
package ledger

import (
	"fmt"

	"workdesk/internal/domain"
)

// Ledger owns the Team/Role/Chair tree of one work item and enforces its
// invariants. Recoverable failures come back as error values; an unknown role
// id or out-of-range chair index is a caller bug and panics. Callers holding
// external input must validate with HasRole/ChairCount first.
type Ledger struct {
	workItemID string
	teams      []domain.Team
	frozen     bool
}

// New wraps a materialized (or reloaded) tree. frozen mirrors the work item's
// terminal status.
func New(workItemID string, teams []domain.Team, frozen bool) *Ledger {
	return &Ledger{workItemID: workItemID, teams: teams, frozen: frozen}
}

// Teams exposes the current tree. Callers must treat it as read-only.
func (l *Ledger) Teams() []domain.Team { return l.teams }

// IsFrozen reports whether mutations are still accepted.
func (l *Ledger) IsFrozen() bool { return l.frozen }

// Freeze makes the ledger immutable. Invoked on terminal transitions.
func (l *Ledger) Freeze() { l.frozen = true }

// HasRole reports whether roleID exists in the tree.
func (l *Ledger) HasRole(roleID string) bool {
	_, _, ok := l.findRole(roleID)
	return ok
}

// ChairCount returns the number of chairs for a role, or 0 when unknown.
func (l *Ledger) ChairCount(roleID string) int {
	_, role, ok := l.findRole(roleID)
	if !ok {
		return 0
	}
	return len(role.Chairs)
}

func (l *Ledger) findRole(roleID string) (*domain.Team, *domain.Role, bool) {
	for ti := range l.teams {
		for ri := range l.teams[ti].Roles {
			if l.teams[ti].Roles[ri].ID == roleID {
				return &l.teams[ti], &l.teams[ti].Roles[ri], true
			}
		}
	}
	return nil, nil, false
}

func (l *Ledger) mustChair(roleID string, chairIndex int) (*domain.Team, *domain.Role, *domain.Chair) {
	team, role, ok := l.findRole(roleID)
	if !ok {
		panic(fmt.Sprintf("ledger: unknown role %s in work item %s", roleID, l.workItemID))
	}
	if chairIndex < 0 || chairIndex >= len(role.Chairs) {
		panic(fmt.Sprintf("ledger: chair index %d out of range for role %s", chairIndex, roleID))
	}
	return team, role, &role.Chairs[chairIndex]
}

// Assign fills a chair. The workload percentage must already be clamped by the
// caller. The duplicate guard runs before any mutation; a rejected call leaves
// the ledger unchanged.
func (l *Ledger) Assign(roleID string, chairIndex int, person domain.Person, notes string, workload int) error {
	if l.frozen {
		return ErrFrozen
	}
	_, _, chair := l.mustChair(roleID, chairIndex)
	if chair.Filled() {
		return ErrChairOccupied
	}
	if placement, found := l.findExcluding(person.ID, roleID, chairIndex); found {
		return DuplicatePersonError{
			PersonID: person.ID,
			TeamName: placement.TeamName,
			RoleName: placement.RoleName,
		}
	}
	p := person
	w := workload
	chair.Person = &p
	chair.Notes = notes
	chair.WorkloadPercentage = &w
	return nil
}

// Unassign empties a chair. Clears person, notes and workload; other chairs
// are untouched.
func (l *Ledger) Unassign(roleID string, chairIndex int) error {
	if l.frozen {
		return ErrFrozen
	}
	_, _, chair := l.mustChair(roleID, chairIndex)
	if !chair.Filled() {
		return ErrNotAssigned
	}
	chair.Person = nil
	chair.Notes = ""
	chair.WorkloadPercentage = nil
	return nil
}

// Placement locates an existing assignment of a person.
type Placement struct {
	TeamID     string `json:"team_id"`
	TeamName   string `json:"team_name"`
	RoleID     string `json:"role_id"`
	RoleName   string `json:"role_name"`
	ChairIndex int    `json:"chair_index"`
}

// FindExistingAssignment is the duplicate guard: an O(total chairs) scan for a
// chair already held by personID anywhere in the work item.
func (l *Ledger) FindExistingAssignment(personID string) (Placement, bool) {
	return l.findExcluding(personID, "", -1)
}

func (l *Ledger) findExcluding(personID, skipRoleID string, skipChairIndex int) (Placement, bool) {
	for _, team := range l.teams {
		for _, role := range team.Roles {
			for _, chair := range role.Chairs {
				if role.ID == skipRoleID && chair.Index == skipChairIndex {
					continue
				}
				if chair.Filled() && chair.Person.ID == personID {
					return Placement{
						TeamID:     team.ID,
						TeamName:   team.Name,
						RoleID:     role.ID,
						RoleName:   role.Name,
						ChairIndex: chair.Index,
					}, true
				}
			}
		}
	}
	return Placement{}, false
}

// AllAssignedPersons lists every person currently holding a chair, used to
// exclude them from candidate searches.
func (l *Ledger) AllAssignedPersons() []domain.Person {
	var res []domain.Person
	for _, team := range l.teams {
		for _, role := range team.Roles {
			for _, chair := range role.Chairs {
				if chair.Filled() {
					res = append(res, *chair.Person)
				}
			}
		}
	}
	return res
}

// Assignments projects every filled chair into the flat form handed to the
// persistence boundary on completion.
func (l *Ledger) Assignments() []domain.Assignment {
	var res []domain.Assignment
	for _, team := range l.teams {
		for _, role := range team.Roles {
			for _, chair := range role.Chairs {
				if !chair.Filled() {
					continue
				}
				chairType := "secondary"
				if chair.Index == 0 {
					chairType = "primary"
				}
				workload := 0
				if chair.WorkloadPercentage != nil {
					workload = *chair.WorkloadPercentage
				}
				res = append(res, domain.Assignment{
					TeamID:             team.ID,
					TeamName:           team.Name,
					RoleID:             role.ID,
					RoleName:           role.Name,
					ChairIndex:         chair.Index,
					ChairType:          chairType,
					Person:             *chair.Person,
					Notes:              chair.Notes,
					WorkloadPercentage: workload,
				})
			}
		}
	}
	return res
}
