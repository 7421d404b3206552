package ledger

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"workdesk/internal/domain"
)

func testSpecs() []TeamSpec {
	return []TeamSpec{
		{
			Name:    "General Assignment",
			Primary: true,
			Roles: []RoleSpec{
				{ID: "ae-role", Name: "Account Executive"},
				{ID: "pm-role", Name: "Policy Manager"},
				{ID: "ch-role", Name: "Claims Handler"},
			},
		},
	}
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	teams := Materialize(testSpecs(), 10)
	return New("wi-1", teams, false)
}

func person(id string, baseUsed int) domain.Person {
	return domain.Person{ID: id, Name: "Person " + id, Title: "Broker", BaseCapacityUsed: baseUsed}
}

func TestGenerateChairs(t *testing.T) {
	chairs := GenerateChairs("ae-role", 10)
	if len(chairs) != 10 {
		t.Fatalf("expected 10 chairs, got %d", len(chairs))
	}
	for i, c := range chairs {
		if c.Index != i || c.RoleID != "ae-role" {
			t.Fatalf("chair %d malformed: %+v", i, c)
		}
		if c.Filled() || c.WorkloadPercentage != nil {
			t.Fatalf("chair %d not open: %+v", i, c)
		}
	}
}

func TestGenerateChairsPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for chair count 0")
		}
	}()
	GenerateChairs("ae-role", 0)
}

func TestMaterializeDefaultTree(t *testing.T) {
	teams := Materialize(nil, 0)
	if len(teams) != 1 {
		t.Fatalf("expected single default team, got %d", len(teams))
	}
	if !teams[0].Primary || teams[0].Name != "General Assignment" {
		t.Fatalf("unexpected default team: %+v", teams[0])
	}
	for _, role := range teams[0].Roles {
		if len(role.Chairs) != DefaultChairsPerRole {
			t.Fatalf("role %s has %d chairs", role.ID, len(role.Chairs))
		}
	}
}

func TestAssignFillsChair(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 60), "lead broker", 20); err != nil {
		t.Fatalf("assign: %v", err)
	}
	teams := l.Teams()
	chair := teams[0].Roles[0].Chairs[0]
	if !chair.Filled() || chair.Person.ID != "p1" {
		t.Fatalf("chair not filled: %+v", chair)
	}
	if chair.WorkloadPercentage == nil || *chair.WorkloadPercentage != 20 {
		t.Fatalf("workload not stamped: %+v", chair)
	}
	if chair.Notes != "lead broker" {
		t.Fatalf("notes not stamped: %+v", chair)
	}
}

func TestDuplicateGuardBlocksSecondRole(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 60), "", 20); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	before := snapshot(l)
	err := l.Assign("pm-role", 0, person("p1", 60), "", 10)
	var dup DuplicatePersonError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicatePersonError, got %v", err)
	}
	if dup.TeamName != "General Assignment" || dup.RoleName != "Account Executive" {
		t.Fatalf("unexpected placement: %+v", dup)
	}
	if !strings.Contains(dup.Error(), "General Assignment - Account Executive") {
		t.Fatalf("error text: %s", dup.Error())
	}
	if !reflect.DeepEqual(before, snapshot(l)) {
		t.Fatalf("ledger mutated on rejected assign")
	}
}

func TestDuplicateGuardAllowsDifferentChairsSameRole(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 0), "", 10); err != nil {
		t.Fatalf("assign p1: %v", err)
	}
	if err := l.Assign("ae-role", 1, person("p2", 0), "", 10); err != nil {
		t.Fatalf("assign p2: %v", err)
	}
	// same person in a secondary chair of the same role is still double-booking
	if err := l.Assign("ae-role", 2, person("p1", 0), "", 10); err == nil {
		t.Fatalf("expected duplicate error for p1")
	}
}

func TestAssignOccupiedChair(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 0), "", 10); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := l.Assign("ae-role", 0, person("p2", 0), "", 10); !errors.Is(err, ErrChairOccupied) {
		t.Fatalf("expected ErrChairOccupied, got %v", err)
	}
}

func TestReassignAfterUnassign(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 0), "", 10); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := l.Unassign("ae-role", 0); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if err := l.Assign("ae-role", 0, person("p2", 0), "", 15); err != nil {
		t.Fatalf("reassign: %v", err)
	}
}

func TestUnassignIdempotence(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 0), "note", 10); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := l.Unassign("ae-role", 0); err != nil {
		t.Fatalf("first unassign: %v", err)
	}
	before := snapshot(l)
	if err := l.Unassign("ae-role", 0); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
	if !reflect.DeepEqual(before, snapshot(l)) {
		t.Fatalf("second unassign mutated state")
	}
	chair := l.Teams()[0].Roles[0].Chairs[0]
	if chair.Notes != "" || chair.WorkloadPercentage != nil {
		t.Fatalf("unassign did not clear chair: %+v", chair)
	}
}

func TestUnknownRolePanics(t *testing.T) {
	l := newTestLedger(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown role")
		}
	}()
	_ = l.Assign("no-such-role", 0, person("p1", 0), "", 10)
}

func TestChairIndexOutOfRangePanics(t *testing.T) {
	l := newTestLedger(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range chair")
		}
	}()
	_ = l.Unassign("ae-role", 10)
}

func TestFreezeEnforcement(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Assign("ae-role", 0, person("p1", 0), "", 10); err != nil {
		t.Fatalf("assign: %v", err)
	}
	l.Freeze()
	before := l.Progress()
	if err := l.Assign("pm-role", 0, person("p2", 0), "", 10); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen on assign, got %v", err)
	}
	if err := l.Unassign("ae-role", 0); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen on unassign, got %v", err)
	}
	if after := l.Progress(); after.FilledChairs != before.FilledChairs {
		t.Fatalf("filled count changed across frozen calls: %d -> %d", before.FilledChairs, after.FilledChairs)
	}
}

func TestProgressStates(t *testing.T) {
	l := newTestLedger(t)
	if got := l.Progress(); got.State != StateNotStarted {
		t.Fatalf("empty ledger state %s", got.State)
	}
	_ = l.Assign("ae-role", 0, person("p1", 0), "", 10)
	if got := l.Progress(); got.State != StateInProgress {
		t.Fatalf("partial ledger state %s", got.State)
	}
	_ = l.Assign("pm-role", 0, person("p2", 0), "", 10)
	_ = l.Assign("ch-role", 0, person("p3", 0), "", 10)
	got := l.Progress()
	if got.State != StateFullyAssignable {
		t.Fatalf("full ledger state %s", got.State)
	}
	if got.PrimaryFilled != 3 || got.PrimaryTotal != 3 || got.FilledChairs != 3 || got.TotalChairs != 30 {
		t.Fatalf("unexpected progress: %+v", got)
	}
}

func TestSecondaryChairsDoNotCountAsPrimary(t *testing.T) {
	l := newTestLedger(t)
	_ = l.Assign("ae-role", 1, person("p1", 0), "", 10)
	got := l.Progress()
	if got.PrimaryFilled != 0 || got.State != StateInProgress {
		t.Fatalf("unexpected progress: %+v", got)
	}
}

func TestAttemptCompleteNoAssignments(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.AttemptComplete(""); !errors.Is(err, ErrNoAssignments) {
		t.Fatalf("expected ErrNoAssignments, got %v", err)
	}
	if l.IsFrozen() {
		t.Fatalf("rejected completion froze the ledger")
	}
}

func TestAttemptCompleteFull(t *testing.T) {
	l := newTestLedger(t)
	_ = l.Assign("ae-role", 0, person("p1", 0), "", 10)
	_ = l.Assign("pm-role", 0, person("p2", 0), "", 10)
	_ = l.Assign("ch-role", 0, person("p3", 0), "", 10)
	outcome, err := l.AttemptComplete("")
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("full completion: %v %s", err, outcome)
	}
	if !l.IsFrozen() {
		t.Fatalf("completion did not freeze ledger")
	}
}

func TestAttemptCompletePartialJustification(t *testing.T) {
	l := newTestLedger(t)
	_ = l.Assign("ae-role", 0, person("p1", 0), "", 10)
	_ = l.Assign("pm-role", 0, person("p2", 0), "", 10)

	var invalid InvalidJustificationError
	if _, err := l.AttemptComplete("short"); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidJustificationError, got %v", err)
	}
	if invalid.Length != 5 {
		t.Fatalf("reported length %d", invalid.Length)
	}
	if l.IsFrozen() {
		t.Fatalf("invalid justification froze the ledger")
	}
	if _, err := l.AttemptComplete(strings.Repeat("x", 501)); err == nil {
		t.Fatalf("expected rejection above max length")
	}

	outcome, err := l.AttemptComplete("Remaining role could not be staffed in time")
	if err != nil || outcome != OutcomePartiallyCompleted {
		t.Fatalf("partial completion: %v %s", err, outcome)
	}
	if !l.IsFrozen() {
		t.Fatalf("partial completion did not freeze ledger")
	}
	if err := l.Assign("ch-role", 0, person("p3", 0), "", 10); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen after partial completion, got %v", err)
	}
}

func TestCancelFreezes(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !l.IsFrozen() {
		t.Fatalf("cancel did not freeze")
	}
	if err := l.Cancel(); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen on second cancel, got %v", err)
	}
}

func TestAllAssignedPersonsAndProjection(t *testing.T) {
	l := newTestLedger(t)
	_ = l.Assign("ae-role", 0, person("p1", 60), "lead", 20)
	_ = l.Assign("ae-role", 3, person("p2", 10), "", 5)
	people := l.AllAssignedPersons()
	if len(people) != 2 {
		t.Fatalf("expected 2 assigned persons, got %d", len(people))
	}
	assignments := l.Assignments()
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].ChairType != "primary" || assignments[1].ChairType != "secondary" {
		t.Fatalf("chair types: %+v", assignments)
	}
	if assignments[0].TeamName != "General Assignment" || assignments[0].RoleName != "Account Executive" {
		t.Fatalf("projection: %+v", assignments[0])
	}
	if assignments[0].WorkloadPercentage != 20 || assignments[0].Notes != "lead" {
		t.Fatalf("projection detail: %+v", assignments[0])
	}
}

func TestFindExistingAssignment(t *testing.T) {
	l := newTestLedger(t)
	if _, found := l.FindExistingAssignment("p1"); found {
		t.Fatalf("found assignment in empty ledger")
	}
	_ = l.Assign("pm-role", 2, person("p1", 0), "", 10)
	placement, found := l.FindExistingAssignment("p1")
	if !found {
		t.Fatalf("expected placement")
	}
	if placement.RoleID != "pm-role" || placement.ChairIndex != 2 {
		t.Fatalf("placement: %+v", placement)
	}
}

// snapshot deep-copies the fill state for before/after comparisons.
func snapshot(l *Ledger) [][]domain.Chair {
	var out [][]domain.Chair
	for _, team := range l.Teams() {
		for _, role := range team.Roles {
			chairs := make([]domain.Chair, len(role.Chairs))
			copy(chairs, role.Chairs)
			out = append(out, chairs)
		}
	}
	return out
}
