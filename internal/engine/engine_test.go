package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"workdesk/internal/capacity"
	"workdesk/internal/config"
	"workdesk/internal/db"
	"workdesk/internal/domain"
	"workdesk/internal/engine"
	"workdesk/internal/ledger"
	"workdesk/internal/migrate"
	"workdesk/internal/repo"
	"workdesk/internal/roster"
)

type testEnv struct {
	Engine engine.Engine
	Roster roster.Store
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	store := roster.Store{DB: conn, Now: eng.Now}
	ctx := context.Background()
	for i := 1; i <= 6; i++ {
		p := domain.Person{
			ID:               fmt.Sprintf("p-%d", i),
			Name:             fmt.Sprintf("Person %d", i),
			Title:            "Account Executive",
			Location:         "London",
			BaseCapacityUsed: 10 * i,
			MatchScore:       100 - i,
		}
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("seed person: %v", err)
		}
	}
	return testEnv{Engine: eng, Roster: store, Ctx: ctx}
}

func createWorkItem(t *testing.T, env testEnv, kind string) domain.WorkItem {
	t.Helper()
	w, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		Kind:       kind,
		ClientName: "Acme Mutual",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create work item: %v", err)
	}
	return w
}

func TestCreateWorkItemMaterializesTree(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	if w.Status != "pending" {
		t.Fatalf("status = %s, want pending", w.Status)
	}
	_, teams, progress, err := env.Engine.Tree(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("teams = %d, want 2", len(teams))
	}
	primaries := 0
	for _, team := range teams {
		if team.Primary {
			primaries++
		}
		for _, role := range team.Roles {
			if len(role.Chairs) != 10 {
				t.Fatalf("role %s has %d chairs, want 10", role.ID, len(role.Chairs))
			}
			for _, c := range role.Chairs {
				if c.Filled() {
					t.Fatalf("new chair %s/%d already filled", c.RoleID, c.Index)
				}
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("primary teams = %d, want 1", primaries)
	}
	if progress.State != ledger.StateNotStarted {
		t.Fatalf("state = %s, want %s", progress.State, ledger.StateNotStarted)
	}
}

func TestCreateWorkItemUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{Kind: "merger", ClientName: "Acme"})
	if err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestAssignUnassignLifecycle(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")

	a, progress, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0,
		PersonID: "p-1", WorkloadPercentage: 15, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.Person.ID != "p-1" || a.ChairType != "primary" || a.WorkloadPercentage != 15 {
		t.Fatalf("unexpected assignment: %+v", a)
	}
	if progress.State != ledger.StateInProgress || progress.FilledChairs != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	// occupied chair requires an explicit unassign first
	_, _, err = env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-2",
	})
	if !errors.Is(err, ledger.ErrChairOccupied) {
		t.Fatalf("err = %v, want ErrChairOccupied", err)
	}

	// the mutation survives a reload
	_, teams, _, err := env.Engine.Tree(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	chair := findChair(t, teams, "account-executive", 0)
	if !chair.Filled() || chair.Person.ID != "p-1" {
		t.Fatalf("persisted chair = %+v", chair)
	}

	progress, err = env.Engine.Unassign(env.Ctx, engine.UnassignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if progress.FilledChairs != 0 || progress.State != ledger.StateNotStarted {
		t.Fatalf("unexpected progress after unassign: %+v", progress)
	}
	_, err = env.Engine.Unassign(env.Ctx, engine.UnassignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0,
	})
	if !errors.Is(err, ledger.ErrNotAssigned) {
		t.Fatalf("err = %v, want ErrNotAssigned", err)
	}
}

func findChair(t *testing.T, teams []domain.Team, roleID string, index int) domain.Chair {
	t.Helper()
	for _, team := range teams {
		for _, role := range team.Roles {
			if role.ID != roleID {
				continue
			}
			for _, c := range role.Chairs {
				if c.Index == index {
					return c
				}
			}
		}
	}
	t.Fatalf("chair %s/%d not found", roleID, index)
	return domain.Chair{}
}

func TestAssignValidatesChairReference(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")

	_, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "underwriter", ChairIndex: 0, PersonID: "p-1",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown role err = %v, want ErrNotFound", err)
	}
	_, _, err = env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 10, PersonID: "p-1",
	})
	if err == nil {
		t.Fatal("expected invalid chair index error")
	}
	_, _, err = env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "ghost",
	})
	if !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("unknown person err = %v, want roster.ErrNotFound", err)
	}
}

func TestDuplicateGuardAcrossRoles(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")

	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-1",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "policy-manager", ChairIndex: 3, PersonID: "p-1",
	})
	var dup ledger.DuplicatePersonError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicatePersonError", err)
	}
	if dup.TeamName != "General Assignment" || dup.RoleName != "Account Executive" {
		t.Fatalf("duplicate points at %s - %s", dup.TeamName, dup.RoleName)
	}
}

func TestAssignClampsWorkload(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")

	a, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0,
		PersonID: "p-1", WorkloadPercentage: 75,
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.WorkloadPercentage != capacity.MaxIncrement {
		t.Fatalf("workload = %d, want clamped to %d", a.WorkloadPercentage, capacity.MaxIncrement)
	}
}

func fillPrimaries(t *testing.T, env testEnv, w domain.WorkItem) {
	t.Helper()
	_, teams, _, err := env.Engine.Tree(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	n := 0
	for _, team := range teams {
		for _, role := range team.Roles {
			n++
			if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
				WorkItemID: w.ID, RoleID: role.ID, ChairIndex: 0,
				PersonID: fmt.Sprintf("p-%d", n), WorkloadPercentage: 10,
			}); err != nil {
				t.Fatalf("fill %s: %v", role.ID, err)
			}
		}
	}
}

func TestCompleteFullyStaffed(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	fillPrimaries(t, env, w)

	w, err := env.Engine.Complete(env.Ctx, w.ID, "", "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if w.Status != "completed" || w.BackendStatus == nil || *w.BackendStatus != string(ledger.OutcomeCompleted) {
		t.Fatalf("unexpected work item: %+v", w)
	}
	if w.Justification != nil {
		t.Fatalf("full completion must not carry a justification")
	}

	saved, err := env.Engine.SavedAssignments(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("saved assignments: %v", err)
	}
	if len(saved) != 4 {
		t.Fatalf("saved = %d, want 4", len(saved))
	}

	// terminal work items are frozen
	_, _, err = env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 1, PersonID: "p-5",
	})
	if !errors.Is(err, ledger.ErrFrozen) {
		t.Fatalf("err = %v, want ErrFrozen", err)
	}
	if _, err := env.Engine.Complete(env.Ctx, w.ID, "", "tester"); !errors.Is(err, ledger.ErrFrozen) {
		t.Fatalf("second complete err = %v, want ErrFrozen", err)
	}
}

func TestCompletePartiallyStaffed(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-1",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := env.Engine.Complete(env.Ctx, w.ID, "too short", "tester")
	var inv ledger.InvalidJustificationError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want InvalidJustificationError", err)
	}

	w, err = env.Engine.Complete(env.Ctx, w.ID, "Remaining chairs could not be staffed before the client deadline.", "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if w.BackendStatus == nil || *w.BackendStatus != string(ledger.OutcomePartiallyCompleted) {
		t.Fatalf("backend status = %v", w.BackendStatus)
	}
	if w.Justification == nil || *w.Justification == "" {
		t.Fatalf("justification not recorded")
	}
}

func TestCompleteWithoutAssignments(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	_, err := env.Engine.Complete(env.Ctx, w.ID, "", "tester")
	if !errors.Is(err, ledger.ErrNoAssignments) {
		t.Fatalf("err = %v, want ErrNoAssignments", err)
	}
}

func TestCancelFreezesAndSavesAssignments(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-1",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	w, err := env.Engine.Cancel(env.Ctx, w.ID, "client pulled out", "tester")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if w.Status != "cancelled" || w.CancelNotes == nil {
		t.Fatalf("unexpected work item: %+v", w)
	}
	if _, err := env.Engine.Cancel(env.Ctx, w.ID, "", "tester"); !errors.Is(err, ledger.ErrFrozen) {
		t.Fatalf("second cancel err = %v, want ErrFrozen", err)
	}
	saved, err := env.Engine.SavedAssignments(env.Ctx, w.ID)
	if err != nil || len(saved) != 1 {
		t.Fatalf("saved = %d (%v), want 1", len(saved), err)
	}
}

func TestDeleteGuard(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-1",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	err := env.Engine.DeleteWorkItem(env.Ctx, w.ID, "tester")
	if !errors.Is(err, engine.ErrHasAssignments) {
		t.Fatalf("err = %v, want ErrHasAssignments", err)
	}
	if _, err := env.Engine.Unassign(env.Ctx, engine.UnassignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0,
	}); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if err := env.Engine.DeleteWorkItem(env.Ctx, w.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetWorkItem(env.Ctx, w.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
}

func TestSearchCandidatesExcludesAssigned(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0, PersonID: "p-1",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	candidates, err := env.Engine.SearchCandidates(env.Ctx, engine.CandidateQuery{WorkItemID: w.ID})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, c := range candidates {
		if c.Person.ID == "p-1" {
			t.Fatal("assigned person appears in candidate search")
		}
	}
	if len(candidates) != 5 {
		t.Fatalf("candidates = %d, want 5", len(candidates))
	}
}

func TestCapacityPreview(t *testing.T) {
	env := newTestEnv(t)
	w := createWorkItem(t, env, "onboarding")
	// p-6 has base 60; commit 20 more via a chair
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{
		WorkItemID: w.ID, RoleID: "account-executive", ChairIndex: 0,
		PersonID: "p-6", WorkloadPercentage: 20,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	report, err := env.Engine.CapacityPreview(env.Ctx, "p-6", 50)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if report.CurrentWorkload != 80 {
		t.Fatalf("current workload = %d, want 80", report.CurrentWorkload)
	}
	if report.AvailableCapacity != 20 || report.Tier != capacity.TierModerate {
		t.Fatalf("available = %d tier = %s", report.AvailableCapacity, report.Tier)
	}
	if report.ProposedIncrease != capacity.MaxIncrement {
		t.Fatalf("proposed increase = %d, want clamped %d", report.ProposedIncrease, capacity.MaxIncrement)
	}
	if report.Projection.Projected != 100 || report.Projection.OverCapacity {
		t.Fatalf("projection = %+v", report.Projection)
	}

	// cancelling releases the committed load
	if _, err := env.Engine.Cancel(env.Ctx, w.ID, "", "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	report, err = env.Engine.CapacityPreview(env.Ctx, "p-6", 50)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if report.CurrentWorkload != 60 {
		t.Fatalf("current workload after cancel = %d, want 60", report.CurrentWorkload)
	}
}
