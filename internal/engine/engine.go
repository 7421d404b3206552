// Package engine applies assignment commands to work items. Each command loads
// the work item's chair tree, replays it through the ledger (which owns the
// invariants), and persists the accepted mutation together with its event in
// one transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workdesk/internal/capacity"
	"workdesk/internal/config"
	"workdesk/internal/domain"
	"workdesk/internal/events"
	"workdesk/internal/ledger"
	"workdesk/internal/repo"
	"workdesk/internal/roster"
)

// ErrHasAssignments blocks deletion of a work item that still has filled
// chairs anywhere in its tree.
var ErrHasAssignments = errors.New("work item has filled chairs; cancel it instead")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Roster roster.Roster
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Roster: roster.Store{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// WorkItemCreateOptions are parameters for opening a work item for assignment.
type WorkItemCreateOptions struct {
	ID         string
	Kind       string
	ClientName string
	DueDate    string
	ActorID    string
}

// CreateWorkItem materializes the team/role/chair tree from the configured
// templates for the kind (or the default team) and persists it open.
func (e Engine) CreateWorkItem(ctx context.Context, opts WorkItemCreateOptions) (domain.WorkItem, error) {
	if e.Config == nil {
		return domain.WorkItem{}, errors.New("config not loaded")
	}
	if opts.ClientName == "" {
		return domain.WorkItem{}, errors.New("client name is required")
	}
	if opts.Kind == "" {
		opts.Kind = "onboarding"
	}
	if !e.Config.KnownKind(opts.Kind) {
		return domain.WorkItem{}, fmt.Errorf("unknown work item kind %s", opts.Kind)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Kind+"|"+opts.ClientName+"|"+now)).String()
	}
	w := domain.WorkItem{
		ID:         id,
		Kind:       opts.Kind,
		ClientName: opts.ClientName,
		Status:     "pending",
		DueDate:    optionalString(opts.DueDate),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	teams := ledger.Materialize(teamSpecs(e.Config.TemplatesFor(opts.Kind)), e.Config.Chairs.PerRole)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkItemTx(ctx, tx, w); err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	if err := e.Repo.InsertTreeTx(ctx, tx, w.ID, teams); err != nil {
		return domain.WorkItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "workitem.created", w.ID, "workitem", w.ID, opts.ActorID, events.EventPayload{
		"kind":   w.Kind,
		"client": w.ClientName,
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}

func teamSpecs(templates []config.TeamTemplate) []ledger.TeamSpec {
	specs := make([]ledger.TeamSpec, 0, len(templates))
	for _, tpl := range templates {
		spec := ledger.TeamSpec{Name: tpl.Name, Primary: tpl.Primary}
		for _, role := range tpl.Roles {
			spec.Roles = append(spec.Roles, ledger.RoleSpec{ID: role.ID, Name: role.Name})
		}
		specs = append(specs, spec)
	}
	return specs
}

// loadLedger rebuilds the ledger for a work item, frozen when terminal.
func (e Engine) loadLedger(ctx context.Context, id string) (domain.WorkItem, *ledger.Ledger, error) {
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return w, nil, err
	}
	teams, err := e.Repo.LoadTree(ctx, id)
	if err != nil {
		return w, nil, err
	}
	return w, ledger.New(w.ID, teams, w.Terminal()), nil
}

// Tree returns the work item, its chair tree, and aggregate progress.
func (e Engine) Tree(ctx context.Context, id string) (domain.WorkItem, []domain.Team, ledger.Progress, error) {
	w, led, err := e.loadLedger(ctx, id)
	if err != nil {
		return w, nil, ledger.Progress{}, err
	}
	return w, led.Teams(), led.Progress(), nil
}

func (e Engine) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return e.Repo.GetWorkItem(ctx, id)
}

func (e Engine) ListWorkItems(ctx context.Context, f repo.WorkItemFilters) ([]domain.WorkItem, error) {
	return e.Repo.ListWorkItems(ctx, f)
}

// AssignOptions are parameters for filling a chair.
type AssignOptions struct {
	WorkItemID         string
	RoleID             string
	ChairIndex         int
	PersonID           string
	Notes              string
	WorkloadPercentage int
	ActorID            string
}

// Assign fills a chair. External input is validated against the tree before it
// reaches the ledger, so a ledger panic can only mean a caller bug. The
// workload increment is clamped to the per-assignment bounds.
func (e Engine) Assign(ctx context.Context, opts AssignOptions) (domain.Assignment, ledger.Progress, error) {
	w, led, err := e.loadLedger(ctx, opts.WorkItemID)
	if err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	if err := validateChairRef(led, opts.RoleID, opts.ChairIndex); err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	person, err := e.Roster.FindByID(ctx, opts.PersonID)
	if err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	workload := capacity.ClampIncrement(opts.WorkloadPercentage)
	if err := led.Assign(opts.RoleID, opts.ChairIndex, person, opts.Notes, workload); err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetChairTx(ctx, tx, w.ID, opts.RoleID, opts.ChairIndex, &person.ID, opts.Notes, &workload); err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	progress := led.Progress()
	if err := e.Events.Append(ctx, tx, "assignment.added", w.ID, "chair", chairEntityID(opts.RoleID, opts.ChairIndex), opts.ActorID, events.EventPayload{
		"role_id":             opts.RoleID,
		"chair_index":         opts.ChairIndex,
		"person_id":           person.ID,
		"workload_percentage": workload,
		"filled_chairs":       progress.FilledChairs,
	}); err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, ledger.Progress{}, err
	}
	return assignmentAt(led, opts.RoleID, opts.ChairIndex), progress, nil
}

func assignmentAt(led *ledger.Ledger, roleID string, chairIndex int) domain.Assignment {
	for _, a := range led.Assignments() {
		if a.RoleID == roleID && a.ChairIndex == chairIndex {
			return a
		}
	}
	return domain.Assignment{}
}

// UnassignOptions are parameters for emptying a chair.
type UnassignOptions struct {
	WorkItemID string
	RoleID     string
	ChairIndex int
	ActorID    string
}

func (e Engine) Unassign(ctx context.Context, opts UnassignOptions) (ledger.Progress, error) {
	w, led, err := e.loadLedger(ctx, opts.WorkItemID)
	if err != nil {
		return ledger.Progress{}, err
	}
	if err := validateChairRef(led, opts.RoleID, opts.ChairIndex); err != nil {
		return ledger.Progress{}, err
	}
	if err := led.Unassign(opts.RoleID, opts.ChairIndex); err != nil {
		return ledger.Progress{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Progress{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetChairTx(ctx, tx, w.ID, opts.RoleID, opts.ChairIndex, nil, "", nil); err != nil {
		return ledger.Progress{}, err
	}
	progress := led.Progress()
	if err := e.Events.Append(ctx, tx, "assignment.removed", w.ID, "chair", chairEntityID(opts.RoleID, opts.ChairIndex), opts.ActorID, events.EventPayload{
		"role_id":       opts.RoleID,
		"chair_index":   opts.ChairIndex,
		"filled_chairs": progress.FilledChairs,
	}); err != nil {
		return ledger.Progress{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Progress{}, err
	}
	return progress, nil
}

func validateChairRef(led *ledger.Ledger, roleID string, chairIndex int) error {
	if !led.HasRole(roleID) {
		return fmt.Errorf("role %s: %w", roleID, repo.ErrNotFound)
	}
	if n := led.ChairCount(roleID); chairIndex < 0 || chairIndex >= n {
		return fmt.Errorf("invalid chair index %d for role %s (role has %d chairs)", chairIndex, roleID, n)
	}
	return nil
}

func chairEntityID(roleID string, chairIndex int) string {
	return fmt.Sprintf("%s/%d", roleID, chairIndex)
}

// Complete runs the completion evaluator and, on success, freezes the work
// item and hands the final assignment projection to the saved-assignments
// store in the same transaction.
func (e Engine) Complete(ctx context.Context, id, justification, actorID string) (domain.WorkItem, error) {
	w, led, err := e.loadLedger(ctx, id)
	if err != nil {
		return w, err
	}
	outcome, err := led.AttemptComplete(justification)
	if err != nil {
		return w, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	backend := string(outcome)
	w.Status = "completed"
	w.BackendStatus = &backend
	w.UpdatedAt = now
	w.CompletedAt = &now
	if outcome == ledger.OutcomePartiallyCompleted {
		trimmed := strings.TrimSpace(justification)
		w.Justification = &trimmed
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkItemTx(ctx, tx, w); err != nil {
		return w, err
	}
	if err := e.Repo.InsertSavedAssignmentsTx(ctx, tx, w.ID, now, led.Assignments()); err != nil {
		return w, err
	}
	progress := led.Progress()
	evtType := "workitem.completed"
	if outcome == ledger.OutcomePartiallyCompleted {
		evtType = "workitem.partially_completed"
	}
	if err := e.Events.Append(ctx, tx, evtType, w.ID, "workitem", w.ID, actorID, events.EventPayload{
		"filled_chairs":  progress.FilledChairs,
		"primary_filled": progress.PrimaryFilled,
		"primary_total":  progress.PrimaryTotal,
	}); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	return w, nil
}

// Cancel freezes the work item from any non-terminal state. The assignments
// made so far are still handed to the saved-assignments store.
func (e Engine) Cancel(ctx context.Context, id, notes, actorID string) (domain.WorkItem, error) {
	w, led, err := e.loadLedger(ctx, id)
	if err != nil {
		return w, err
	}
	if err := led.Cancel(); err != nil {
		return w, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	w.Status = "cancelled"
	w.UpdatedAt = now
	if notes != "" {
		w.CancelNotes = &notes
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkItemTx(ctx, tx, w); err != nil {
		return w, err
	}
	if err := e.Repo.InsertSavedAssignmentsTx(ctx, tx, w.ID, now, led.Assignments()); err != nil {
		return w, err
	}
	if err := e.Events.Append(ctx, tx, "workitem.cancelled", w.ID, "workitem", w.ID, actorID, events.EventPayload{
		"notes": notes,
	}); err != nil {
		return w, err
	}
	if err := tx.Commit(); err != nil {
		return w, err
	}
	return w, nil
}

// DeleteWorkItem removes a work item and its tree. Allowed only while no chair
// anywhere is filled; otherwise the item must be cancelled instead.
func (e Engine) DeleteWorkItem(ctx context.Context, id, actorID string) error {
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return err
	}
	filled, err := e.Repo.CountFilledChairs(ctx, id)
	if err != nil {
		return err
	}
	if filled > 0 {
		return ErrHasAssignments
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorkItemTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "workitem.deleted", w.ID, "workitem", w.ID, actorID, events.EventPayload{
		"kind": w.Kind,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Candidate is a roster entry annotated with capacity information for the
// assignment UI.
type Candidate struct {
	Person            domain.Person `json:"person"`
	CurrentWorkload   int           `json:"current_workload"`
	AvailableCapacity int           `json:"available_capacity"`
	Tier              capacity.Tier `json:"tier"`
}

// CandidateQuery filters a candidate search. When WorkItemID is set, everyone
// already holding a chair in that work item is excluded.
type CandidateQuery struct {
	WorkItemID string
	Text       string
	Location   string
	Expertise  string
	Limit      int
}

// SearchCandidates runs the proactive side of the duplicate guard: the result
// never contains a person already assigned within the work item. The
// authoritative check still runs inside Assign.
func (e Engine) SearchCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	var exclude []string
	if q.WorkItemID != "" {
		_, led, err := e.loadLedger(ctx, q.WorkItemID)
		if err != nil {
			return nil, err
		}
		for _, p := range led.AllAssignedPersons() {
			exclude = append(exclude, p.ID)
		}
	}
	people, err := e.Roster.Search(ctx, roster.Query{
		Text:      q.Text,
		Location:  q.Location,
		Expertise: q.Expertise,
		Exclude:   exclude,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, err
	}
	res := make([]Candidate, 0, len(people))
	for _, p := range people {
		c, err := e.annotate(ctx, p)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// CapacityReport previews what a proposed assignment does to a person's load.
type CapacityReport struct {
	Candidate
	ProposedIncrease int                 `json:"proposed_increase"`
	Projection       capacity.Projection `json:"projection"`
}

// CapacityPreview is consumed by the assignment UI to warn before committing;
// over-capacity never blocks the assignment itself.
func (e Engine) CapacityPreview(ctx context.Context, personID string, increase int) (CapacityReport, error) {
	person, err := e.Roster.FindByID(ctx, personID)
	if err != nil {
		return CapacityReport{}, err
	}
	c, err := e.annotate(ctx, person)
	if err != nil {
		return CapacityReport{}, err
	}
	clamped := capacity.ClampIncrement(increase)
	return CapacityReport{
		Candidate:        c,
		ProposedIncrease: clamped,
		Projection:       capacity.Project(c.CurrentWorkload, clamped),
	}, nil
}

// annotate folds ledger-derived workload from open work items into the base
// capacity and buckets the remainder.
func (e Engine) annotate(ctx context.Context, p domain.Person) (Candidate, error) {
	committed, err := e.Repo.PersonCommittedWorkload(ctx, p.ID)
	if err != nil {
		return Candidate{}, err
	}
	current := p.BaseCapacityUsed + committed
	available := capacity.Available(current)
	return Candidate{
		Person:            p,
		CurrentWorkload:   current,
		AvailableCapacity: available,
		Tier:              capacity.TierFor(available),
	}, nil
}

// ImportRoster upserts a batch of people and records one event for the batch.
// The roster must be the writable sqlite-backed store.
func (e Engine) ImportRoster(ctx context.Context, people []domain.Person, actorID string) (int, error) {
	store, ok := e.Roster.(roster.Store)
	if !ok {
		return 0, errors.New("roster is read-only")
	}
	n, err := store.Import(ctx, people)
	if err != nil {
		return n, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "roster.imported", "", "roster", "", actorID, events.EventPayload{
		"count": n,
	}); err != nil {
		return n, err
	}
	return n, tx.Commit()
}

func (e Engine) SavedAssignments(ctx context.Context, workItemID string) ([]domain.SavedAssignment, error) {
	if _, err := e.Repo.GetWorkItem(ctx, workItemID); err != nil {
		return nil, err
	}
	return e.Repo.ListSavedAssignments(ctx, workItemID)
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
