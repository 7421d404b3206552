package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"workdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertWorkItemTx(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(id,kind,client_name,status,backend_status,justification,cancel_notes,due_date,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Kind, w.ClientName, w.Status, nullableStringPtr(w.BackendStatus), nullableStringPtr(w.Justification),
		nullableStringPtr(w.CancelNotes), nullableStringPtr(w.DueDate), w.CreatedAt, w.UpdatedAt, nullableStringPtr(w.CompletedAt))
	return err
}

func (r Repo) UpdateWorkItemTx(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `UPDATE work_items SET kind=?, client_name=?, status=?, backend_status=?, justification=?, cancel_notes=?, due_date=?, updated_at=?, completed_at=? WHERE id=?`,
		w.Kind, w.ClientName, w.Status, nullableStringPtr(w.BackendStatus), nullableStringPtr(w.Justification),
		nullableStringPtr(w.CancelNotes), nullableStringPtr(w.DueDate), w.UpdatedAt, nullableStringPtr(w.CompletedAt), w.ID)
	return err
}

func (r Repo) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	var w domain.WorkItem
	var backendStatus, justification, cancelNotes, dueDate, completedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,client_name,status,backend_status,justification,cancel_notes,due_date,created_at,updated_at,completed_at FROM work_items WHERE id=?`, id).
		Scan(&w.ID, &w.Kind, &w.ClientName, &w.Status, &backendStatus, &justification, &cancelNotes, &dueDate, &w.CreatedAt, &w.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if backendStatus.Valid {
		w.BackendStatus = &backendStatus.String
	}
	if justification.Valid {
		w.Justification = &justification.String
	}
	if cancelNotes.Valid {
		w.CancelNotes = &cancelNotes.String
	}
	if dueDate.Valid {
		w.DueDate = &dueDate.String
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.String
	}
	return w, nil
}

type WorkItemFilters struct {
	Kind            string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListWorkItems(ctx context.Context, f WorkItemFilters) ([]domain.WorkItem, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,kind,client_name,status,backend_status,justification,cancel_notes,due_date,created_at,updated_at,completed_at FROM work_items ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		var w domain.WorkItem
		var backendStatus, justification, cancelNotes, dueDate, completedAt sql.NullString
		if err := rows.Scan(&w.ID, &w.Kind, &w.ClientName, &w.Status, &backendStatus, &justification, &cancelNotes, &dueDate, &w.CreatedAt, &w.UpdatedAt, &completedAt); err != nil {
			return nil, err
		}
		if backendStatus.Valid {
			w.BackendStatus = &backendStatus.String
		}
		if justification.Valid {
			w.Justification = &justification.String
		}
		if cancelNotes.Valid {
			w.CancelNotes = &cancelNotes.String
		}
		if dueDate.Valid {
			w.DueDate = &dueDate.String
		}
		if completedAt.Valid {
			w.CompletedAt = &completedAt.String
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) DeleteWorkItemTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertTreeTx persists a freshly materialized Team/Role/Chair tree. Chair rows
// are created open; assignment only ever updates them.
func (r Repo) InsertTreeTx(ctx context.Context, tx *sql.Tx, workItemID string, teams []domain.Team) error {
	for ti, team := range teams {
		if _, err := tx.ExecContext(ctx, `INSERT INTO work_item_teams(id,work_item_id,name,is_primary,position) VALUES (?,?,?,?,?)`,
			team.ID, workItemID, team.Name, boolToInt(team.Primary), ti); err != nil {
			return fmt.Errorf("insert team %s: %w", team.Name, err)
		}
		for ri, role := range team.Roles {
			if _, err := tx.ExecContext(ctx, `INSERT INTO work_item_roles(work_item_id,id,team_id,name,chair_count,position) VALUES (?,?,?,?,?,?)`,
				workItemID, role.ID, team.ID, role.Name, len(role.Chairs), ri); err != nil {
				return fmt.Errorf("insert role %s: %w", role.ID, err)
			}
			for _, chair := range role.Chairs {
				if _, err := tx.ExecContext(ctx, `INSERT INTO work_item_chairs(work_item_id,role_id,chair_index) VALUES (?,?,?)`,
					workItemID, role.ID, chair.Index); err != nil {
					return fmt.Errorf("insert chair %s/%d: %w", role.ID, chair.Index, err)
				}
			}
		}
	}
	return nil
}

// LoadTree rebuilds the Team/Role/Chair tree with fill state for a work item.
func (r Repo) LoadTree(ctx context.Context, workItemID string) ([]domain.Team, error) {
	teamRows, err := r.DB.QueryContext(ctx, `SELECT id,name,is_primary FROM work_item_teams WHERE work_item_id=? ORDER BY position ASC`, workItemID)
	if err != nil {
		return nil, err
	}
	defer teamRows.Close()
	var teams []domain.Team
	for teamRows.Next() {
		var t domain.Team
		var primary int
		if err := teamRows.Scan(&t.ID, &t.Name, &primary); err != nil {
			return nil, err
		}
		t.Primary = primary != 0
		teams = append(teams, t)
	}
	if err := teamRows.Err(); err != nil {
		return nil, err
	}
	for i := range teams {
		roles, err := r.loadRoles(ctx, workItemID, teams[i].ID)
		if err != nil {
			return nil, err
		}
		teams[i].Roles = roles
	}
	return teams, nil
}

func (r Repo) loadRoles(ctx context.Context, workItemID, teamID string) ([]domain.Role, error) {
	roleRows, err := r.DB.QueryContext(ctx, `SELECT id,name,chair_count FROM work_item_roles WHERE work_item_id=? AND team_id=? ORDER BY position ASC`, workItemID, teamID)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	var roles []domain.Role
	for roleRows.Next() {
		var role domain.Role
		var chairCount int
		if err := roleRows.Scan(&role.ID, &role.Name, &chairCount); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := roleRows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		chairs, err := r.loadChairs(ctx, workItemID, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Chairs = chairs
	}
	return roles, nil
}

func (r Repo) loadChairs(ctx context.Context, workItemID, roleID string) ([]domain.Chair, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.chair_index, c.notes, c.workload_percentage,
       p.id, p.name, p.title, COALESCE(p.location,''), COALESCE(p.expertise_json,''), p.base_capacity_used, p.match_score
FROM work_item_chairs c
LEFT JOIN people p ON p.id=c.person_id
WHERE c.work_item_id=? AND c.role_id=?
ORDER BY c.chair_index ASC`, workItemID, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chairs []domain.Chair
	for rows.Next() {
		chair := domain.Chair{RoleID: roleID}
		var notes sql.NullString
		var workload sql.NullInt64
		var pid, pname, ptitle, plocation, pexpertise sql.NullString
		var pbase, pscore sql.NullInt64
		if err := rows.Scan(&chair.Index, &notes, &workload, &pid, &pname, &ptitle, &plocation, &pexpertise, &pbase, &pscore); err != nil {
			return nil, err
		}
		if pid.Valid {
			person := domain.Person{
				ID:               pid.String,
				Name:             pname.String,
				Title:            ptitle.String,
				Location:         plocation.String,
				BaseCapacityUsed: int(pbase.Int64),
				MatchScore:       int(pscore.Int64),
			}
			person.Expertise = decodeStringSlice(pexpertise.String)
			chair.Person = &person
			if notes.Valid {
				chair.Notes = notes.String
			}
			if workload.Valid {
				w := int(workload.Int64)
				chair.WorkloadPercentage = &w
			}
		}
		chairs = append(chairs, chair)
	}
	return chairs, rows.Err()
}

// SetChairTx stamps a chair row. Nil person clears the chair.
func (r Repo) SetChairTx(ctx context.Context, tx *sql.Tx, workItemID, roleID string, chairIndex int, personID *string, notes string, workload *int) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_item_chairs SET person_id=?, notes=?, workload_percentage=? WHERE work_item_id=? AND role_id=? AND chair_index=?`,
		nullableStringPtr(personID), nullable(notes), nullableIntPtr(workload), workItemID, roleID, chairIndex)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountFilledChairs counts occupied chairs across the whole work item.
func (r Repo) CountFilledChairs(ctx context.Context, workItemID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM work_item_chairs WHERE work_item_id=? AND person_id IS NOT NULL`, workItemID).Scan(&n)
	return n, err
}

// PersonCommittedWorkload sums the workload a person has committed to chairs
// of still-open work items. Terminal items drop out: their load is released.
func (r Repo) PersonCommittedWorkload(ctx context.Context, personID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(c.workload_percentage),0) FROM work_item_chairs c
JOIN work_items w ON w.id=c.work_item_id WHERE c.person_id=? AND w.status='pending'`, personID).Scan(&n)
	return n, err
}

func (r Repo) InsertSavedAssignmentsTx(ctx context.Context, tx *sql.Tx, workItemID, savedAt string, assignments []domain.Assignment) error {
	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO saved_assignments(work_item_id,team_name,role_id,role_name,chair_index,chair_type,person_id,person_name,workload_percentage,notes,saved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			workItemID, a.TeamName, a.RoleID, a.RoleName, a.ChairIndex, a.ChairType, a.Person.ID, a.Person.Name, a.WorkloadPercentage, nullable(a.Notes), savedAt); err != nil {
			return fmt.Errorf("save assignment %s/%d: %w", a.RoleID, a.ChairIndex, err)
		}
	}
	return nil
}

func (r Repo) ListSavedAssignments(ctx context.Context, workItemID string) ([]domain.SavedAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,work_item_id,team_name,role_id,role_name,chair_index,chair_type,person_id,person_name,workload_percentage,COALESCE(notes,''),saved_at
FROM saved_assignments WHERE work_item_id=? ORDER BY id ASC`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SavedAssignment
	for rows.Next() {
		var s domain.SavedAssignment
		if err := rows.Scan(&s.ID, &s.WorkItemID, &s.TeamName, &s.RoleID, &s.RoleName, &s.ChairIndex, &s.ChairType, &s.PersonID, &s.PersonName, &s.WorkloadPercentage, &s.Notes, &s.SavedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LatestEvents returns events newest-first, optionally filtered and paged by a
// descending id cursor.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, workItemID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if workItemID != "" {
		clauses = append(clauses, "work_item_id=?")
		args = append(args, workItemID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,work_item_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var workItem, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &workItem, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if workItem.Valid {
			e.WorkItemID = workItem.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func decodeStringSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
