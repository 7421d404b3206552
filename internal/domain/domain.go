package domain

// Person is a roster entry. Immutable for the lifetime of an assignment session.
type Person struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Location         string   `json:"location,omitempty"`
	Expertise        []string `json:"expertise,omitempty"`
	BaseCapacityUsed int      `json:"base_capacity_used" minimum:"0" maximum:"100"`
	MatchScore       int      `json:"match_score,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty" format:"date-time"`
}

// Chair is one positional slot within a role. Index 0 is the primary chair.
type Chair struct {
	RoleID             string  `json:"role_id"`
	Index              int     `json:"index"`
	Person             *Person `json:"person,omitempty"`
	Notes              string  `json:"notes,omitempty"`
	WorkloadPercentage *int    `json:"workload_percentage,omitempty"`
}

// Filled reports whether the chair has an assigned person.
func (c Chair) Filled() bool { return c.Person != nil }

type Role struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Chairs []Chair `json:"chairs"`
}

type Team struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
	Roles   []Role `json:"roles"`
}

type WorkItem struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind" enum:"onboarding,offboarding,new-joiner,leaver"`
	ClientName    string  `json:"client_name"`
	Status        string  `json:"status" enum:"pending,completed,cancelled"`
	BackendStatus *string `json:"backend_status,omitempty" enum:"completed,partially_completed"`
	Justification *string `json:"justification,omitempty"`
	CancelNotes   *string `json:"cancel_notes,omitempty"`
	DueDate       *string `json:"due_date,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
}

// Terminal reports whether the work item accepts no further ledger mutations.
func (w WorkItem) Terminal() bool {
	return w.Status == "completed" || w.Status == "cancelled"
}

// Assignment is a read projection over a filled chair.
type Assignment struct {
	TeamID             string `json:"team_id"`
	TeamName           string `json:"team_name"`
	RoleID             string `json:"role_id"`
	RoleName           string `json:"role_name"`
	ChairIndex         int    `json:"chair_index"`
	ChairType          string `json:"chair_type" enum:"primary,secondary"`
	Person             Person `json:"person"`
	Notes              string `json:"notes,omitempty"`
	WorkloadPercentage int    `json:"workload_percentage"`
}

// SavedAssignment is the persisted form of an Assignment, written when a work
// item reaches a terminal status.
type SavedAssignment struct {
	ID                 int64  `json:"id"`
	WorkItemID         string `json:"work_item_id"`
	TeamName           string `json:"team_name"`
	RoleID             string `json:"role_id"`
	RoleName           string `json:"role_name"`
	ChairIndex         int    `json:"chair_index"`
	ChairType          string `json:"chair_type" enum:"primary,secondary"`
	PersonID           string `json:"person_id"`
	PersonName         string `json:"person_name"`
	WorkloadPercentage int    `json:"workload_percentage"`
	Notes              string `json:"notes,omitempty"`
	SavedAt            string `json:"saved_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	WorkItemID string `json:"work_item_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
