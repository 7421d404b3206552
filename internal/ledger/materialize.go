package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"workdesk/internal/domain"
)

// DefaultChairsPerRole is the number of chair slots generated per role when the
// config does not override it.
const DefaultChairsPerRole = 10

// RoleSpec and TeamSpec describe the team/role tree to materialize for a work
// item. They are produced from the workspace config's templates.
type RoleSpec struct {
	ID   string
	Name string
}

type TeamSpec struct {
	Name    string
	Primary bool
	Roles   []RoleSpec
}

// DefaultTeamSpec is the single-team fallback used when a work item kind has no
// configured templates.
func DefaultTeamSpec() []TeamSpec {
	return []TeamSpec{{
		Name:    "General Assignment",
		Primary: true,
		Roles: []RoleSpec{
			{ID: "account-executive", Name: "Account Executive"},
			{ID: "policy-manager", Name: "Policy Manager"},
			{ID: "claims-handler", Name: "Claims Handler"},
		},
	}}
}

// GenerateChairs produces the fixed ordered sequence of open chairs for a role.
// Chair 0 is the primary chair. n must be >= 1.
func GenerateChairs(roleID string, n int) []domain.Chair {
	if n < 1 {
		panic(fmt.Sprintf("ledger: chair count %d for role %s, must be >= 1", n, roleID))
	}
	chairs := make([]domain.Chair, n)
	for i := range chairs {
		chairs[i] = domain.Chair{RoleID: roleID, Index: i}
	}
	return chairs
}

// Materialize builds the Team/Role/Chair tree for a work item. An empty spec
// list falls back to the default single team so the tree is always well-formed.
func Materialize(specs []TeamSpec, chairsPerRole int) []domain.Team {
	if len(specs) == 0 {
		specs = DefaultTeamSpec()
	}
	if chairsPerRole < 1 {
		chairsPerRole = DefaultChairsPerRole
	}
	teams := make([]domain.Team, 0, len(specs))
	for _, spec := range specs {
		team := domain.Team{
			ID:      uuid.NewString(),
			Name:    spec.Name,
			Primary: spec.Primary,
			Roles:   make([]domain.Role, 0, len(spec.Roles)),
		}
		for _, rs := range spec.Roles {
			team.Roles = append(team.Roles, domain.Role{
				ID:     rs.ID,
				Name:   rs.Name,
				Chairs: GenerateChairs(rs.ID, chairsPerRole),
			})
		}
		teams = append(teams, team)
	}
	return teams
}
