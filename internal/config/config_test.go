package config

import (
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Chairs.PerRole != 10 {
		t.Fatalf("default chairs per role %d", cfg.Chairs.PerRole)
	}
	for _, kind := range []string{"onboarding", "offboarding", "new-joiner", "leaver"} {
		if !cfg.KnownKind(kind) {
			t.Fatalf("kind %s missing from catalog", kind)
		}
	}
}

func TestTemplatesForFallsBackToDefault(t *testing.T) {
	cfg := Default()
	templates := cfg.TemplatesFor("onboarding")
	if len(templates) != 2 {
		t.Fatalf("onboarding templates: %d", len(templates))
	}
	delete(cfg.Teams.Kinds, "leaver")
	templates = cfg.TemplatesFor("leaver")
	if len(templates) != 1 || templates[0].Name != "General Assignment" {
		t.Fatalf("fallback templates: %+v", templates)
	}
}

func TestValidateRejectsZeroChairs(t *testing.T) {
	cfg := Default()
	cfg.Chairs.PerRole = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "per_role") {
		t.Fatalf("expected per_role error, got %v", err)
	}
}

func TestValidateRejectsDuplicateRoleIDs(t *testing.T) {
	cfg := Default()
	tpl := cfg.Teams.Kinds["onboarding"]
	tpl[1].Roles = append(tpl[1].Roles, RoleTemplate{ID: "account-executive", Name: "Duplicate"})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate role id") {
		t.Fatalf("expected duplicate role error, got %v", err)
	}
}

func TestValidateRequiresSinglePrimary(t *testing.T) {
	cfg := Default()
	tpl := cfg.Teams.Kinds["onboarding"]
	tpl[1].Primary = true
	cfg.Teams.Kinds["onboarding"] = tpl
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "primary") {
		t.Fatalf("expected primary-team error, got %v", err)
	}
}

func TestFromYAMLRejectsUnknownKindTemplate(t *testing.T) {
	data := `chairs:
  per_role: 5
kinds:
  catalog:
    onboarding:
      description: "x"
teams:
  kinds:
    mystery:
      - name: Team
        primary: true
        roles:
          - id: r1
            name: Role One
`
	if _, err := FromYAML([]byte(data)); err == nil || !strings.Contains(err.Error(), "unknown work item kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}
