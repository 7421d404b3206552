package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models workdesk.yml: the work-item kind catalog and the team/role
// templates used to materialize a work item's assignment tree.
type Config struct {
	Chairs struct {
		PerRole int `yaml:"per_role"`
	} `yaml:"chairs"`
	Kinds struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"kinds"`
	Teams struct {
		Default []TeamTemplate            `yaml:"default"`
		Kinds   map[string][]TeamTemplate `yaml:"kinds"`
	} `yaml:"teams"`
}

type TeamTemplate struct {
	Name    string         `yaml:"name"`
	Primary bool           `yaml:"primary"`
	Roles   []RoleTemplate `yaml:"roles"`
}

type RoleTemplate struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run 'wd config init' to generate one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Chairs.PerRole < 1 {
		return fmt.Errorf("config.chairs.per_role must be >= 1, got %d", c.Chairs.PerRole)
	}
	if len(c.Kinds.Catalog) == 0 {
		return fmt.Errorf("config.kinds.catalog is required")
	}
	if err := validateTemplates("teams.default", c.Teams.Default); err != nil {
		return err
	}
	for kind, templates := range c.Teams.Kinds {
		if _, ok := c.Kinds.Catalog[kind]; !ok {
			return fmt.Errorf("teams.kinds references unknown work item kind %s", kind)
		}
		if err := validateTemplates("teams.kinds."+kind, templates); err != nil {
			return err
		}
	}
	return nil
}

func validateTemplates(section string, templates []TeamTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	primaries := 0
	roleIDs := map[string]bool{}
	for _, tpl := range templates {
		if tpl.Name == "" {
			return fmt.Errorf("%s contains a team without a name", section)
		}
		if tpl.Primary {
			primaries++
		}
		if len(tpl.Roles) == 0 {
			return fmt.Errorf("%s team %s has no roles", section, tpl.Name)
		}
		for _, role := range tpl.Roles {
			if role.ID == "" || role.Name == "" {
				return fmt.Errorf("%s team %s has a role missing id or name", section, tpl.Name)
			}
			if roleIDs[role.ID] {
				return fmt.Errorf("%s has duplicate role id %s", section, role.ID)
			}
			roleIDs[role.ID] = true
		}
	}
	if primaries != 1 {
		return fmt.Errorf("%s must designate exactly one primary team, got %d", section, primaries)
	}
	return nil
}

// TemplatesFor returns the team templates for a work item kind, falling back
// to the default template set when the kind has none configured.
func (c *Config) TemplatesFor(kind string) []TeamTemplate {
	if templates, ok := c.Teams.Kinds[kind]; ok && len(templates) > 0 {
		return templates
	}
	return c.Teams.Default
}

// KnownKind reports whether the kind appears in the catalog.
func (c *Config) KnownKind(kind string) bool {
	_, ok := c.Kinds.Catalog[kind]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "workdesk.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `chairs:
  per_role: 10

kinds:
  catalog:
    onboarding:
      description: "Bring a new client onto the book"
    offboarding:
      description: "Wind down a client relationship"
    new-joiner:
      description: "Set up a new member of staff"
    leaver:
      description: "Close out a departing member of staff"

teams:
  default:
    - name: General Assignment
      primary: true
      roles:
        - id: account-executive
          name: Account Executive
        - id: policy-manager
          name: Policy Manager
        - id: claims-handler
          name: Claims Handler

  kinds:
    onboarding:
      - name: General Assignment
        primary: true
        roles:
          - id: account-executive
            name: Account Executive
          - id: policy-manager
            name: Policy Manager
          - id: claims-handler
            name: Claims Handler
      - name: Compliance
        roles:
          - id: compliance-officer
            name: Compliance Officer
    offboarding:
      - name: General Assignment
        primary: true
        roles:
          - id: account-executive
            name: Account Executive
          - id: policy-manager
            name: Policy Manager
      - name: Compliance
        roles:
          - id: compliance-officer
            name: Compliance Officer
    new-joiner:
      - name: People Operations
        primary: true
        roles:
          - id: hr-partner
            name: HR Partner
          - id: it-provisioner
            name: IT Provisioner
          - id: line-manager
            name: Line Manager
    leaver:
      - name: People Operations
        primary: true
        roles:
          - id: hr-partner
            name: HR Partner
          - id: it-provisioner
            name: IT Provisioner
`
