package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workdesk/internal/app"
	"workdesk/internal/config"
	"workdesk/internal/db"
	"workdesk/internal/domain"
	"workdesk/internal/engine"
	"workdesk/internal/repo"
	"workdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wd",
	Short: "Workdesk CLI",
	Long: `Workdesk staffs insurance back-office work items.
- Workspace: your .workdesk directory holding the database; workdesk.yml configures kinds and team templates.
- Work item: one job for a client (onboarding, offboarding, ...) that owns a team/role/chair tree.
- Chairs: each role has a fixed row of chairs; chair 0 is the primary seat that counts toward completion.
- Roster: the people catalogue you assign from; one person holds at most one chair per work item.
- Capacity: assignments carry a small workload percentage; tiers warn when someone is running hot.
- Completion: all primary chairs filled completes fully; anything less needs a written justification.
- Event log: diary of changes, view with 'wd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(workItemCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(unassignCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func workItemCmd() *cobra.Command {
	wi := &cobra.Command{Use: "workitem", Short: "Manage work items"}
	wi.AddCommand(workItemCreateCmd())
	wi.AddCommand(workItemListCmd())
	wi.AddCommand(workItemShowCmd())
	wi.AddCommand(workItemTreeCmd())
	wi.AddCommand(workItemCompleteCmd())
	wi.AddCommand(workItemCancelCmd())
	wi.AddCommand(workItemDeleteCmd())
	wi.AddCommand(workItemSavedCmd())
	return wi
}

func workItemCreateCmd() *cobra.Command {
	var id, kind, client, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkItem(ctx, engine.WorkItemCreateOptions{
					ID:         id,
					Kind:       kind,
					ClientName: client,
					DueDate:    due,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "work item id (generated when empty)")
	cmd.Flags().StringVar(&kind, "kind", "onboarding", "work item kind")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func workItemListCmd() *cobra.Command {
	var f repo.WorkItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorkItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Client", "Status", "Created"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Kind, w.ClientName, statusLabel(w), w.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&f.CursorCreatedAt, "cursor-created-at", "", "pagination cursor (created_at)")
	cmd.Flags().StringVar(&f.CursorID, "cursor-id", "", "pagination cursor (id)")
	return cmd
}

func statusLabel(w domain.WorkItem) string {
	if w.BackendStatus != nil {
		return *w.BackendStatus
	}
	return w.Status
}

func workItemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func workItemTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <id>",
		Short: "Show the team/role/chair tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, teams, progress, err := e.Tree(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"work_item": w, "teams": teams, "progress": progress})
				}
				fmt.Printf("%s (%s) %s — %d/%d chairs, %d/%d primary, %s\n",
					w.ClientName, w.Kind, w.ID,
					progress.FilledChairs, progress.TotalChairs,
					progress.PrimaryFilled, progress.PrimaryTotal, progress.State)
				for _, team := range teams {
					marker := ""
					if team.Primary {
						marker = " *"
					}
					fmt.Printf("%s%s\n", team.Name, marker)
					for _, role := range team.Roles {
						fmt.Printf("  %s\n", role.Name)
						for _, c := range role.Chairs {
							if !c.Filled() {
								continue
							}
							workload := 0
							if c.WorkloadPercentage != nil {
								workload = *c.WorkloadPercentage
							}
							fmt.Printf("    [%d] %s (%d%%)\n", c.Index, c.Person.Name, workload)
						}
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func workItemCompleteCmd() *cobra.Command {
	var justification string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete work item",
		Long:  "Fully staffed work items complete outright; otherwise --justification (10-500 characters) records why the remaining chairs stay open.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Complete(ctx, args[0], justification, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&justification, "justification", "", "reason for completing while chairs remain open")
	return cmd
}

func workItemCancelCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Cancel(ctx, args[0], notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "cancellation notes")
	return cmd
}

func workItemDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete work item (only while no chairs are filled)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteWorkItem(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func workItemSavedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved <id>",
		Short: "Show saved assignments of a terminal work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.SavedAssignments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(saved)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Team", "Role", "Chair", "Person", "Workload"})
				for _, s := range saved {
					tw.AppendRow(table.Row{s.TeamName, s.RoleName, s.ChairIndex, s.PersonName, fmt.Sprintf("%d%%", s.WorkloadPercentage)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func assignCmd() *cobra.Command {
	var workItemID, roleID, personID, notes string
	var chairIndex, workload int
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a person to a chair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, progress, err := e.Assign(ctx, engine.AssignOptions{
					WorkItemID:         workItemID,
					RoleID:             roleID,
					ChairIndex:         chairIndex,
					PersonID:           personID,
					Notes:              notes,
					WorkloadPercentage: workload,
					ActorID:            viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"assignment": a, "progress": progress})
			})
		},
	}
	cmd.Flags().StringVar(&workItemID, "work-item", "", "work item id")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	cmd.Flags().IntVar(&chairIndex, "chair", 0, "chair index (0 is primary)")
	cmd.Flags().StringVar(&personID, "person", "", "person id")
	cmd.Flags().StringVar(&notes, "notes", "", "assignment notes")
	cmd.Flags().IntVar(&workload, "workload", 10, "workload percentage for this chair")
	_ = cmd.MarkFlagRequired("work-item")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("person")
	return cmd
}

func unassignCmd() *cobra.Command {
	var workItemID, roleID string
	var chairIndex int
	cmd := &cobra.Command{
		Use:   "unassign",
		Short: "Clear a chair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				progress, err := e.Unassign(ctx, engine.UnassignOptions{
					WorkItemID: workItemID,
					RoleID:     roleID,
					ChairIndex: chairIndex,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"progress": progress})
			})
		},
	}
	cmd.Flags().StringVar(&workItemID, "work-item", "", "work item id")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	cmd.Flags().IntVar(&chairIndex, "chair", 0, "chair index")
	_ = cmd.MarkFlagRequired("work-item")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func rosterCmd() *cobra.Command {
	r := &cobra.Command{Use: "roster", Short: "Manage the people roster"}
	r.AddCommand(rosterImportCmd())
	r.AddCommand(rosterListCmd())
	r.AddCommand(rosterSearchCmd())
	r.AddCommand(rosterCapacityCmd())
	return r
}

func rosterImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import people from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var people []domain.Person
				if err := json.Unmarshal(data, &people); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				n, err := e.ImportRoster(ctx, people, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("imported %d people\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file with an array of people")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rosterListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the whole roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				candidates, err := e.SearchCandidates(ctx, engine.CandidateQuery{})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Title", "Location", "Available", "Tier"})
				for _, c := range candidates {
					tw.AppendRow(table.Row{c.Person.ID, c.Person.Name, c.Person.Title, c.Person.Location,
						fmt.Sprintf("%d%%", c.AvailableCapacity), c.Tier})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func rosterSearchCmd() *cobra.Command {
	var q engine.CandidateQuery
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search candidates",
		Long:  "With --work-item, people already holding a chair in that work item are excluded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				candidates, err := e.SearchCandidates(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Title", "Location", "Available", "Tier"})
				for _, c := range candidates {
					tw.AppendRow(table.Row{c.Person.ID, c.Person.Name, c.Person.Title, c.Person.Location,
						fmt.Sprintf("%d%%", c.AvailableCapacity), c.Tier})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.Text, "q", "", "name or title filter")
	cmd.Flags().StringVar(&q.Location, "location", "", "location filter")
	cmd.Flags().StringVar(&q.Expertise, "expertise", "", "expertise filter")
	cmd.Flags().StringVar(&q.WorkItemID, "work-item", "", "exclude people already assigned in this work item")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max results")
	return cmd
}

func rosterCapacityCmd() *cobra.Command {
	var increase int
	cmd := &cobra.Command{
		Use:   "capacity <person-id>",
		Short: "Preview a person's capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.CapacityPreview(ctx, args[0], increase)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().IntVar(&increase, "increase", 10, "proposed workload increase")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "workdesk.yml defines the work item kind catalog and the team/role templates used to build each assignment tree.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default workdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: work item changes, assignments, imports.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var cursor int64
	var evtType, workItemID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, cursor, workItemID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "id cursor for older pages")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&workItemID, "work-item", "", "work item filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, e, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Workdesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, e, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
