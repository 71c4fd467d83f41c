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

	"questboard/internal/app"
	"questboard/internal/config"
	"questboard/internal/db"
	"questboard/internal/domain"
	"questboard/internal/engine"
	"questboard/internal/migrate"
	"questboard/internal/notify"
	"questboard/internal/repo"
	"questboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qb",
	Short: "Questboard CLI",
	Long: `Questboard turns goals into quests, tasks and daily decks.
Core concepts:
- Workspace: your .questboard directory with the database; config lives in the DB and questboard.yml.
- Org: the tenant that owns goals, quests, tasks and members.
- Quests: milestones that unlock when their conditions are met; states move locked -> unlocked -> in-progress -> completed and never back.
- Tasks: sized work items under quests, tagged with a Working Genius phase.
- Members: people with a genius profile and a daily capacity in minutes.
- Questmaster: the batch run (qb run) that unlocks quests, assigns tasks, deals decks, and flags stale or blocked work.
- Decks: one per member per day; regenerate by running again.
- Event log: diary of changes, view with 'qb log tail'.`,
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
	viper.SetEnvPrefix("QUESTBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("org", "", "org id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(questlineCmd())
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(deckCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage orgs"}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgShowCmd())
	return org
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List orgs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrgs(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func orgCreateCmd() *cobra.Command {
	var id, name, slackChannel string
	var slackEnabled, emailEnabled bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create org",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id), nil)
			org, err := e.CreateOrg(cmd.Context(), engine.OrgCreateOptions{
				ID:           id,
				Name:         name,
				SlackEnabled: slackEnabled,
				SlackChannel: slackChannel,
				EmailEnabled: emailEnabled,
			})
			if err != nil {
				return err
			}
			if err := e.Repo.UpsertOrgConfig(cmd.Context(), org.ID, config.Default(org.ID)); err != nil {
				return err
			}
			return printJSONOrTable(org)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "org id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "org name")
	cmd.Flags().BoolVar(&slackEnabled, "slack", false, "enable slack notifications")
	cmd.Flags().StringVar(&slackChannel, "slack-channel", "", "slack channel")
	cmd.Flags().BoolVar(&emailEnabled, "email", false, "enable email notifications")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active org",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				org, err := e.Repo.GetOrg(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(org)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Org configuration"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orgID := viper.GetString("org")
				if orgID == "" {
					orgID = cfg.Org.ID
				}
				if orgID == "" {
					return fmt.Errorf("config has no org.id; use --org")
				}
				if err := r.UpsertOrgConfig(ctx, orgID, cfg); err != nil {
					return err
				}
				fmt.Printf("imported config for org %s\n", orgID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to questboard.yml")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default questboard.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			orgID := viper.GetString("org")
			if orgID == "" {
				orgID = "default-org"
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Org status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				orgID := e.Config.Org.ID
				counts, err := e.Repo.CountTasksByStatus(ctx, orgID)
				if err != nil {
					return err
				}
				quests, err := e.Repo.ListQuests(ctx, orgID)
				if err != nil {
					return err
				}
				members, err := e.Repo.ListMembers(ctx, orgID)
				if err != nil {
					return err
				}
				schemaVersion, err := migrate.Version(e.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"org_id":         orgID,
						"schema_version": schemaVersion,
						"task_counts":    counts,
						"quests":         len(quests),
						"members":        len(members),
					})
				}
				byState := map[domain.QuestState]int{}
				for _, q := range quests {
					byState[q.State]++
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Org", "Schema", "Quests", "Locked", "Unlocked", "In progress", "Completed", "Members"})
				t.AppendRow(table.Row{
					orgID, schemaVersion, len(quests),
					byState[domain.QuestLocked], byState[domain.QuestUnlocked],
					byState[domain.QuestInProgress], byState[domain.QuestCompleted],
					len(members),
				})
				t.Render()

				tt := table.NewWriter()
				tt.SetOutputMirror(os.Stdout)
				tt.AppendHeader(table.Row{"Task status", "Count"})
				for _, s := range []domain.TaskStatus{domain.TaskTodo, domain.TaskInProgress, domain.TaskBlocked, domain.TaskDone} {
					tt.AppendRow(table.Row{string(s), counts[string(s)]})
				}
				tt.Render()
				return nil
			})
		},
	}
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{Use: "goal", Short: "Manage goals"}
	goal.AddCommand(goalCreateCmd())
	goal.AddCommand(goalListCmd())
	return goal
}

func goalCreateCmd() *cobra.Command {
	var id, title, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateGoal(ctx, engine.GoalCreateOptions{
					ID: id, OrgID: e.Config.Org.ID, Title: title, Status: status,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "goal id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "goal title")
	cmd.Flags().StringVar(&status, "status", "", "goal status")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func goalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListGoals(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func questlineCmd() *cobra.Command {
	ql := &cobra.Command{Use: "questline", Short: "Manage questlines"}
	ql.AddCommand(questlineCreateCmd())
	ql.AddCommand(questlineListCmd())
	return ql
}

func questlineCreateCmd() *cobra.Command {
	var id, goalID, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create questline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.CreateQuestline(ctx, engine.QuestlineCreateOptions{
					ID: id, OrgID: e.Config.Org.ID, GoalID: goalID, Title: title,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "questline id (generated when empty)")
	cmd.Flags().StringVar(&goalID, "goal", "", "goal id")
	cmd.Flags().StringVar(&title, "title", "", "questline title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func questlineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List questlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListQuestlines(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func questCmd() *cobra.Command {
	quest := &cobra.Command{Use: "quest", Short: "Manage quests"}
	quest.AddCommand(questCreateCmd())
	quest.AddCommand(questListCmd())
	quest.AddCommand(questShowCmd())
	quest.AddCommand(questSetStateCmd())
	return quest
}

func questCreateCmd() *cobra.Command {
	var id, questlineID, title, objective, unlockJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create quest (starts locked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var conds []domain.UnlockCondition
			if unlockJSON != "" {
				if err := json.Unmarshal([]byte(unlockJSON), &conds); err != nil {
					return fmt.Errorf("invalid --unlock JSON: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.CreateQuest(ctx, engine.QuestCreateOptions{
					ID:               id,
					OrgID:            e.Config.Org.ID,
					QuestlineID:      questlineID,
					Title:            title,
					Objective:        objective,
					UnlockConditions: conds,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "quest id (generated when empty)")
	cmd.Flags().StringVar(&questlineID, "questline", "", "questline id")
	cmd.Flags().StringVar(&title, "title", "", "quest title")
	cmd.Flags().StringVar(&objective, "objective", "", "quest objective")
	cmd.Flags().StringVar(&unlockJSON, "unlock", "", `unlock conditions JSON, e.g. '[{"kind":"task_completed","task_id":"t1"}]'`)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func questListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListQuests(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Title", "State", "Conditions", "Tasks"})
				for _, q := range items {
					t.AppendRow(table.Row{q.ID, q.Title, string(q.State), len(q.UnlockConditions), len(q.TaskIDs)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func questShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a quest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.Repo.GetQuest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
}

func questSetStateCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "set-state <id>",
		Short: "Advance quest state (forward only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.SetQuestState(ctx, args[0], domain.QuestState(state))
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "target state: unlocked|in-progress|completed")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var id, questID, title, phase, assignee string
	var estimate, priority int
	var blockers []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TaskCreateOptions{
					ID:              id,
					OrgID:           e.Config.Org.ID,
					QuestID:         questID,
					Title:           title,
					EstimateMinutes: estimate,
					Phase:           domain.GeniusPhase(phase),
					AssigneeID:      assignee,
					Blockers:        blockers,
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&questID, "quest", "", "quest id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "estimate in minutes")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower runs first)")
	cmd.Flags().StringVar(&phase, "phase", "", "working genius phase")
	cmd.Flags().StringVar(&assignee, "assignee", "", "member id")
	cmd.Flags().StringSliceVar(&blockers, "blocker", nil, "blocker note (repeatable)")
	_ = cmd.MarkFlagRequired("quest")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("estimate")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.OrgID = e.Config.Org.ID
				f.Status = domain.TaskStatus(status)
				items, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Quest", "Title", "Status", "Assignee", "Est (min)", "Phase"})
				for _, task := range items {
					assignee := ""
					if task.AssignedMemberID != nil {
						assignee = *task.AssignedMemberID
					}
					t.AppendRow(table.Row{task.ID, task.QuestID, task.Title, string(task.Status), assignee, task.EstimateMinutes, string(task.Phase)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.QuestID, "quest", "", "quest filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().BoolVar(&f.Unassigned, "unassigned", false, "only unassigned tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var status, assignee string
	var blockers []string
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TaskUpdateOptions{ID: args[0]}
				if cmd.Flags().Changed("status") {
					s := domain.TaskStatus(status)
					opts.Status = &s
				}
				if cmd.Flags().Changed("assignee") {
					opts.AssigneeID = &assignee
				}
				if cmd.Flags().Changed("blocker") {
					opts.Blockers = &blockers
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status: todo|in-progress|blocked|done")
	cmd.Flags().StringVar(&assignee, "assignee", "", "member id (empty clears)")
	cmd.Flags().StringSliceVar(&blockers, "blocker", nil, "blocker notes (replaces)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				done := domain.TaskDone
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: args[0], Status: &done})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage members"}
	member.AddCommand(memberCreateCmd())
	member.AddCommand(memberListCmd())
	member.AddCommand(memberShowCmd())
	member.AddCommand(memberSetProfileCmd())
	return member
}

func parseProfile(strengths, competencies, frustrations []string) (*domain.GeniusProfile, error) {
	if len(strengths) == 0 && len(competencies) == 0 && len(frustrations) == 0 {
		return nil, nil
	}
	p := &domain.GeniusProfile{}
	for _, s := range strengths {
		p.Strengths = append(p.Strengths, domain.GeniusPhase(s))
	}
	for _, s := range competencies {
		p.Competencies = append(p.Competencies, domain.GeniusPhase(s))
	}
	for _, s := range frustrations {
		p.Frustrations = append(p.Frustrations, domain.GeniusPhase(s))
	}
	if err := domain.ValidateProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func memberCreateCmd() *cobra.Command {
	var id, email, name string
	var capacity int
	var strengths, competencies, frustrations []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create member",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := parseProfile(strengths, competencies, frustrations)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMember(ctx, engine.MemberCreateOptions{
					ID:                   id,
					OrgID:                e.Config.Org.ID,
					Email:                email,
					Name:                 name,
					Profile:              profile,
					DailyCapacityMinutes: capacity,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "member id (generated when empty)")
	cmd.Flags().StringVar(&email, "email", "", "member email")
	cmd.Flags().StringVar(&name, "name", "", "member name")
	cmd.Flags().IntVar(&capacity, "capacity", 480, "daily capacity in minutes")
	cmd.Flags().StringSliceVar(&strengths, "strengths", nil, "two genius strengths")
	cmd.Flags().StringSliceVar(&competencies, "competencies", nil, "two genius competencies")
	cmd.Flags().StringSliceVar(&frustrations, "frustrations", nil, "two genius frustrations")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMembers(ctx, e.Config.Org.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Email", "Name", "Capacity (min)", "Profiled"})
				for _, m := range items {
					t.AppendRow(table.Row{m.ID, m.Email, m.Name, m.DailyCapacityMinutes, m.Profile != nil})
				}
				t.Render()
				return nil
			})
		},
	}
}

func memberShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMember(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func memberSetProfileCmd() *cobra.Command {
	var strengths, competencies, frustrations []string
	cmd := &cobra.Command{
		Use:   "set-profile <id>",
		Short: "Set a member's working genius profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := parseProfile(strengths, competencies, frustrations)
			if err != nil {
				return err
			}
			if profile == nil {
				return fmt.Errorf("provide --strengths, --competencies and --frustrations")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMember(ctx, engine.MemberUpdateOptions{ID: args[0], Profile: profile})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringSliceVar(&strengths, "strengths", nil, "two genius strengths")
	cmd.Flags().StringSliceVar(&competencies, "competencies", nil, "two genius competencies")
	cmd.Flags().StringSliceVar(&frustrations, "frustrations", nil, "two genius frustrations")
	return cmd
}

func runCmd() *cobra.Command {
	var nowFlag string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the questmaster batch for the active org",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if nowFlag != "" {
				parsed, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("invalid --now: %w", err)
				}
				now = parsed.UTC()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runCtx := ctx
				if e.Config.Questmaster.DeadlineSeconds > 0 {
					var cancel context.CancelFunc
					runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.Config.Questmaster.DeadlineSeconds)*time.Second)
					defer cancel()
				}
				stats, err := e.RunQuestmaster(runCtx, e.Config.Org.ID, now)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Unlocked", "Assigned", "Decks", "Skipped", "Stale", "Blocked"})
				t.AppendRow(table.Row{
					stats.UnlockedQuests, stats.TasksAssigned, stats.DecksGenerated,
					stats.SkippedMembers, stats.StaleTasks, stats.BlockedTasks,
				})
				t.Render()
				for _, w := range stats.Warnings {
					fmt.Println("warning:", w)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "logical run time (RFC3339), defaults to wall clock")
	return cmd
}

func deckCmd() *cobra.Command {
	deck := &cobra.Command{Use: "deck", Short: "Daily quest decks"}
	deck.AddCommand(deckShowCmd())
	deck.AddCommand(deckListCmd())
	return deck
}

func deckShowCmd() *cobra.Command {
	var memberID, date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a member's deck",
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			if date == "" {
				date = time.Now().UTC().Format("2006-01-02")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDeck(ctx, memberID, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Quest", "Tasks", "Minutes"})
				for _, entry := range d.Entries {
					t.AppendRow(table.Row{entry.QuestID, strings.Join(entry.TaskIDs, ", "), entry.TotalEstimatedMinutes})
				}
				t.AppendFooter(table.Row{"Total", "", d.TotalMinutes})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	cmd.Flags().StringVar(&date, "date", "", "deck date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func deckListCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decks for the active org",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDecks(ctx, e.Config.Org.ID, date)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "filter by date YYYY-MM-DD")
	return cmd
}

func summaryCmd() *cobra.Command {
	sum := &cobra.Command{Use: "summary", Short: "Questmaster run summaries"}
	sum.AddCommand(summaryListCmd())
	sum.AddCommand(summaryShowCmd())
	return sum
}

func summaryListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List run summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSummaries(ctx, e.Config.Org.ID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Status", "Started", "Unlocked", "Assigned", "Decks", "Error"})
				for _, s := range items {
					t.AppendRow(table.Row{
						s.ID, s.Status, s.StartedAt,
						s.Stats.UnlockedQuests, s.Stats.TasksAssigned, s.Stats.DecksGenerated, s.Error,
					})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of summaries")
	return cmd
}

func summaryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Org.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name, key string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			if key == "" {
				return fmt.Errorf("--key required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec := domain.APIKey{
					ID:        fmt.Sprintf("key-%d", time.Now().UnixNano()),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(domain.TimeFormat),
				}
				if err := r.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				rec.KeyHash = ""
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&key, "key", "", "raw key value to hash and store")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				for i := range items {
					items[i].KeyHash = ""
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), workspace, viper.GetString("org"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, notify.NewClient(cfg.Notifications.Slack, cfg.Notifications.Email))
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("QUESTBOARD_JWT_SECRET"),
				AllowAnonymous: allowAnonymous,
			}
			if authCfg.JWTSecret == "" && !allowAnonymous {
				return fmt.Errorf("QUESTBOARD_JWT_SECRET is required unless --allow-anonymous is set")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Questboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "serve without authentication (local use)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveOrgAndConfig(ctx, workspace, viper.GetString("org"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, notify.NewClient(cfg.Notifications.Slack, cfg.Notifications.Email))
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
