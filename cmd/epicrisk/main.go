package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"epicrisk/internal/app"
	"epicrisk/internal/config"
	"epicrisk/internal/db"
	"epicrisk/internal/domain"
	"epicrisk/internal/engine"
	"epicrisk/internal/logging"
	"epicrisk/internal/metrics"
	"epicrisk/internal/migrate"
	"epicrisk/internal/scheduler"
	"epicrisk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "epicrisk",
	Short: "Epic delivery risk engine",
	Long: `epicrisk scores how likely each epic is to ship on time.
- Sync: epics and issues are imported from the tracker sync (epicrisk sync import).
- Rollup: once a day the issues of every active epic are folded into one signal row per epic.
- Evaluation: the rollup, owner check-ins and history become a risk level, a delivery probability and a recovery plan.
- Snapshots: every evaluation is appended, so risk can be compared over time.
- Cycle: rollup then evaluation for each workspace; epicrisk schedule runs it on a cron.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EPICRISK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "data directory holding epicrisk.yml and .epicrisk/")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace id (overrides config default)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(checkinCmd())
	rootCmd.AddCommand(rollupCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspaces"}
	ws.AddCommand(workspaceCreateCmd())
	ws.AddCommand(workspaceListCmd())
	return ws
}

func workspaceCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ws, err := e.CreateWorkspace(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, ws := range items {
					tw.AppendRow(table.Row{ws.ID, ws.Name, ws.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sync",
		Short: "Tracker sync",
		Long:  "Imports what the tracker sync produced: epics with their status history and the issues under them.",
	}
	s.AddCommand(syncImportCmd())
	return s
}

func syncImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import epics and issues from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := engine.ReadSyncFile(file)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, e engine.Engine, ws string) error {
				res, err := e.ImportSync(ctx, ws, doc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("imported %d epics, %d issues into %s\n", res.Epics, res.Issues, ws)
				if len(res.Rejected) > 0 {
					tw := newTable(table.Row{"Kind", "ID", "Rejected because"})
					for _, r := range res.Rejected {
						tw.AppendRow(table.Row{r.Kind, r.ID, r.Reason})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "sync document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func checkinCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "checkin",
		Short: "Weekly owner check-ins",
		Long:  "One check-in per epic per ISO week; submitting again in the same week replaces it.",
	}
	c.AddCommand(checkinSubmitCmd())
	c.AddCommand(checkinListCmd())
	return c
}

func checkinSubmitCmd() *cobra.Command {
	var epicID, status, reason string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit this week's check-in for an epic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SubmitCheckin(ctx, engine.CheckinInput{
					WorkspaceID: viper.GetString("workspace"),
					EpicID:      epicID,
					Status:      domain.CheckinStatus(status),
					Reason:      reason,
					SubmittedBy: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&epicID, "epic", "", "epic id")
	cmd.Flags().StringVar(&status, "status", "", "on_track, slip_1_3 or slip_3_plus")
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason")
	_ = cmd.MarkFlagRequired("epic")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func checkinListCmd() *cobra.Command {
	var epicID string
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an epic's check-ins, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListEpicCheckins(ctx, epicID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Week", "Status", "By", "Reason"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.WeekStart.Format("2006-01-02"), c.Status, c.SubmittedBy, c.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&epicID, "epic", "", "epic id")
	cmd.Flags().IntVarP(&n, "n", "n", 12, "number of check-ins")
	_ = cmd.MarkFlagRequired("epic")
	return cmd
}

func rollupCmd() *cobra.Command {
	r := &cobra.Command{Use: "rollup", Short: "Daily aggregation"}
	r.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Compute today's rollup for every active epic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, e engine.Engine, ws string) error {
				res, err := e.Pipeline().Run(ctx, ws)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable(table.Row{"Epic", "Issues", "Done", "In review", "Points", "Completed", "Stale reviews", "Days since done"})
				for _, d := range res.Rows {
					tw.AppendRow(table.Row{d.EpicID, d.TotalIssues, d.DoneIssues, d.InReviewIssues, d.TotalPoints, d.CompletedPoints, d.StaleReviewCount, d.DaysSinceLastDone})
				}
				tw.Render()
				if len(res.Skipped) > 0 {
					fmt.Printf("skipped: %s\n", strings.Join(res.Skipped, ", "))
				}
				return nil
			})
		},
	})
	return r
}

func riskCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "risk",
		Short: "Evaluate and inspect epic risk",
	}
	r.AddCommand(riskEvaluateCmd())
	r.AddCommand(riskShowCmd())
	r.AddCommand(riskPlanCmd())
	return r
}

func riskEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every active epic and record snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, e engine.Engine, ws string) error {
				rep, err := e.Orchestrator().Run(ctx, ws)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				printSnapshots(rep.Snapshots)
				for _, f := range rep.Failures {
					fmt.Printf("failed %s: %s\n", f.EpicID, f.Error)
				}
				return nil
			})
		},
	}
}

func riskShowCmd() *cobra.Command {
	var n int
	var preview bool
	cmd := &cobra.Command{
		Use:   "show [epic-id]",
		Short: "Show latest snapshots; with an epic id, its history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					snaps []domain.Snapshot
					err   error
				)
				switch {
				case len(args) == 1 && preview:
					var s domain.Snapshot
					s, err = e.Preview(ctx, args[0])
					snaps = []domain.Snapshot{s}
				case len(args) == 1:
					snaps, err = e.Repo.ListSnapshots(ctx, args[0], n)
				default:
					var ws string
					if ws, err = app.ResolveWorkspace(ctx, viper.GetString("workspace"), e.Config, e.Repo); err == nil {
						snaps, err = e.Repo.LatestSnapshots(ctx, ws)
					}
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snaps)
				}
				printSnapshots(snaps)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10, "history length")
	cmd.Flags().BoolVar(&preview, "preview", false, "evaluate now without recording")
	return cmd
}

func riskPlanCmd() *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "plan <epic-id>",
		Short: "Show the recovery plan of an epic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					s   domain.Snapshot
					err error
				)
				if preview {
					s, err = e.Preview(ctx, args[0])
				} else {
					s, err = e.Repo.LatestSnapshot(ctx, args[0])
				}
				if err != nil {
					return fmt.Errorf("epic %s: %w", args[0], err)
				}
				if viper.GetBool("json") {
					return printJSON(s.Recovery)
				}
				plan := s.Recovery
				fmt.Printf("%s: %s (%s), recovery %s\n", s.EpicID, plan.SlipType, plan.Severity, plan.ETA.Label)
				tw := newTable(table.Row{"#", "Owner", "Action", "Description"})
				for _, a := range plan.Actions {
					tw.AppendRow(table.Row{a.Priority, a.OwnerRole, a.Label, a.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "evaluate now without recording")
	return cmd
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Risk levels across the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, e engine.Engine, ws string) error {
				sum, err := e.Summary(ctx, ws)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				tw := newTable(table.Row{"Workspace", "Epics", "On track", "At risk", "Off track", "Avg probability"})
				tw.AppendRow(table.Row{sum.WorkspaceID, sum.EpicCount,
					sum.ByRiskLevel[domain.RiskOnTrack], sum.ByRiskLevel[domain.RiskAtRisk], sum.ByRiskLevel[domain.RiskOffTrack],
					fmt.Sprintf("%.2f", sum.AverageProbability)})
				tw.Render()
				return nil
			})
		},
	}
}

func cycleCmd() *cobra.Command {
	c := &cobra.Command{Use: "cycle", Short: "Rollup then evaluation"}
	var all bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					rep, err := e.RunCycle(ctx)
					if perr := printCycle(rep.Workspaces); perr != nil {
						return perr
					}
					return err
				})
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, e engine.Engine, ws string) error {
				rep, err := e.RunWorkspace(ctx, ws)
				if perr := printCycle([]scheduler.WorkspaceReport{rep}); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	run.Flags().BoolVar(&all, "all", false, "every workspace")
	c.AddCommand(run)
	return c
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run cycles on the configured cron until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := scheduler.NewCron(ctx, e.Config.Schedule.Cron, e.Config.Schedule.Timezone, e, e.Log)
				if err != nil {
					return err
				}
				return c.Run(ctx)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt_secret")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("EPICRISK_JWT_SECRET is required for bearer auth")
				}
				if !cmd.Flags().Changed("addr") && e.Config.Server.Addr != "" {
					addr = e.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && e.Config.Server.BasePath != "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Metrics: e.Metrics, Log: e.Log})
				if err != nil {
					return err
				}
				go server.NewWebhookDispatcher(e).Run(ctx)
				if withSchedule {
					c, err := scheduler.NewCron(ctx, e.Config.Schedule.Cron, e.Config.Schedule.Timezone, e, e.Log)
					if err != nil {
						return err
					}
					c.Start()
					defer c.Stop()
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				e.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving epicrisk API (OpenAPI at openapi.json, Swagger UI at /docs, metrics at /metrics)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "also run cycles on the configured cron")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every write is recorded: imports, rollups, snapshots, check-ins and cycles.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, viper.GetString("workspace"), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				for _, evt := range events {
					fmt.Printf("%d %s %s %s/%s %s %s\n", evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect epicrisk.yml",
		Long:  "epicrisk.yml lives in the data directory. Without it the built-in defaults apply.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("dir"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default epicrisk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("dir"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	c.AddCommand(initCmd)
	return c
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with EPICRISK_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(viper.GetString("jwt_secret"), subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(server.TokenResponse{Token: tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{server.RoleReader}, "roles: reader, writer, admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime; 0 never expires")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	dir := viper.GetString("dir")
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Log = log
	e.Metrics = metrics.New()
	return fn(ctx, e)
}

func withWorkspace(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		ws, err := app.ResolveWorkspace(ctx, viper.GetString("workspace"), e.Config, e.Repo)
		if err != nil {
			return err
		}
		return fn(ctx, e, ws)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printSnapshots(snaps []domain.Snapshot) {
	tw := newTable(table.Row{"Epic", "Evaluated", "Risk", "Band", "Probability", "Delta", "Forecast", "Confidence", "Slip"})
	for _, s := range snaps {
		delta := ""
		if s.ProbabilityDelta != nil {
			delta = fmt.Sprintf("%+d", *s.ProbabilityDelta)
		}
		ev := s.Evaluation
		tw.AppendRow(table.Row{s.EpicID, s.EvaluatedAt.Format("2006-01-02 15:04"), ev.RiskLevel, ev.Band,
			fmt.Sprintf("%d%%", ev.Probability), delta, ev.ForecastWindow, fmt.Sprintf("%.2f", ev.Confidence), s.Recovery.SlipType})
	}
	tw.Render()
}

func printCycle(reps []scheduler.WorkspaceReport) error {
	if viper.GetBool("json") {
		return printJSON(reps)
	}
	tw := newTable(table.Row{"Workspace", "Rollup rows", "Snapshots", "Failures", "Error"})
	for _, r := range reps {
		tw.AppendRow(table.Row{r.WorkspaceID, len(r.Rollup.Rows), len(r.Evaluation.Snapshots), len(r.Evaluation.Failures), r.Error})
	}
	tw.Render()
	return nil
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

