package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"riskline/internal/app"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/engine"
	"riskline/internal/logging"
	"riskline/internal/repo"
	"riskline/internal/schedule"
	"riskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Riskline CLI",
	Long: `Riskline simulates construction project risk day by day.
- Issues: a catalog of risk events, each bound to a phase, work type and severity.
- Negotiation: stakeholders settle every fired issue somewhere inside its delay and cost range.
- Detection: an inspection model of a given quality may catch an issue early and shrink its impact.
- Schedule: delays are absorbed by float and propagated along the work-type network.
- Finance: long delays ratchet the loan interest rate and add indirect costs.
- Runs: each finished simulation is recorded in .riskline/riskline.db; view events with 'rl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

var logger = zap.NewNop()

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RISKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	logFile := viper.GetString("log-file")
	if logFile == "" && viper.GetBool("log-to-workspace") {
		logFile = filepath.Join(db.Dir(viper.GetString("workspace")), "riskline.log")
	}
	logger = logging.NewStderr(logging.Options{
		Level:  viper.GetString("log-level"),
		Format: viper.GetString("log-format"),
		File:   logFile,
		Name:   "rl",
	})
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("catalog", "", "issue catalog YAML (defaults to the built-in catalog)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "console log format (console or json)")
	flags.String("log-file", "", "also write JSON logs to this rotated file")
	flags.Bool("log-to-workspace", false, "write JSON logs to .riskline/riskline.log")
	for _, name := range []string{"workspace", "json", "catalog", "log-level", "log-format", "log-file", "log-to-workspace"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

type runFlags struct {
	template   string
	seed       int64
	quality    string
	recombiner string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "project template key (defaults to the configured default)")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "random seed")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "good", "inspection model quality preset")
	cmd.Flags().StringVar(&f.recombiner, "recombiner", engine.RecombinerIndependent, "delay recombination (independent or critical_path)")
}

func (f runFlags) options(detection bool) engine.Options {
	return engine.Options{
		Template:         f.template,
		Seed:             f.seed,
		DetectionEnabled: detection,
		Quality:          f.quality,
		Recombiner:       f.recombiner,
	}
}

func runCmd() *cobra.Command {
	var f runFlags
	var detection, showImpacts bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one project and record the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Run(ctx, f.options(detection))
				if err != nil {
					return err
				}
				check := engine.Validate(e.Config.Benchmarks, res.Run.Metrics, detection)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"result": res, "benchmark": check})
				}
				printRun(res.Run)
				printBenchmark(check)
				if showImpacts {
					printImpacts(res.Impacts)
				}
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&detection, "detection", false, "enable the inspection model")
	cmd.Flags().BoolVar(&showImpacts, "impacts", false, "list every fired issue")
	return cmd
}

func compareCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Simulate with and without detection on the same seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Compare(ctx, f.options(false))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				printComparison(c)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func sweepCmd() *cobra.Command {
	var f runFlags
	var runs, workers int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Compare both regimes over consecutive seeds and report percentiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cat, err := app.LoadInputs(viper.GetString("workspace"), viper.GetString("catalog"))
			if err != nil {
				return err
			}
			e := engine.New(nil, cfg, cat, logger)
			started := time.Now()
			res, err := e.Sweep(cmd.Context(), f.options(false), runs, workers)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			printSweep(res, time.Since(started))
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVarP(&runs, "runs", "n", 100, "number of seeds")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent comparisons")
	return cmd
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Inspect recorded runs"}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	runs.AddCommand(runsImpactsCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var template, detection string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.RunFilters{Template: template, Limit: limit}
			switch detection {
			case "":
			case "on", "true":
				v := true
				f.Detection = &v
			case "off", "false":
				v := false
				f.Detection = &v
			default:
				return fmt.Errorf("invalid --detection %q (on or off)", detection)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRuns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printRuns(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "template filter")
	cmd.Flags().StringVar(&detection, "detection", "", "detection filter (on or off)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.Repo.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				check := engine.Validate(e.Config.Benchmarks, run.Metrics, run.DetectionEnabled)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "benchmark": check})
				}
				printRun(run)
				printBenchmark(check)
				return nil
			})
		},
	}
}

func runsImpactsCmd() *cobra.Command {
	var breakdown bool
	cmd := &cobra.Command{
		Use:   "impacts <run-id>",
		Short: "List the fired issues of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListImpacts(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") && !breakdown {
					return printJSON(items)
				}
				var b schedule.Breakdown
				if breakdown {
					network, err := schedule.NewNetwork(e.Config.Schedule)
					if err != nil {
						return err
					}
					b = breakdownFor(network, e, items)
					if viper.GetBool("json") {
						return printJSON(map[string]any{"impacts": items, "breakdown": b})
					}
				}
				printImpacts(items)
				if breakdown {
					printBreakdown(b)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&breakdown, "breakdown", false, "reconcile the delays along the schedule network")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect simulation config",
		Long:  "Config holds project templates, finance tiers, the schedule network, detection constants and negotiation rules. A riskline.yml in the workspace overrides the built-in defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configTemplatesCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults {
				_, err := os.Stdout.Write(config.DefaultYAML())
				return err
			}
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "print the built-in defaults verbatim")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate riskline.yml and the issue catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := app.LoadInputs(viper.GetString("workspace"), viper.GetString("catalog"))
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List project templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Templates)
			}
			printTemplates(cfg)
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Inspect the issue catalog"}
	cat.AddCommand(catalogListCmd())
	return cat
}

func catalogListCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cat, err := app.LoadInputs(viper.GetString("workspace"), viper.GetString("catalog"))
			if err != nil {
				return err
			}
			items := cat.Issues()
			if phase != "" {
				items = cat.ByPhase(phase)
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			printIssues(items)
			return nil
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase filter")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Show the work-type network and its critical path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			network, err := schedule.NewNetwork(cfg.Schedule)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				out := map[string]any{"critical_path": network.CriticalPath()}
				nodes := map[string]any{}
				for _, c := range network.Categories() {
					nodes[c] = map[string]any{
						"predecessors": network.Predecessors(c),
						"float_days":   network.FloatDays(c),
						"critical":     network.IsCritical(c),
					}
				}
				out["nodes"] = nodes
				return printJSON(out)
			}
			printNetwork(network)
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every recorded run and comparison appends an event.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, runID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, repo.EventFilters{Limit: n, Type: evtType, RunID: runID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				printEvents(events)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&runID, "run", "", "run id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"), viper.GetString("catalog"))
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: logger}
			if authCfg.JWTSecret == "" {
				logger.Warn("RISKLINE_JWT_SECRET not set; API is unauthenticated")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine(logger), BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Riskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer auth (or RISKLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("catalog"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine(logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
}
