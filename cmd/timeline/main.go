package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/report"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server"
	servercommon "github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server/common"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/storage/sqlite"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/config"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts serve mode and is replaced in tests.
var serveCommandRunner = server.Run

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand(os.Stdout, os.Stderr)
	err := fang.Execute(ctx, root, fang.WithVersion(version))
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run executes one command line without fang styling.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	asOf       string

	stdout io.Writer
	stderr io.Writer
}

// newRootCommand builds the command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "timeline",
		Short:         "Project timelines and completion projections from work-item history",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaultDevMode := version == "dev"
	appName := platform.DefaultAppName
	if envCfg, err := config.ParseEnv(); err == nil {
		if envCfg.DevMode != nil {
			defaultDevMode = *envCfg.DevMode
		}
		if envCfg.AppName != "" {
			appName = envCfg.AppName
		}
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.asOf, "as-of", "", "evaluate the timeline at this date (YYYY-MM-DD or RFC3339)")

	root.AddCommand(
		newPathsCommand(opts),
		newInitCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newReportCommand(opts),
		newSummaryCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// newPathsCommand prints resolved runtime paths.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and report paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(opts.stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(opts.stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(opts.stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(opts.stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(opts.stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(opts.stdout, "reports_dir: %s\n", paths.ReportsDir)
			return nil
		},
	}
}

// newInitCommand writes a default config file at the resolved config path.
func newInitCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			envCfg, err := config.ParseEnv()
			if err != nil {
				return err
			}
			configPath := firstNonEmpty(opts.configPath, envCfg.ConfigPath, paths.ConfigPath)
			dbPath := firstNonEmpty(opts.dbPath, envCfg.DBPath, paths.DBPath)
			if err := config.WriteFile(configPath, config.Default(dbPath), force); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(opts.stdout, configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// newImportCommand replaces the stored snapshot from a JSON file.
func newImportCommand(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored work-item snapshot from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			return opts.withRuntime("import", func(rt *runtime) error {
				return runImport(cmd.Context(), rt, inPath)
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file ('-' for stdin)")
	return cmd
}

// newExportCommand writes the stored snapshot as JSON.
func newExportCommand(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored work-item snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("export", func(rt *runtime) error {
				return runExport(cmd.Context(), rt, outPath, opts.stdout)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

// newReportCommand renders or writes the markdown reports.
func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		kind  string
		out   string
		save  bool
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the timeline reports",
		Long: "Render one report to the terminal, or write all three reports as markdown files\n" +
			"with --out DIR or --save (the app reports dir).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("report", func(rt *runtime) error {
				tl, err := rt.build(cmd.Context())
				if err != nil {
					return err
				}
				dir := strings.TrimSpace(out)
				if dir == "" && save {
					dir = rt.paths.ReportsDir
				}
				if dir != "" {
					return writeReports(rt, tl, dir, opts.stdout)
				}
				return printReport(rt, tl, kind, plain, opts.stdout)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", servercommon.ReportKindSummary, "report to print: current, previous, or summary")
	cmd.Flags().StringVar(&out, "out", "", "write all reports into this directory")
	cmd.Flags().BoolVar(&save, "save", false, "write all reports into the app reports directory")
	cmd.Flags().BoolVar(&plain, "plain", false, "print raw markdown instead of styled terminal output")
	return cmd
}

// newSummaryCommand prints the feature status table, or one feature's hours grid.
func newSummaryCommand(opts *rootOptions) *cobra.Command {
	var featureID string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the feature status table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("summary", func(rt *runtime) error {
				tl, err := rt.build(cmd.Context())
				if err != nil {
					return err
				}
				return printSummary(tl, featureID, opts.stdout)
			})
		},
	}
	cmd.Flags().StringVar(&featureID, "feature", "", "print the developer by iteration hours grid of one feature")
	return cmd
}

// newServeCommand serves the HTTP API and MCP endpoints.
func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		bind        string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline over HTTP and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime("serve", func(rt *runtime) error {
				cfg := server.Config{
					HTTPBind:      firstNonEmpty(bind, rt.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				adapter := servercommon.NewAppServiceAdapter(rt.engine(), rt.repo)
				rt.logger.Info("serving timeline", "http", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return serveCommandRunner(cmd.Context(), cfg, server.Dependencies{
					Timeline:  adapter,
					Snapshots: adapter,
					Logger:    rt.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&bind, "http", "", "HTTP bind address (defaults to config server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST API mount path")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path")
	return cmd
}

// paths resolves app paths from the persistent flags.
func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// runtime holds the per-command resources opened from config.
type runtime struct {
	cfg    config.Config
	paths  platform.Paths
	logger *runtimeLogger
	repo   *sqlite.Repository
	clock  app.Clock
}

// withRuntime loads config, opens logging and storage, and runs fn as one logged command flow.
func (o *rootOptions) withRuntime(command string, fn func(*runtime) error) error {
	paths, err := o.paths()
	if err != nil {
		return err
	}
	envCfg, err := config.ParseEnv()
	if err != nil {
		return err
	}
	clock, err := parseAsOf(o.asOf)
	if err != nil {
		return err
	}

	configPath := firstNonEmpty(o.configPath, envCfg.ConfigPath, paths.ConfigPath)
	dbPath := firstNonEmpty(o.dbPath, envCfg.DBPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		dbPath = paths.DBPath
	}

	if !dbOverridden {
		if err := paths.EnsureDataDirs(); err != nil {
			return fmt.Errorf("create data dirs: %w", err)
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(o.stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath)
	logger.Info("configuration loaded", "config_path", configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
		}
	}()
	repo.SetClock(clock)

	cmdLog := logger.With("command", command)
	rt := &runtime{cfg: cfg, paths: paths, logger: cmdLog, repo: repo, clock: clock}
	cmdLog.Info("command flow start")
	if err := fn(rt); err != nil {
		cmdLog.Error("command flow failed", "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	cmdLog.Info("command flow complete")
	return nil
}

// engine builds a timeline engine over the repository.
func (rt *runtime) engine() *app.Engine {
	return app.NewEngine(rt.repo, rt.logger, rt.clock, uuid.NewString, engineOptions(rt.cfg))
}

// build runs the engine once and logs run-level outcomes.
func (rt *runtime) build(ctx context.Context) (*app.Timeline, error) {
	tl, err := rt.engine().Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build timeline: %w", err)
	}
	rt.logger.Info(
		"timeline built",
		"run_id", tl.RunID(),
		"as_of", tl.AsOf().Format(time.RFC3339),
		"current_iteration", tl.CurrentIteration().Path,
		"features", len(tl.Features()),
		"failures", len(tl.Failures()),
		"warnings", len(tl.Warnings()),
	)
	return tl, nil
}

// engineOptions maps config onto engine options.
func engineOptions(cfg config.Config) app.Options {
	return app.Options{
		WeeklyCapacityHours: cfg.Engine.WeeklyCapacityHours,
		SentinelDeveloper:   cfg.Engine.SentinelDeveloper,
		ClosedState:         cfg.Engine.ClosedState,
		ActiveState:         cfg.Engine.ActiveState,
		NewState:            cfg.Engine.NewState,
		AuditKeyword:        cfg.Engine.AuditKeyword,
		DateLayout:          cfg.Report.DateLayout,
		Workers:             cfg.Engine.Workers,
	}
}

// runImport reads one snapshot JSON document and replaces the stored snapshot.
func runImport(ctx context.Context, rt *runtime, inPath string) error {
	var (
		content []byte
		err     error
	)
	if inPath == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(inPath)
	}
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	if err := rt.repo.ReplaceSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	rt.logger.Info("snapshot imported", "work_items", len(snap.WorkItems), "iterations", len(snap.Iterations), "developers", len(snap.Developers))
	return nil
}

// runExport writes the stored snapshot as indented JSON.
func runExport(ctx context.Context, rt *runtime, outPath string, stdout io.Writer) error {
	snap, err := rt.repo.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// writeReports writes all three reports into dir and prints their paths.
func writeReports(rt *runtime, tl *app.Timeline, dir string, stdout io.Writer) error {
	written, err := report.WriteFiles(dir, report.Build(tl), tl.AsOf())
	if err != nil {
		return err
	}
	for _, path := range written {
		rt.logger.Info("report written", "path", path)
		_, _ = fmt.Fprintln(stdout, path)
	}
	return nil
}

// printReport prints one report, styled through glamour unless plain is set.
func printReport(rt *runtime, tl *app.Timeline, kind string, plain bool, stdout io.Writer) error {
	kind, err := servercommon.NormalizeReportKind(kind)
	if err != nil {
		return err
	}
	var markdown string
	switch kind {
	case servercommon.ReportKindCurrent:
		markdown = report.CurrentIterationMarkdown(tl)
	case servercommon.ReportKindPrevious:
		markdown = report.PreviousIterationMarkdown(tl)
	default:
		markdown = report.ProjectSummaryMarkdown(tl)
	}
	if plain {
		_, err := io.WriteString(stdout, markdown)
		return err
	}
	renderer, err := report.NewTerminalRenderer(rt.cfg.Report.Style, rt.cfg.Report.WordWrap)
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, rendered)
	return err
}

// printSummary prints the feature status table or one feature's hours grid.
func printSummary(tl *app.Timeline, featureID string, stdout io.Writer) error {
	featureID = strings.TrimSpace(featureID)
	if featureID == "" {
		_, err := fmt.Fprintln(stdout, report.SummaryTable(tl))
		return err
	}
	ft, err := tl.Feature(featureID)
	if err != nil {
		return fmt.Errorf("feature %q: %w", featureID, err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n%s\n", ft.Feature.Title, report.GridTable(ft.Grid))
	return err
}

// parseAsOf resolves the --as-of flag into a clock; empty means wall time.
func parseAsOf(raw string) (app.Clock, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			if layout == "2006-01-02" {
				t = t.Add(12 * time.Hour)
			}
			return func() time.Time { return t }, nil
		}
	}
	return nil, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD or RFC3339", raw)
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
