package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/config"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TIMELINE_DEV_MODE", "false")
	os.Exit(m.Run())
}

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 12, 0, 0, 0, time.UTC)
}

func change(field string, when time.Time, pre, post string) app.SnapshotFieldChange {
	return app.SnapshotFieldChange{Field: field, ChangedDate: when, PreValue: pre, PostValue: post}
}

// writeSnapshotFile writes one feature with a closed and an active task.
func writeSnapshotFile(t *testing.T, dir string) string {
	t.Helper()
	snap := app.Snapshot{
		Version: app.SnapshotVersion,
		Iterations: []app.SnapshotIteration{
			{Path: "Sprint1", StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
			{Path: "Sprint2", StartDate: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)},
		},
		Developers: []string{"Ana", "Bob", domain.DefaultSentinelDeveloper},
		WorkItems: []app.SnapshotWorkItem{
			{ID: "F", Type: domain.TypeFeature, Title: "Reporting"},
			{ID: "S", Type: domain.TypeUserStory, Title: "Export reports", ParentID: "F", SortOrder: 1},
			{
				ID: "A", Type: domain.TypeTask, Title: "Build importer", ParentID: "S", AssignedTo: "Ana",
				Changes: []app.SnapshotFieldChange{
					change(domain.FieldIterationPath, day(time.February, 20), "", "Sprint1"),
					change(domain.FieldOriginalEstimate, day(time.February, 20), "", "10"),
					change(domain.FieldRemainingWork, day(time.February, 20), "", "10"),
					change(domain.FieldState, day(time.March, 3), "New", "Active"),
					change(domain.FieldCompletedWork, day(time.March, 10), "", "10"),
					change(domain.FieldRemainingWork, day(time.March, 10), "10", "0"),
					change(domain.FieldState, day(time.March, 10), "Active", "Closed"),
				},
			},
			{
				ID: "B", Type: domain.TypeTask, Title: "Wire exporter", ParentID: "S", AssignedTo: "Bob",
				Changes: []app.SnapshotFieldChange{
					change(domain.FieldIterationPath, day(time.March, 10), "", "Sprint2"),
					change(domain.FieldOriginalEstimate, day(time.March, 10), "", "5"),
					change(domain.FieldRemainingWork, day(time.March, 10), "", "10"),
					change(domain.FieldState, day(time.March, 17), "New", "Active"),
					change(domain.FieldCompletedWork, day(time.March, 18), "", "2"),
					change(domain.FieldRemainingWork, day(time.March, 18), "10", "8"),
				},
			},
		},
	}
	encoded, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	path := filepath.Join(dir, "snapshot.json")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// baseArgs points config and storage at a temp dir and pins the evaluation date.
func baseArgs(dir string) []string {
	return []string{
		"--config", filepath.Join(dir, "config.toml"),
		"--db", filepath.Join(dir, "timeline.db"),
		"--dev=false",
		"--as-of", "2026-03-24",
	}
}

// runCLI runs one command line and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

// importFixture seeds the temp database with the fixture snapshot.
func importFixture(t *testing.T, dir string) {
	t.Helper()
	in := writeSnapshotFile(t, dir)
	if _, err := runCLI(t, append(baseArgs(dir), "import", "--in", in)...); err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
}

// TestRunPathsCommand verifies resolved path output.
func TestRunPathsCommand(t *testing.T) {
	out, err := runCLI(t, "--app", "tl-test", "--dev=false", "paths")
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	for _, want := range []string{"app: tl-test", "dev_mode: false", "config: ", "data_dir: ", "db: ", "reports_dir: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}
}

// TestRunInitWritesConfig verifies init writes once and then requires --force.
func TestRunInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	args := append(baseArgs(dir), "init")
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("run(init) error = %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if strings.TrimSpace(out) != path {
		t.Fatalf("init output = %q, want %q", out, path)
	}
	cfg, err := config.Load(path, config.Config{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != filepath.Join(dir, "timeline.db") {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}

	if _, err := runCLI(t, args...); !errors.Is(err, os.ErrExist) {
		t.Fatalf("run(init again) error = %v, want os.ErrExist", err)
	}
	if _, err := runCLI(t, append(args, "--force")...); err != nil {
		t.Fatalf("run(init --force) error = %v", err)
	}
}

// TestRunImportExportRoundTrip verifies a snapshot survives import then export.
func TestRunImportExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	importFixture(t, dir)

	outPath := filepath.Join(dir, "out", "export.json")
	if _, err := runCLI(t, append(baseArgs(dir), "export", "--out", outPath)...); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if snap.Version != app.SnapshotVersion || len(snap.Iterations) != 2 || len(snap.WorkItems) != 4 || len(snap.Developers) != 3 {
		t.Fatalf("unexpected exported snapshot %#v", snap)
	}
	wantExported := time.Date(2026, 3, 24, 12, 0, 0, 0, time.UTC)
	if !snap.ExportedAt.Equal(wantExported) {
		t.Fatalf("exported_at = %v, want %v", snap.ExportedAt, wantExported)
	}

	stdout, err := runCLI(t, append(baseArgs(dir), "export")...)
	if err != nil {
		t.Fatalf("run(export stdout) error = %v", err)
	}
	if !strings.Contains(stdout, `"work_items"`) {
		t.Fatalf("stdout export missing work_items:\n%s", stdout)
	}
}

// TestRunImportRequiresInput verifies import flag validation and bad payloads.
func TestRunImportRequiresInput(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, append(baseArgs(dir), "import")...); err == nil {
		t.Fatal("run(import) error = nil, want missing --in error")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"version":"other"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := runCLI(t, append(baseArgs(dir), "import", "--in", bad)...)
	if !errors.Is(err, app.ErrInvalidSnapshot) {
		t.Fatalf("run(import bad) error = %v, want ErrInvalidSnapshot", err)
	}
}

// TestRunReportWritesFiles verifies all three report files are written.
func TestRunReportWritesFiles(t *testing.T) {
	dir := t.TempDir()
	importFixture(t, dir)

	outDir := filepath.Join(dir, "reports")
	out, err := runCLI(t, append(baseArgs(dir), "report", "--out", outDir)...)
	if err != nil {
		t.Fatalf("run(report) error = %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("report files = %d, want 3", len(entries))
	}
	for _, stem := range []string{"CurrentIterationProjectTimeline_2026_03_24_1200.md", "PreviousIterationProjectTimeline_", "ProjectSummary_"} {
		if !strings.Contains(out, stem) {
			t.Fatalf("report output missing %q:\n%s", stem, out)
		}
	}
}

// TestRunReportPrintsMarkdown verifies plain printing and kind validation.
func TestRunReportPrintsMarkdown(t *testing.T) {
	dir := t.TempDir()
	importFixture(t, dir)

	out, err := runCLI(t, append(baseArgs(dir), "report", "--kind", "summary", "--plain")...)
	if err != nil {
		t.Fatalf("run(report summary) error = %v", err)
	}
	if !strings.Contains(out, "Reporting") {
		t.Fatalf("summary report missing feature title:\n%s", out)
	}

	if _, err := runCLI(t, append(baseArgs(dir), "report", "--kind", "weekly", "--plain")...); err == nil {
		t.Fatal("run(report weekly) error = nil, want invalid kind error")
	}
}

// TestRunSummaryCommand verifies the feature table and one feature grid.
func TestRunSummaryCommand(t *testing.T) {
	dir := t.TempDir()
	importFixture(t, dir)

	out, err := runCLI(t, append(baseArgs(dir), "summary")...)
	if err != nil {
		t.Fatalf("run(summary) error = %v", err)
	}
	if !strings.Contains(out, "Reporting") {
		t.Fatalf("summary table missing feature:\n%s", out)
	}

	out, err = runCLI(t, append(baseArgs(dir), "summary", "--feature", "F")...)
	if err != nil {
		t.Fatalf("run(summary --feature) error = %v", err)
	}
	if !strings.Contains(out, "Ana") || !strings.Contains(out, "Sprint1") {
		t.Fatalf("feature grid missing developer or iteration:\n%s", out)
	}

	_, err = runCLI(t, append(baseArgs(dir), "summary", "--feature", "missing")...)
	if !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("run(summary missing) error = %v, want ErrNotFound", err)
	}
}

// TestRunServeUsesConfiguredEndpoints verifies serve wiring through the runner hook.
func TestRunServeUsesConfiguredEndpoints(t *testing.T) {
	dir := t.TempDir()
	importFixture(t, dir)

	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })

	var gotCfg server.Config
	var gotDeps server.Dependencies
	serveCommandRunner = func(_ context.Context, cfg server.Config, deps server.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return nil
	}

	if _, err := runCLI(t, append(baseArgs(dir), "serve", "--http", "127.0.0.1:9999")...); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotDeps.Timeline == nil || gotDeps.Snapshots == nil {
		t.Fatalf("serve dependencies missing %#v", gotDeps)
	}
	overview, err := gotDeps.Timeline.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if overview.CurrentIteration.Path != "Sprint2" || len(overview.Features) != 1 {
		t.Fatalf("unexpected overview %#v", overview)
	}
}

// TestRunRejectsInvalidAsOf verifies --as-of parsing errors surface.
func TestRunRejectsInvalidAsOf(t *testing.T) {
	dir := t.TempDir()
	args := []string{"--config", filepath.Join(dir, "config.toml"), "--db", filepath.Join(dir, "timeline.db"), "--as-of", "March", "summary"}
	if _, err := runCLI(t, args...); err == nil || !strings.Contains(err.Error(), "--as-of") {
		t.Fatalf("run() error = %v, want as-of error", err)
	}
}

// TestParseAsOf verifies date-only and RFC3339 inputs.
func TestParseAsOf(t *testing.T) {
	clock, err := parseAsOf("2026-03-24")
	if err != nil {
		t.Fatalf("parseAsOf() error = %v", err)
	}
	if got := clock(); !got.Equal(time.Date(2026, 3, 24, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("date-only clock = %v", got)
	}
	clock, err = parseAsOf("2026-03-24T08:30:00Z")
	if err != nil {
		t.Fatalf("parseAsOf() error = %v", err)
	}
	if got := clock(); !got.Equal(time.Date(2026, 3, 24, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("rfc3339 clock = %v", got)
	}
}

// TestEngineOptionsFromConfig verifies config mapping onto engine options.
func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := config.Default("/tmp/x.db")
	cfg.Engine.WeeklyCapacityHours = 32
	cfg.Engine.Workers = 3
	cfg.Report.DateLayout = "2006-01-02"

	opts := engineOptions(cfg)
	if opts.WeeklyCapacityHours != 32 || opts.Workers != 3 || opts.DateLayout != "2006-01-02" {
		t.Fatalf("unexpected options %#v", opts)
	}
	if opts.ClosedState != "Closed" || opts.SentinelDeveloper != domain.DefaultSentinelDeveloper || opts.AuditKeyword != "audit" {
		t.Fatalf("unexpected vocabulary options %#v", opts)
	}
}

// TestRuntimeLoggerConsoleToggle verifies console muting and shared child toggles.
func TestRuntimeLoggerConsoleToggle(t *testing.T) {
	var stderr bytes.Buffer
	logger, err := newRuntimeLogger(&stderr, "timeline", false, config.LoggingConfig{Level: "info"}, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	child := logger.With("command", "report")
	child.Info("visible")
	if !strings.Contains(stderr.String(), "visible") || !strings.Contains(stderr.String(), "command=report") {
		t.Fatalf("console output missing child event: %q", stderr.String())
	}

	logger.SetConsoleEnabled(false)
	if child.ConsoleEnabled() {
		t.Fatal("child ConsoleEnabled() = true after parent muted console")
	}
	child.Info("hidden")
	if strings.Contains(stderr.String(), "hidden") {
		t.Fatalf("muted console still wrote: %q", stderr.String())
	}

	if _, err := newRuntimeLogger(&stderr, "timeline", false, config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("newRuntimeLogger() error = nil, want invalid level error")
	}
}

// TestRuntimeLoggerDevFile verifies dev mode writes a logfmt file sink.
func TestRuntimeLoggerDevFile(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 3, 24, 9, 0, 0, 0, time.UTC) }
	logger, err := newRuntimeLogger(nil, "time line", true, config.LoggingConfig{
		Level:   "debug",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	want := filepath.Join(dir, "time-line-20260324.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}
	logger.Debug("engine run started", "run_id", "run-1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "run_id=run-1") {
		t.Fatalf("dev log missing event: %q", content)
	}
}

// TestSanitizeLogFileStem verifies file-name normalization.
func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":           "timeline",
		"  ":         "timeline",
		"timeline":   "timeline",
		"a/b\\c:d e": "a-b-c-d-e",
		"/leading/":  "leading",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestWorkspaceRootFrom verifies marker discovery walks upward.
func TestWorkspaceRootFrom(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); got != root {
		t.Fatalf("workspaceRootFrom() = %q, want %q", got, root)
	}
}
