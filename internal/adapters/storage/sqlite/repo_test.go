package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 12, 0, 0, 0, time.UTC)
}

func sampleSnapshot() app.Snapshot {
	return app.Snapshot{
		Version:          app.SnapshotVersion,
		ExportedAt:       day(time.March, 24),
		CurrentIteration: "Sprint2",
		Iterations: []app.SnapshotIteration{
			{Path: "Sprint2", StartDate: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)},
			{Path: "Sprint1", StartDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
		},
		Developers: []string{"Bob", "Ana", domain.DefaultSentinelDeveloper},
		WorkItems: []app.SnapshotWorkItem{
			{
				ID: "F", Type: domain.TypeFeature, Title: "Reporting",
				ProjectedDates: []app.SnapshotProjectedDate{
					{ID: "p1", DueDate: day(time.April, 1), ChangedDate: day(time.February, 1)},
					{ID: "p2", DueDate: day(time.April, 10), ChangedDate: day(time.March, 5)},
				},
				Notes: []app.SnapshotIterationNote{
					{IterationPath: "Sprint1", Title: "Demo", DueDate: day(time.March, 13), Description: "show importer"},
				},
			},
			{ID: "S2", Type: domain.TypeUserStory, Title: "Second", ParentID: "F", SortOrder: 2},
			{ID: "S1", Type: domain.TypeUserStory, Title: "First", ParentID: "F", SortOrder: 1},
			{ID: "S1a", Type: domain.TypeUserStory, Title: "Nested", ParentID: "S1"},
			{
				ID: "T1", Type: domain.TypeTask, Title: "Build importer", ParentID: "S1", AssignedTo: "Ana", Scheduled: true,
				Changes: []app.SnapshotFieldChange{
					{Field: domain.FieldIterationPath, ChangedDate: day(time.February, 20), PostValue: "Sprint1"},
					{Field: domain.FieldRemainingWork, ChangedDate: day(time.February, 20), PostValue: "10"},
					{Field: domain.FieldState, ChangedDate: day(time.March, 3), PreValue: "New", PostValue: "Active"},
					{Field: domain.FieldCompletedWork, ChangedDate: day(time.March, 10), PostValue: "10"},
					{Field: domain.FieldRemainingWork, ChangedDate: day(time.March, 10), PreValue: "10", PostValue: "0"},
					{Field: domain.FieldState, ChangedDate: day(time.March, 10), PreValue: "Active", PostValue: "Closed"},
				},
			},
		},
	}
}

func openSeeded(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.ReplaceSnapshot(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("ReplaceSnapshot() error = %v", err)
	}
	return repo
}

func TestRepository_SnapshotRoundTrip(t *testing.T) {
	repo := openSeeded(t)

	loaded, err := repo.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	want := sampleSnapshot()
	want.Sort()
	if !reflect.DeepEqual(loaded, want) {
		t.Fatalf("round trip mismatch\n got %#v\nwant %#v", loaded, want)
	}
}

func TestRepository_ServesHierarchy(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)

	features, err := repo.Features(ctx)
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	if len(features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(features))
	}
	feature := features[0]
	if len(feature.UserStories) != 2 || feature.UserStories[0].ID != "S1" || feature.UserStories[1].ID != "S2" {
		t.Fatalf("unexpected user stories %#v", feature.UserStories)
	}
	if len(feature.ProjectedDates) != 2 || len(feature.Notes) != 1 {
		t.Fatalf("unexpected feature detail %#v", feature)
	}

	nested, err := repo.ChildUserStories(ctx, feature.UserStories[0])
	if err != nil {
		t.Fatalf("ChildUserStories() error = %v", err)
	}
	if len(nested) != 1 || nested[0].ID != "S1a" || nested[0].FeatureID != "F" {
		t.Fatalf("unexpected nested stories %#v", nested)
	}

	tasks, err := repo.ChildTasks(ctx, feature.UserStories[0])
	if err != nil {
		t.Fatalf("ChildTasks() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.State != domain.StateClosed || task.IterationPath != "Sprint1" || task.AssignedTo != "Ana" || !task.Scheduled {
		t.Fatalf("unexpected task %#v", task)
	}
	if got := task.RemainingWork.Current(); got != 0 {
		t.Fatalf("remaining work = %v, want 0", got)
	}

	if _, err := repo.ChildTasks(ctx, domain.UserStory{ID: "missing"}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown story, got %v", err)
	}
}

func TestRepository_IterationsAndRoster(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)

	iterations, err := repo.Iterations(ctx)
	if err != nil {
		t.Fatalf("Iterations() error = %v", err)
	}
	if len(iterations) != 2 || iterations[0].Path != "Sprint1" || iterations[1].Path != "Sprint2" {
		t.Fatalf("unexpected iteration order %#v", iterations)
	}
	current, err := repo.CurrentIteration(ctx)
	if err != nil {
		t.Fatalf("CurrentIteration() error = %v", err)
	}
	if current.Path != "Sprint2" {
		t.Fatalf("CurrentIteration() = %q, want Sprint2", current.Path)
	}
	roster, err := repo.Developers(ctx)
	if err != nil {
		t.Fatalf("Developers() error = %v", err)
	}
	if _, ok := roster.Lookup("Ana"); !ok || len(roster) != 3 {
		t.Fatalf("unexpected roster %#v", roster)
	}
}

func TestRepository_CurrentIterationFallsBackToClock(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	snap := sampleSnapshot()
	snap.CurrentIteration = ""
	if err := repo.ReplaceSnapshot(ctx, snap); err != nil {
		t.Fatalf("ReplaceSnapshot() error = %v", err)
	}

	repo.SetClock(func() time.Time { return day(time.March, 5) })
	current, err := repo.CurrentIteration(ctx)
	if err != nil {
		t.Fatalf("CurrentIteration() error = %v", err)
	}
	if current.Path != "Sprint1" {
		t.Fatalf("CurrentIteration() = %q, want Sprint1", current.Path)
	}

	repo.SetClock(func() time.Time { return day(time.June, 1) })
	if _, err := repo.CurrentIteration(ctx); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound outside every iteration, got %v", err)
	}
}

func TestRepository_ReplaceSnapshotDropsPreviousRows(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)

	next := app.Snapshot{
		Iterations: []app.SnapshotIteration{
			{Path: "Sprint9", StartDate: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 5, 18, 0, 0, 0, 0, time.UTC)},
		},
		WorkItems: []app.SnapshotWorkItem{{ID: "G", Type: domain.TypeFeature, Title: "Billing"}},
	}
	repo.SetClock(func() time.Time { return day(time.May, 5) })
	if err := repo.ReplaceSnapshot(ctx, next); err != nil {
		t.Fatalf("ReplaceSnapshot() error = %v", err)
	}
	loaded, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(loaded.WorkItems) != 1 || loaded.WorkItems[0].ID != "G" {
		t.Fatalf("unexpected work items after replace %#v", loaded.WorkItems)
	}
	if len(loaded.Developers) != 0 || len(loaded.Iterations) != 1 {
		t.Fatalf("unexpected leftovers %#v", loaded)
	}
	if !loaded.ExportedAt.Equal(day(time.May, 5)) {
		t.Fatalf("ExportedAt = %v, want clock time", loaded.ExportedAt)
	}
}

func TestRepository_ReplaceSnapshotRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)

	bad := sampleSnapshot()
	bad.WorkItems = append(bad.WorkItems, app.SnapshotWorkItem{ID: "orphan", Type: domain.TypeTask, Title: "No parent"})
	if err := repo.ReplaceSnapshot(ctx, bad); !errors.Is(err, app.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	loaded, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(loaded.WorkItems) != len(sampleSnapshot().WorkItems) {
		t.Fatalf("stored snapshot changed after rejected replace: %d items", len(loaded.WorkItems))
	}
}

func TestRepository_DrivesEngine(t *testing.T) {
	repo := openSeeded(t)
	clock := func() time.Time { return day(time.March, 24) }
	repo.SetClock(clock)

	engine := app.NewEngine(repo, nil, clock, nil, app.Options{})
	tl, err := engine.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ft, err := tl.Feature("F")
	if err != nil {
		t.Fatalf("Feature() error = %v", err)
	}
	if ft.Summary.DistinctTasks != 1 || ft.Summary.HoursCompleted != 10 {
		t.Fatalf("unexpected summary %+v", ft.Summary)
	}
	if ft.Summary.TotalUserStories != 2 || ft.Summary.EmptyUserStories != 1 {
		t.Fatalf("unexpected story counts %+v", ft.Summary)
	}
}
