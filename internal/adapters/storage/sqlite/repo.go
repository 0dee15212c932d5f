package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// meta keys.
const (
	metaCurrentIteration = "current_iteration"
	metaExportedAt       = "exported_at"
)

// Repository stores one work-item snapshot and serves it back as a work-item source.
type Repository struct {
	db    *sql.DB
	clock app.Clock
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db, clock: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db, clock: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// SetClock replaces the clock used to resolve the current iteration.
func (r *Repository) SetClock(clock app.Clock) {
	if clock == nil {
		clock = time.Now
	}
	r.clock = clock
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS iterations (
			path TEXT PRIMARY KEY,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS developers (
			name TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			scheduled INTEGER NOT NULL DEFAULT 0,
			iteration_path TEXT NOT NULL DEFAULT '',
			assigned_to TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS field_changes (
			work_item_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			field TEXT NOT NULL,
			changed_date TEXT NOT NULL,
			pre_value TEXT NOT NULL DEFAULT '',
			post_value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(work_item_id, seq),
			FOREIGN KEY(work_item_id) REFERENCES work_items(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS projected_dates (
			work_item_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			due_date TEXT NOT NULL,
			changed_date TEXT NOT NULL,
			PRIMARY KEY(work_item_id, seq),
			FOREIGN KEY(work_item_id) REFERENCES work_items(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS iteration_notes (
			work_item_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			iteration_path TEXT NOT NULL,
			title TEXT NOT NULL,
			due_date TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(work_item_id, seq),
			FOREIGN KEY(work_item_id) REFERENCES work_items(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id, type);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_type ON work_items(type);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// ReplaceSnapshot validates snap and swaps it in for the stored one in a single transaction.
func (r *Repository) ReplaceSnapshot(ctx context.Context, snap app.Snapshot) (err error) {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.Sort()
	exportedAt := snap.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = r.clock()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM field_changes`,
		`DELETE FROM projected_dates`,
		`DELETE FROM iteration_notes`,
		`DELETE FROM work_items`,
		`DELETE FROM developers`,
		`DELETE FROM iterations`,
		`DELETE FROM meta`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}

	if err = putMeta(ctx, tx, metaExportedAt, ts(exportedAt)); err != nil {
		return err
	}
	if err = putMeta(ctx, tx, metaCurrentIteration, snap.CurrentIteration); err != nil {
		return err
	}
	for _, it := range snap.Iterations {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO iterations(path, start_date, end_date) VALUES (?, ?, ?)
		`, it.Path, ts(it.StartDate), ts(it.EndDate)); err != nil {
			return fmt.Errorf("insert iteration %q: %w", it.Path, err)
		}
	}
	for _, name := range snap.Developers {
		if _, err = tx.ExecContext(ctx, `INSERT INTO developers(name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("insert developer %q: %w", name, err)
		}
	}
	for _, item := range snap.WorkItems {
		if err = insertWorkItem(ctx, tx, item); err != nil {
			return fmt.Errorf("insert work item %s: %w", item.ID, err)
		}
	}

	err = tx.Commit()
	return err
}

// LoadSnapshot reads the stored snapshot back in canonical order.
func (r *Repository) LoadSnapshot(ctx context.Context) (app.Snapshot, error) {
	snap := app.Snapshot{Version: app.SnapshotVersion}

	exportedAt, err := r.getMeta(ctx, metaExportedAt)
	if err != nil {
		return app.Snapshot{}, err
	}
	snap.ExportedAt = parseTS(exportedAt)
	if snap.CurrentIteration, err = r.getMeta(ctx, metaCurrentIteration); err != nil {
		return app.Snapshot{}, err
	}
	if snap.Iterations, err = r.listIterations(ctx); err != nil {
		return app.Snapshot{}, err
	}
	if snap.Developers, err = r.listDevelopers(ctx); err != nil {
		return app.Snapshot{}, err
	}
	if snap.WorkItems, err = r.listWorkItems(ctx, `1 = 1`); err != nil {
		return app.Snapshot{}, err
	}
	snap.Sort()
	return snap, nil
}

// Features returns every stored feature with its direct user stories.
func (r *Repository) Features(ctx context.Context) ([]domain.Feature, error) {
	items, err := r.listWorkItems(ctx, `type = ?`, string(domain.TypeFeature))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Feature, 0, len(items))
	for _, item := range items {
		stories, err := r.listWorkItems(ctx, `parent_id = ? AND type = ?`, item.ID, string(domain.TypeUserStory))
		if err != nil {
			return nil, err
		}
		feature, err := item.Feature(stories)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", item.ID, err)
		}
		out = append(out, feature)
	}
	return out, nil
}

// Iterations returns every stored iteration ordered by end date.
func (r *Repository) Iterations(ctx context.Context) ([]domain.Iteration, error) {
	raw, err := r.listIterations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Iteration, 0, len(raw))
	for _, it := range raw {
		iteration, err := it.Iteration()
		if err != nil {
			return nil, fmt.Errorf("iteration %q: %w", it.Path, err)
		}
		out = append(out, iteration)
	}
	return out, nil
}

// CurrentIteration returns the stored current iteration, or the one containing the clock time.
func (r *Repository) CurrentIteration(ctx context.Context) (domain.Iteration, error) {
	iterations, err := r.Iterations(ctx)
	if err != nil {
		return domain.Iteration{}, err
	}
	explicit, err := r.getMeta(ctx, metaCurrentIteration)
	if err != nil {
		return domain.Iteration{}, err
	}
	return app.ResolveCurrentIteration(iterations, explicit, r.clock().UTC())
}

// Developers returns the stored roster.
func (r *Repository) Developers(ctx context.Context) (domain.Roster, error) {
	names, err := r.listDevelopers(ctx)
	if err != nil {
		return nil, err
	}
	roster := make(domain.Roster, len(names))
	for _, name := range names {
		developer, err := domain.NewDeveloper(name)
		if err != nil {
			return nil, err
		}
		roster[developer.Name] = developer
	}
	return roster, nil
}

// ChildUserStories returns the user stories nested directly under story.
func (r *Repository) ChildUserStories(ctx context.Context, story domain.UserStory) ([]domain.UserStory, error) {
	if err := r.requireWorkItem(ctx, story.ID); err != nil {
		return nil, err
	}
	items, err := r.listWorkItems(ctx, `parent_id = ? AND type = ?`, story.ID, string(domain.TypeUserStory))
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserStory, 0, len(items))
	for _, item := range items {
		out = append(out, item.UserStory(story.FeatureID))
	}
	return out, nil
}

// ChildTasks returns the tasks directly under story with their field histories.
func (r *Repository) ChildTasks(ctx context.Context, story domain.UserStory) ([]domain.Task, error) {
	if err := r.requireWorkItem(ctx, story.ID); err != nil {
		return nil, err
	}
	items, err := r.listWorkItems(ctx, `parent_id = ? AND type = ?`, story.ID, string(domain.TypeTask))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(items))
	for _, item := range items {
		task, err := item.Task()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", item.ID, err)
		}
		out = append(out, task)
	}
	return out, nil
}

// requireWorkItem maps a missing row to app.ErrNotFound.
func (r *Repository) requireWorkItem(ctx context.Context, id string) error {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM work_items WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("work item %q: %w", id, app.ErrNotFound)
	}
	return err
}

func (r *Repository) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %q: %w", key, err)
	}
	return value, nil
}

func (r *Repository) listIterations(ctx context.Context) ([]app.SnapshotIteration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path, start_date, end_date FROM iterations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []app.SnapshotIteration{}
	for rows.Next() {
		var (
			it                 app.SnapshotIteration
			startRaw, finalRaw string
		)
		if err := rows.Scan(&it.Path, &startRaw, &finalRaw); err != nil {
			return nil, err
		}
		it.StartDate = parseTS(startRaw)
		it.EndDate = parseTS(finalRaw)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RFC3339Nano text does not sort lexically, so order in Go.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndDate.Before(out[j].EndDate)
	})
	return out, nil
}

func (r *Repository) listDevelopers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM developers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// listWorkItems loads the work items matching where, each with its changes, projected dates and notes.
func (r *Repository) listWorkItems(ctx context.Context, where string, args ...any) ([]app.SnapshotWorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, title, state, parent_id, sort_order, scheduled, iteration_path, assigned_to
		FROM work_items
		WHERE `+where+`
		ORDER BY sort_order ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	out := []app.SnapshotWorkItem{}
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Changes, err = r.listFieldChanges(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Type != domain.TypeFeature {
			continue
		}
		if out[i].ProjectedDates, err = r.listProjectedDates(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Notes, err = r.listIterationNotes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) listFieldChanges(ctx context.Context, workItemID string) ([]app.SnapshotFieldChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT field, changed_date, pre_value, post_value
		FROM field_changes
		WHERE work_item_id = ?
		ORDER BY seq ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []app.SnapshotFieldChange
	for rows.Next() {
		var (
			change     app.SnapshotFieldChange
			changedRaw string
		)
		if err := rows.Scan(&change.Field, &changedRaw, &change.PreValue, &change.PostValue); err != nil {
			return nil, err
		}
		change.ChangedDate = parseTS(changedRaw)
		out = append(out, change)
	}
	return out, rows.Err()
}

func (r *Repository) listProjectedDates(ctx context.Context, workItemID string) ([]app.SnapshotProjectedDate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, due_date, changed_date
		FROM projected_dates
		WHERE work_item_id = ?
		ORDER BY seq ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []app.SnapshotProjectedDate
	for rows.Next() {
		var (
			pd                 app.SnapshotProjectedDate
			dueRaw, changedRaw string
		)
		if err := rows.Scan(&pd.ID, &dueRaw, &changedRaw); err != nil {
			return nil, err
		}
		pd.DueDate = parseTS(dueRaw)
		pd.ChangedDate = parseTS(changedRaw)
		out = append(out, pd)
	}
	return out, rows.Err()
}

func (r *Repository) listIterationNotes(ctx context.Context, workItemID string) ([]app.SnapshotIterationNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT iteration_path, title, due_date, description
		FROM iteration_notes
		WHERE work_item_id = ?
		ORDER BY seq ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []app.SnapshotIterationNote
	for rows.Next() {
		var (
			note   app.SnapshotIterationNote
			dueRaw string
		)
		if err := rows.Scan(&note.IterationPath, &note.Title, &dueRaw, &note.Description); err != nil {
			return nil, err
		}
		note.DueDate = parseTS(dueRaw)
		out = append(out, note)
	}
	return out, rows.Err()
}

// execerContext describes execer context behavior required by callers.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func putMeta(ctx context.Context, execer execerContext, key, value string) error {
	if _, err := execer.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("write meta %q: %w", key, err)
	}
	return nil
}

// insertWorkItem writes one work item row and its child rows.
func insertWorkItem(ctx context.Context, execer execerContext, item app.SnapshotWorkItem) error {
	scheduled := 0
	if item.Scheduled {
		scheduled = 1
	}
	if _, err := execer.ExecContext(ctx, `
		INSERT INTO work_items(id, type, title, state, parent_id, sort_order, scheduled, iteration_path, assigned_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		string(item.Type),
		item.Title,
		item.State,
		item.ParentID,
		item.SortOrder,
		scheduled,
		item.IterationPath,
		item.AssignedTo,
	); err != nil {
		return err
	}
	for seq, change := range item.Changes {
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO field_changes(work_item_id, seq, field, changed_date, pre_value, post_value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, item.ID, seq, change.Field, ts(change.ChangedDate), change.PreValue, change.PostValue); err != nil {
			return err
		}
	}
	for seq, pd := range item.ProjectedDates {
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO projected_dates(work_item_id, seq, id, due_date, changed_date)
			VALUES (?, ?, ?, ?, ?)
		`, item.ID, seq, pd.ID, ts(pd.DueDate), ts(pd.ChangedDate)); err != nil {
			return err
		}
	}
	for seq, note := range item.Notes {
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO iteration_notes(work_item_id, seq, iteration_path, title, due_date, description)
			VALUES (?, ?, ?, ?, ?, ?)
		`, item.ID, seq, note.IterationPath, note.Title, ts(note.DueDate), note.Description); err != nil {
			return err
		}
	}
	return nil
}

// scanner describes scanner behavior required by callers.
type scanner interface {
	Scan(dest ...any) error
}

// scanWorkItem handles scan work item.
func scanWorkItem(s scanner) (app.SnapshotWorkItem, error) {
	var (
		item      app.SnapshotWorkItem
		typeRaw   string
		scheduled int
	)
	if err := s.Scan(
		&item.ID,
		&typeRaw,
		&item.Title,
		&item.State,
		&item.ParentID,
		&item.SortOrder,
		&scheduled,
		&item.IterationPath,
		&item.AssignedTo,
	); err != nil {
		return app.SnapshotWorkItem{}, err
	}
	item.Type = domain.WorkItemType(typeRaw)
	item.Scheduled = scheduled != 0
	return item, nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	if strings.TrimSpace(v) == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
