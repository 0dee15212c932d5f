// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
)

// ErrNotFound reports a missing feature.
var ErrNotFound = errors.New("not found")

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrTimelineUnavailable reports a timeline that could not be built.
var ErrTimelineUnavailable = errors.New("timeline unavailable")

// ErrSnapshotUnavailable reports missing snapshot storage support.
var ErrSnapshotUnavailable = errors.New("snapshot storage unavailable")

// ReportKindCurrent selects the current-iteration timeline document.
const ReportKindCurrent = "current"

// ReportKindPrevious selects the previous-iteration timeline document.
const ReportKindPrevious = "previous"

// ReportKindSummary selects the project summary document.
const ReportKindSummary = "summary"

// supportedReportKinds stores all transport-accepted report kinds in canonical order.
var supportedReportKinds = []string{
	ReportKindCurrent,
	ReportKindPrevious,
	ReportKindSummary,
}

// SupportedReportKinds returns all canonical report kinds accepted by transport adapters.
func SupportedReportKinds() []string {
	return append([]string(nil), supportedReportKinds...)
}

// NormalizeReportKind trims and lowercases kind and rejects unknown values.
func NormalizeReportKind(kind string) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if !slices.Contains(supportedReportKinds, kind) {
		return "", errors.Join(ErrInvalidRequest, errors.New("report kind must be one of current, previous, summary"))
	}
	return kind, nil
}

// IterationView describes one calendar iteration.
type IterationView struct {
	Path      string    `json:"path"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Weeks     int       `json:"weeks"`
}

// WarningView describes one degraded data-consistency problem.
type WarningView struct {
	FeatureID string `json:"feature_id"`
	TaskID    string `json:"task_id,omitempty"`
	Message   string `json:"message"`
}

// FailureView describes one feature skipped by the run.
type FailureView struct {
	FeatureID string `json:"feature_id"`
	Title     string `json:"title"`
	Error     string `json:"error"`
}

// TimelineOverview is the run-level view of one engine build.
type TimelineOverview struct {
	RunID            string               `json:"run_id"`
	AsOf             time.Time            `json:"as_of"`
	CurrentIteration IterationView        `json:"current_iteration"`
	CurrentWeek      int                  `json:"current_week"`
	Iterations       []IterationView      `json:"iterations"`
	Developers       []string             `json:"developers"`
	Features         []app.FeatureSummary `json:"features"`
	Warnings         []WarningView        `json:"warnings,omitempty"`
	Failures         []FailureView        `json:"failures,omitempty"`
}

// CommitmentView describes one task commitment.
type CommitmentView struct {
	TaskID                 string    `json:"task_id"`
	Title                  string    `json:"title"`
	State                  string    `json:"state"`
	Developer              string    `json:"developer"`
	Iteration              string    `json:"iteration"`
	Week                   int       `json:"week"`
	OriginalEstimate       float64   `json:"original_estimate"`
	CompletedWork          float64   `json:"completed_work"`
	RemainingWork          float64   `json:"remaining_work"`
	ProjectedCompletedWork float64   `json:"projected_completed_work"`
	ProjectedRemainingWork float64   `json:"projected_remaining_work"`
	ActivatedDate          time.Time `json:"activated_date,omitzero"`
	CompletedDate          time.Time `json:"completed_date,omitzero"`
	Preceding              bool      `json:"preceding,omitempty"`
	Carryover              bool      `json:"carryover,omitempty"`
}

// StoryGroupView lists the commitments under one user story.
type StoryGroupView struct {
	StoryID     string           `json:"story_id"`
	Title       string           `json:"title"`
	Commitments []CommitmentView `json:"commitments"`
}

// WeekBucketView groups commitments in one iteration week.
type WeekBucketView struct {
	Label     string           `json:"label"`
	Iteration string           `json:"iteration"`
	Week      int              `json:"week"`
	Stories   []StoryGroupView `json:"stories"`
}

// DeveloperHoursView is one developer's hours in an iteration.
type DeveloperHoursView struct {
	Developer string  `json:"developer"`
	Hours     float64 `json:"hours"`
}

// NoteView is one iteration note attached to a feature.
type NoteView struct {
	Title       string    `json:"title"`
	DueDate     time.Time `json:"due_date,omitzero"`
	Description string    `json:"description,omitempty"`
}

// IterationHistoryView describes per-developer hours and notes for one iteration.
type IterationHistoryView struct {
	Iteration  string               `json:"iteration"`
	Developers []DeveloperHoursView `json:"developers"`
	Notes      []NoteView           `json:"notes,omitempty"`
}

// PriorIterationView lists closed and shifted work for one past iteration.
type PriorIterationView struct {
	Iteration IterationView    `json:"iteration"`
	Closed    []StoryGroupView `json:"closed,omitempty"`
	Shifted   []StoryGroupView `json:"shifted,omitempty"`
}

// FeatureDetail is the full per-feature view.
type FeatureDetail struct {
	Summary         app.FeatureSummary     `json:"summary"`
	Grid            app.IterationGrid      `json:"grid"`
	CompletedSoFar  []WeekBucketView       `json:"completed_so_far"`
	GoingForward    []WeekBucketView       `json:"going_forward"`
	History         []IterationHistoryView `json:"history"`
	PriorIterations []PriorIterationView   `json:"prior_iterations"`
}

// ReportDocument is one rendered markdown report.
type ReportDocument struct {
	Kind     string    `json:"kind"`
	RunID    string    `json:"run_id"`
	AsOf     time.Time `json:"as_of"`
	Markdown string    `json:"markdown"`
}

// TimelineReader exposes read-only timeline views to transports.
type TimelineReader interface {
	Overview(context.Context) (TimelineOverview, error)
	FeatureDetail(context.Context, string) (FeatureDetail, error)
	Report(context.Context, string) (ReportDocument, error)
}

// ImportResult counts the rows stored by one snapshot import.
type ImportResult struct {
	Iterations int       `json:"iterations"`
	Developers int       `json:"developers"`
	WorkItems  int       `json:"work_items"`
	ExportedAt time.Time `json:"exported_at"`
}

// SnapshotService replaces and reads the stored work-item snapshot.
type SnapshotService interface {
	ImportSnapshot(context.Context, app.Snapshot) (ImportResult, error)
	ExportSnapshot(context.Context) (app.Snapshot, error)
}
