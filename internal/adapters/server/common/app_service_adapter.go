package common

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/report"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// TimelineBuilder produces one timeline per call.
type TimelineBuilder interface {
	Build(context.Context) (*app.Timeline, error)
}

// AppServiceAdapter maps transport contracts onto engine timeline builds and snapshot storage.
type AppServiceAdapter struct {
	builder TimelineBuilder
	store   app.SnapshotStore
}

// NewAppServiceAdapter builds one common adapter over a timeline builder and optional snapshot store.
func NewAppServiceAdapter(builder TimelineBuilder, store app.SnapshotStore) *AppServiceAdapter {
	return &AppServiceAdapter{builder: builder, store: store}
}

// Overview builds a timeline and returns its run-level view.
func (a *AppServiceAdapter) Overview(ctx context.Context) (TimelineOverview, error) {
	tl, err := a.build(ctx)
	if err != nil {
		return TimelineOverview{}, err
	}
	return convertOverview(tl), nil
}

// FeatureDetail builds a timeline and returns one feature's full view.
func (a *AppServiceAdapter) FeatureDetail(ctx context.Context, featureID string) (FeatureDetail, error) {
	featureID = strings.TrimSpace(featureID)
	if featureID == "" {
		return FeatureDetail{}, fmt.Errorf("feature detail: %w", errors.Join(ErrInvalidRequest, errors.New("feature_id is required")))
	}
	tl, err := a.build(ctx)
	if err != nil {
		return FeatureDetail{}, err
	}
	ft, err := tl.Feature(featureID)
	if err != nil {
		return FeatureDetail{}, mapAppError("feature detail", err)
	}
	return convertFeatureDetail(tl, ft), nil
}

// Report builds a timeline and renders one markdown report.
func (a *AppServiceAdapter) Report(ctx context.Context, kind string) (ReportDocument, error) {
	kind, err := NormalizeReportKind(kind)
	if err != nil {
		return ReportDocument{}, fmt.Errorf("report: %w", err)
	}
	tl, err := a.build(ctx)
	if err != nil {
		return ReportDocument{}, err
	}
	doc := ReportDocument{Kind: kind, RunID: tl.RunID(), AsOf: tl.AsOf()}
	switch kind {
	case ReportKindCurrent:
		doc.Markdown = report.CurrentIterationMarkdown(tl)
	case ReportKindPrevious:
		doc.Markdown = report.PreviousIterationMarkdown(tl)
	default:
		doc.Markdown = report.ProjectSummaryMarkdown(tl)
	}
	return doc, nil
}

// ImportSnapshot validates and stores one snapshot, replacing the previous one.
func (a *AppServiceAdapter) ImportSnapshot(ctx context.Context, snap app.Snapshot) (ImportResult, error) {
	if a == nil || a.store == nil {
		return ImportResult{}, fmt.Errorf("import snapshot: %w", ErrSnapshotUnavailable)
	}
	if err := a.store.ReplaceSnapshot(ctx, snap); err != nil {
		return ImportResult{}, mapAppError("import snapshot", err)
	}
	stored, err := a.store.LoadSnapshot(ctx)
	if err != nil {
		return ImportResult{}, mapAppError("import snapshot", err)
	}
	return ImportResult{
		Iterations: len(stored.Iterations),
		Developers: len(stored.Developers),
		WorkItems:  len(stored.WorkItems),
		ExportedAt: stored.ExportedAt,
	}, nil
}

// ExportSnapshot returns the stored snapshot.
func (a *AppServiceAdapter) ExportSnapshot(ctx context.Context) (app.Snapshot, error) {
	if a == nil || a.store == nil {
		return app.Snapshot{}, fmt.Errorf("export snapshot: %w", ErrSnapshotUnavailable)
	}
	snap, err := a.store.LoadSnapshot(ctx)
	if err != nil {
		return app.Snapshot{}, mapAppError("export snapshot", err)
	}
	return snap, nil
}

// build runs the engine once for the request.
func (a *AppServiceAdapter) build(ctx context.Context) (*app.Timeline, error) {
	if a == nil || a.builder == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrTimelineUnavailable)
	}
	tl, err := a.builder.Build(ctx)
	if err != nil {
		return nil, mapAppError("build timeline", err)
	}
	return tl, nil
}

// mapAppError maps app-layer failures onto transport sentinel errors.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrInvalidSnapshot):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrTimelineUnavailable, err))
	}
}

func convertOverview(tl *app.Timeline) TimelineOverview {
	out := TimelineOverview{
		RunID:            tl.RunID(),
		AsOf:             tl.AsOf(),
		CurrentIteration: convertIteration(tl.CurrentIteration()),
		CurrentWeek:      tl.CurrentWeek(),
		Iterations:       make([]IterationView, 0, len(tl.Iterations())),
		Developers:       make([]string, 0),
		Features:         tl.Summaries(),
	}
	for _, it := range tl.Iterations() {
		out.Iterations = append(out.Iterations, convertIteration(it))
	}
	for name := range tl.Developers() {
		out.Developers = append(out.Developers, name)
	}
	slices.Sort(out.Developers)
	for _, w := range tl.Warnings() {
		out.Warnings = append(out.Warnings, WarningView{FeatureID: w.FeatureID, TaskID: w.TaskID, Message: w.Message})
	}
	for _, f := range tl.Failures() {
		view := FailureView{FeatureID: f.FeatureID, Title: f.Title}
		if f.Err != nil {
			view.Error = f.Err.Error()
		}
		out.Failures = append(out.Failures, view)
	}
	return out
}

func convertFeatureDetail(tl *app.Timeline, ft app.FeatureTimeline) FeatureDetail {
	current := tl.CurrentIterationView(ft)
	prior := tl.PriorIterationView(ft)
	out := FeatureDetail{
		Summary:         ft.Summary,
		Grid:            ft.Grid,
		CompletedSoFar:  convertBuckets(current.CompletedSoFar),
		GoingForward:    convertBuckets(current.GoingForward),
		History:         make([]IterationHistoryView, 0, len(prior.History)),
		PriorIterations: make([]PriorIterationView, 0, len(prior.Iterations)),
	}
	for _, h := range prior.History {
		view := IterationHistoryView{
			Iteration:  h.Iteration.Path,
			Developers: make([]DeveloperHoursView, 0, len(h.Developers)),
		}
		for _, dev := range h.Developers {
			view.Developers = append(view.Developers, DeveloperHoursView{Developer: dev.Developer, Hours: dev.Hours})
		}
		for _, note := range h.Notes {
			view.Notes = append(view.Notes, NoteView{Title: note.Title, DueDate: note.DueDate, Description: note.Description})
		}
		out.History = append(out.History, view)
	}
	for _, it := range prior.Iterations {
		out.PriorIterations = append(out.PriorIterations, PriorIterationView{
			Iteration: convertIteration(it.Iteration),
			Closed:    convertStoryGroups(it.Closed),
			Shifted:   convertStoryGroups(it.Shifted),
		})
	}
	return out
}

func convertIteration(it domain.Iteration) IterationView {
	if it.IsZero() {
		return IterationView{}
	}
	return IterationView{Path: it.Path, StartDate: it.StartDate, EndDate: it.EndDate, Weeks: it.Weeks()}
}

func convertBuckets(buckets []app.WeekBucket) []WeekBucketView {
	out := make([]WeekBucketView, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, WeekBucketView{
			Label:     bucket.Label,
			Iteration: bucket.Slot.Iteration.Path,
			Week:      bucket.Slot.Week,
			Stories:   convertStoryGroups(bucket.Stories),
		})
	}
	return out
}

func convertStoryGroups(groups []app.StoryGroup) []StoryGroupView {
	if len(groups) == 0 {
		return nil
	}
	out := make([]StoryGroupView, 0, len(groups))
	for _, group := range groups {
		view := StoryGroupView{
			StoryID:     group.Story.ID,
			Title:       group.Story.Title,
			Commitments: make([]CommitmentView, 0, len(group.Commitments)),
		}
		for _, c := range group.Commitments {
			view.Commitments = append(view.Commitments, convertCommitment(c))
		}
		out = append(out, view)
	}
	return out
}

func convertCommitment(c domain.TaskCommitment) CommitmentView {
	return CommitmentView{
		TaskID:                 c.TaskID,
		Title:                  c.TaskTitle,
		State:                  c.TaskState,
		Developer:              c.CommittedDeveloper.Name,
		Iteration:              c.CommittedIteration.Path,
		Week:                   c.CommittedIterationWeek,
		OriginalEstimate:       c.OriginalEstimate,
		CompletedWork:          c.CompletedWork,
		RemainingWork:          c.RemainingWork,
		ProjectedCompletedWork: c.ProjectedCompletedWork,
		ProjectedRemainingWork: c.ProjectedRemainingWork,
		ActivatedDate:          c.ActivatedDate,
		CompletedDate:          c.CompletedDate,
		Preceding:              c.IsGeneratedPrecedingTask,
		Carryover:              c.IsProjectedCarryover,
	}
}
