package app

import (
	"fmt"
	"maps"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// FeatureTimeline pairs a feature with its commitments and computed rollups.
type FeatureTimeline struct {
	Feature     domain.Feature
	Commitments []domain.TaskCommitment
	Summary     FeatureSummary
	Grid        IterationGrid
}

// Timeline is the read-only result of one engine run, consumed by renderers.
type Timeline struct {
	runID       string
	asOf        time.Time
	opts        Options
	current     domain.Iteration
	currentWeek int
	calendar    domain.Calendar
	roster      domain.Roster
	features    []FeatureTimeline
	warnings    []Warning
	failures    []FeatureFailure
}

// RunID identifies the engine run that produced the timeline.
func (t *Timeline) RunID() string {
	return t.runID
}

// AsOf returns the evaluation time.
func (t *Timeline) AsOf() time.Time {
	return t.asOf
}

// Options returns the options the timeline was built with.
func (t *Timeline) Options() Options {
	return t.opts
}

// CurrentIteration returns the snapshot's named current iteration, or else the one
// containing the evaluation time.
func (t *Timeline) CurrentIteration() domain.Iteration {
	return t.current
}

// CurrentWeek returns the week index of the evaluation time in the current iteration.
func (t *Timeline) CurrentWeek() int {
	return t.currentWeek
}

// Iterations returns every iteration ordered by end date ascending.
func (t *Timeline) Iterations() []domain.Iteration {
	return t.calendar.Iterations()
}

// Calendar returns the iteration calendar.
func (t *Timeline) Calendar() domain.Calendar {
	return t.calendar
}

// Developers returns the developer roster.
func (t *Timeline) Developers() domain.Roster {
	return maps.Clone(t.roster)
}

// Features returns every successfully aggregated feature sorted by title.
func (t *Timeline) Features() []FeatureTimeline {
	return append([]FeatureTimeline(nil), t.features...)
}

// Feature looks up one aggregated feature by id.
func (t *Timeline) Feature(id string) (FeatureTimeline, error) {
	for _, ft := range t.features {
		if ft.Feature.ID == id {
			return ft, nil
		}
	}
	return FeatureTimeline{}, fmt.Errorf("feature %q: %w", id, ErrNotFound)
}

// Warnings returns the data-consistency warnings raised during the run.
func (t *Timeline) Warnings() []Warning {
	return append([]Warning(nil), t.warnings...)
}

// Failures returns the features whose aggregation failed.
func (t *Timeline) Failures() []FeatureFailure {
	return append([]FeatureFailure(nil), t.failures...)
}

// Summaries returns the status row of every feature, in feature order.
func (t *Timeline) Summaries() []FeatureSummary {
	out := make([]FeatureSummary, 0, len(t.features))
	for _, ft := range t.features {
		out = append(out, ft.Summary)
	}
	return out
}
