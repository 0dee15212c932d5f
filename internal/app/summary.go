package app

import (
	"sort"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// OtherColumn is the grid column that collects the sentinel developer's hours.
const OtherColumn = "Other"

// FeatureSummary is one feature's status row.
type FeatureSummary struct {
	FeatureID        string    `json:"feature_id"`
	Title            string    `json:"title"`
	StartedOn        string    `json:"started_on"`
	Ballpark         string    `json:"ballpark"`
	OriginalTarget   string    `json:"original_target"`
	CurrentProjected string    `json:"current_projected"`
	PivotDate        time.Time `json:"pivot_date"`

	TotalUserStories       int `json:"total_user_stories"`
	FullyTaskedUserStories int `json:"fully_tasked_user_stories"`
	AuditUserStories       int `json:"audit_user_stories"`
	EmptyUserStories       int `json:"empty_user_stories"`

	DistinctTasks       int     `json:"distinct_tasks"`
	HoursCompleted      float64 `json:"hours_completed"`
	HoursEstimated      float64 `json:"hours_estimated"`
	BehindScheduleTasks int     `json:"behind_schedule_tasks"`

	OriginalEstimatedHours float64 `json:"original_estimated_hours"`
	CurrentEstimatedHours  float64 `json:"current_estimated_hours"`
	CurrentActualHours     float64 `json:"current_actual_hours"`
	CurrentRemainingHours  float64 `json:"current_remaining_hours"`
	ProjectedTotalHours    float64 `json:"projected_total_hours"`
}

// SummarizeFeature computes the status row of one feature from its commitments.
// childCounts maps user story id to its number of child tasks plus child stories.
func SummarizeFeature(feature domain.Feature, commitments []domain.TaskCommitment, childCounts map[string]int, opts Options) FeatureSummary {
	opts = opts.withDefaults()
	s := FeatureSummary{
		FeatureID:        feature.ID,
		Title:            feature.Title,
		TotalUserStories: len(feature.UserStories),
	}

	if len(commitments) > 0 {
		started := commitments[0].CommittedIteration.StartDate
		for _, c := range commitments[1:] {
			if c.CommittedIteration.StartDate.Before(started) {
				started = c.CommittedIteration.StartDate
			}
		}
		s.StartedOn = FormatDate(started, opts.DateLayout)
	}
	if pd, ok := feature.Ballpark(); ok {
		s.Ballpark = FormatDate(pd.DueDate, opts.DateLayout)
	}
	if pd, ok := feature.OriginalTarget(); ok {
		s.OriginalTarget = FormatDate(pd.DueDate, opts.DateLayout)
		s.PivotDate = pd.ChangedDate
	}
	if pd, ok := feature.CurrentProjection(); ok {
		s.CurrentProjected = FormatDate(pd.DueDate, opts.DateLayout)
	}

	// A story is held back only when its sole child is an open audit task. Generated
	// preceding and carryover commitments do not carry the task's real state.
	auditStories := map[string]struct{}{}
	for _, c := range commitments {
		if c.IsGeneratedPrecedingTask || c.IsProjectedCarryover {
			continue
		}
		if childCounts[c.ParentUserStory.ID] != 1 {
			continue
		}
		if opts.IsAuditTask(c.TaskTitle) && c.TaskState != opts.ClosedState {
			auditStories[c.ParentUserStory.ID] = struct{}{}
		}
	}
	s.AuditUserStories = len(auditStories)
	for _, story := range feature.UserStories {
		if childCounts[story.ID] == 0 {
			s.EmptyUserStories++
		}
	}
	s.FullyTaskedUserStories = max(s.TotalUserStories-s.AuditUserStories-s.EmptyUserStories, 0)

	distinct := DistinctTasks(commitments)
	s.DistinctTasks = len(distinct)
	pivoted := !s.PivotDate.IsZero()
	for _, c := range distinct {
		s.HoursCompleted += c.CompletedWork
		s.HoursEstimated += c.CompletedWork + c.RemainingWork
		if c.CompletedWork+c.RemainingWork >= c.OriginalEstimate*2 {
			s.BehindScheduleTasks++
		}

		task := c.Task
		if pivoted {
			s.OriginalEstimatedHours += task.CompletedWork.ValueAsOf(s.PivotDate) + task.RemainingWork.ValueAsOf(s.PivotDate)
			if task.OriginalEstimate.ChangedAfter(s.PivotDate) {
				first, _ := task.OriginalEstimate.First()
				s.CurrentEstimatedHours += first.PostValue
			}
		}
		s.CurrentActualHours += task.CompletedWork.Current()
		s.CurrentRemainingHours += task.RemainingWork.Current()
	}
	s.CurrentEstimatedHours += s.OriginalEstimatedHours
	s.ProjectedTotalHours = s.CurrentActualHours + s.CurrentRemainingHours
	return s
}

// DistinctTasks keeps the first commitment per task, dropping open placeholder tasks
// that carry no hours.
func DistinctTasks(commitments []domain.TaskCommitment) []domain.TaskCommitment {
	seen := make(map[string]struct{}, len(commitments))
	out := make([]domain.TaskCommitment, 0, len(commitments))
	for _, c := range commitments {
		if c.HoursAgainstBudget == 0 && !c.Closed {
			continue
		}
		if _, ok := seen[c.TaskID]; ok {
			continue
		}
		seen[c.TaskID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FormatDate renders t with layout; the zero time renders empty.
func FormatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// IterationGrid is the per-iteration developer hours table of one feature.
type IterationGrid struct {
	Developers []string  `json:"developers"`
	Rows       []GridRow `json:"rows"`
}

// GridRow holds one iteration's hours aligned with IterationGrid.Developers.
type GridRow struct {
	IterationPath string    `json:"iteration_path"`
	Hours         []float64 `json:"hours"`
	Other         float64   `json:"other"`
}

// BuildIterationGrid sums commitment hours per iteration and developer over every
// iteration between the earliest start and latest end the feature touches.
func BuildIterationGrid(commitments []domain.TaskCommitment, calendar domain.Calendar, roster domain.Roster, sentinel string) IterationGrid {
	grid := IterationGrid{Developers: []string{}, Rows: []GridRow{}}
	if len(commitments) == 0 {
		return grid
	}

	start, end := commitments[0].CommittedIteration.StartDate, commitments[0].CommittedIteration.EndDate
	totals := map[string]float64{}
	cells := map[string]map[string]float64{}
	for _, c := range commitments {
		if c.CommittedIteration.StartDate.Before(start) {
			start = c.CommittedIteration.StartDate
		}
		if c.CommittedIteration.EndDate.After(end) {
			end = c.CommittedIteration.EndDate
		}
		hours := c.IterationHours()
		name := c.CommittedDeveloper.Name
		totals[name] += hours
		row := cells[c.CommittedIteration.Path]
		if row == nil {
			row = map[string]float64{}
			cells[c.CommittedIteration.Path] = row
		}
		row[name] += hours
	}

	for name := range roster {
		if name == sentinel || totals[name] == 0 {
			continue
		}
		grid.Developers = append(grid.Developers, name)
	}
	sort.Strings(grid.Developers)

	for _, it := range calendar.Span(start, end) {
		row := GridRow{IterationPath: it.Path, Hours: make([]float64, len(grid.Developers))}
		for i, name := range grid.Developers {
			row.Hours[i] = cells[it.Path][name]
		}
		row.Other = cells[it.Path][sentinel]
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}
