package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// Documents holds the three markdown reports produced from one timeline.
type Documents struct {
	CurrentIteration  string
	PreviousIteration string
	ProjectSummary    string
}

// Build renders every report document for tl.
func Build(tl *app.Timeline) Documents {
	return Documents{
		CurrentIteration:  CurrentIterationMarkdown(tl),
		PreviousIteration: PreviousIterationMarkdown(tl),
		ProjectSummary:    ProjectSummaryMarkdown(tl),
	}
}

var summaryHeader = []string{
	"Feature",
	"Started On",
	"Ballpark Completion Date",
	"Original Target Completion Date",
	"Current Projected Completion Date",
	"Number of User Stories Fully Tasked",
	"Number of Task Hours Completed",
	"Number of Tasks Behind Schedule by 200% +",
	"Original Estimated Man-Hours",
	"Current Estimated Man-Hours",
	"Current Actual Man-Hours",
	"Current Remaining Man-Hours",
	"Projected Total Man-Hours",
}

// SummaryRow formats one feature status row in summaryHeader column order.
func SummaryRow(s app.FeatureSummary) []string {
	return []string{
		s.Title,
		s.StartedOn,
		s.Ballpark,
		s.OriginalTarget,
		s.CurrentProjected,
		fmt.Sprintf("%d/%d", s.FullyTaskedUserStories, s.TotalUserStories),
		fmt.Sprintf("%s/%s", hours(s.HoursCompleted), hours(s.HoursEstimated)),
		fmt.Sprintf("%d/%d", s.BehindScheduleTasks, s.DistinctTasks),
		hours(s.OriginalEstimatedHours),
		hours(s.CurrentEstimatedHours),
		hours(s.CurrentActualHours),
		hours(s.CurrentRemainingHours),
		hours(s.ProjectedTotalHours),
	}
}

// SummaryHeader returns the feature status grid column titles.
func SummaryHeader() []string {
	return append([]string(nil), summaryHeader...)
}

// CurrentIterationMarkdown renders the weeks of the current iteration behind us and the
// projected weeks going forward, per feature.
func CurrentIterationMarkdown(tl *app.Timeline) string {
	var b strings.Builder
	current := tl.CurrentIteration()
	fmt.Fprintf(&b, "# Current Iteration Project Timeline\n\n")
	writeRunLine(&b, tl)
	fmt.Fprintf(&b, "Current iteration: **%s** (week %d)\n\n", current.Path, tl.CurrentWeek())

	for _, ft := range tl.Features() {
		fmt.Fprintf(&b, "## Feature: %s\n\n", ft.Feature.Title)
		view := tl.CurrentIterationView(ft)
		fmt.Fprintf(&b, "### Projected Iterations Going Forward\n\n")
		if view.Empty() {
			fmt.Fprintf(&b, "There are no remaining tasks going forward.\n\n")
			continue
		}
		for _, bucket := range view.CompletedSoFar {
			writeProjectedBucket(&b, tl, bucket)
		}
		for _, bucket := range view.GoingForward {
			writeProjectedBucket(&b, tl, bucket)
		}
	}
	writeFailures(&b, tl)
	return b.String()
}

// PreviousIterationMarkdown renders per-iteration developer hours and notes, then the
// closed and shifted tasks of every prior iteration, per feature.
func PreviousIterationMarkdown(tl *app.Timeline) string {
	var b strings.Builder
	layout := tl.Options().DateLayout
	fmt.Fprintf(&b, "# Previous Iteration Project Timeline\n\n")
	writeRunLine(&b, tl)

	for _, ft := range tl.Features() {
		fmt.Fprintf(&b, "## Feature: %s\n\n", ft.Feature.Title)
		view := tl.PriorIterationView(ft)

		for _, h := range view.History {
			fmt.Fprintf(&b, "### Iteration: %s\n\n", h.Iteration.Path)
			for _, dev := range h.Developers {
				fmt.Fprintf(&b, "- %s: %s hours\n", dev.Developer, hours(dev.Hours))
			}
			if len(h.Developers) > 0 {
				b.WriteString("\n")
			}
			for _, note := range h.Notes {
				fmt.Fprintf(&b, "**%s** (due %s)\n\n", note.Title, app.FormatDate(note.DueDate, layout))
				if desc := strings.TrimSpace(note.Description); desc != "" {
					fmt.Fprintf(&b, "%s\n\n", desc)
				}
			}
		}

		if len(view.Iterations) == 0 {
			fmt.Fprintf(&b, "No closed or shifted tasks in prior iterations.\n\n")
			continue
		}
		for _, it := range view.Iterations {
			fmt.Fprintf(
				&b,
				"### %s (%s - %s)\n\n",
				it.Iteration.Path,
				app.FormatDate(it.Iteration.StartDate, layout),
				app.FormatDate(it.Iteration.EndDate, layout),
			)
			if len(it.Shifted) > 0 {
				fmt.Fprintf(&b, "#### Tasks Shifted To Next Iteration\n\n")
				for _, group := range it.Shifted {
					writeStoryTable(&b, group, projectedHeader, projectedRow)
				}
			}
			if len(it.Closed) > 0 {
				fmt.Fprintf(&b, "#### Tasks Closed During Iteration\n\n")
				for _, group := range it.Closed {
					writeStoryTable(&b, group, closedHeader, func(c domain.TaskCommitment) []string { return closedRow(c, layout) })
				}
			}
		}
	}
	writeFailures(&b, tl)
	return b.String()
}

// ProjectSummaryMarkdown renders the feature status grid and one developer by iteration
// hours grid per feature.
func ProjectSummaryMarkdown(tl *app.Timeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project Summary\n\n")
	writeRunLine(&b, tl)

	fmt.Fprintf(&b, "## Feature Status Summary\n\n")
	rows := make([][]string, 0, len(tl.Features()))
	for _, s := range tl.Summaries() {
		rows = append(rows, SummaryRow(s))
	}
	writeTable(&b, summaryHeader, rows)

	for _, ft := range tl.Features() {
		fmt.Fprintf(&b, "## %s\n\n", ft.Feature.Title)
		writeTable(&b, gridCells(ft.Grid))
	}
	writeFailures(&b, tl)
	return b.String()
}

// gridCells lays out a developer by iteration grid as a header and text rows.
func gridCells(grid app.IterationGrid) ([]string, [][]string) {
	header := append([]string{"Iteration"}, grid.Developers...)
	header = append(header, app.OtherColumn)
	rows := make([][]string, 0, len(grid.Rows))
	for _, row := range grid.Rows {
		cells := []string{row.IterationPath}
		for _, h := range row.Hours {
			cells = append(cells, hours(h))
		}
		rows = append(rows, append(cells, hours(row.Other)))
	}
	return header, rows
}

var (
	closedHeader    = []string{"Id", "Work Item Type", "Title", "State", "Original Estimate", "Completed Hours", "Date Activated", "Date Completed", "Assigned To"}
	projectedHeader = []string{"Id", "Work Item Type", "Title", "State", "Original Estimate", "Remaining Hours", "Projected Hours To Complete This Week", "Assigned To"}
)

func closedRow(c domain.TaskCommitment, layout string) []string {
	return []string{
		c.TaskID,
		"Task",
		c.TaskTitle,
		c.TaskState,
		hours(c.OriginalEstimate),
		hours(c.CompletedWork),
		app.FormatDate(c.ActivatedDate, layout),
		app.FormatDate(c.CompletedDate, layout),
		c.CommittedDeveloper.Name,
	}
}

func projectedRow(c domain.TaskCommitment) []string {
	remaining, week := c.ProjectedRemainingWork+c.ProjectedCompletedWork, c.ProjectedCompletedWork
	if c.UsesActualHours() {
		remaining, week = c.RemainingWork, c.CompletedWork
	}
	return []string{
		c.TaskID,
		"Task",
		c.TaskTitle,
		c.TaskState,
		hours(c.OriginalEstimate),
		hours(remaining),
		hours(week),
		c.CommittedDeveloper.Name,
	}
}

func writeProjectedBucket(b *strings.Builder, tl *app.Timeline, bucket app.WeekBucket) {
	start := bucket.Slot.Iteration.WeekStart(bucket.Slot.Week)
	fmt.Fprintf(b, "#### %s (from %s)\n\n", bucket.Label, app.FormatDate(start, tl.Options().DateLayout))
	for _, group := range bucket.Stories {
		writeStoryTable(b, group, projectedHeader, projectedRow)
	}
}

func writeStoryTable(b *strings.Builder, group app.StoryGroup, header []string, row func(domain.TaskCommitment) []string) {
	fmt.Fprintf(b, "**%s:**\n\n", group.Story.Title)
	rows := make([][]string, 0, len(group.Commitments))
	for _, c := range group.Commitments {
		rows = append(rows, row(c))
	}
	writeTable(b, header, rows)
}

func writeRunLine(b *strings.Builder, tl *app.Timeline) {
	fmt.Fprintf(b, "_As of %s", tl.AsOf().Format("2006-01-02 15:04 MST"))
	if id := tl.RunID(); id != "" {
		fmt.Fprintf(b, ", run %s", id)
	}
	b.WriteString("_\n\n")
}

func writeFailures(b *strings.Builder, tl *app.Timeline) {
	failures := tl.Failures()
	warnings := tl.Warnings()
	if len(failures) == 0 && len(warnings) == 0 {
		return
	}
	fmt.Fprintf(b, "## Data Issues\n\n")
	for _, f := range failures {
		fmt.Fprintf(b, "- Feature %s (%s) skipped: %v\n", f.FeatureID, f.Title, f.Err)
	}
	for _, w := range warnings {
		fmt.Fprintf(b, "- Feature %s task %s: %s\n", w.FeatureID, w.TaskID, w.Message)
	}
	b.WriteString("\n")
}

// writeTable writes a GitHub-flavored markdown table.
func writeTable(b *strings.Builder, header []string, rows [][]string) {
	writeTableRow(b, header)
	b.WriteString("|")
	for range header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeTableRow(b, row)
	}
	b.WriteString("\n")
}

func writeTableRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, cell := range cells {
		b.WriteString(" ")
		b.WriteString(escapeCell(cell))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// hours formats an hour count without trailing zeros.
func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
