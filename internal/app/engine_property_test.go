package app

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

func drawSnapshot(rt *rapid.T) Snapshot {
	snap := baseSnapshot()
	snap.WorkItems = []SnapshotWorkItem{
		featureItem("F", "Generated"),
		storyItem("S", "F", "Generated story", 1),
	}
	n := rapid.IntRange(1, 6).Draw(rt, "num_tasks")
	for i := 0; i < n; i++ {
		path := rapid.SampledFrom([]string{"Sprint1", "Sprint2", "Sprint3"}).Draw(rt, "iteration")
		state := rapid.SampledFrom([]string{domain.StateNew, domain.StateActive, domain.StateClosed}).Draw(rt, "state")
		completed := rapid.IntRange(0, 20).Draw(rt, "completed")
		remaining := rapid.IntRange(0, 20).Draw(rt, "remaining")
		estimate := rapid.IntRange(0, 20).Draw(rt, "estimate")
		worked := at(time.March, rapid.IntRange(2, 24).Draw(rt, "worked_day"))

		changes := []SnapshotFieldChange{
			change(domain.FieldIterationPath, at(time.March, 1), "", path),
			change(domain.FieldOriginalEstimate, at(time.March, 1), "", strconv.Itoa(estimate)),
			change(domain.FieldRemainingWork, at(time.March, 1), "", strconv.Itoa(remaining+completed)),
			change(domain.FieldCompletedWork, worked, "", strconv.Itoa(completed)),
			change(domain.FieldRemainingWork, worked, strconv.Itoa(remaining+completed), strconv.Itoa(remaining)),
			change(domain.FieldState, worked, domain.StateNew, state),
		}
		if rapid.Bool().Draw(rt, "moved") {
			changes = append(changes, change(domain.FieldIterationPath, at(time.March, 23), path, "Sprint3"))
		}
		snap.WorkItems = append(snap.WorkItems, SnapshotWorkItem{
			ID:         fmt.Sprintf("T%d", i),
			Type:       domain.TypeTask,
			Title:      fmt.Sprintf("Task %d", i),
			ParentID:   "S",
			AssignedTo: rapid.SampledFrom([]string{"Ana", "Bob", ""}).Draw(rt, "owner"),
			Scheduled:  rapid.Bool().Draw(rt, "scheduled"),
			Changes:    changes,
		})
	}
	return snap
}

// TestPropertyBuildInvariants checks hour bounds and the actual-versus-projected contract.
func TestPropertyBuildInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		snap := drawSnapshot(rt)
		capacity := float64(rapid.IntRange(0, 12).Draw(rt, "capacity"))
		clock := func() time.Time { return asOf }
		src, err := NewSnapshotSource(snap, clock)
		if err != nil {
			rt.Fatalf("NewSnapshotSource() error = %v", err)
		}
		tl, err := NewEngine(src, nil, clock, nil, Options{WeeklyCapacityHours: capacity}).Build(context.Background())
		if err != nil {
			rt.Fatalf("Build() error = %v", err)
		}
		if len(tl.Failures()) != 0 {
			rt.Fatalf("unexpected failures %+v", tl.Failures())
		}
		ft := tl.Features()[0]
		if ft.Summary.HoursCompleted > ft.Summary.HoursEstimated {
			rt.Fatalf("completed %v exceeds estimated %v", ft.Summary.HoursCompleted, ft.Summary.HoursEstimated)
		}
		for _, c := range ft.Commitments {
			if c.TaskState == domain.StateClosed {
				if c.IsGeneratedPrecedingTask {
					rt.Fatalf("closed commitment %s flagged as preceding", c.TaskID)
				}
				if c.ProjectedCompletedWork != c.CompletedWork || c.ProjectedRemainingWork != c.RemainingWork {
					rt.Fatalf("closed commitment %s projected %v/%v != actual %v/%v", c.TaskID,
						c.ProjectedCompletedWork, c.ProjectedRemainingWork, c.CompletedWork, c.RemainingWork)
				}
			}
			if capacity > 0 && c.IsProjectedCarryover && c.ProjectedRemainingWork < 0 {
				rt.Fatalf("carryover %s left negative remaining %v", c.TaskID, c.ProjectedRemainingWork)
			}
		}

		again, err := NewEngine(src, nil, clock, nil, Options{WeeklyCapacityHours: capacity}).Build(context.Background())
		if err != nil {
			rt.Fatalf("Build() error = %v", err)
		}
		if again.Features()[0].Summary != ft.Summary {
			rt.Fatalf("summary not stable across runs")
		}
	})
}
