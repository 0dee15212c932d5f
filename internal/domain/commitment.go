package domain

import (
	"fmt"
	"time"
)

// TaskCommitment places (part of) a task's hours on one developer, iteration and week.
// A task yields one primary commitment plus zero or more preceding commitments that
// reconstruct hours burned in earlier weeks, and possibly projected carryovers.
type TaskCommitment struct {
	TaskID           string
	TaskTitle        string
	TaskState        string
	OriginalEstimate float64
	// CompletedWork is the task total on a primary commitment and the hours burned in
	// that week alone on a preceding commitment.
	CompletedWork          float64
	RemainingWork          float64
	ActivatedDate          time.Time
	CompletedDate          time.Time
	CommittedDeveloper     Developer
	CommittedIteration     Iteration
	CommittedIterationWeek int
	ParentUserStory        UserStory
	ProjectedCompletedWork float64
	ProjectedRemainingWork float64
	HoursAgainstBudget     float64
	IterationCompleted     string

	// Closed is set when TaskState matched the configured closed state.
	Closed bool
	// IsGeneratedPrecedingTask marks a reconstructed slice of hours already burned.
	IsGeneratedPrecedingTask bool
	// IsProjectedCarryover marks remaining hours spilled past the primary week by capacity.
	IsProjectedCarryover bool
	// CarriedOverWork is the share of CompletedWork already booked by preceding commitments.
	CarriedOverWork float64

	Task Task
}

// Slot returns the committed iteration week.
func (c TaskCommitment) Slot() Slot {
	return Slot{Iteration: c.CommittedIteration, Week: c.CommittedIterationWeek}
}

// UsesActualHours reports whether reporting reads actual rather than projected hours.
func (c TaskCommitment) UsesActualHours() bool {
	return c.IsGeneratedPrecedingTask || c.Closed
}

// ActualHours returns the hours burned within this commitment's own slot.
func (c TaskCommitment) ActualHours() float64 {
	if c.IsGeneratedPrecedingTask {
		return c.CompletedWork
	}
	hours := c.CompletedWork - c.CarriedOverWork
	if hours < 0 {
		return 0
	}
	return hours
}

// IterationHours returns the hours this commitment contributes to its iteration total.
func (c TaskCommitment) IterationHours() float64 {
	if c.UsesActualHours() {
		return c.ActualHours()
	}
	return c.ProjectedCompletedWork
}

// WeekLabel renders the "<path>: Week <n>" grouping key.
func (c TaskCommitment) WeekLabel() string {
	return fmt.Sprintf("%s: Week %d", c.CommittedIteration.Path, c.CommittedIterationWeek)
}
