package domain

import (
	"fmt"
	"strings"
)

// Task is the leaf of the work hierarchy. Its hour, iteration, state and owner fields
// are kept as full change logs so any of them can be resolved as of a past date.
type Task struct {
	ID            string
	Title         string
	State         string
	IterationPath string
	AssignedTo    string
	ParentStoryID string
	Scheduled     bool

	OriginalEstimate  History[float64]
	RemainingWork     History[float64]
	CompletedWork     History[float64]
	IterationChanges  History[string]
	StateChanges      History[string]
	AssignedToChanges History[string]
}

// TaskInput holds values for NewTask.
type TaskInput struct {
	Item          WorkItem
	ParentStoryID string
	Scheduled     bool
	// IterationPath and AssignedTo are used only when the item has no recorded history for them.
	IterationPath string
	AssignedTo    string
}

// NewTask builds a task from a tracked work item and its hierarchy placement.
func NewTask(in TaskInput) (Task, error) {
	item := in.Item
	if item.Type != TypeTask {
		return Task{}, fmt.Errorf("%w: %q is %q", ErrInvalidType, item.ID, item.Type)
	}
	if strings.TrimSpace(item.ID) == "" {
		return Task{}, ErrInvalidID
	}
	parent := strings.TrimSpace(in.ParentStoryID)
	if parent == "" {
		return Task{}, fmt.Errorf("%w: task %s has no parent user story", ErrInvalidID, item.ID)
	}

	estimate, err := ParseNumeric(item.History(FieldOriginalEstimate))
	if err != nil {
		return Task{}, fmt.Errorf("task %s original estimate: %w", item.ID, err)
	}
	remaining, err := ParseNumeric(item.History(FieldRemainingWork))
	if err != nil {
		return Task{}, fmt.Errorf("task %s remaining work: %w", item.ID, err)
	}
	completed, err := ParseNumeric(item.History(FieldCompletedWork))
	if err != nil {
		return Task{}, fmt.Errorf("task %s completed work: %w", item.ID, err)
	}

	task := Task{
		ID:                item.ID,
		Title:             item.Title,
		State:             item.State,
		IterationPath:     strings.TrimSpace(in.IterationPath),
		AssignedTo:        strings.TrimSpace(in.AssignedTo),
		ParentStoryID:     parent,
		Scheduled:         in.Scheduled,
		OriginalEstimate:  estimate,
		RemainingWork:     remaining,
		CompletedWork:     completed,
		IterationChanges:  item.History(FieldIterationPath),
		StateChanges:      item.History(FieldState),
		AssignedToChanges: item.History(FieldAssignedTo),
	}
	if task.IterationChanges.Len() > 0 {
		task.IterationPath = task.IterationChanges.Current()
	}
	if task.StateChanges.Len() > 0 {
		task.State = task.StateChanges.Current()
	}
	if task.AssignedToChanges.Len() > 0 {
		task.AssignedTo = task.AssignedToChanges.Current()
	}
	return task, nil
}

// HoursAgainstBudget returns completed plus remaining hours at evaluation time.
func (t Task) HoursAgainstBudget() float64 {
	return t.CompletedWork.Current() + t.RemainingWork.Current()
}
