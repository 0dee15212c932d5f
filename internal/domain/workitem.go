package domain

import (
	"slices"
	"strings"
)

// WorkItemType identifies the level of a tracked work item.
type WorkItemType string

// WorkItemType values.
const (
	TypeFeature   WorkItemType = "Feature"
	TypeUserStory WorkItemType = "User Story"
	TypeTask      WorkItemType = "Task"
)

var validWorkItemTypes = []WorkItemType{TypeFeature, TypeUserStory, TypeTask}

// Tracked field names, as reported by the work-item tracker.
const (
	FieldOriginalEstimate = "Original Estimate"
	FieldRemainingWork    = "Remaining Work"
	FieldCompletedWork    = "Completed Work"
	FieldIterationPath    = "Iteration Path"
	FieldState            = "State"
	FieldAssignedTo       = "Assigned To"
)

// Default workflow state names.
const (
	StateNew    = "New"
	StateActive = "Active"
	StateClosed = "Closed"
)

// WorkItem is the generic tracked entity: identity, current state, and the full
// change log of every field that ever mutated.
type WorkItem struct {
	ID      string
	Title   string
	Type    WorkItemType
	State   string
	Changes map[string]History[string]
}

// WorkItemInput holds values for NewWorkItem.
type WorkItemInput struct {
	ID      string
	Title   string
	Type    WorkItemType
	State   string
	Changes map[string]History[string]
}

// NewWorkItem validates and normalizes one work item.
func NewWorkItem(in WorkItemInput) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.State = strings.TrimSpace(in.State)
	if in.ID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.Title == "" {
		return WorkItem{}, ErrInvalidTitle
	}
	if !slices.Contains(validWorkItemTypes, in.Type) {
		return WorkItem{}, ErrInvalidType
	}

	changes := make(map[string]History[string], len(in.Changes))
	for field, history := range in.Changes {
		field = strings.TrimSpace(field)
		if field == "" || history.Len() == 0 {
			continue
		}
		changes[field] = history
	}
	// A recorded state history is authoritative for the current state.
	if stateHistory, ok := changes[FieldState]; ok {
		in.State = stateHistory.Current()
	}

	return WorkItem{
		ID:      in.ID,
		Title:   in.Title,
		Type:    in.Type,
		State:   in.State,
		Changes: changes,
	}, nil
}

// History returns the change log of one field; an unchanged field yields an empty history.
func (w WorkItem) History(field string) History[string] {
	if w.Changes == nil {
		return History[string]{}
	}
	return w.Changes[field]
}

// Value returns the current value of one field.
func (w WorkItem) Value(field string) string {
	return w.History(field).Current()
}
