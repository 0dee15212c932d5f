package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "timeline.snapshot.v1"

// Snapshot is a complete, portable capture of the work hierarchy and its histories.
type Snapshot struct {
	Version          string              `json:"version"`
	ExportedAt       time.Time           `json:"exported_at"`
	CurrentIteration string              `json:"current_iteration,omitempty"`
	Iterations       []SnapshotIteration `json:"iterations"`
	Developers       []string            `json:"developers"`
	WorkItems        []SnapshotWorkItem  `json:"work_items"`
}

// SnapshotIteration represents one iteration in a snapshot.
type SnapshotIteration struct {
	Path      string    `json:"path"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// SnapshotWorkItem represents one feature, user story or task in a snapshot.
type SnapshotWorkItem struct {
	ID             string                  `json:"id"`
	Type           domain.WorkItemType     `json:"type"`
	Title          string                  `json:"title"`
	State          string                  `json:"state,omitempty"`
	ParentID       string                  `json:"parent_id,omitempty"`
	SortOrder      int                     `json:"sort_order,omitempty"`
	Scheduled      bool                    `json:"scheduled,omitempty"`
	IterationPath  string                  `json:"iteration_path,omitempty"`
	AssignedTo     string                  `json:"assigned_to,omitempty"`
	Changes        []SnapshotFieldChange   `json:"changes,omitempty"`
	ProjectedDates []SnapshotProjectedDate `json:"projected_dates,omitempty"`
	Notes          []SnapshotIterationNote `json:"notes,omitempty"`
}

// SnapshotFieldChange represents one recorded field mutation.
type SnapshotFieldChange struct {
	Field       string    `json:"field"`
	ChangedDate time.Time `json:"changed_date"`
	PreValue    string    `json:"pre_value"`
	PostValue   string    `json:"post_value"`
}

// SnapshotProjectedDate represents one projected completion date entry of a feature.
type SnapshotProjectedDate struct {
	ID          string    `json:"id"`
	DueDate     time.Time `json:"due_date"`
	ChangedDate time.Time `json:"changed_date"`
}

// SnapshotIterationNote represents one per-iteration feature note.
type SnapshotIterationNote struct {
	IterationPath string    `json:"iteration_path"`
	Title         string    `json:"title"`
	DueDate       time.Time `json:"due_date"`
	Description   string    `json:"description,omitempty"`
}

// Validate checks identities, references and hierarchy placement.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	paths := map[string]struct{}{}
	for i, it := range s.Iterations {
		if strings.TrimSpace(it.Path) == "" {
			return fmt.Errorf("%w: iterations[%d].path is required", ErrInvalidSnapshot, i)
		}
		if !it.EndDate.After(it.StartDate) {
			return fmt.Errorf("%w: iterations[%d] must end after it starts", ErrInvalidSnapshot, i)
		}
		if _, exists := paths[it.Path]; exists {
			return fmt.Errorf("%w: duplicate iteration path %q", ErrInvalidSnapshot, it.Path)
		}
		paths[it.Path] = struct{}{}
	}
	if s.CurrentIteration != "" {
		if _, ok := paths[s.CurrentIteration]; !ok {
			return fmt.Errorf("%w: current_iteration references unknown path %q", ErrInvalidSnapshot, s.CurrentIteration)
		}
	}

	developers := map[string]struct{}{}
	for i, name := range s.Developers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: developers[%d] is required", ErrInvalidSnapshot, i)
		}
		if _, exists := developers[name]; exists {
			return fmt.Errorf("%w: duplicate developer %q", ErrInvalidSnapshot, name)
		}
		developers[name] = struct{}{}
	}

	types := map[string]domain.WorkItemType{}
	for i, item := range s.WorkItems {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("%w: work_items[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("%w: work_items[%d].title is required", ErrInvalidSnapshot, i)
		}
		switch item.Type {
		case domain.TypeFeature, domain.TypeUserStory, domain.TypeTask:
		default:
			return fmt.Errorf("%w: work_items[%d].type must be Feature|User Story|Task", ErrInvalidSnapshot, i)
		}
		if _, exists := types[item.ID]; exists {
			return fmt.Errorf("%w: duplicate work item id %q", ErrInvalidSnapshot, item.ID)
		}
		for j, note := range item.Notes {
			if strings.TrimSpace(note.IterationPath) == "" {
				return fmt.Errorf("%w: work_items[%d].notes[%d].iteration_path is required", ErrInvalidSnapshot, i, j)
			}
		}
		for j, change := range item.Changes {
			if strings.TrimSpace(change.Field) == "" {
				return fmt.Errorf("%w: work_items[%d].changes[%d].field is required", ErrInvalidSnapshot, i, j)
			}
			if change.ChangedDate.IsZero() {
				return fmt.Errorf("%w: work_items[%d].changes[%d].changed_date is required", ErrInvalidSnapshot, i, j)
			}
		}
		types[item.ID] = item.Type
	}
	for i, item := range s.WorkItems {
		parentType, hasParent := types[item.ParentID]
		switch item.Type {
		case domain.TypeUserStory:
			if !hasParent || parentType == domain.TypeTask {
				return fmt.Errorf("%w: work_items[%d] user story needs a feature or user story parent", ErrInvalidSnapshot, i)
			}
		case domain.TypeTask:
			if !hasParent || parentType != domain.TypeUserStory {
				return fmt.Errorf("%w: work_items[%d] task needs a user story parent", ErrInvalidSnapshot, i)
			}
		}
	}
	return nil
}

// Sort orders the snapshot deterministically.
func (s *Snapshot) Sort() {
	sort.SliceStable(s.Iterations, func(i, j int) bool {
		return s.Iterations[i].EndDate.Before(s.Iterations[j].EndDate)
	})
	sort.Strings(s.Developers)
	sort.SliceStable(s.WorkItems, func(i, j int) bool {
		return s.WorkItems[i].ID < s.WorkItems[j].ID
	})
}

// Iteration converts a snapshot iteration to the domain type.
func (it SnapshotIteration) Iteration() (domain.Iteration, error) {
	return domain.NewIteration(it.Path, it.StartDate, it.EndDate)
}

// WorkItem converts the snapshot row to a domain work item with grouped field histories.
func (w SnapshotWorkItem) WorkItem() (domain.WorkItem, error) {
	byField := map[string][]domain.ChangeEvent[string]{}
	for _, change := range w.Changes {
		field := strings.TrimSpace(change.Field)
		byField[field] = append(byField[field], domain.ChangeEvent[string]{
			ChangedDate: change.ChangedDate,
			PreValue:    change.PreValue,
			PostValue:   change.PostValue,
		})
	}
	changes := make(map[string]domain.History[string], len(byField))
	for field, events := range byField {
		changes[field] = domain.NewHistory(events...)
	}
	return domain.NewWorkItem(domain.WorkItemInput{
		ID:      w.ID,
		Title:   w.Title,
		Type:    w.Type,
		State:   w.State,
		Changes: changes,
	})
}

// UserStory converts a user story row.
func (w SnapshotWorkItem) UserStory(featureID string) domain.UserStory {
	return domain.UserStory{ID: w.ID, Title: w.Title, FeatureID: featureID, SortOrder: w.SortOrder}
}

// Task converts a task row.
func (w SnapshotWorkItem) Task() (domain.Task, error) {
	item, err := w.WorkItem()
	if err != nil {
		return domain.Task{}, err
	}
	return domain.NewTask(domain.TaskInput{
		Item:          item,
		ParentStoryID: w.ParentID,
		Scheduled:     w.Scheduled,
		IterationPath: w.IterationPath,
		AssignedTo:    w.AssignedTo,
	})
}

// Feature converts a feature row and its direct user story rows.
func (w SnapshotWorkItem) Feature(stories []SnapshotWorkItem) (domain.Feature, error) {
	in := domain.FeatureInput{ID: w.ID, Title: w.Title}
	for _, story := range stories {
		in.UserStories = append(in.UserStories, story.UserStory(w.ID))
	}
	sort.SliceStable(in.UserStories, func(i, j int) bool {
		return in.UserStories[i].SortOrder < in.UserStories[j].SortOrder
	})
	for _, pd := range w.ProjectedDates {
		in.ProjectedDates = append(in.ProjectedDates, domain.ProjectedDate{ID: pd.ID, DueDate: pd.DueDate, ChangedDate: pd.ChangedDate})
	}
	for _, note := range w.Notes {
		in.Notes = append(in.Notes, domain.IterationNote{
			IterationPath: note.IterationPath,
			Title:         note.Title,
			DueDate:       note.DueDate,
			Description:   note.Description,
		})
	}
	return domain.NewFeature(in)
}

// ResolveCurrentIteration picks the explicitly named iteration, or else the one containing the given time.
func ResolveCurrentIteration(iterations []domain.Iteration, explicitPath string, now time.Time) (domain.Iteration, error) {
	explicitPath = strings.TrimSpace(explicitPath)
	for _, it := range iterations {
		if explicitPath != "" && it.Path == explicitPath {
			return it, nil
		}
		if explicitPath == "" && it.Contains(now) {
			return it, nil
		}
	}
	if explicitPath != "" {
		return domain.Iteration{}, fmt.Errorf("current iteration %q: %w", explicitPath, ErrNotFound)
	}
	return domain.Iteration{}, fmt.Errorf("iteration containing %s: %w", now.Format(time.DateOnly), ErrNotFound)
}

// SnapshotSource serves a WorkItemSource from an in-memory snapshot.
type SnapshotSource struct {
	snap     Snapshot
	clock    Clock
	byID     map[string]SnapshotWorkItem
	children map[string][]SnapshotWorkItem
}

// NewSnapshotSource validates snap and indexes it by parent.
func NewSnapshotSource(snap Snapshot, clock Clock) (*SnapshotSource, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	snap.Sort()
	if clock == nil {
		clock = time.Now
	}
	src := &SnapshotSource{
		snap:     snap,
		clock:    clock,
		byID:     make(map[string]SnapshotWorkItem, len(snap.WorkItems)),
		children: map[string][]SnapshotWorkItem{},
	}
	for _, item := range snap.WorkItems {
		src.byID[item.ID] = item
		if item.ParentID != "" {
			src.children[item.ParentID] = append(src.children[item.ParentID], item)
		}
	}
	return src, nil
}

// Features returns every feature with its direct user stories.
func (s *SnapshotSource) Features(context.Context) ([]domain.Feature, error) {
	out := make([]domain.Feature, 0)
	for _, item := range s.snap.WorkItems {
		if item.Type != domain.TypeFeature {
			continue
		}
		feature, err := item.Feature(s.childrenOfType(item.ID, domain.TypeUserStory))
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", item.ID, err)
		}
		out = append(out, feature)
	}
	return out, nil
}

// Iterations returns every iteration.
func (s *SnapshotSource) Iterations(context.Context) ([]domain.Iteration, error) {
	out := make([]domain.Iteration, 0, len(s.snap.Iterations))
	for _, raw := range s.snap.Iterations {
		it, err := raw.Iteration()
		if err != nil {
			return nil, fmt.Errorf("iteration %q: %w", raw.Path, err)
		}
		out = append(out, it)
	}
	return out, nil
}

// CurrentIteration returns the snapshot's named current iteration, or the one containing the source clock's time.
func (s *SnapshotSource) CurrentIteration(ctx context.Context) (domain.Iteration, error) {
	iterations, err := s.Iterations(ctx)
	if err != nil {
		return domain.Iteration{}, err
	}
	return ResolveCurrentIteration(iterations, s.snap.CurrentIteration, s.clock().UTC())
}

// Developers returns the roster.
func (s *SnapshotSource) Developers(context.Context) (domain.Roster, error) {
	roster := make(domain.Roster, len(s.snap.Developers))
	for _, name := range s.snap.Developers {
		developer, err := domain.NewDeveloper(name)
		if err != nil {
			return nil, err
		}
		roster[developer.Name] = developer
	}
	return roster, nil
}

// ChildUserStories returns the stories nested directly under story.
func (s *SnapshotSource) ChildUserStories(_ context.Context, story domain.UserStory) ([]domain.UserStory, error) {
	if _, ok := s.byID[story.ID]; !ok {
		return nil, fmt.Errorf("user story %q: %w", story.ID, ErrNotFound)
	}
	out := make([]domain.UserStory, 0)
	for _, child := range s.childrenOfType(story.ID, domain.TypeUserStory) {
		out = append(out, child.UserStory(story.FeatureID))
	}
	return out, nil
}

// ChildTasks returns the tasks directly under story.
func (s *SnapshotSource) ChildTasks(_ context.Context, story domain.UserStory) ([]domain.Task, error) {
	if _, ok := s.byID[story.ID]; !ok {
		return nil, fmt.Errorf("user story %q: %w", story.ID, ErrNotFound)
	}
	out := make([]domain.Task, 0)
	for _, child := range s.childrenOfType(story.ID, domain.TypeTask) {
		task, err := child.Task()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", child.ID, err)
		}
		out = append(out, task)
	}
	return out, nil
}

func (s *SnapshotSource) childrenOfType(parentID string, kind domain.WorkItemType) []SnapshotWorkItem {
	out := make([]SnapshotWorkItem, 0)
	for _, child := range s.children[parentID] {
		if child.Type == kind {
			out = append(out, child)
		}
	}
	return out
}
