package domain

import (
	"sort"
	"strings"
	"time"
)

// ProjectedDate is one recorded due-date commitment for a feature.
type ProjectedDate struct {
	ID          string
	DueDate     time.Time
	ChangedDate time.Time
}

// UserStory belongs to exactly one feature and owns tasks and nested stories.
type UserStory struct {
	ID        string
	Title     string
	FeatureID string
	SortOrder int
}

// IterationNote is a dated status note a feature carries for one iteration.
type IterationNote struct {
	IterationPath string
	Title         string
	DueDate       time.Time
	Description   string
}

// Feature is the top of the work hierarchy.
type Feature struct {
	ID             string
	Title          string
	UserStories    []UserStory
	ProjectedDates []ProjectedDate
	Notes          []IterationNote
}

// FeatureInput holds values for NewFeature.
type FeatureInput struct {
	ID             string
	Title          string
	UserStories    []UserStory
	ProjectedDates []ProjectedDate
	Notes          []IterationNote
}

// NewFeature validates a feature and orders its projected-date log by change date.
func NewFeature(in FeatureInput) (Feature, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	if in.ID == "" {
		return Feature{}, ErrInvalidID
	}
	if in.Title == "" {
		return Feature{}, ErrInvalidTitle
	}

	stories := make([]UserStory, 0, len(in.UserStories))
	for _, story := range in.UserStories {
		story.ID = strings.TrimSpace(story.ID)
		story.Title = strings.TrimSpace(story.Title)
		if story.ID == "" {
			return Feature{}, ErrInvalidID
		}
		story.FeatureID = in.ID
		stories = append(stories, story)
	}

	dates := make([]ProjectedDate, 0, len(in.ProjectedDates))
	for _, pd := range in.ProjectedDates {
		pd.DueDate = pd.DueDate.UTC()
		pd.ChangedDate = pd.ChangedDate.UTC()
		dates = append(dates, pd)
	}
	sort.SliceStable(dates, func(i, j int) bool {
		return dates[i].ChangedDate.Before(dates[j].ChangedDate)
	})

	notes := make([]IterationNote, 0, len(in.Notes))
	for _, note := range in.Notes {
		note.IterationPath = strings.TrimSpace(note.IterationPath)
		note.Title = strings.TrimSpace(note.Title)
		if note.IterationPath == "" {
			return Feature{}, ErrInvalidPath
		}
		note.DueDate = note.DueDate.UTC()
		notes = append(notes, note)
	}

	return Feature{
		ID:             in.ID,
		Title:          in.Title,
		UserStories:    stories,
		ProjectedDates: dates,
		Notes:          notes,
	}, nil
}

// NotesFor returns the feature's notes for one iteration, latest due date first.
func (f Feature) NotesFor(path string) []IterationNote {
	out := make([]IterationNote, 0)
	for _, note := range f.Notes {
		if note.IterationPath == path {
			out = append(out, note)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.After(out[j].DueDate)
	})
	return out
}

// Ballpark returns the first projected date, entered at kickoff.
func (f Feature) Ballpark() (ProjectedDate, bool) {
	if len(f.ProjectedDates) == 0 {
		return ProjectedDate{}, false
	}
	return f.ProjectedDates[0], true
}

// OriginalTarget returns the second projected date, entered once the feature is fully tasked.
func (f Feature) OriginalTarget() (ProjectedDate, bool) {
	if len(f.ProjectedDates) < 2 {
		return ProjectedDate{}, false
	}
	return f.ProjectedDates[1], true
}

// CurrentProjection returns the latest projected date.
func (f Feature) CurrentProjection() (ProjectedDate, bool) {
	if len(f.ProjectedDates) == 0 {
		return ProjectedDate{}, false
	}
	return f.ProjectedDates[len(f.ProjectedDates)-1], true
}

// Story looks up one of the feature's user stories by id.
func (f Feature) Story(id string) (UserStory, bool) {
	for _, story := range f.UserStories {
		if story.ID == id {
			return story, true
		}
	}
	return UserStory{}, false
}
