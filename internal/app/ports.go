package app

import (
	"context"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// WorkItemSource supplies the work hierarchy and its change histories.
// Implementations own fetch deadlines and cancellation through ctx.
type WorkItemSource interface {
	Features(context.Context) ([]domain.Feature, error)
	Iterations(context.Context) ([]domain.Iteration, error)
	CurrentIteration(context.Context) (domain.Iteration, error)
	Developers(context.Context) (domain.Roster, error)
	ChildUserStories(context.Context, domain.UserStory) ([]domain.UserStory, error)
	ChildTasks(context.Context, domain.UserStory) ([]domain.Task, error)
}

// SnapshotStore persists a complete work-item snapshot.
type SnapshotStore interface {
	ReplaceSnapshot(context.Context, Snapshot) error
	LoadSnapshot(context.Context) (Snapshot, error)
}
