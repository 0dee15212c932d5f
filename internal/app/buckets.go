package app

import (
	"sort"
	"strings"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/domain"
)

// StoryGroup is a set of commitments sharing one parent user story.
type StoryGroup struct {
	Story       domain.UserStory
	Commitments []domain.TaskCommitment
}

// WeekBucket groups commitments landing in one iteration week.
type WeekBucket struct {
	Label   string
	Slot    domain.Slot
	Stories []StoryGroup
}

// CurrentIterationView splits a feature's work around the current week.
type CurrentIterationView struct {
	CompletedSoFar []WeekBucket
	GoingForward   []WeekBucket
}

// Empty reports whether neither bucket list holds anything.
func (v CurrentIterationView) Empty() bool {
	return len(v.CompletedSoFar) == 0 && len(v.GoingForward) == 0
}

// CurrentIterationView buckets a feature's commitments into the weeks of the current
// iteration already behind us, and the scheduled or active work from the current week on.
func (t *Timeline) CurrentIterationView(ft FeatureTimeline) CurrentIterationView {
	var done, ahead []domain.TaskCommitment
	for _, c := range ft.Commitments {
		state := c.TaskState
		if (c.Closed || state == t.opts.ActiveState) &&
			c.CommittedIteration.Path == t.current.Path &&
			c.CommittedIterationWeek < t.currentWeek {
			done = append(done, c)
		}
		if (state == t.opts.NewState && c.Task.Scheduled && c.CommittedDeveloper.Name != t.opts.SentinelDeveloper) ||
			(state == t.opts.ActiveState && !c.IsGeneratedPrecedingTask && c.CommittedIterationWeek >= t.currentWeek) {
			ahead = append(ahead, c)
		}
	}
	return CurrentIterationView{
		CompletedSoFar: t.weekBuckets(done),
		GoingForward:   t.weekBuckets(ahead),
	}
}

func (t *Timeline) weekBuckets(commitments []domain.TaskCommitment) []WeekBucket {
	byLabel := map[string]*WeekBucket{}
	members := map[string][]domain.TaskCommitment{}
	order := make([]string, 0)
	for _, c := range commitments {
		label := c.WeekLabel()
		if _, ok := byLabel[label]; !ok {
			byLabel[label] = &WeekBucket{Label: label, Slot: c.Slot()}
			order = append(order, label)
		}
		members[label] = append(members[label], c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return t.calendar.SlotBefore(byLabel[order[i]].Slot, byLabel[order[j]].Slot)
	})
	out := make([]WeekBucket, 0, len(order))
	for _, label := range order {
		bucket := byLabel[label]
		bucket.Stories = groupByStory(members[label])
		out = append(out, *bucket)
	}
	return out
}

// groupByStory groups commitments by parent user story, ordered by sort order.
func groupByStory(commitments []domain.TaskCommitment) []StoryGroup {
	index := map[string]int{}
	out := make([]StoryGroup, 0)
	for _, c := range commitments {
		i, ok := index[c.ParentUserStory.ID]
		if !ok {
			i = len(out)
			index[c.ParentUserStory.ID] = i
			out = append(out, StoryGroup{Story: c.ParentUserStory})
		}
		out[i].Commitments = append(out[i].Commitments, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Story.SortOrder == out[j].Story.SortOrder {
			return out[i].Story.ID < out[j].Story.ID
		}
		return out[i].Story.SortOrder < out[j].Story.SortOrder
	})
	return out
}

// DeveloperHours is one developer's actual hours in an iteration.
type DeveloperHours struct {
	Developer string
	Hours     float64
}

// IterationHistory is one iteration's per-developer hours and feature notes.
type IterationHistory struct {
	Iteration  domain.Iteration
	Developers []DeveloperHours
	Notes      []domain.IterationNote
}

// PriorIteration lists the work closed in one past iteration, and for the iteration
// just before the current one, the tasks that were shifted out of it.
type PriorIteration struct {
	Iteration domain.Iteration
	Closed    []StoryGroup
	Shifted   []StoryGroup
}

// PriorIterationView is a feature's look back over the iterations before the current one.
type PriorIterationView struct {
	History    []IterationHistory
	Iterations []PriorIteration
}

// PriorIterationView reports a feature's past iterations: per-developer hours for every
// iteration so far including the current one, and closed and shifted tasks per prior
// iteration, latest path first.
func (t *Timeline) PriorIterationView(ft FeatureTimeline) PriorIterationView {
	prior := t.calendar.Prior(t.current)
	view := PriorIterationView{}

	thusFar := append(append([]domain.Iteration(nil), prior...), t.current)
	for _, it := range thusFar {
		entry := IterationHistory{Iteration: it, Notes: ft.Feature.NotesFor(it.Path)}
		entry.Developers = developerHours(ft.Commitments, it)
		if len(entry.Developers) == 0 && len(entry.Notes) == 0 {
			continue
		}
		view.History = append(view.History, entry)
	}
	if len(prior) == 0 {
		return view
	}

	priorPaths := make(map[string]struct{}, len(prior))
	for _, it := range prior {
		priorPaths[it.Path] = struct{}{}
	}
	closedBy := map[string][]domain.TaskCommitment{}
	for _, c := range ft.Commitments {
		if !c.Closed {
			continue
		}
		if _, ok := priorPaths[c.IterationCompleted]; ok {
			closedBy[c.IterationCompleted] = append(closedBy[c.IterationCompleted], c)
		}
	}

	immediate := prior[len(prior)-1]
	shifted := shiftedFrom(ft.Commitments, immediate.Path)

	for _, it := range prior {
		entry := PriorIteration{Iteration: it}
		if closed := closedBy[it.Path]; len(closed) > 0 {
			entry.Closed = groupByStory(closed)
		}
		if it.Path == immediate.Path && len(shifted) > 0 {
			entry.Shifted = groupByStory(shifted)
		}
		if entry.Closed == nil && entry.Shifted == nil {
			continue
		}
		view.Iterations = append(view.Iterations, entry)
	}
	sort.SliceStable(view.Iterations, func(i, j int) bool {
		return strings.Compare(view.Iterations[i].Iteration.Path, view.Iterations[j].Iteration.Path) > 0
	})
	return view
}

// shiftedFrom returns the last commitment of every task whose iteration was ever
// moved away from path.
func shiftedFrom(commitments []domain.TaskCommitment, path string) []domain.TaskCommitment {
	last := map[string]int{}
	order := make([]string, 0)
	for i, c := range commitments {
		moved := false
		for _, event := range c.Task.IterationChanges.Events() {
			if event.PreValue == path {
				moved = true
				break
			}
		}
		if !moved {
			continue
		}
		if _, ok := last[c.TaskID]; !ok {
			order = append(order, c.TaskID)
		}
		last[c.TaskID] = i
	}
	out := make([]domain.TaskCommitment, 0, len(order))
	for _, id := range order {
		out = append(out, commitments[last[id]])
	}
	return out
}

// developerHours sums actual hours per developer in one iteration, sorted by name.
func developerHours(commitments []domain.TaskCommitment, it domain.Iteration) []DeveloperHours {
	totals := map[string]float64{}
	for _, c := range commitments {
		if c.CommittedIteration.Path != it.Path || c.IsProjectedCarryover {
			continue
		}
		totals[c.CommittedDeveloper.Name] += c.ActualHours()
	}
	out := make([]DeveloperHours, 0, len(totals))
	for name, hours := range totals {
		out = append(out, DeveloperHours{Developer: name, Hours: hours})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Developer < out[j].Developer })
	return out
}
